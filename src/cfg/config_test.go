package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown environment", func(c *Config) { c.Environment = "staging" }},
		{"empty data path", func(c *Config) { c.DataPath = "" }},
		{"zero pool size", func(c *Config) { c.PoolSize = 0 }},
		{"zero disk workers", func(c *Config) { c.DiskWorkers = 0 }},
		{"negative disk workers", func(c *Config) { c.DiskWorkers = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestEnvironment_Validate(t *testing.T) {
	assert.NoError(t, EnvDev.Validate())
	assert.NoError(t, EnvProd.Validate())
	assert.Error(t, Environment("test").Validate())
}
