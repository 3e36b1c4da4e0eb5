package app

import (
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/cfg"
	"github.com/Blackdeer1524/RelDB/src/pkg/utils"
)

type envVars struct {
	Environment string `split_words:"true"`

	DataPath    string `split_words:"true"`
	PoolSize    uint64 `split_words:"true"`
	DiskWorkers int    `split_words:"true"`
}

// loadEnv merges a .env file (explicit path or the working directory) and
// RELDB_* variables over the defaults.
func loadEnv(envPath string) (cfg.Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			return cfg.Config{}, errors.Wrap(err, "load env file")
		}
	} else {
		_ = godotenv.Load()
	}

	var env envVars
	if err := envconfig.Process("RELDB", &env); err != nil {
		return cfg.Config{}, errors.Wrap(err, "process env")
	}

	config := cfg.Default()
	if env.Environment != "" {
		config.Environment = cfg.Environment(env.Environment)
	}
	if env.DataPath != "" {
		config.DataPath = env.DataPath
	}
	if env.PoolSize != 0 {
		config.PoolSize = env.PoolSize
	}
	if env.DiskWorkers != 0 {
		config.DiskWorkers = env.DiskWorkers
	}

	if err := config.Validate(); err != nil {
		return cfg.Config{}, errors.Wrap(err, "validate config")
	}

	return config, nil
}

func newLogger(env cfg.Environment) *zap.Logger {
	if env == cfg.EnvProd {
		return utils.Must(zap.NewProduction())
	}

	return utils.Must(zap.NewDevelopment())
}
