package cfg

import "github.com/go-faster/errors"

type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"

	DefaultEnv = EnvDev
)

func (e Environment) Validate() error {
	if e != EnvDev && e != EnvProd {
		return errors.New("environment must be either dev or prod")
	}

	return nil
}

// Config carries everything the storage engine needs to come up.
type Config struct {
	Environment Environment

	DataPath string

	PoolSize    uint64
	DiskWorkers int
}

func Default() Config {
	return Config{
		Environment: DefaultEnv,
		DataPath:    "reldb.db",
		PoolSize:    64,
		DiskWorkers: 4,
	}
}

func (c Config) Validate() error {
	if err := c.Environment.Validate(); err != nil {
		return err
	}
	if c.DataPath == "" {
		return errors.New("data path must not be empty")
	}
	if c.PoolSize == 0 {
		return errors.New("pool size must be positive")
	}
	if c.DiskWorkers <= 0 {
		return errors.New("disk workers must be positive")
	}

	return nil
}
