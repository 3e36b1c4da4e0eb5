package app

import (
	"github.com/go-faster/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/bufferpool"
	"github.com/Blackdeer1524/RelDB/src/cfg"
	"github.com/Blackdeer1524/RelDB/src/storage/disk"
)

// Database wires the storage engine together: disk manager, scheduler,
// replacer and buffer pool over one backing file pair.
type Database struct {
	config cfg.Config
	log    *zap.Logger

	disk      *disk.Manager
	scheduler *disk.Scheduler
	pool      *bufferpool.Manager
}

func OpenDatabase(config cfg.Config, fs afero.Fs, log *zap.Logger) (*Database, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}

	dm, err := disk.NewManager(fs, config.DataPath, log)
	if err != nil {
		return nil, errors.Wrap(err, "open disk manager")
	}

	scheduler := disk.NewScheduler(dm, config.DiskWorkers, log)

	pool, err := bufferpool.NewManager(
		config.PoolSize,
		bufferpool.NewArcReplacer(config.PoolSize),
		scheduler,
		log,
	)
	if err != nil {
		scheduler.Shutdown()
		_ = dm.Shutdown()

		return nil, errors.Wrap(err, "create buffer pool")
	}

	return &Database{
		config:    config,
		log:       log,
		disk:      dm,
		scheduler: scheduler,
		pool:      pool,
	}, nil
}

func (d *Database) Pool() *bufferpool.Manager {
	return d.pool
}

func (d *Database) Disk() *disk.Manager {
	return d.disk
}

// Close flushes every resident page and tears the engine down in reverse
// dependency order.
func (d *Database) Close() error {
	err := d.pool.FlushAllPages()

	if cerr := d.pool.Close(); err == nil {
		err = cerr
	}

	d.scheduler.Shutdown()

	if serr := d.disk.Shutdown(); err == nil {
		err = serr
	}

	return errors.Wrap(err, "close database")
}
