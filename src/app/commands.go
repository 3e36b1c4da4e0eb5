package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/Blackdeer1524/RelDB/src/cfg"
)

// InitEntrypoint creates the database and log file pair at the configured
// data path.
type InitEntrypoint struct {
	EnvPath string

	config cfg.Config
	log    *zap.Logger
	fs     afero.Fs
}

func (e *InitEntrypoint) Init(_ context.Context) error {
	config, err := loadEnv(e.EnvPath)
	if err != nil {
		return err
	}

	e.config = config
	e.log = newLogger(config.Environment)
	e.fs = afero.NewOsFs()

	return nil
}

func (e *InitEntrypoint) Run(_ context.Context) error {
	dir := filepath.Dir(e.config.DataPath)

	// Probe the target directory before touching the real file pair.
	probe := filepath.Join(dir, ".reldb-"+uuid.NewString())
	f, err := e.fs.Create(probe)
	if err != nil {
		return errors.Wrap(err, "data directory is not writable")
	}
	_ = f.Close()
	_ = e.fs.Remove(probe)

	db, err := OpenDatabase(e.config, e.fs, e.log)
	if err != nil {
		return err
	}

	if err := db.Close(); err != nil {
		return err
	}

	e.log.Info("database initialised",
		zap.String("data_path", e.config.DataPath))

	return nil
}

func (e *InitEntrypoint) Close() error {
	if e.log != nil {
		_ = e.log.Sync()
	}

	return nil
}

// StatsEntrypoint opens the database and prints engine counters.
type StatsEntrypoint struct {
	EnvPath string

	config cfg.Config
	log    *zap.Logger
	db     *Database
}

func (e *StatsEntrypoint) Init(_ context.Context) error {
	config, err := loadEnv(e.EnvPath)
	if err != nil {
		return err
	}

	e.config = config
	e.log = newLogger(config.Environment)

	db, err := OpenDatabase(config, afero.NewOsFs(), e.log)
	if err != nil {
		return err
	}

	e.db = db

	return nil
}

func (e *StatsEntrypoint) Run(_ context.Context) error {
	pool := e.db.Pool()
	dm := e.db.Disk()

	fmt.Printf("data path:    %s\n", e.config.DataPath)
	fmt.Printf("pool size:    %d frames\n", pool.Size())
	fmt.Printf("free frames:  %d\n", pool.FreeFrames())
	fmt.Printf("disk writes:  %d\n", dm.NumWrites())
	fmt.Printf("disk flushes: %d\n", dm.NumFlushes())
	fmt.Printf("disk deletes: %d\n", dm.NumDeletes())

	return nil
}

func (e *StatsEntrypoint) Close() (err error) {
	if e.db != nil {
		err = e.db.Close()
	}

	if e.log != nil {
		if err != nil {
			e.log.Error("failed to close database", zap.Error(err))
		}
		_ = e.log.Sync()
	}

	return err
}
