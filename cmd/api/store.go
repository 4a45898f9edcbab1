package main

import (
	"fmt"
	"log/slog"

	"github.com/geocoder89/userdir/internal/config"
	"github.com/geocoder89/userdir/internal/db"
	httpx "github.com/geocoder89/userdir/internal/http"
	"github.com/geocoder89/userdir/internal/observability"
	"github.com/geocoder89/userdir/internal/repo/memory"
	"github.com/geocoder89/userdir/internal/repo/postgres"
	"github.com/geocoder89/userdir/internal/repo/sqlite"
)

// openStore builds the configured backend and returns its close func.
func openStore(cfg config.Config, prom *observability.Prom, log *slog.Logger) (httpx.Store, func(), error) {
	switch cfg.StorageDriver {
	case config.DriverPostgres:
		if cfg.DBMigrate {
			if err := db.Migrate(cfg.DBURL); err != nil {
				return nil, nil, err
			}
			log.Info("postgres migrations applied")
		}

		pool, err := db.NewPool(cfg.DBURL, cfg.DBMaxConns)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}

		return postgres.NewUsersRepo(pool, prom), pool.Close, nil

	case config.DriverSQLite:
		gdb, err := db.OpenSQLite(cfg.SQLitePath, cfg.Env == "dev")
		if err != nil {
			return nil, nil, err
		}

		closeFn := func() {
			if sqlDB, err := gdb.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}

		return sqlite.NewUsersRepo(gdb, prom), closeFn, nil

	case config.DriverMemory:
		log.Warn("memory storage selected, data is lost on restart")
		return memory.NewUsersRepo(), func() {}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
}
