package main

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/config"
	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/registry"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

// app bundles everything every subcommand needs after opening the store:
// the loaded configuration, the raw connection, and the constructed
// registry set, built once per process rather than through package-level
// globals.
type app struct {
	cfg *config.Config
	db  *sqlx.DB
	reg registry.Set
	clk clock.Clock
}

func bootstrap(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	db, dialect, err := dbstore.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	clk := clock.Real()

	if err := sqlstore.EnsureSchema(ctx, db, dialect, clk); err != nil {
		db.Close()
		return nil, err
	}

	reg := registry.Set{
		Jobs:              sqlstore.NewJobRegistry(db, dialect),
		Thumbnails:        sqlstore.NewThumbnailRegistry(db, dialect),
		ThumbnailCleanups: sqlstore.NewThumbnailCleanupRegistry(db, dialect),
		WalMaintenance:    sqlstore.NewWalMaintenanceRegistry(db, dialect),
		Library:           sqlstore.NewLibraryRegistry(db, dialect),
		Duplicates:        sqlstore.NewDuplicateRegistry(db, dialect),
	}

	return &app{cfg: cfg, db: db, reg: reg, clk: clk}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
