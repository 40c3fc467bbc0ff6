package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/denisvmedia/dedupfs/cmd/internal/command"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

type migrateCommand struct {
	command.Base

	configFile string
}

func newMigrateCommand() *cobra.Command {
	c := &migrateCommand{}
	c.Base = command.NewBase(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `migrate connects to the configured database and applies every
declared schema migration that hasn't yet been recorded, in ascending
version order. Re-running against an up-to-date store is a no-op.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context())
		},
	})

	c.Cmd().Flags().StringVar(&c.configFile, "config", "", "Path to a YAML configuration file (falls back to environment variables)")

	return c.Cmd()
}

func (c *migrateCommand) run(ctx context.Context) error {
	a, err := bootstrap(ctx, c.configFile)
	if err != nil {
		slog.Error("migration failed", "error", err)
		return err
	}
	defer a.Close()

	applied, err := sqlstore.AppliedVersions(ctx, a.db)
	if err != nil {
		return err
	}

	slog.Info("schema up to date", "dialect", dbstore.DSNDialect(a.cfg.DatabaseURL), "applied_migrations", len(applied))
	return nil
}
