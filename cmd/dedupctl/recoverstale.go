package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/denisvmedia/dedupfs/cmd/internal/command"
	"github.com/denisvmedia/dedupfs/coordinator"
)

type recoverStaleCommand struct {
	command.Base

	configFile string
	leaseTTL   int
}

func newRecoverStaleCommand() *cobra.Command {
	c := &recoverStaleCommand{leaseTTL: 300}
	c.Base = command.NewBase(&cobra.Command{
		Use:   "recover-stale",
		Short: "Expire scan/hash jobs whose lease ran out",
		Long: `recover-stale runs the same lease-expiry sweep the coordinator
performs inline before scan/hash admission, job claims, job reads and
job listings. Useful for an operator-run cron
in addition to (not instead of) the inline sweep.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run(cmd.Context())
		},
	})

	c.Cmd().Flags().StringVar(&c.configFile, "config", "", "Path to a YAML configuration file (falls back to environment variables)")

	return c.Cmd()
}

func (c *recoverStaleCommand) run(ctx context.Context) error {
	a, err := bootstrap(ctx, c.configFile)
	if err != nil {
		slog.Error("recover-stale failed", "error", err)
		return err
	}
	defer a.Close()

	coord := coordinator.New(a.reg.Jobs, a.clk, coordinator.Config{})
	n, err := coord.RecoverStaleJobs(ctx)
	if err != nil {
		slog.Error("recover-stale failed", "error", err)
		return err
	}

	slog.Info("recovered stale jobs", "count", n)
	return nil
}
