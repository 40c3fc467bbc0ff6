package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/denisvmedia/dedupfs/apiserver"
	"github.com/denisvmedia/dedupfs/cmd/internal/command"
	"github.com/denisvmedia/dedupfs/coordinator"
	"github.com/denisvmedia/dedupfs/dupquery"
	"github.com/denisvmedia/dedupfs/internal/httpserver"
	"github.com/denisvmedia/dedupfs/metrics"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/thumbqueue"
	"github.com/denisvmedia/dedupfs/walsched"
)

type serveCommand struct {
	command.Base

	configFile string
	addr       string
}

func newServeCommand() *cobra.Command {
	c := &serveCommand{addr: ":8080"}
	c.Base = command.NewBase(&cobra.Command{
		Use:   "serve",
		Short: "Run the control-plane HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run()
		},
	})

	flags := c.Cmd().Flags()
	flags.StringVar(&c.configFile, "config", "", "Path to a YAML configuration file (falls back to environment variables)")
	flags.StringVar(&c.addr, "addr", c.addr, "Bind address for the HTTP API")

	return c.Cmd()
}

func (c *serveCommand) run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := bootstrap(ctx, c.configFile)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return err
	}
	defer a.Close()

	coord := coordinator.New(a.reg.Jobs, a.clk, coordinator.Config{
		LeaseTTL:        time.Duration(a.cfg.JobLockTTLSeconds) * time.Second,
		GlobalDryRun:    a.cfg.DryRun,
		AllowRealDelete: a.cfg.AllowRealDelete,
	})

	thumbs := thumbqueue.New(a.reg.Thumbnails, a.reg.ThumbnailCleanups, a.reg.Library, a.clk, thumbqueue.Config{
		LibrariesRoot:       a.cfg.LibrariesRoot,
		ThumbsRoot:          a.cfg.ThumbsRoot,
		QueueCapacity:       a.cfg.ThumbnailQueueCapacity,
		DefaultMaxDimension: a.cfg.ThumbnailDefaultMaxDimension,
		MaxMaxDimension:     a.cfg.ThumbnailMaxMaxDimension,
		DefaultFormat:       models.ThumbnailFormat(a.cfg.ThumbnailDefaultFormat),
		BackoffBase:         time.Duration(a.cfg.ThumbnailBackoffBaseSeconds) * time.Second,
		BackoffMax:          time.Duration(a.cfg.ThumbnailBackoffMaxSeconds) * time.Second,
		CleanupDelayDefault: time.Duration(a.cfg.ThumbnailCleanupDelaySeconds) * time.Second,
	})

	wal := walsched.New(a.reg.WalMaintenance, a.clk, walsched.Config{
		DefaultMode:   models.WalMode(a.cfg.WalDefaultMode),
		MinInterval:   time.Duration(a.cfg.WalMinIntervalSeconds) * time.Second,
		AllowTruncate: a.cfg.WalAllowTruncate,
	})

	dupes := dupquery.New(a.reg.Duplicates)

	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg, a.reg.Jobs, a.reg.Thumbnails, a.reg.WalMaintenance, a.clk, a.cfg.ThumbnailQueueCapacity)

	router := apiserver.New(apiserver.Params{
		Coordinator: coord,
		Thumbnails:  thumbs,
		WAL:         wal,
		Duplicates:  dupes,
		Metrics:     collector,
		Registry:    promReg,
		Config:      a.cfg,
		Clock:       a.clk,
		StartTime:   a.clk.Now(),
	})

	srv := &httpserver.APIServer{}
	errCh := srv.Run(c.addr, router)
	slog.Info("control plane listening", "addr", c.addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", "error", err)
			return err
		}
	}

	return srv.Shutdown()
}
