// Package metrics implements Prometheus aggregators reporting job
// backlog by status, thumbnail queue depth/backlog, and WAL lag. Built as
// an explicit collector threaded through the container at startup rather
// than package-level globals.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

type Collector struct {
	jobs       registry.JobRegistry
	thumbs     registry.ThumbnailRegistry
	wal        registry.WalMaintenanceRegistry
	clk        clock.Clock
	queueCap   int

	jobsByStatus     *prometheus.GaugeVec
	thumbsByStatus   *prometheus.GaugeVec
	thumbQueueDepth  prometheus.Gauge
	thumbQueueHeadroom prometheus.Gauge
	walByStatus      *prometheus.GaugeVec
	walLagSeconds    prometheus.Gauge
}

// New constructs a Collector and registers its metrics against reg.
func New(reg *prometheus.Registry, jobs registry.JobRegistry, thumbs registry.ThumbnailRegistry, wal registry.WalMaintenanceRegistry, clk clock.Clock, queueCapacity int) *Collector {
	c := &Collector{
		jobs:     jobs,
		thumbs:   thumbs,
		wal:      wal,
		clk:      clk,
		queueCap: queueCapacity,

		jobsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dedupfs_jobs_by_status",
			Help: "Number of job rows by status.",
		}, []string{"status"}),
		thumbsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dedupfs_thumbnails_by_status",
			Help: "Number of thumbnail task rows by status.",
		}, []string{"status"}),
		thumbQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedupfs_thumbnail_queue_depth",
			Help: "Thumbnail rows currently counted against queue_capacity (pending+running).",
		}),
		thumbQueueHeadroom: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedupfs_thumbnail_queue_headroom",
			Help: "Remaining thumbnail admission capacity.",
		}),
		walByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dedupfs_wal_maintenance_by_status",
			Help: "Number of WAL maintenance job rows by status.",
		}, []string{"status"}),
		walLagSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dedupfs_wal_checkpoint_lag_seconds",
			Help: "Seconds since the last completed WAL checkpoint; 0 if none has ever completed.",
		}),
	}

	reg.MustRegister(c.jobsByStatus, c.thumbsByStatus, c.thumbQueueDepth,
		c.thumbQueueHeadroom, c.walByStatus, c.walLagSeconds)
	return c
}

// Refresh pulls fresh counts from the registries and updates every gauge.
// Intended to be called on each scrape (via a collector wrapper) or on a
// short interval; the relational store is cheap to COUNT against.
func (c *Collector) Refresh(ctx context.Context) error {
	if err := c.refreshJobs(ctx); err != nil {
		return err
	}
	if err := c.refreshThumbnails(ctx); err != nil {
		return err
	}
	return c.refreshWal(ctx)
}

func (c *Collector) refreshJobs(ctx context.Context) error {
	counts, err := c.jobs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning, models.JobStatusCompleted,
		models.JobStatusFailed, models.JobStatusCancelled, models.JobStatusRetryable,
	} {
		c.jobsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	return nil
}

func (c *Collector) refreshThumbnails(ctx context.Context) error {
	counts, err := c.thumbs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	depth := 0
	for _, status := range []models.ThumbnailStatus{
		models.ThumbnailStatusPending, models.ThumbnailStatusRunning,
		models.ThumbnailStatusReady, models.ThumbnailStatusFailed,
	} {
		n := counts[status]
		c.thumbsByStatus.WithLabelValues(string(status)).Set(float64(n))
	}
	for _, status := range models.ActiveThumbnailStatuses {
		depth += counts[status]
	}
	c.thumbQueueDepth.Set(float64(depth))
	headroom := c.queueCap - depth
	if headroom < 0 {
		headroom = 0
	}
	c.thumbQueueHeadroom.Set(float64(headroom))
	return nil
}

func (c *Collector) refreshWal(ctx context.Context) error {
	counts, err := c.wal.CountByStatus(ctx)
	if err != nil {
		return err
	}
	for _, status := range []models.WalMaintenanceStatus{
		models.WalStatusPending, models.WalStatusRunning, models.WalStatusCompleted,
		models.WalStatusFailed, models.WalStatusRetryable,
	} {
		c.walByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}

	completed, err := c.wal.LatestCompleted(ctx)
	if err != nil {
		return err
	}
	if completed == nil || completed.FinishedAt == nil {
		c.walLagSeconds.Set(0)
		return nil
	}
	c.walLagSeconds.Set(c.clk.Now().Sub(*completed.FinishedAt).Seconds())
	return nil
}
