// Package walsched implements C6: a rate-limited, singleton-active
// checkpoint request queue over the embedded store's WAL.
package walsched

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// Config is the slice of application configuration the scheduler needs.
type Config struct {
	DefaultMode  models.WalMode
	MinInterval  time.Duration
	AllowTruncate bool
}

type Scheduler struct {
	wal registry.WalMaintenanceRegistry
	clk clock.Clock
	cfg Config
}

func New(wal registry.WalMaintenanceRegistry, clk clock.Clock, cfg Config) *Scheduler {
	return &Scheduler{wal: wal, clk: clk, cfg: cfg}
}

// RequestCheckpoint implements §4.3 request_checkpoint.
func (s *Scheduler) RequestCheckpoint(ctx context.Context, mode *models.WalMode, reason, requestedBy *string, force bool) (*models.WalMaintenanceJob, error) {
	m := s.cfg.DefaultMode
	if mode != nil {
		m = *mode
	}
	if !m.Valid() {
		return nil, errkit.WithFields(models.ErrValidation, "field", "mode", "mode", m)
	}
	if m == models.WalModeTruncate && !s.cfg.AllowTruncate {
		return nil, errkit.WithFields(models.ErrWalMaintenancePolicy, "reason", "truncate checkpoints are disabled")
	}

	active, err := s.wal.ActiveOrNil(ctx)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return active, nil
	}

	now := s.clk.Now()
	if !force {
		completed, err := s.wal.LatestCompleted(ctx)
		if err != nil {
			return nil, err
		}
		if completed != nil && completed.FinishedAt != nil {
			readyAt := completed.FinishedAt.Add(s.cfg.MinInterval)
			if now.Before(readyAt) {
				wait := readyAt.Sub(now)
				return nil, errkit.WithFields(models.ErrWalMaintenanceConflict,
					"reason", fmt.Sprintf("rate limited, retry in %.0fs", wait.Seconds()))
			}
		}
	}

	job := models.WalMaintenanceJob{
		RequestedMode: m,
		Status:        models.WalStatusPending,
		Reason:        reason,
		RequestedBy:   requestedBy,
		RetryAfter:    &now,
		ExecuteAfter:  now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.wal.Create(ctx, job)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetLatest implements §4.3 get_latest.
func (s *Scheduler) GetLatest(ctx context.Context) (*models.WalMaintenanceJob, error) {
	job, err := s.wal.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrWalMaintenanceNotFound)
		}
		return nil, err
	}
	return job, nil
}

// Metrics is the §4.3 get_metrics shape.
type Metrics struct {
	CountByStatus    map[models.WalMaintenanceStatus]int
	LastCompletedAt  *time.Time
}

// GetMetrics implements §4.3 get_metrics.
func (s *Scheduler) GetMetrics(ctx context.Context) (*Metrics, error) {
	counts, err := s.wal.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}

	m := &Metrics{CountByStatus: counts}
	completed, err := s.wal.LatestCompleted(ctx)
	if err != nil {
		return nil, err
	}
	if completed != nil {
		m.LastCompletedAt = completed.FinishedAt
	}
	return m, nil
}
