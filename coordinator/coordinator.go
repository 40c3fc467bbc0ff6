// Package coordinator implements the generic job FSM and lease protocol
// that scan/hash/delete/thumbnail work is reified onto, bound by the
// single-writer admission mutex over scan/hash jobs.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// Config is the slice of application configuration the coordinator
// needs, passed in at construction rather than read from a global.
type Config struct {
	LeaseTTL        time.Duration
	GlobalDryRun    bool
	AllowRealDelete bool
}

type Coordinator struct {
	jobs registry.JobRegistry
	clk  clock.Clock
	cfg  Config
}

func New(jobs registry.JobRegistry, clk clock.Clock, cfg Config) *Coordinator {
	return &Coordinator{jobs: jobs, clk: clk, cfg: cfg}
}

// CreateJob validates the requested kind and inserts a new pending job.
func (c *Coordinator) CreateJob(ctx context.Context, kind models.JobKind, payload models.JSONMap, dryRun *bool) (*models.Job, error) {
	if !kind.Valid() {
		return nil, errkit.WithFields(models.ErrValidation, "kind", kind)
	}

	effectiveDryRun := c.cfg.GlobalDryRun
	if dryRun != nil {
		effectiveDryRun = *dryRun
	}

	if c.cfg.GlobalDryRun && !effectiveDryRun {
		return nil, errkit.WithFields(models.ErrJobPolicy, "reason", "global dry_run forbids a real-run job")
	}
	if kind == models.JobKindDelete && !effectiveDryRun && !c.cfg.AllowRealDelete {
		return nil, errkit.WithFields(models.ErrJobPolicy, "reason", "real-run delete jobs are disabled")
	}

	if kind.IsScanHash() {
		if _, err := c.RecoverStaleJobs(ctx); err != nil {
			return nil, err
		}
		n, err := c.jobs.ActiveScanHashCount(ctx, models.ActiveScanHashStatuses)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			return nil, errkit.WithFields(models.ErrJobConflict, "reason", "a scan/hash job is already active")
		}
	}

	now := c.clk.Now()
	job := models.Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    models.JobStatusPending,
		DryRun:    effectiveDryRun,
		Payload:   payload,
		CreatedAt: now,
		UpdatedAt: now,
	}

	created, err := c.jobs.Create(ctx, job)
	if err != nil {
		if errors.Is(err, registry.ErrUniqueViolation) {
			return nil, errkit.WithFields(models.ErrJobConflict, "reason", "a scan/hash job is already active")
		}
		return nil, err
	}
	return created, nil
}

// ClaimPendingScanHashJob atomically claims the oldest pending scan or
// hash job for the given worker.
// A nil, nil return means none was pending.
func (c *Coordinator) ClaimPendingScanHashJob(ctx context.Context, workerID string) (*models.Job, error) {
	if workerID == "" {
		return nil, errkit.WithFields(models.ErrValidation, "field", "worker_id")
	}
	if _, err := c.RecoverStaleJobs(ctx); err != nil {
		return nil, err
	}

	job, err := c.jobs.ClaimOldestPendingScanHash(ctx, workerID, c.clk.Now(), c.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, registry.ErrUniqueViolation) {
			return nil, errkit.WithFields(models.ErrJobConflict, "reason", "lost the claim race")
		}
		return nil, err
	}
	return job, nil
}

// Heartbeat extends a running job's lease and records reported progress.
func (c *Coordinator) Heartbeat(ctx context.Context, jobID, workerID string, progress *float64, processedItems *int64) (*models.Job, error) {
	if progress != nil && (*progress < 0 || *progress > 1) {
		return nil, errkit.WithFields(models.ErrValidation, "field", "progress")
	}
	if processedItems != nil && *processedItems < 0 {
		return nil, errkit.WithFields(models.ErrValidation, "field", "processed_items")
	}

	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrJobNotFound, "id", jobID)
		}
		return nil, err
	}
	if job.Status != models.JobStatusRunning {
		return nil, errkit.WithFields(models.ErrInvalidJobState, "id", jobID, "status", job.Status)
	}

	now := c.clk.Now()
	if job.LeaseExpiresAt == nil || !job.LeaseExpiresAt.After(now) {
		expired := *job
		expireJob(&expired, now)
		if err := c.jobs.Update(ctx, expired, models.JobStatusRunning); err != nil && !errors.Is(err, registry.ErrNoRowsUpdated) {
			return nil, err
		}
		return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "lease expired")
	}
	if job.WorkerID == nil || *job.WorkerID != workerID {
		return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "worker mismatch")
	}

	updated := *job
	updated.WorkerHeartbeatAt = &now
	lease := now.Add(c.cfg.LeaseTTL)
	updated.LeaseExpiresAt = &lease
	updated.UpdatedAt = now
	if progress != nil {
		updated.Progress = *progress
	}
	if processedItems != nil {
		updated.ProcessedItems = *processedItems
	}

	if err := c.jobs.Update(ctx, updated, models.JobStatusRunning); err != nil {
		if errors.Is(err, registry.ErrNoRowsUpdated) {
			return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "concurrent transition")
		}
		return nil, err
	}
	return &updated, nil
}

// expireJob mutates job in place into the retryable, lease-expired state
// used both by heartbeat and recover_stale_jobs.
func expireJob(job *models.Job, now time.Time) {
	job.Status = models.JobStatusRetryable
	code := models.ErrCodeLeaseExpired
	job.ErrorCode = &code
	job.WorkerID = nil
	job.WorkerHeartbeatAt = nil
	job.LeaseExpiresAt = nil
	job.FinishedAt = &now
	job.UpdatedAt = now
}

// clearLease zeroes the worker/lease binding fields invariant (b)
// requires be empty for any non-running status.
func clearLease(job *models.Job) {
	job.WorkerID = nil
	job.WorkerHeartbeatAt = nil
	job.LeaseExpiresAt = nil
}

// FinishJob transitions a running job to completed or failed.
func (c *Coordinator) FinishJob(ctx context.Context, jobID, workerID string, success bool, errorMessage *string) (*models.Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrJobNotFound, "id", jobID)
		}
		return nil, err
	}
	if job.Status != models.JobStatusRunning {
		return nil, errkit.WithFields(models.ErrInvalidJobState, "id", jobID, "status", job.Status)
	}
	if job.WorkerID == nil || *job.WorkerID != workerID {
		return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "worker mismatch")
	}

	now := c.clk.Now()
	updated := *job
	clearLease(&updated)
	updated.FinishedAt = &now
	updated.UpdatedAt = now
	if success {
		updated.Status = models.JobStatusCompleted
		updated.Progress = 1.0
		updated.ErrorCode = nil
		updated.ErrorMessage = nil
	} else {
		updated.Status = models.JobStatusFailed
		code := models.ErrCodeWorkerFailure
		updated.ErrorCode = &code
		updated.ErrorMessage = errorMessage
	}

	if err := c.jobs.Update(ctx, updated, models.JobStatusRunning); err != nil {
		if errors.Is(err, registry.ErrNoRowsUpdated) {
			return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "concurrent transition")
		}
		return nil, err
	}
	return &updated, nil
}

// ResetRetryableJob moves a retryable job back to pending.
func (c *Coordinator) ResetRetryableJob(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrJobNotFound, "id", jobID)
		}
		return nil, err
	}
	if job.Status != models.JobStatusRetryable {
		return nil, errkit.WithFields(models.ErrInvalidJobState, "id", jobID, "status", job.Status)
	}

	now := c.clk.Now()
	updated := *job
	updated.Status = models.JobStatusPending
	clearLease(&updated)
	updated.ErrorCode = nil
	updated.ErrorMessage = nil
	updated.UpdatedAt = now

	if err := c.jobs.Update(ctx, updated, models.JobStatusRetryable); err != nil {
		if errors.Is(err, registry.ErrNoRowsUpdated) {
			return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "concurrent transition")
		}
		return nil, err
	}
	return &updated, nil
}

// CancelJob transitions a job to cancelled from any non-terminal status.
func (c *Coordinator) CancelJob(ctx context.Context, jobID string, errorMessage *string) (*models.Job, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrJobNotFound, "id", jobID)
		}
		return nil, err
	}
	if !models.CanTransition(job.Status, models.JobStatusCancelled) {
		return nil, errkit.WithFields(models.ErrInvalidJobState, "id", jobID, "status", job.Status)
	}
	expectedStatus := job.Status

	now := c.clk.Now()
	updated := *job
	updated.Status = models.JobStatusCancelled
	clearLease(&updated)
	updated.FinishedAt = &now
	updated.UpdatedAt = now
	if errorMessage != nil {
		updated.ErrorMessage = errorMessage
	}

	if err := c.jobs.Update(ctx, updated, expectedStatus); err != nil {
		if errors.Is(err, registry.ErrNoRowsUpdated) {
			return nil, errkit.WithFields(models.ErrJobConflict, "id", jobID, "reason", "concurrent transition")
		}
		return nil, err
	}
	return &updated, nil
}

// GetJob reads a job by id, recovering stale leases first.
func (c *Coordinator) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	if _, err := c.RecoverStaleJobs(ctx); err != nil {
		return nil, err
	}
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrJobNotFound, "id", jobID)
		}
		return nil, err
	}
	return job, nil
}

// ListJobs returns a page of jobs ordered by creation time.
func (c *Coordinator) ListJobs(ctx context.Context, limit int, cursor *string) ([]models.Job, *string, error) {
	if _, err := c.RecoverStaleJobs(ctx); err != nil {
		return nil, nil, err
	}

	var anchor *models.Job
	if cursor != nil {
		a, err := c.jobs.Get(ctx, *cursor)
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				return nil, nil, errkit.WithFields(models.ErrInvalidCursor, "cursor", *cursor)
			}
			return nil, nil, err
		}
		anchor = a
	}

	jobs, err := c.jobs.List(ctx, limit+1, anchor)
	if err != nil {
		return nil, nil, err
	}

	var next *string
	if len(jobs) > limit {
		jobs = jobs[:limit]
		id := jobs[len(jobs)-1].ID
		next = &id
	}
	return jobs, next, nil
}

// RecoverStaleJobs sweeps scan/hash jobs whose lease has expired back to
// retryable, returning the number of jobs transitioned.
func (c *Coordinator) RecoverStaleJobs(ctx context.Context) (int, error) {
	now := c.clk.Now()
	stale, err := c.jobs.StaleRunningScanHash(ctx, now)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stale {
		expired := job
		expireJob(&expired, now)
		if err := c.jobs.Update(ctx, expired, models.JobStatusRunning); err != nil {
			if errors.Is(err, registry.ErrNoRowsUpdated) {
				continue
			}
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}
