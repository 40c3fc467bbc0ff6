package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// coerceJobTimes normalizes every timestamp on job that the driver may
// have handed back without zone information, so callers comparing them
// against a clock.Clock's Now() never compare a naive value against UTC.
func coerceJobTimes(job *models.Job) {
	job.CreatedAt = clock.CoerceUTC(job.CreatedAt)
	job.UpdatedAt = clock.CoerceUTC(job.UpdatedAt)
	if job.WorkerHeartbeatAt != nil {
		t := clock.CoerceUTC(*job.WorkerHeartbeatAt)
		job.WorkerHeartbeatAt = &t
	}
	if job.LeaseExpiresAt != nil {
		t := clock.CoerceUTC(*job.LeaseExpiresAt)
		job.LeaseExpiresAt = &t
	}
	if job.StartedAt != nil {
		t := clock.CoerceUTC(*job.StartedAt)
		job.StartedAt = &t
	}
	if job.FinishedAt != nil {
		t := clock.CoerceUTC(*job.FinishedAt)
		job.FinishedAt = &t
	}
}

const jobColumns = `id, kind, status, dry_run, worker_id, worker_heartbeat_at, lease_expires_at,
	progress, total_items, processed_items, payload, error_code, error_message,
	created_at, updated_at, started_at, finished_at`

// JobRegistry is the C4 sqlstore implementation.
type JobRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.JobRegistry = (*JobRegistry)(nil)

func NewJobRegistry(db *sqlx.DB, dialect dbstore.Dialect) *JobRegistry {
	return &JobRegistry{db: db, dialect: dialect}
}

func (r *JobRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

func (r *JobRegistry) Create(ctx context.Context, job models.Job) (*models.Job, error) {
	query := r.rebind(fmt.Sprintf(`INSERT INTO jobs (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, jobColumns))
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Kind, job.Status, job.DryRun, job.WorkerID, job.WorkerHeartbeatAt, job.LeaseExpiresAt,
		job.Progress, job.TotalItems, job.ProcessedItems, job.Payload, job.ErrorCode, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.StartedAt, job.FinishedAt)
	if err != nil {
		return nil, classifyWriteErr(err, r.dialect)
	}
	return &job, nil
}

func (r *JobRegistry) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	query := r.rebind(fmt.Sprintf(`SELECT %s FROM jobs WHERE id = ?`, jobColumns))
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, errkit.Wrap(err, "failed to get job", "id", id)
	}
	coerceJobTimes(&job)
	return &job, nil
}

func (r *JobRegistry) List(ctx context.Context, limit int, anchor *models.Job) ([]models.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM jobs`, jobColumns)
	var args []any
	if anchor != nil {
		query += ` WHERE (created_at < ?) OR (created_at = ? AND id < ?)`
		args = append(args, anchor.CreatedAt, anchor.CreatedAt, anchor.ID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, r.rebind(query), args...); err != nil {
		return nil, errkit.Wrap(err, "failed to list jobs")
	}
	for i := range jobs {
		coerceJobTimes(&jobs[i])
	}
	return jobs, nil
}

func (r *JobRegistry) ClaimOldestPendingScanHash(ctx context.Context, workerID string, now time.Time, leaseTTL time.Duration) (*models.Job, error) {
	lease := now.Add(leaseTTL)
	query := r.rebind(fmt.Sprintf(`
		UPDATE jobs SET status = 'running', worker_id = ?, worker_heartbeat_at = ?, lease_expires_at = ?,
			started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = (
			SELECT id FROM jobs WHERE status = 'pending' AND kind IN ('scan', 'hash')
			ORDER BY created_at ASC, id ASC LIMIT 1
		) AND status = 'pending'
		RETURNING %s`, jobColumns))

	var job models.Job
	err := r.db.GetContext(ctx, &job, query, workerID, now, lease, now, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifyWriteErr(err, r.dialect)
	}
	coerceJobTimes(&job)
	return &job, nil
}

func (r *JobRegistry) Update(ctx context.Context, job models.Job, expectedStatus models.JobStatus) error {
	query := r.rebind(`
		UPDATE jobs SET status = ?, worker_id = ?, worker_heartbeat_at = ?, lease_expires_at = ?,
			progress = ?, total_items = ?, processed_items = ?, payload = ?, error_code = ?, error_message = ?,
			updated_at = ?, started_at = ?, finished_at = ?
		WHERE id = ? AND status = ?`)

	res, err := r.db.ExecContext(ctx, query,
		job.Status, job.WorkerID, job.WorkerHeartbeatAt, job.LeaseExpiresAt,
		job.Progress, job.TotalItems, job.ProcessedItems, job.Payload, job.ErrorCode, job.ErrorMessage,
		job.UpdatedAt, job.StartedAt, job.FinishedAt,
		job.ID, expectedStatus)
	if err != nil {
		return classifyWriteErr(err, r.dialect)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errkit.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return registry.ErrNoRowsUpdated
	}
	return nil
}

func (r *JobRegistry) ActiveScanHashCount(ctx context.Context, statuses []models.JobStatus) (int, error) {
	query, args := inClause(`SELECT count(*) FROM jobs WHERE kind IN ('scan', 'hash') AND status IN (%s)`, statuses)
	var n int
	if err := r.db.GetContext(ctx, &n, r.rebind(query), args...); err != nil {
		return 0, errkit.Wrap(err, "failed to count active scan/hash jobs")
	}
	return n, nil
}

func (r *JobRegistry) StaleRunningScanHash(ctx context.Context, now time.Time) ([]models.Job, error) {
	query := r.rebind(fmt.Sprintf(`
		SELECT %s FROM jobs
		WHERE status = 'running' AND kind IN ('scan', 'hash') AND (lease_expires_at IS NULL OR lease_expires_at <= ?)`, jobColumns))
	var jobs []models.Job
	if err := r.db.SelectContext(ctx, &jobs, query, now); err != nil {
		return nil, errkit.Wrap(err, "failed to list stale running scan/hash jobs")
	}
	for i := range jobs {
		coerceJobTimes(&jobs[i])
	}
	return jobs, nil
}

func (r *JobRegistry) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	type row struct {
		Status models.JobStatus `db:"status"`
		Count  int              `db:"n"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `SELECT status, count(*) AS n FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to count jobs by status")
	}
	out := make(map[models.JobStatus]int, len(rows))
	for _, rr := range rows {
		out[rr.Status] = rr.Count
	}
	return out, nil
}

// inClause builds a "column IN (?, ?, ...)" fragment (in "?" form; callers
// rebind afterward) for a runtime-sized set of enum values, used instead
// of sqlx.In to keep every registry's SQL construction on one pattern.
func inClause[T ~string](template string, values []T) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	joined := ""
	for i, p := range placeholders {
		if i > 0 {
			joined += ", "
		}
		joined += p
	}
	return fmt.Sprintf(template, joined), args
}
