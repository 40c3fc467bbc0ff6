package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

const walJobColumns = `id, requested_mode, status, reason, requested_by, retry_count, retry_after, execute_after,
	worker_id, worker_heartbeat_at, lease_expires_at, checkpoint_busy, checkpoint_log_frames, checkpointed_frames,
	error_code, error_message, created_at, updated_at, finished_at`

// WalMaintenanceRegistry is the C6 sqlstore implementation.
type WalMaintenanceRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.WalMaintenanceRegistry = (*WalMaintenanceRegistry)(nil)

func NewWalMaintenanceRegistry(db *sqlx.DB, dialect dbstore.Dialect) *WalMaintenanceRegistry {
	return &WalMaintenanceRegistry{db: db, dialect: dialect}
}

func (r *WalMaintenanceRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

func (r *WalMaintenanceRegistry) Create(ctx context.Context, job models.WalMaintenanceJob) (*models.WalMaintenanceJob, error) {
	query := r.rebind(`
		INSERT INTO wal_maintenance_jobs (requested_mode, status, reason, requested_by, retry_count, retry_after,
			execute_after, worker_id, worker_heartbeat_at, lease_expires_at, checkpoint_busy, checkpoint_log_frames,
			checkpointed_frames, error_code, error_message, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)
	// RETURNING id rather than LastInsertId(): pgx's database/sql adapter
	// doesn't implement sql.Result.LastInsertId, so this has to work the
	// same way on both dialects.
	var id int64
	err := r.db.GetContext(ctx, &id, query,
		job.RequestedMode, job.Status, job.Reason, job.RequestedBy, job.RetryCount, job.RetryAfter,
		job.ExecuteAfter, job.WorkerID, job.WorkerHeartbeatAt, job.LeaseExpiresAt, job.CheckpointBusy,
		job.CheckpointLogFrames, job.CheckpointedFrames, job.ErrorCode, job.ErrorMessage,
		job.CreatedAt, job.UpdatedAt, job.FinishedAt)
	if err != nil {
		return nil, classifyWriteErr(err, r.dialect)
	}
	job.ID = id
	return &job, nil
}

func (r *WalMaintenanceRegistry) ActiveOrNil(ctx context.Context) (*models.WalMaintenanceJob, error) {
	query := r.rebind(fmt.Sprintf(`
		SELECT %s FROM wal_maintenance_jobs
		WHERE status IN ('pending', 'running', 'retryable')
		ORDER BY created_at DESC, id DESC LIMIT 1`, walJobColumns))
	return r.getOrNil(ctx, query)
}

func (r *WalMaintenanceRegistry) LatestCompleted(ctx context.Context) (*models.WalMaintenanceJob, error) {
	query := r.rebind(fmt.Sprintf(`
		SELECT %s FROM wal_maintenance_jobs
		WHERE status = 'completed'
		ORDER BY finished_at DESC, id DESC LIMIT 1`, walJobColumns))
	return r.getOrNil(ctx, query)
}

func (r *WalMaintenanceRegistry) GetLatest(ctx context.Context) (*models.WalMaintenanceJob, error) {
	query := r.rebind(fmt.Sprintf(`
		SELECT %s FROM wal_maintenance_jobs
		ORDER BY created_at DESC, id DESC LIMIT 1`, walJobColumns))
	job, err := r.getOrNil(ctx, query)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, registry.ErrNotFound
	}
	return job, nil
}

func (r *WalMaintenanceRegistry) getOrNil(ctx context.Context, query string, args ...any) (*models.WalMaintenanceJob, error) {
	var job models.WalMaintenanceJob
	err := r.db.GetContext(ctx, &job, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, errkit.Wrap(err, "failed to query wal maintenance job")
	}
	job.CreatedAt = clock.CoerceUTC(job.CreatedAt)
	job.UpdatedAt = clock.CoerceUTC(job.UpdatedAt)
	job.ExecuteAfter = clock.CoerceUTC(job.ExecuteAfter)
	if job.RetryAfter != nil {
		t := clock.CoerceUTC(*job.RetryAfter)
		job.RetryAfter = &t
	}
	if job.WorkerHeartbeatAt != nil {
		t := clock.CoerceUTC(*job.WorkerHeartbeatAt)
		job.WorkerHeartbeatAt = &t
	}
	if job.LeaseExpiresAt != nil {
		t := clock.CoerceUTC(*job.LeaseExpiresAt)
		job.LeaseExpiresAt = &t
	}
	if job.FinishedAt != nil {
		t := clock.CoerceUTC(*job.FinishedAt)
		job.FinishedAt = &t
	}
	return &job, nil
}

func (r *WalMaintenanceRegistry) Update(ctx context.Context, job models.WalMaintenanceJob) error {
	query := r.rebind(`
		UPDATE wal_maintenance_jobs SET status = ?, retry_count = ?, retry_after = ?,
			worker_id = ?, worker_heartbeat_at = ?, lease_expires_at = ?,
			checkpoint_busy = ?, checkpoint_log_frames = ?, checkpointed_frames = ?,
			error_code = ?, error_message = ?, updated_at = ?, finished_at = ?
		WHERE id = ?`)
	_, err := r.db.ExecContext(ctx, query,
		job.Status, job.RetryCount, job.RetryAfter,
		job.WorkerID, job.WorkerHeartbeatAt, job.LeaseExpiresAt,
		job.CheckpointBusy, job.CheckpointLogFrames, job.CheckpointedFrames,
		job.ErrorCode, job.ErrorMessage, job.UpdatedAt, job.FinishedAt,
		job.ID)
	if err != nil {
		return errkit.Wrap(err, "failed to update wal maintenance job", "id", job.ID)
	}
	return nil
}

func (r *WalMaintenanceRegistry) CountByStatus(ctx context.Context) (map[models.WalMaintenanceStatus]int, error) {
	type row struct {
		Status models.WalMaintenanceStatus `db:"status"`
		Count  int                         `db:"n"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `SELECT status, count(*) AS n FROM wal_maintenance_jobs GROUP BY status`)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to count wal maintenance jobs by status")
	}
	out := make(map[models.WalMaintenanceStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
