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

// coerceThumbnailTimes normalizes the timestamps the backoff and lease
// comparisons in thumbqueue compare against clock.Clock's Now().
func coerceThumbnailTimes(t *models.ThumbnailTask) {
	t.CreatedAt = clock.CoerceUTC(t.CreatedAt)
	t.UpdatedAt = clock.CoerceUTC(t.UpdatedAt)
	if t.RetryAfter != nil {
		ts := clock.CoerceUTC(*t.RetryAfter)
		t.RetryAfter = &ts
	}
	if t.WorkerHeartbeatAt != nil {
		ts := clock.CoerceUTC(*t.WorkerHeartbeatAt)
		t.WorkerHeartbeatAt = &ts
	}
	if t.LeaseExpiresAt != nil {
		ts := clock.CoerceUTC(*t.LeaseExpiresAt)
		t.LeaseExpiresAt = &ts
	}
	if t.FinishedAt != nil {
		ts := clock.CoerceUTC(*t.FinishedAt)
		t.FinishedAt = &ts
	}
}

const thumbnailColumns = `thumb_key, file_id, group_key, status, media_type, format, max_dimension, version,
	source_size_bytes, source_mtime_ns, output_relpath, width, height, bytes_size,
	error_code, error_message, error_count, retry_after,
	worker_id, worker_heartbeat_at, lease_expires_at, created_at, updated_at, finished_at`

// ThumbnailRegistry is the C5 sqlstore implementation.
type ThumbnailRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.ThumbnailRegistry = (*ThumbnailRegistry)(nil)

func NewThumbnailRegistry(db *sqlx.DB, dialect dbstore.Dialect) *ThumbnailRegistry {
	return &ThumbnailRegistry{db: db, dialect: dialect}
}

func (r *ThumbnailRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

func (r *ThumbnailRegistry) GetByKey(ctx context.Context, thumbKey string) (*models.ThumbnailTask, error) {
	var t models.ThumbnailTask
	query := r.rebind(fmt.Sprintf(`SELECT %s FROM thumbnails WHERE thumb_key = ?`, thumbnailColumns))
	if err := r.db.GetContext(ctx, &t, query, thumbKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, errkit.Wrap(err, "failed to get thumbnail", "thumb_key", thumbKey)
	}
	coerceThumbnailTimes(&t)
	return &t, nil
}

// InsertIfUnderCapacity is the atomic conditional admission statement of
// §4.2 step 6: the COUNT and the INSERT happen inside one statement so
// queue depth never exceeds capacity under concurrent producers
// (testable property #2).
func (r *ThumbnailRegistry) InsertIfUnderCapacity(ctx context.Context, t models.ThumbnailTask, capacity int) (bool, error) {
	query := r.rebind(fmt.Sprintf(`
		INSERT INTO thumbnails (%s)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?
		WHERE (SELECT count(*) FROM thumbnails WHERE status IN ('pending', 'running')) < ?`, thumbnailColumns))

	res, err := r.db.ExecContext(ctx, query,
		t.ThumbKey, t.FileID, t.GroupKey, t.Status, t.MediaType, t.Format, t.MaxDimension, t.Version,
		t.SourceSizeBytes, t.SourceMtimeNs, t.OutputRelpath, t.Width, t.Height, t.BytesSize,
		t.ErrorCode, t.ErrorMessage, t.ErrorCount, t.RetryAfter,
		t.WorkerID, t.WorkerHeartbeatAt, t.LeaseExpiresAt, t.CreatedAt, t.UpdatedAt, t.FinishedAt,
		capacity)
	if err != nil {
		return false, classifyWriteErr(err, r.dialect)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errkit.Wrap(err, "failed to read rows affected")
	}
	return n > 0, nil
}

func (r *ThumbnailRegistry) Update(ctx context.Context, t models.ThumbnailTask) error {
	query := r.rebind(`
		UPDATE thumbnails SET status = ?, group_key = ?, width = ?, height = ?, bytes_size = ?,
			error_code = ?, error_message = ?, error_count = ?, retry_after = ?,
			worker_id = ?, worker_heartbeat_at = ?, lease_expires_at = ?, updated_at = ?, finished_at = ?
		WHERE thumb_key = ?`)
	_, err := r.db.ExecContext(ctx, query,
		t.Status, t.GroupKey, t.Width, t.Height, t.BytesSize,
		t.ErrorCode, t.ErrorMessage, t.ErrorCount, t.RetryAfter,
		t.WorkerID, t.WorkerHeartbeatAt, t.LeaseExpiresAt, t.UpdatedAt, t.FinishedAt,
		t.ThumbKey)
	if err != nil {
		return errkit.Wrap(err, "failed to update thumbnail", "thumb_key", t.ThumbKey)
	}
	return nil
}

func (r *ThumbnailRegistry) ListByGroup(ctx context.Context, groupKey string, statuses []models.ThumbnailStatus) ([]models.ThumbnailTask, error) {
	query, args := inClause(fmt.Sprintf(`SELECT %s FROM thumbnails WHERE group_key = ? AND status IN (%%s)`, thumbnailColumns), statuses)
	args = append([]any{groupKey}, args...)

	var tasks []models.ThumbnailTask
	if err := r.db.SelectContext(ctx, &tasks, r.rebind(query), args...); err != nil {
		return nil, errkit.Wrap(err, "failed to list thumbnails by group", "group_key", groupKey)
	}
	for i := range tasks {
		coerceThumbnailTimes(&tasks[i])
	}
	return tasks, nil
}

func (r *ThumbnailRegistry) DeleteByKeys(ctx context.Context, thumbKeys []string) (int, error) {
	if len(thumbKeys) == 0 {
		return 0, nil
	}
	query, args := inClause(`DELETE FROM thumbnails WHERE thumb_key IN (%s)`, thumbKeys)
	res, err := r.db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return 0, errkit.Wrap(err, "failed to delete thumbnails")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errkit.Wrap(err, "failed to read rows affected")
	}
	return int(n), nil
}

func (r *ThumbnailRegistry) CountByStatus(ctx context.Context) (map[models.ThumbnailStatus]int, error) {
	type row struct {
		Status models.ThumbnailStatus `db:"status"`
		Count  int                    `db:"n"`
	}
	var rows []row
	err := r.db.SelectContext(ctx, &rows, `SELECT status, count(*) AS n FROM thumbnails GROUP BY status`)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to count thumbnails by status")
	}
	out := make(map[models.ThumbnailStatus]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}

// ThumbnailCleanupRegistry is the C5 grouped-cleanup sqlstore implementation.
type ThumbnailCleanupRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.ThumbnailCleanupRegistry = (*ThumbnailCleanupRegistry)(nil)

func NewThumbnailCleanupRegistry(db *sqlx.DB, dialect dbstore.Dialect) *ThumbnailCleanupRegistry {
	return &ThumbnailCleanupRegistry{db: db, dialect: dialect}
}

func (r *ThumbnailCleanupRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

// UpsertPending implements §4.2 schedule_group_cleanup: insert a new
// pending row for groupKey, or reset an existing one to pending clearing
// lease/error/finished fields and advancing execute_after.
func (r *ThumbnailCleanupRegistry) UpsertPending(ctx context.Context, groupKey string, executeAfter, now time.Time) (*models.ThumbnailCleanupJob, error) {
	query := r.rebind(`
		INSERT INTO thumbnail_cleanup_jobs (group_key, status, execute_after, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (group_key) DO UPDATE SET
			status = excluded.status, execute_after = excluded.execute_after, updated_at = excluded.updated_at,
			worker_id = NULL, worker_heartbeat_at = NULL, lease_expires_at = NULL,
			error_code = NULL, error_message = NULL, finished_at = NULL`)
	_, err := r.db.ExecContext(ctx, query, groupKey, models.ThumbnailCleanupStatusPending, executeAfter, now, now)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to upsert thumbnail cleanup job", "group_key", groupKey)
	}

	var job models.ThumbnailCleanupJob
	selectQuery := r.rebind(`SELECT id, group_key, status, execute_after, worker_id, worker_heartbeat_at,
		lease_expires_at, error_code, error_message, created_at, updated_at, finished_at
		FROM thumbnail_cleanup_jobs WHERE group_key = ?`)
	if err := r.db.GetContext(ctx, &job, selectQuery, groupKey); err != nil {
		return nil, errkit.Wrap(err, "failed to read upserted thumbnail cleanup job", "group_key", groupKey)
	}
	return &job, nil
}
