// Package sqlstore is the migration engine plus every registry
// implementation, built directly on jmoiron/sqlx against either
// modernc.org/sqlite or postgres via jackc/pgx/v5's stdlib adapter,
// using sqlx for hand-written SQL rather than an ORM.
package sqlstore

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
)

// Migration is one declared, ordered, idempotent schema step. Apply runs
// inside its own transaction; the engine records the version row after
// Apply returns successfully.
type Migration struct {
	Version int
	Name    string
	Apply   func(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, clk clock.Clock) error
}

// Migrations is the full, ordered migration list, each guarded by
// existence checks so it is safe to run against a store already at or
// past that version, and each repairing historical invariant violations
// rather than assuming clean input.
var Migrations = []Migration{
	{1, "create_base_schema", migrateCreateBaseSchema},
	{2, "scan_sessions_error_count", migrateScanSessionsErrorCount},
	{3, "library_files_hash_retry_columns", migrateLibraryFilesHashRetryColumns},
	{4, "legacy_marker_noop", migrateLegacyMarkerNoop},
	{5, "drop_jobs_execution_backend", migrateDropJobsExecutionBackend},
	{6, "jobs_lease_protocol_columns", migrateJobsLeaseProtocolColumns},
	{7, "normalize_enum_columns", migrateNormalizeEnumColumns},
	{8, "create_thumbnail_tables", migrateCreateThumbnailTables},
	{9, "rerun_mutex_repair", migrateRerunMutexRepair},
	{10, "create_io_rate_limits", migrateCreateIoRateLimits},
	{11, "create_dedup_group_index", migrateCreateDedupGroupIndex},
	{12, "create_wal_maintenance_jobs", migrateCreateWalMaintenanceJobs},
}

// EnsureSchema creates schema_migrations if absent, then applies every
// migration whose version hasn't yet been recorded, in ascending version
// order, one transaction per migration. Re-running against an up-to-date
// store is a no-op.
func EnsureSchema(ctx context.Context, db *sqlx.DB, dialect dbstore.Dialect, clk clock.Clock) error {
	if err := ensureMigrationsTable(ctx, db, dialect); err != nil {
		return err
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	sorted := make([]Migration, len(Migrations))
	copy(sorted, Migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return errkit.Wrap(err, "failed to begin migration transaction", "version", m.Version)
		}

		if err := m.Apply(ctx, tx, dialect, clk); err != nil {
			_ = tx.Rollback()
			return errkit.Wrap(err, "migration failed", "version", m.Version, "name", m.Name)
		}

		_, err = tx.ExecContext(ctx, dbstore.Rebind(dialect, db,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`),
			m.Version, m.Name, clk.Now())
		if err != nil {
			_ = tx.Rollback()
			return errkit.Wrap(err, "failed to record migration", "version", m.Version)
		}

		if err := tx.Commit(); err != nil {
			return errkit.Wrap(err, "failed to commit migration", "version", m.Version)
		}
	}

	return nil
}

// AppliedVersions returns the declared migration list's applied versions,
// for tests asserting the applied set equals the declared list (testable
// property #7).
func AppliedVersions(ctx context.Context, db *sqlx.DB) ([]models.SchemaMigration, error) {
	var rows []models.SchemaMigration
	err := db.SelectContext(ctx, &rows, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version ASC`)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to list applied migrations")
	}
	return rows, nil
}

func ensureMigrationsTable(ctx context.Context, db *sqlx.DB, dialect dbstore.Dialect) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errkit.Wrap(err, "failed to begin schema_migrations bootstrap")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := createTableIfMissing(ctx, tx, dialect, "schema_migrations", `
		CREATE TABLE schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`); err != nil {
		return err
	}

	return tx.Commit()
}

func appliedVersions(ctx context.Context, db *sqlx.DB) (map[int]bool, error) {
	var versions []int
	err := db.SelectContext(ctx, &versions, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to read applied migration versions")
	}
	out := make(map[int]bool, len(versions))
	for _, v := range versions {
		out[v] = true
	}
	return out, nil
}

// --- migration steps ---

func migrateCreateBaseSchema(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	if err := createTableIfMissing(ctx, tx, dialect, "library_roots", `
		CREATE TABLE library_roots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			root_path TEXT NOT NULL UNIQUE
		)`); err != nil {
		return err
	}

	if err := createTableIfMissing(ctx, tx, dialect, "library_files", `
		CREATE TABLE library_files (
			id TEXT PRIMARY KEY,
			library_id TEXT NOT NULL REFERENCES library_roots(id),
			relative_path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			mtime_ns INTEGER NOT NULL,
			is_missing BOOLEAN NOT NULL DEFAULT FALSE,
			needs_hash BOOLEAN NOT NULL DEFAULT TRUE
		)`); err != nil {
		return err
	}

	if err := createIndexIfMissing(ctx, tx, dialect, "ux_library_files_library_path",
		`CREATE UNIQUE INDEX ux_library_files_library_path ON library_files(library_id, relative_path)`); err != nil {
		return err
	}

	// scan_sessions is a legacy, pre-jobs table kept only for historical
	// layout fidelity; nothing in this package reads or writes it.
	if err := createTableIfMissing(ctx, tx, dialect, "scan_sessions", `
		CREATE TABLE scan_sessions (
			id TEXT PRIMARY KEY,
			library_id TEXT,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`); err != nil {
		return err
	}

	if err := createTableIfMissing(ctx, tx, dialect, "jobs", `
		CREATE TABLE jobs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			payload TEXT,
			execution_backend TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`); err != nil {
		return err
	}

	return nil
}

func migrateScanSessionsErrorCount(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	return addColumnIfMissing(ctx, tx, dialect, "scan_sessions", "error_count",
		`ALTER TABLE scan_sessions ADD COLUMN error_count INTEGER NOT NULL DEFAULT 0`)
}

func migrateLibraryFilesHashRetryColumns(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	steps := []struct{ column, ddl string }{
		{"hash_algorithm", `ALTER TABLE library_files ADD COLUMN hash_algorithm TEXT`},
		{"content_hash", `ALTER TABLE library_files ADD COLUMN content_hash BLOB`},
		{"hashed_at", `ALTER TABLE library_files ADD COLUMN hashed_at TIMESTAMP`},
		{"hash_attempt_count", `ALTER TABLE library_files ADD COLUMN hash_attempt_count INTEGER NOT NULL DEFAULT 0`},
		{"hash_claimed_by", `ALTER TABLE library_files ADD COLUMN hash_claimed_by TEXT`},
		{"hash_claimed_at", `ALTER TABLE library_files ADD COLUMN hash_claimed_at TIMESTAMP`},
		{"hash_retry_after", `ALTER TABLE library_files ADD COLUMN hash_retry_after TIMESTAMP`},
	}
	for _, s := range steps {
		if err := addColumnIfMissing(ctx, tx, dialect, "library_files", s.column, s.ddl); err != nil {
			return err
		}
	}

	if err := createIndexIfMissing(ctx, tx, dialect, "idx_library_files_needs_hash",
		`CREATE INDEX idx_library_files_needs_hash ON library_files(needs_hash)`); err != nil {
		return err
	}
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_library_files_hash_claimed_by",
		`CREATE INDEX idx_library_files_hash_claimed_by ON library_files(hash_claimed_by)`); err != nil {
		return err
	}

	return nil
}

// migrateLegacyMarkerNoop is a historical no-op step: an earlier release
// reserved this version for a feature that was reverted before shipping.
// It's kept in the declared list (rather than renumbered away) so the
// applied-versions ledger stays a contiguous prefix of every version this
// store has ever seen.
func migrateLegacyMarkerNoop(_ context.Context, _ *sqlx.Tx, _ dbstore.Dialect, _ clock.Clock) error {
	return nil
}

// migrateDropJobsExecutionBackend removes the legacy execution_backend
// column via a table rebuild, portable across both dialects (rather than
// relying on DROP COLUMN, which modernc.org/sqlite builds predating 3.35
// don't support).
func migrateDropJobsExecutionBackend(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	exists, err := columnExists(ctx, tx, dialect, "jobs", "execution_backend")
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	stmts := []string{
		`CREATE TABLE jobs_rebuild (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			dry_run BOOLEAN NOT NULL DEFAULT FALSE,
			payload TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`INSERT INTO jobs_rebuild (id, kind, status, dry_run, payload, created_at, updated_at)
			SELECT id, kind, status, dry_run, payload, created_at, updated_at FROM jobs`,
		`DROP TABLE jobs`,
		`ALTER TABLE jobs_rebuild RENAME TO jobs`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return errkit.Wrap(err, "failed to rebuild jobs table dropping execution_backend")
		}
	}
	return nil
}

func migrateJobsLeaseProtocolColumns(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, clk clock.Clock) error {
	steps := []struct{ column, ddl string }{
		{"worker_id", `ALTER TABLE jobs ADD COLUMN worker_id TEXT`},
		{"worker_heartbeat_at", `ALTER TABLE jobs ADD COLUMN worker_heartbeat_at TIMESTAMP`},
		{"lease_expires_at", `ALTER TABLE jobs ADD COLUMN lease_expires_at TIMESTAMP`},
		{"progress", `ALTER TABLE jobs ADD COLUMN progress REAL NOT NULL DEFAULT 0`},
		{"total_items", `ALTER TABLE jobs ADD COLUMN total_items INTEGER`},
		{"processed_items", `ALTER TABLE jobs ADD COLUMN processed_items INTEGER NOT NULL DEFAULT 0`},
		{"error_code", `ALTER TABLE jobs ADD COLUMN error_code TEXT`},
		{"error_message", `ALTER TABLE jobs ADD COLUMN error_message TEXT`},
		{"started_at", `ALTER TABLE jobs ADD COLUMN started_at TIMESTAMP`},
		{"finished_at", `ALTER TABLE jobs ADD COLUMN finished_at TIMESTAMP`},
	}
	for _, s := range steps {
		if err := addColumnIfMissing(ctx, tx, dialect, "jobs", s.column, s.ddl); err != nil {
			return err
		}
	}

	if err := createIndexIfMissing(ctx, tx, dialect, "idx_jobs_running_lease",
		`CREATE INDEX idx_jobs_running_lease ON jobs(lease_expires_at) WHERE status = 'running'`); err != nil {
		return err
	}

	// Repair historical invariant violations BEFORE (re)building the
	// partial unique index, or the CREATE UNIQUE INDEX itself fails
	// against a store that already has duplicate active scan/hash rows.
	if err := repairDuplicateRunningScanHash(ctx, tx, dialect, clk); err != nil {
		return err
	}
	if err := repairDuplicateActiveScanHash(ctx, tx, dialect, clk); err != nil {
		return err
	}

	if err := createIndexIfMissing(ctx, tx, dialect, "ux_jobs_active_scan_hash",
		`CREATE UNIQUE INDEX ux_jobs_active_scan_hash ON jobs((1)) WHERE kind IN ('scan', 'hash') AND status IN ('pending', 'running')`); err != nil {
		return err
	}

	return nil
}

func migrateNormalizeEnumColumns(ctx context.Context, tx *sqlx.Tx, _ dbstore.Dialect, _ clock.Clock) error {
	stmts := []string{
		`UPDATE jobs SET kind = lower(kind), status = lower(status)`,
		`UPDATE scan_sessions SET status = lower(status)`,
		`UPDATE library_files SET hash_algorithm = lower(hash_algorithm) WHERE hash_algorithm IS NOT NULL`,
	}
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return errkit.Wrap(err, "failed to normalize enum columns")
		}
	}
	return nil
}

func migrateCreateThumbnailTables(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	if err := createTableIfMissing(ctx, tx, dialect, "thumbnails", `
		CREATE TABLE thumbnails (
			thumb_key TEXT PRIMARY KEY,
			file_id TEXT NOT NULL,
			group_key TEXT,
			status TEXT NOT NULL,
			media_type TEXT NOT NULL,
			format TEXT NOT NULL,
			max_dimension INTEGER NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			source_size_bytes INTEGER NOT NULL,
			source_mtime_ns INTEGER NOT NULL,
			output_relpath TEXT NOT NULL,
			width INTEGER,
			height INTEGER,
			bytes_size INTEGER,
			error_code TEXT,
			error_message TEXT,
			error_count INTEGER NOT NULL DEFAULT 0,
			retry_after TIMESTAMP,
			worker_id TEXT,
			worker_heartbeat_at TIMESTAMP,
			lease_expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`); err != nil {
		return err
	}
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_thumbnails_group_key",
		`CREATE INDEX idx_thumbnails_group_key ON thumbnails(group_key)`); err != nil {
		return err
	}
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_thumbnails_status",
		`CREATE INDEX idx_thumbnails_status ON thumbnails(status)`); err != nil {
		return err
	}

	if err := createTableIfMissing(ctx, tx, dialect, "thumbnail_cleanup_jobs", `
		CREATE TABLE thumbnail_cleanup_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			group_key TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL,
			execute_after TIMESTAMP NOT NULL,
			worker_id TEXT,
			worker_heartbeat_at TIMESTAMP,
			lease_expires_at TIMESTAMP,
			error_code TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`); err != nil {
		return err
	}
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_thumbnail_cleanup_jobs_status",
		`CREATE INDEX idx_thumbnail_cleanup_jobs_status ON thumbnail_cleanup_jobs(status)`); err != nil {
		return err
	}

	return nil
}

func migrateRerunMutexRepair(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, clk clock.Clock) error {
	if err := repairDuplicateRunningScanHash(ctx, tx, dialect, clk); err != nil {
		return err
	}
	return repairDuplicateActiveScanHash(ctx, tx, dialect, clk)
}

func migrateCreateIoRateLimits(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	// Reserved for a future token-bucket I/O throttle; no service in this
	// repo reads or writes it yet.
	return createTableIfMissing(ctx, tx, dialect, "io_rate_limits", `
		CREATE TABLE io_rate_limits (
			bucket_key TEXT PRIMARY KEY,
			next_available_at_ms INTEGER NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`)
}

func migrateCreateDedupGroupIndex(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_library_files_dedup",
		`CREATE INDEX idx_library_files_dedup ON library_files(is_missing, needs_hash, hash_algorithm, content_hash, id)`); err != nil {
		return err
	}

	// Backfill: a content_hash written before hash_algorithm existed (or
	// written by a worker that predates the column) defaults to sha256,
	// this system's baseline algorithm, rather than being silently
	// excluded from every duplicate-group aggregation.
	_, err := tx.ExecContext(ctx, `UPDATE library_files SET hash_algorithm = 'sha256' WHERE content_hash IS NOT NULL AND hash_algorithm IS NULL`)
	if err != nil {
		return errkit.Wrap(err, "failed to backfill hash_algorithm")
	}
	return nil
}

func migrateCreateWalMaintenanceJobs(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, _ clock.Clock) error {
	if err := createTableIfMissing(ctx, tx, dialect, "wal_maintenance_jobs", `
		CREATE TABLE wal_maintenance_jobs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			requested_mode TEXT NOT NULL,
			status TEXT NOT NULL,
			reason TEXT,
			requested_by TEXT,
			retry_count INTEGER NOT NULL DEFAULT 0,
			retry_after TIMESTAMP,
			execute_after TIMESTAMP NOT NULL,
			worker_id TEXT,
			worker_heartbeat_at TIMESTAMP,
			lease_expires_at TIMESTAMP,
			checkpoint_busy BOOLEAN,
			checkpoint_log_frames INTEGER,
			checkpointed_frames INTEGER,
			error_code TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`); err != nil {
		return err
	}
	if err := createIndexIfMissing(ctx, tx, dialect, "idx_wal_jobs_status",
		`CREATE INDEX idx_wal_jobs_status ON wal_maintenance_jobs(status)`); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `UPDATE wal_maintenance_jobs SET requested_mode = lower(requested_mode), status = lower(status)`)
	if err != nil {
		return errkit.Wrap(err, "failed to normalize wal_maintenance_jobs enums")
	}
	return nil
}

// repairDuplicateRunningScanHash resolves multiple simultaneously
// "running" scan/hash jobs (a violation that should be structurally
// impossible once ux_jobs_active_scan_hash exists, but historical data
// predating it may contain): keep the oldest, reclassify the rest to
// retryable with MIGRATION_MUTEX_RECOVERY.
func repairDuplicateRunningScanHash(ctx context.Context, tx *sqlx.Tx, _ dbstore.Dialect, clk clock.Clock) error {
	var ids []string
	err := tx.SelectContext(ctx, &ids, `
		SELECT id FROM jobs
		WHERE kind IN ('scan', 'hash') AND lower(status) = 'running'
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return errkit.Wrap(err, "failed to list running scan/hash jobs for repair")
	}
	if len(ids) <= 1 {
		return nil
	}

	now := clk.Now()
	for _, id := range ids[1:] {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'retryable', error_code = ?, error_message = ?,
				worker_id = NULL, worker_heartbeat_at = NULL, lease_expires_at = NULL,
				finished_at = ?, updated_at = ?
			WHERE id = ?`,
			models.ErrCodeMigrationMutexRecovery, "duplicate running scan/hash job found during migration", now, now, id)
		if err != nil {
			return errkit.Wrap(err, "failed to repair duplicate running scan/hash job", "id", id)
		}
	}
	return nil
}

// repairDuplicateActiveScanHash resolves multiple simultaneously
// pending/running scan/hash jobs: keep one, preferring a running job over
// a pending one, then the oldest; reclassify the rest to retryable with
// MIGRATION_ACTIVE_RECOVERY.
func repairDuplicateActiveScanHash(ctx context.Context, tx *sqlx.Tx, _ dbstore.Dialect, clk clock.Clock) error {
	type row struct {
		ID     string `db:"id"`
		Status string `db:"status"`
	}
	var rows []row
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, status FROM jobs
		WHERE kind IN ('scan', 'hash') AND lower(status) IN ('pending', 'running')
		ORDER BY (CASE WHEN lower(status) = 'running' THEN 0 ELSE 1 END) ASC, created_at ASC, id ASC`)
	if err != nil {
		return errkit.Wrap(err, "failed to list active scan/hash jobs for repair")
	}
	if len(rows) <= 1 {
		return nil
	}

	now := clk.Now()
	for _, r := range rows[1:] {
		_, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'retryable', error_code = ?, error_message = ?,
				worker_id = NULL, worker_heartbeat_at = NULL, lease_expires_at = NULL,
				finished_at = ?, updated_at = ?
			WHERE id = ?`,
			models.ErrCodeMigrationActiveRecovery, "duplicate active scan/hash job found during migration", now, now, r.ID)
		if err != nil {
			return errkit.Wrap(err, "failed to repair duplicate active scan/hash job", "id", r.ID)
		}
	}
	return nil
}
