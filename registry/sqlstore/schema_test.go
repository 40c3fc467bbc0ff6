package sqlstore_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

func TestEnsureSchema_AppliesEveryDeclaredMigration(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)

	applied, err := sqlstore.AppliedVersions(ctx, db)
	c.Assert(err, qt.IsNil)
	c.Assert(applied, qt.HasLen, len(sqlstore.Migrations))
	for i, m := range sqlstore.Migrations {
		c.Assert(applied[i].Version, qt.Equals, m.Version)
		c.Assert(applied[i].Name, qt.Equals, m.Name)
	}
}

func TestEnsureSchema_ReRunIsNoop(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	first, err := sqlstore.AppliedVersions(ctx, db)
	c.Assert(err, qt.IsNil)

	// Running again against an already-migrated store must not error, and
	// must not re-apply or duplicate any migration row.
	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	second, err := sqlstore.AppliedVersions(ctx, db)
	c.Assert(err, qt.IsNil)
	c.Assert(second, qt.DeepEquals, first)
}

// TestEnsureSchema_RepairsDuplicateRunningScanHash seeds two simultaneously
// "running" scan/hash jobs against the pre-migration-6 base schema (which
// has no admission mutex and so could never have rejected the second
// INSERT), then runs the full migration list and asserts migration 6's
// repair step demotes every row but the oldest to retryable with
// MIGRATION_MUTEX_RECOVERY, clearing the way for ux_jobs_active_scan_hash
// to be created without violating its own uniqueness constraint.
func TestEnsureSchema_RepairsDuplicateRunningScanHash(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err = db.ExecContext(ctx, `
		CREATE TABLE schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)`)
	c.Assert(err, qt.IsNil)

	// Apply only migrations 1-5 (through drop_jobs_execution_backend),
	// stopping before migration 6 introduces the lease columns and the
	// single-active-scan-hash mutex, then seed the pre-migration conflict
	// directly against the bare base schema.
	for _, m := range sqlstore.Migrations[:5] {
		tx, err := db.BeginTxx(ctx, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(m.Apply(ctx, tx, dialect, fake), qt.IsNil)
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, fake.Now())
		c.Assert(err, qt.IsNil)
		c.Assert(tx.Commit(), qt.IsNil)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, status, dry_run, created_at, updated_at)
		VALUES ('older-job', 'scan', 'running', FALSE, ?, ?)`, fake.Now(), fake.Now())
	c.Assert(err, qt.IsNil)
	fake.Advance(time.Second)
	_, err = db.ExecContext(ctx, `
		INSERT INTO jobs (id, kind, status, dry_run, created_at, updated_at)
		VALUES ('newer-job', 'hash', 'running', FALSE, ?, ?)`, fake.Now(), fake.Now())
	c.Assert(err, qt.IsNil)

	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, fake), qt.IsNil)

	jobs := sqlstore.NewJobRegistry(db, dialect)
	older, err := jobs.Get(ctx, "older-job")
	c.Assert(err, qt.IsNil)
	c.Assert(older.Status, qt.Equals, models.JobStatusRunning)

	newer, err := jobs.Get(ctx, "newer-job")
	c.Assert(err, qt.IsNil)
	c.Assert(newer.Status, qt.Equals, models.JobStatusRetryable)
	c.Assert(newer.ErrorCode, qt.Not(qt.IsNil))
	c.Assert(*newer.ErrorCode, qt.Equals, models.ErrCodeMigrationMutexRecovery)
}
