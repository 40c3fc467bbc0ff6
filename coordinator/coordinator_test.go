package coordinator_test

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/denisvmedia/dedupfs/coordinator"
	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

func openJobs(c *qt.C) (*sqlstore.JobRegistry, *clock.Fake) {
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return sqlstore.NewJobRegistry(db, dialect), fake
}

func newCoordinator(c *qt.C, cfg coordinator.Config) (*coordinator.Coordinator, *clock.Fake) {
	jobs, fake := openJobs(c)
	if cfg.LeaseTTL == 0 {
		cfg.LeaseTTL = 5 * time.Minute
	}
	return coordinator.New(jobs, fake, cfg), fake
}

func TestCreateJob_RejectsUnknownKind(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})

	_, err := coord.CreateJob(context.Background(), models.JobKind("bogus"), nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrValidation)
}

func TestCreateJob_SecondScanJobConflicts(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	_, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)

	_, err = coord.CreateJob(ctx, models.JobKindHash, nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrJobConflict)
}

func TestCreateJob_GlobalDryRunForbidsRealRun(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{GlobalDryRun: true})

	real := false
	_, err := coord.CreateJob(context.Background(), models.JobKindScan, nil, &real)
	c.Assert(err, qt.ErrorIs, models.ErrJobPolicy)
}

func TestCreateJob_RealDeleteRequiresAllowRealDelete(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})

	real := false
	_, err := coord.CreateJob(context.Background(), models.JobKindDelete, nil, &real)
	c.Assert(err, qt.ErrorIs, models.ErrJobPolicy)
}

func TestClaimHeartbeatFinish_HappyPath(t *testing.T) {
	c := qt.New(t)
	coord, fake := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	created, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)

	claimed, err := coord.ClaimPendingScanHashJob(ctx, "worker-1")
	c.Assert(err, qt.IsNil)
	c.Assert(claimed.ID, qt.Equals, created.ID)
	c.Assert(claimed.Status, qt.Equals, models.JobStatusRunning)

	fake.Advance(time.Minute)
	progress := 0.5
	processed := int64(10)
	hb, err := coord.Heartbeat(ctx, claimed.ID, "worker-1", &progress, &processed)
	c.Assert(err, qt.IsNil)
	c.Assert(hb.Progress, qt.Equals, 0.5)
	c.Assert(hb.ProcessedItems, qt.Equals, int64(10))

	finished, err := coord.FinishJob(ctx, claimed.ID, "worker-1", true, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(finished.Status, qt.Equals, models.JobStatusCompleted)
	c.Assert(finished.WorkerID, qt.IsNil)
}

func TestHeartbeat_WrongWorkerConflicts(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	_, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)
	claimed, err := coord.ClaimPendingScanHashJob(ctx, "worker-1")
	c.Assert(err, qt.IsNil)

	progress := 0.1
	_, err = coord.Heartbeat(ctx, claimed.ID, "worker-2", &progress, nil)
	c.Assert(err, qt.ErrorIs, models.ErrJobConflict)
}

func TestHeartbeat_ExpiredLeaseConflictsAndMarksRetryable(t *testing.T) {
	c := qt.New(t)
	coord, fake := newCoordinator(c, coordinator.Config{LeaseTTL: time.Minute})
	ctx := context.Background()

	_, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)
	claimed, err := coord.ClaimPendingScanHashJob(ctx, "worker-1")
	c.Assert(err, qt.IsNil)

	fake.Advance(2 * time.Minute)
	_, err = coord.Heartbeat(ctx, claimed.ID, "worker-1", nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrJobConflict)

	job, err := coord.GetJob(ctx, claimed.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(job.Status, qt.Equals, models.JobStatusRetryable)
}

func TestResetRetryableJob_OnlyFromRetryable(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	created, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)

	_, err = coord.ResetRetryableJob(ctx, created.ID)
	c.Assert(err, qt.ErrorIs, models.ErrInvalidJobState)
}

func TestCancelJob_FromPending(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	created, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)

	cancelled, err := coord.CancelJob(ctx, created.ID, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(cancelled.Status, qt.Equals, models.JobStatusCancelled)
}

func TestCancelJob_TerminalStateRejected(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	created, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)
	_, err = coord.CancelJob(ctx, created.ID, nil)
	c.Assert(err, qt.IsNil)

	_, err = coord.CancelJob(ctx, created.ID, nil)
	c.Assert(err, qt.ErrorIs, models.ErrInvalidJobState)
}

func TestListJobs_PaginatesByCursor(t *testing.T) {
	c := qt.New(t)
	coord, fake := newCoordinator(c, coordinator.Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := coord.CreateJob(ctx, models.JobKindThumbnail, nil, nil)
		c.Assert(err, qt.IsNil)
		fake.Advance(time.Second)
	}

	page1, next, err := coord.ListJobs(ctx, 2, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(page1, qt.HasLen, 2)
	c.Assert(next, qt.Not(qt.IsNil))

	page2, next2, err := coord.ListJobs(ctx, 2, next)
	c.Assert(err, qt.IsNil)
	c.Assert(page2, qt.HasLen, 1)
	c.Assert(next2, qt.IsNil)
}

func TestListJobs_InvalidCursor(t *testing.T) {
	c := qt.New(t)
	coord, _ := newCoordinator(c, coordinator.Config{})

	bogus := "does-not-exist"
	_, _, err := coord.ListJobs(context.Background(), 10, &bogus)
	c.Assert(err, qt.ErrorIs, models.ErrInvalidCursor)
}

func TestRecoverStaleJobs_ExpiresLeaseAndKeepsAdmissionBlocked(t *testing.T) {
	c := qt.New(t)
	coord, fake := newCoordinator(c, coordinator.Config{LeaseTTL: time.Minute})
	ctx := context.Background()

	_, err := coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.IsNil)
	claimed, err := coord.ClaimPendingScanHashJob(ctx, "worker-1")
	c.Assert(err, qt.IsNil)

	fake.Advance(2 * time.Minute)
	n, err := coord.RecoverStaleJobs(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	job, err := coord.GetJob(ctx, claimed.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(job.Status, qt.Equals, models.JobStatusRetryable)

	// A retryable scan/hash job still counts against the admission mutex,
	// so a new scan job is refused until it is reset or cancelled.
	_, err = coord.CreateJob(ctx, models.JobKindScan, nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrJobConflict)
}
