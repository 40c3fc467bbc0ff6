package metrics

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
)

func newCollector(c *qt.C, queueCapacity int) (*Collector, *sqlstore.JobRegistry, *sqlstore.ThumbnailRegistry, *sqlstore.WalMaintenanceRegistry, *clock.Fake) {
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	jobs := sqlstore.NewJobRegistry(db, dialect)
	thumbs := sqlstore.NewThumbnailRegistry(db, dialect)
	wal := sqlstore.NewWalMaintenanceRegistry(db, dialect)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	reg := prometheus.NewRegistry()
	coll := New(reg, jobs, thumbs, wal, fake, queueCapacity)
	return coll, jobs, thumbs, wal, fake
}

func insertJob(c *qt.C, jobs *sqlstore.JobRegistry, now time.Time, status models.JobStatus) {
	_, err := jobs.Create(context.Background(), models.Job{
		ID:        uuid.NewString(),
		Kind:      models.JobKindThumbnail,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	})
	c.Assert(err, qt.IsNil)
}

func insertThumbnail(c *qt.C, thumbs *sqlstore.ThumbnailRegistry, now time.Time, status models.ThumbnailStatus, n int) {
	for i := 0; i < n; i++ {
		task := models.ThumbnailTask{
			ThumbKey:        uuid.NewString(),
			FileID:          int64(i + 1),
			Status:          status,
			MediaType:       models.MediaTypeImage,
			Format:          models.ThumbnailFormatJPEG,
			MaxDimension:    256,
			Version:         1,
			SourceSizeBytes: 1,
			SourceMtimeNs:   1,
			OutputRelpath:   "a/b/c.jpg",
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		inserted, err := thumbs.InsertIfUnderCapacity(context.Background(), task, 1000)
		c.Assert(err, qt.IsNil)
		c.Assert(inserted, qt.IsTrue)
	}
}

func TestRefresh_PopulatesJobGaugesByStatus(t *testing.T) {
	c := qt.New(t)
	coll, jobs, _, _, fake := newCollector(c, 10)

	insertJob(c, jobs, fake.Now(), models.JobStatusPending)
	insertJob(c, jobs, fake.Now(), models.JobStatusPending)
	insertJob(c, jobs, fake.Now(), models.JobStatusCompleted)

	c.Assert(coll.Refresh(context.Background()), qt.IsNil)

	c.Assert(testutil.ToFloat64(coll.jobsByStatus.WithLabelValues(string(models.JobStatusPending))), qt.Equals, float64(2))
	c.Assert(testutil.ToFloat64(coll.jobsByStatus.WithLabelValues(string(models.JobStatusCompleted))), qt.Equals, float64(1))
	c.Assert(testutil.ToFloat64(coll.jobsByStatus.WithLabelValues(string(models.JobStatusFailed))), qt.Equals, float64(0))
}

func TestRefresh_ThumbnailQueueDepthAndHeadroom(t *testing.T) {
	c := qt.New(t)
	coll, _, thumbs, _, fake := newCollector(c, 5)

	insertThumbnail(c, thumbs, fake.Now(), models.ThumbnailStatusPending, 2)
	insertThumbnail(c, thumbs, fake.Now(), models.ThumbnailStatusReady, 3)

	c.Assert(coll.Refresh(context.Background()), qt.IsNil)

	c.Assert(testutil.ToFloat64(coll.thumbQueueDepth), qt.Equals, float64(2))
	c.Assert(testutil.ToFloat64(coll.thumbQueueHeadroom), qt.Equals, float64(3))
}

func TestRefresh_ThumbnailHeadroomFloorsAtZero(t *testing.T) {
	c := qt.New(t)
	coll, _, thumbs, _, fake := newCollector(c, 1)

	insertThumbnail(c, thumbs, fake.Now(), models.ThumbnailStatusRunning, 3)

	c.Assert(coll.Refresh(context.Background()), qt.IsNil)
	c.Assert(testutil.ToFloat64(coll.thumbQueueHeadroom), qt.Equals, float64(0))
}

func TestRefresh_WalLagZeroWhenNeverCompleted(t *testing.T) {
	c := qt.New(t)
	coll, _, _, _, _ := newCollector(c, 10)

	c.Assert(coll.Refresh(context.Background()), qt.IsNil)
	c.Assert(testutil.ToFloat64(coll.walLagSeconds), qt.Equals, float64(0))
}

func TestRefresh_WalLagReflectsElapsedTime(t *testing.T) {
	c := qt.New(t)
	coll, _, _, wal, fake := newCollector(c, 10)

	finishedAt := fake.Now()
	_, err := wal.Create(context.Background(), models.WalMaintenanceJob{
		RequestedMode: models.WalModePassive,
		Status:        models.WalStatusCompleted,
		ExecuteAfter:  finishedAt,
		CreatedAt:     finishedAt,
		UpdatedAt:     finishedAt,
		FinishedAt:    &finishedAt,
	})
	c.Assert(err, qt.IsNil)

	fake.Advance(90 * time.Second)
	c.Assert(coll.Refresh(context.Background()), qt.IsNil)
	c.Assert(testutil.ToFloat64(coll.walLagSeconds), qt.Equals, float64(90))
}
