package thumbqueue_test

import (
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry/sqlstore"
	"github.com/denisvmedia/dedupfs/thumbqueue"
)

type harness struct {
	ctx     context.Context
	queue   *thumbqueue.Queue
	clk     *clock.Fake
	db      *sqlx.DB
	dialect dbstore.Dialect
	rootID  string
}

func newHarness(c *qt.C, cfg thumbqueue.Config) *harness {
	ctx := context.Background()
	db, dialect, err := dbstore.Open(ctx, ":memory:")
	c.Assert(err, qt.IsNil)
	c.Assert(sqlstore.EnsureSchema(ctx, db, dialect, clock.Real()), qt.IsNil)
	c.Cleanup(func() { _ = db.Close() })

	libsRoot := c.TempDir()
	thumbsRoot := c.TempDir()

	if cfg.QueueCapacity == 0 {
		cfg.QueueCapacity = 10
	}
	if cfg.DefaultMaxDimension == 0 {
		cfg.DefaultMaxDimension = 256
	}
	if cfg.MaxMaxDimension == 0 {
		cfg.MaxMaxDimension = 1024
	}
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = models.ThumbnailFormatJPEG
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = time.Minute
	}
	cfg.LibrariesRoot = libsRoot
	cfg.ThumbsRoot = thumbsRoot

	rootID := uuid.NewString()
	rootPath := filepath.Join(libsRoot, "lib1")
	_, err = db.ExecContext(ctx, dbstore.Rebind(dialect, db, `INSERT INTO library_roots (id, name, root_path) VALUES (?, ?, ?)`),
		rootID, "lib1", rootPath)
	c.Assert(err, qt.IsNil)

	thumbs := sqlstore.NewThumbnailRegistry(db, dialect)
	cleanups := sqlstore.NewThumbnailCleanupRegistry(db, dialect)
	libraries := sqlstore.NewLibraryRegistry(db, dialect)
	fake := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	return &harness{
		ctx:     ctx,
		queue:   thumbqueue.New(thumbs, cleanups, libraries, fake, cfg),
		clk:     fake,
		db:      db,
		dialect: dialect,
		rootID:  rootID,
	}
}

var fileIDCounter int64

func insertFile(c *qt.C, h *harness, relpath string, sizeBytes int64) int64 {
	fileIDCounter++
	id := fileIDCounter
	query := dbstore.Rebind(h.dialect, h.db, `INSERT INTO library_files
		(id, library_id, relative_path, size_bytes, mtime_ns, is_missing, needs_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	_, err := h.db.ExecContext(h.ctx, query,
		strconv.FormatInt(id, 10), h.rootID, relpath, sizeBytes, int64(0), false, true)
	c.Assert(err, qt.IsNil)
	return id
}

func TestRequestThumbnail_HappyPathThenIdempotent(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	fileID := insertFile(c, h, "photo.jpg", 1024)

	task, err := h.queue.RequestThumbnail(h.ctx, fileID, nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(task.Status, qt.Equals, models.ThumbnailStatusPending)
	c.Assert(task.MediaType, qt.Equals, models.MediaTypeImage)
	c.Assert(task.MaxDimension, qt.Equals, 256)

	again, err := h.queue.RequestThumbnail(h.ctx, fileID, nil, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(again.ThumbKey, qt.Equals, task.ThumbKey)
}

func TestRequestThumbnail_RejectsOutOfRangeDimension(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	fileID := insertFile(c, h, "photo.jpg", 1024)
	dim := 99999
	_, err := h.queue.RequestThumbnail(h.ctx, fileID, &dim, nil)
	c.Assert(err, qt.ErrorIs, models.ErrThumbnailPolicy)
}

func TestRequestThumbnail_RejectsUnsupportedMediaType(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	fileID := insertFile(c, h, "document.pdf", 1024)
	_, err := h.queue.RequestThumbnail(h.ctx, fileID, nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrThumbnailPolicy)
}

func TestRequestThumbnail_UnknownFileNotFound(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	_, err := h.queue.RequestThumbnail(h.ctx, 999999999, nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrThumbnailNotFound)
}

func TestRequestThumbnail_QueueFullOnceCapacityReached(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{QueueCapacity: 1})

	f1 := insertFile(c, h, "a.jpg", 10)
	f2 := insertFile(c, h, "b.jpg", 10)

	_, err := h.queue.RequestThumbnail(h.ctx, f1, nil, nil)
	c.Assert(err, qt.IsNil)

	_, err = h.queue.RequestThumbnail(h.ctx, f2, nil, nil)
	c.Assert(err, qt.ErrorIs, models.ErrThumbnailQueueFull)
}

func TestScheduleGroupCleanup_UpsertsPending(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{CleanupDelayDefault: time.Minute})

	job, err := h.queue.ScheduleGroupCleanup(h.ctx, "sha256:abc", nil)
	c.Assert(err, qt.IsNil)
	c.Assert(job.Status, qt.Equals, models.ThumbnailCleanupStatusPending)
	c.Assert(job.ExecuteAfter.Equal(h.clk.Now().Add(time.Minute)), qt.IsTrue)
}

func TestScheduleGroupCleanup_RejectsNegativeDelay(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	neg := -time.Second
	_, err := h.queue.ScheduleGroupCleanup(h.ctx, "sha256:abc", &neg)
	c.Assert(err, qt.ErrorIs, models.ErrValidation)
}

func TestScheduleGroupCleanup_RejectsBlankGroupKey(t *testing.T) {
	c := qt.New(t)
	h := newHarness(c, thumbqueue.Config{})

	_, err := h.queue.ScheduleGroupCleanup(h.ctx, "  ", nil)
	c.Assert(err, qt.ErrorIs, models.ErrValidation)
}

func TestComputeRetryAfter_ExponentialWithCeiling(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := time.Second
	ceiling := 10 * time.Second

	c.Assert(thumbqueue.ComputeRetryAfter(now, 1, base, ceiling), qt.Equals, now.Add(time.Second))
	c.Assert(thumbqueue.ComputeRetryAfter(now, 2, base, ceiling), qt.Equals, now.Add(2*time.Second))
	c.Assert(thumbqueue.ComputeRetryAfter(now, 4, base, ceiling), qt.Equals, now.Add(8*time.Second))
	// errorCount=10 would be 512s, clamped to the ceiling.
	c.Assert(thumbqueue.ComputeRetryAfter(now, 10, base, ceiling), qt.Equals, now.Add(ceiling))
}

func TestComputeRetryAfter_FloorsErrorCountAtOne(t *testing.T) {
	c := qt.New(t)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Assert(thumbqueue.ComputeRetryAfter(now, 0, time.Second, time.Minute), qt.Equals, now.Add(time.Second))
}
