// Package thumbqueue implements C5: fingerprint-deduplicated thumbnail
// admission under atomic capacity, failure backoff, and grouped cleanup.
package thumbqueue

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-extras/go-kit/ptr"

	"github.com/denisvmedia/dedupfs/internal/clock"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/internal/pathsafe"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// Config is the slice of application configuration the queue needs.
type Config struct {
	LibrariesRoot       string
	ThumbsRoot          string
	QueueCapacity       int
	DefaultMaxDimension int
	MaxMaxDimension     int
	DefaultFormat       models.ThumbnailFormat
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	CleanupDelayDefault time.Duration
}

type Queue struct {
	thumbs    registry.ThumbnailRegistry
	cleanups  registry.ThumbnailCleanupRegistry
	libraries registry.LibraryRegistry
	clk       clock.Clock
	cfg       Config
}

func New(thumbs registry.ThumbnailRegistry, cleanups registry.ThumbnailCleanupRegistry, libraries registry.LibraryRegistry, clk clock.Clock, cfg Config) *Queue {
	return &Queue{thumbs: thumbs, cleanups: cleanups, libraries: libraries, clk: clk, cfg: cfg}
}

// computeThumbKey implements §3's thumb_key formula.
func computeThumbKey(fileID int64, fingerprint string, maxDimension int, format models.ThumbnailFormat) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%d:%s:thumb-v2", fileID, fingerprint, maxDimension, format)
	return hex.EncodeToString(h.Sum(nil))
}

// fingerprint implements the GLOSSARY's fingerprint rule.
func fingerprint(f *models.LibraryFile) string {
	if f.HashAlgorithm != nil && len(f.ContentHash) > 0 {
		return fmt.Sprintf("%s:%s", *f.HashAlgorithm, hex.EncodeToString(f.ContentHash))
	}
	return fmt.Sprintf("meta:%d:%d", f.SizeBytes, f.MtimeNs)
}

func mediaTypeForPath(relpath string) (models.MediaType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(relpath)), ".")
	if models.ImageSuffixes[ext] {
		return models.MediaTypeImage, true
	}
	if models.VideoSuffixes[ext] {
		return models.MediaTypeVideo, true
	}
	return "", false
}

// outputRelpath implements §4.2 step 4's sharded layout.
func outputRelpath(thumbKey string, format models.ThumbnailFormat) string {
	return filepath.Join(thumbKey[0:2], thumbKey[2:4], thumbKey+"."+format.Ext())
}

// RequestThumbnail implements §4.2 request_thumbnail.
func (q *Queue) RequestThumbnail(ctx context.Context, fileID int64, maxDimension *int, format *models.ThumbnailFormat) (*models.ThumbnailTask, error) {
	dim := q.cfg.DefaultMaxDimension
	if maxDimension != nil {
		dim = ptr.From(maxDimension)
	}
	if dim <= 0 || dim > q.cfg.MaxMaxDimension {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "max_dimension out of range", "max_dimension", dim)
	}

	fmt_ := q.cfg.DefaultFormat
	if format != nil {
		fmt_ = ptr.From(format)
	}
	if !fmt_.Valid() {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "unsupported format", "format", fmt_)
	}

	file, err := q.libraries.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrThumbnailNotFound, "file_id", fileID)
		}
		return nil, err
	}
	if file.IsMissing {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "file is missing", "file_id", fileID)
	}

	root, err := q.libraries.GetRoot(ctx, file.LibraryID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "library root not found", "library_id", file.LibraryID)
		}
		return nil, err
	}

	media, ok := mediaTypeForPath(file.RelativePath)
	if !ok {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "unsupported media type", "relative_path", file.RelativePath)
	}

	rootRel := root.RootPath
	if filepath.IsAbs(rootRel) {
		rel, relErr := filepath.Rel(q.cfg.LibrariesRoot, rootRel)
		if relErr != nil {
			return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "library root escapes libraries_root")
		}
		rootRel = rel
	}
	if _, err := pathsafe.ResolveUnderRoot(q.cfg.LibrariesRoot, rootRel); err != nil {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "library root escapes libraries_root")
	}
	if _, err := pathsafe.ResolveLibraryRelativePath(root.RootPath, file.RelativePath); err != nil {
		return nil, errkit.WithFields(models.ErrThumbnailPolicy, "reason", "file path escapes its library root")
	}

	fp := fingerprint(file)
	thumbKey := computeThumbKey(fileID, fp, dim, fmt_)
	relpath := outputRelpath(thumbKey, fmt_)

	now := q.clk.Now()

	existing, err := q.thumbs.GetByKey(ctx, thumbKey)
	if err != nil && !errors.Is(err, registry.ErrNotFound) {
		return nil, err
	}
	if err == nil {
		if existing.Status == models.ThumbnailStatusFailed && (existing.RetryAfter == nil || !existing.RetryAfter.After(now)) {
			reset := *existing
			reset.Status = models.ThumbnailStatusPending
			reset.ErrorCode = nil
			reset.ErrorMessage = nil
			reset.RetryAfter = nil
			reset.WorkerID = nil
			reset.WorkerHeartbeatAt = nil
			reset.LeaseExpiresAt = nil
			reset.UpdatedAt = now
			if err := q.thumbs.Update(ctx, reset); err != nil {
				return nil, err
			}
			return &reset, nil
		}
		return existing, nil
	}

	var groupKey *string
	if file.HashAlgorithm != nil && len(file.ContentHash) > 0 {
		gk := fmt.Sprintf("%s:%s", *file.HashAlgorithm, hex.EncodeToString(file.ContentHash))
		groupKey = &gk
	}

	task := models.ThumbnailTask{
		ThumbKey:        thumbKey,
		FileID:          fileID,
		GroupKey:        groupKey,
		Status:          models.ThumbnailStatusPending,
		MediaType:       media,
		Format:          fmt_,
		MaxDimension:    dim,
		Version:         1,
		SourceSizeBytes: file.SizeBytes,
		SourceMtimeNs:   file.MtimeNs,
		OutputRelpath:   relpath,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	inserted, err := q.thumbs.InsertIfUnderCapacity(ctx, task, q.cfg.QueueCapacity)
	if err != nil {
		if errors.Is(err, registry.ErrUniqueViolation) {
			existing, getErr := q.thumbs.GetByKey(ctx, thumbKey)
			if getErr != nil {
				return nil, getErr
			}
			return existing, nil
		}
		return nil, err
	}
	if !inserted {
		existing, getErr := q.thumbs.GetByKey(ctx, thumbKey)
		if getErr != nil {
			if errors.Is(getErr, registry.ErrNotFound) {
				return nil, errkit.WithFields(models.ErrThumbnailQueueFull, "thumb_key", thumbKey)
			}
			return nil, getErr
		}
		return existing, nil
	}
	return &task, nil
}

// GetThumbnail implements §4.2 get_thumbnail.
func (q *Queue) GetThumbnail(ctx context.Context, thumbKey string) (*models.ThumbnailTask, error) {
	task, err := q.thumbs.GetByKey(ctx, thumbKey)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, errkit.WithFields(models.ErrThumbnailNotFound, "thumb_key", thumbKey)
		}
		return nil, err
	}
	return task, nil
}

// ResolveOutputPath implements resolve_thumbnail_output_path: revalidate
// output_relpath resolves strictly under thumbs_root and return the
// absolute path.
func (q *Queue) ResolveOutputPath(task *models.ThumbnailTask) (string, error) {
	path, err := pathsafe.ResolveUnderRoot(q.cfg.ThumbsRoot, task.OutputRelpath)
	if err != nil {
		return "", errkit.WithFields(models.ErrThumbnailPolicy, "reason", "output path escapes thumbs_root", "thumb_key", task.ThumbKey)
	}
	return path, nil
}

// ScheduleGroupCleanup implements §4.2 schedule_group_cleanup.
func (q *Queue) ScheduleGroupCleanup(ctx context.Context, groupKey string, delay *time.Duration) (*models.ThumbnailCleanupJob, error) {
	groupKey = strings.TrimSpace(groupKey)
	if groupKey == "" {
		return nil, errkit.WithFields(models.ErrValidation, "field", "group_key")
	}
	d := q.cfg.CleanupDelayDefault
	if delay != nil {
		if *delay < 0 {
			return nil, errkit.WithFields(models.ErrValidation, "field", "delay_seconds")
		}
		d = *delay
	}

	now := q.clk.Now()
	job, err := q.cleanups.UpsertPending(ctx, groupKey, now.Add(d), now)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// PruneGroupThumbnails implements §4.2 prune_group_thumbnails.
func (q *Queue) PruneGroupThumbnails(ctx context.Context, groupKey string) (int, error) {
	tasks, err := q.thumbs.ListByGroup(ctx, groupKey, []models.ThumbnailStatus{models.ThumbnailStatusReady, models.ThumbnailStatusFailed})
	if err != nil {
		return 0, err
	}
	if len(tasks) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(tasks))
	for _, t := range tasks {
		keys = append(keys, t.ThumbKey)
		path, err := pathsafe.ResolveUnderRoot(q.cfg.ThumbsRoot, t.OutputRelpath)
		if err != nil {
			continue
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			continue
		}
	}

	return q.thumbs.DeleteByKeys(ctx, keys)
}

// Metrics reports the queue's per-status counts alongside its configured
// capacity and current depth (the subset of statuses counted against that
// capacity), mirroring the original's thumbs/service.py get_metrics.
type Metrics struct {
	CountByStatus map[models.ThumbnailStatus]int
	QueueCapacity int
	QueueDepth    int
}

// GetMetrics implements the supplemented GET /thumbs/metrics surface.
func (q *Queue) GetMetrics(ctx context.Context) (*Metrics, error) {
	counts, err := q.thumbs.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	depth := 0
	for _, status := range models.ActiveThumbnailStatuses {
		depth += counts[status]
	}
	return &Metrics{
		CountByStatus: counts,
		QueueCapacity: q.cfg.QueueCapacity,
		QueueDepth:    depth,
	}, nil
}

// ComputeRetryAfter implements §4.2's backoff formula, given the
// error_count value the row will carry after this failure.
func ComputeRetryAfter(now time.Time, errorCount int, base, max time.Duration) time.Time {
	if errorCount < 1 {
		errorCount = 1
	}
	delay := time.Duration(float64(base) * math.Pow(2, float64(errorCount-1)))
	if delay > max {
		delay = max
	}
	return now.Add(delay)
}
