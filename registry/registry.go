// Package registry declares the persistence contracts the coordination
// services (coordinator, thumbqueue, walsched, dupquery) are built
// against. registry/sqlstore provides the only implementation, but the
// interfaces keep services substitutable in tests, following the
// teacher's registry.Set / registry.*Registry factory pattern without
// the multi-tenant RLS machinery this system doesn't need (§1 Non-goals:
// no auth surface).
package registry

import (
	"context"
	"time"

	"github.com/denisvmedia/dedupfs/models"
)

// JobRegistry is the C4 persistence contract.
type JobRegistry interface {
	// Create inserts job with the status it carries (the coordinator
	// always passes status=pending). Scan/hash admission (the
	// partial unique index) is enforced by the store; a violation comes
	// back as ErrUniqueViolation.
	Create(ctx context.Context, job models.Job) (*models.Job, error)
	Get(ctx context.Context, id string) (*models.Job, error)
	// List returns up to limit jobs ordered by (created_at DESC, id DESC)
	// strictly before the anchor job (nil anchor = from the start), the
	// raw form list_jobs's keyset pagination is built on.
	List(ctx context.Context, limit int, anchor *models.Job) ([]models.Job, error)
	// ClaimOldestPendingScanHash atomically claims the oldest pending
	// scan/hash job, returning nil if none is pending.
	ClaimOldestPendingScanHash(ctx context.Context, workerID string, now time.Time, leaseTTL time.Duration) (*models.Job, error)
	// Update persists job's mutable fields (status, worker/lease fields,
	// progress, error fields, timestamps) keyed by id, predicated on
	// expectedStatus to guard against a concurrent transition; returns
	// ErrNoRowsUpdated if the predicate didn't match.
	Update(ctx context.Context, job models.Job, expectedStatus models.JobStatus) error
	// ActiveScanHashCount counts jobs with kind in {scan,hash} and status
	// in statuses, used by create_job's admission check.
	ActiveScanHashCount(ctx context.Context, statuses []models.JobStatus) (int, error)
	// StaleRunningScanHash returns running scan/hash jobs whose lease has
	// expired (or is absent), for recover_stale_jobs.
	StaleRunningScanHash(ctx context.Context, now time.Time) ([]models.Job, error)
	// CountByStatus counts jobs of any kind grouped by status, for metrics.
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

// ThumbnailRegistry is the C5 thumbnail-task persistence contract.
type ThumbnailRegistry interface {
	GetByKey(ctx context.Context, thumbKey string) (*models.ThumbnailTask, error)
	// InsertIfUnderCapacity performs the atomic conditional INSERT ...
	// SELECT ... WHERE count(active) < capacity described in §4.2 step 6.
	// inserted reports whether the row was actually created.
	InsertIfUnderCapacity(ctx context.Context, task models.ThumbnailTask, capacity int) (inserted bool, err error)
	Update(ctx context.Context, task models.ThumbnailTask) error
	// ListByGroup returns thumbnails sharing groupKey in statuses.
	ListByGroup(ctx context.Context, groupKey string, statuses []models.ThumbnailStatus) ([]models.ThumbnailTask, error)
	DeleteByKeys(ctx context.Context, thumbKeys []string) (int, error)
	CountByStatus(ctx context.Context) (map[models.ThumbnailStatus]int, error)
}

// ThumbnailCleanupRegistry is the C5 grouped-cleanup persistence contract.
type ThumbnailCleanupRegistry interface {
	// UpsertPending inserts a new pending row for groupKey or resets an
	// existing one to pending (§4.2 schedule_group_cleanup).
	UpsertPending(ctx context.Context, groupKey string, executeAfter time.Time, now time.Time) (*models.ThumbnailCleanupJob, error)
}

// WalMaintenanceRegistry is the C6 persistence contract.
type WalMaintenanceRegistry interface {
	Create(ctx context.Context, job models.WalMaintenanceJob) (*models.WalMaintenanceJob, error)
	// ActiveOrNil returns the most-recent row in {pending,running,retryable},
	// or nil if none, for request_checkpoint's coalescing rule.
	ActiveOrNil(ctx context.Context) (*models.WalMaintenanceJob, error)
	// LatestCompleted returns the most recently completed row, or nil.
	LatestCompleted(ctx context.Context) (*models.WalMaintenanceJob, error)
	GetLatest(ctx context.Context) (*models.WalMaintenanceJob, error)
	Update(ctx context.Context, job models.WalMaintenanceJob) error
	CountByStatus(ctx context.Context) (map[models.WalMaintenanceStatus]int, error)
}

// LibraryRegistry is the read-only contract over LibraryFile/LibraryRoot
// that C5 and C7 depend on (§3: "Read-only from core's perspective").
type LibraryRegistry interface {
	GetFile(ctx context.Context, fileID int64) (*models.LibraryFile, error)
	GetRoot(ctx context.Context, libraryID string) (*models.LibraryRoot, error)
}

// DuplicateRegistry is the C7 read-only query contract.
type DuplicateRegistry interface {
	// ListGroups returns up to limit duplicate groups strictly after
	// cursor in the stable total order (§4.4).
	ListGroups(ctx context.Context, limit int, cursor *models.DuplicateGroupCursor) ([]models.DuplicateGroup, error)
	// ListGroupFiles returns up to limit files in group (algo, hashHex)
	// with id > afterID.
	ListGroupFiles(ctx context.Context, algo, hashHex string, afterID int64, limit int) ([]models.DuplicateGroupFile, error)
}
