package models

import (
	"time"

	"github.com/jellydator/validation"
)

var _ validation.Validatable = JobKind("")

// JobKind is the variant tag of a Job row. Payload is kept as an opaque
// map validated per-kind by the caller rather than modeling one Go type
// per kind.
type JobKind string

const (
	JobKindScan      JobKind = "scan"
	JobKindHash      JobKind = "hash"
	JobKindDelete    JobKind = "delete"
	JobKindThumbnail JobKind = "thumbnail"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobKindScan, JobKindHash, JobKindDelete, JobKindThumbnail:
		return true
	}
	return false
}

func (k JobKind) Validate() error {
	if !k.Valid() {
		return validation.NewError("invalid_kind", "invalid job kind")
	}
	return nil
}

// IsScanHash reports whether k is subject to the single-writer admission
// mutex.
func (k JobKind) IsScanHash() bool {
	return k == JobKindScan || k == JobKindHash
}

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusRetryable JobStatus = "retryable"
)

// ActiveScanHashStatuses are the statuses create_job's admission check
// counts against the scan/hash mutex. Stale-lease recovery looks only at
// running jobs.
var ActiveScanHashStatuses = []JobStatus{JobStatusPending, JobStatusRunning, JobStatusRetryable}

// jobTransitions is the job lifecycle's state machine. Any edge not
// present here is illegal and must raise ErrInvalidJobState.
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobStatusPending:   {JobStatusRunning: true, JobStatusCancelled: true},
	JobStatusRunning:   {JobStatusCompleted: true, JobStatusFailed: true, JobStatusCancelled: true, JobStatusRetryable: true},
	JobStatusRetryable: {JobStatusPending: true, JobStatusCancelled: true, JobStatusFailed: true},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
	JobStatusCancelled: {},
}

// CanTransition reports whether from -> to is a legal FSM edge.
func CanTransition(from, to JobStatus) bool {
	edges, ok := jobTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}

const (
	ErrCodeLeaseExpired             = "LEASE_EXPIRED"
	ErrCodeWorkerFailure            = "WORKER_FAILURE"
	ErrCodeMigrationMutexRecovery   = "MIGRATION_MUTEX_RECOVERY"
	ErrCodeMigrationActiveRecovery  = "MIGRATION_ACTIVE_RECOVERY"
)

// Job models a generic job's lifecycle and worker-lease protocol.
type Job struct {
	ID                string     `db:"id" json:"id"`
	Kind              JobKind    `db:"kind" json:"kind"`
	Status            JobStatus  `db:"status" json:"status"`
	DryRun            bool       `db:"dry_run" json:"dry_run"`
	WorkerID          *string    `db:"worker_id" json:"worker_id,omitempty"`
	WorkerHeartbeatAt *time.Time `db:"worker_heartbeat_at" json:"worker_heartbeat_at,omitempty"`
	LeaseExpiresAt    *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	Progress          float64    `db:"progress" json:"progress"`
	TotalItems        *int64     `db:"total_items" json:"total_items,omitempty"`
	ProcessedItems    int64      `db:"processed_items" json:"processed_items"`
	Payload           JSONMap    `db:"payload" json:"payload,omitempty"`
	ErrorCode         *string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}
