package models

import (
	"time"

	"github.com/jellydator/validation"
)

// WalMode is the requested checkpoint mode for a WalMaintenanceJob.
type WalMode string

const (
	WalModePassive  WalMode = "passive"
	WalModeRestart  WalMode = "restart"
	WalModeTruncate WalMode = "truncate"
)

var _ validation.Validatable = WalMode("")

func (m WalMode) Valid() bool {
	switch m {
	case WalModePassive, WalModeRestart, WalModeTruncate:
		return true
	}
	return false
}

func (m WalMode) Validate() error {
	if !m.Valid() {
		return validation.NewError("invalid_mode", "invalid wal mode")
	}
	return nil
}

type WalMaintenanceStatus string

const (
	WalStatusPending   WalMaintenanceStatus = "pending"
	WalStatusRunning   WalMaintenanceStatus = "running"
	WalStatusCompleted WalMaintenanceStatus = "completed"
	WalStatusFailed    WalMaintenanceStatus = "failed"
	WalStatusRetryable WalMaintenanceStatus = "retryable"
)

// ActiveWalStatuses are the statuses the singleton-active invariant scans.
var ActiveWalStatuses = []WalMaintenanceStatus{WalStatusPending, WalStatusRunning, WalStatusRetryable}

// WalMaintenanceJob records a single requested WAL checkpoint and its
// lifecycle.
type WalMaintenanceJob struct {
	ID                  int64                `db:"id" json:"id"`
	RequestedMode       WalMode              `db:"requested_mode" json:"requested_mode"`
	Status              WalMaintenanceStatus `db:"status" json:"status"`
	Reason              *string              `db:"reason" json:"reason,omitempty"`
	RequestedBy         *string              `db:"requested_by" json:"requested_by,omitempty"`
	RetryCount          int                  `db:"retry_count" json:"retry_count"`
	RetryAfter          *time.Time           `db:"retry_after" json:"retry_after,omitempty"`
	ExecuteAfter        time.Time            `db:"execute_after" json:"execute_after"`
	WorkerID            *string              `db:"worker_id" json:"worker_id,omitempty"`
	WorkerHeartbeatAt   *time.Time           `db:"worker_heartbeat_at" json:"worker_heartbeat_at,omitempty"`
	LeaseExpiresAt      *time.Time           `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	CheckpointBusy      *bool                `db:"checkpoint_busy" json:"checkpoint_busy,omitempty"`
	CheckpointLogFrames *int64               `db:"checkpoint_log_frames" json:"checkpoint_log_frames,omitempty"`
	CheckpointedFrames  *int64               `db:"checkpointed_frames" json:"checkpointed_frames,omitempty"`
	ErrorCode           *string              `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage        *string              `db:"error_message" json:"error_message,omitempty"`
	CreatedAt           time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time            `db:"updated_at" json:"updated_at"`
	FinishedAt          *time.Time           `db:"finished_at" json:"finished_at,omitempty"`
}
