package models

import (
	"time"

	"github.com/jellydator/validation"
)

// ThumbnailStatus is the lifecycle status of a ThumbnailTask.
type ThumbnailStatus string

const (
	ThumbnailStatusPending ThumbnailStatus = "pending"
	ThumbnailStatusRunning ThumbnailStatus = "running"
	ThumbnailStatusReady   ThumbnailStatus = "ready"
	ThumbnailStatusFailed  ThumbnailStatus = "failed"
)

// ActiveThumbnailStatuses are the statuses counted against queue_capacity.
var ActiveThumbnailStatuses = []ThumbnailStatus{ThumbnailStatusPending, ThumbnailStatusRunning}

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

type ThumbnailFormat string

const (
	ThumbnailFormatJPEG ThumbnailFormat = "jpeg"
	ThumbnailFormatWebP ThumbnailFormat = "webp"
)

var _ validation.Validatable = ThumbnailFormat("")

func (f ThumbnailFormat) Valid() bool {
	return f == ThumbnailFormatJPEG || f == ThumbnailFormatWebP
}

func (f ThumbnailFormat) Validate() error {
	if !f.Valid() {
		return validation.NewError("invalid_format", "invalid thumbnail format")
	}
	return nil
}

// Ext returns the output file extension for the format.
func (f ThumbnailFormat) Ext() string {
	if f == ThumbnailFormatWebP {
		return "webp"
	}
	return "jpg"
}

// ImageSuffixes and VideoSuffixes classify a LibraryFile's relative_path
// suffix into a MediaType.
var ImageSuffixes = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "bmp": true,
	"gif": true, "tif": true, "tiff": true, "webp": true,
}

var VideoSuffixes = map[string]bool{
	"mp4": true, "mov": true, "m4v": true, "avi": true,
	"mkv": true, "webm": true, "mpeg": true, "mpg": true, "wmv": true,
}

// ThumbnailTask is a single requested thumbnail's lifecycle record.
type ThumbnailTask struct {
	ThumbKey          string          `db:"thumb_key" json:"thumb_key"`
	FileID            int64           `db:"file_id" json:"file_id"`
	GroupKey          *string         `db:"group_key" json:"group_key,omitempty"`
	Status            ThumbnailStatus `db:"status" json:"status"`
	MediaType         MediaType       `db:"media_type" json:"media_type"`
	Format            ThumbnailFormat `db:"format" json:"format"`
	MaxDimension      int             `db:"max_dimension" json:"max_dimension"`
	Version           int             `db:"version" json:"version"`
	SourceSizeBytes   int64           `db:"source_size_bytes" json:"source_size_bytes"`
	SourceMtimeNs     int64           `db:"source_mtime_ns" json:"source_mtime_ns"`
	OutputRelpath     string          `db:"output_relpath" json:"output_relpath"`
	Width             *int            `db:"width" json:"width,omitempty"`
	Height            *int            `db:"height" json:"height,omitempty"`
	BytesSize         *int64          `db:"bytes_size" json:"bytes_size,omitempty"`
	ErrorCode         *string         `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage      *string         `db:"error_message" json:"error_message,omitempty"`
	ErrorCount        int             `db:"error_count" json:"error_count"`
	RetryAfter        *time.Time      `db:"retry_after" json:"retry_after,omitempty"`
	WorkerID          *string         `db:"worker_id" json:"worker_id,omitempty"`
	WorkerHeartbeatAt *time.Time      `db:"worker_heartbeat_at" json:"worker_heartbeat_at,omitempty"`
	LeaseExpiresAt    *time.Time      `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
	FinishedAt        *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
}

// ThumbnailCleanupJob is a grouped thumbnail-cleanup record, keyed by
// group_key.
type ThumbnailCleanupJob struct {
	ID                int64      `db:"id" json:"id"`
	GroupKey          string     `db:"group_key" json:"group_key"`
	Status            string     `db:"status" json:"status"`
	ExecuteAfter      time.Time  `db:"execute_after" json:"execute_after"`
	WorkerID          *string    `db:"worker_id" json:"worker_id,omitempty"`
	WorkerHeartbeatAt *time.Time `db:"worker_heartbeat_at" json:"worker_heartbeat_at,omitempty"`
	LeaseExpiresAt    *time.Time `db:"lease_expires_at" json:"lease_expires_at,omitempty"`
	ErrorCode         *string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	FinishedAt        *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

const (
	ThumbnailCleanupStatusPending   = "pending"
	ThumbnailCleanupStatusRunning   = "running"
	ThumbnailCleanupStatusCompleted = "completed"
	ThumbnailCleanupStatusFailed    = "failed"
)
