package models

import "errors"

// Sentinel errors used by registries and services. These are the taxonomic
// "error kinds" of the error handling design: NotFound, InvalidState,
// Conflict, Policy, Validation, QueryError. apiserver maps errors.Is
// against these (or values wrapped with errkit around these) to HTTP
// statuses.
var (
	// NotFound
	ErrJobNotFound            = errors.New("job not found")
	ErrThumbnailNotFound      = errors.New("thumbnail not found")
	ErrWalMaintenanceNotFound = errors.New("wal maintenance job not found")

	// InvalidState
	ErrInvalidJobState = errors.New("invalid job state transition")

	// Conflict
	ErrJobConflict            = errors.New("job admission conflict")
	ErrWalMaintenanceConflict = errors.New("wal maintenance rate limited")
	ErrThumbnailQueueFull     = errors.New("thumbnail queue full")
	ErrThumbnailNotReady      = errors.New("thumbnail content not ready")

	// Policy
	ErrJobPolicy            = errors.New("job policy violation")
	ErrThumbnailPolicy      = errors.New("thumbnail policy violation")
	ErrWalMaintenancePolicy = errors.New("wal maintenance policy violation")

	// Validation
	ErrValidation    = errors.New("validation error")
	ErrInvalidCursor = errors.New("invalid cursor")

	// QueryError (data corruption surfaced during a read)
	ErrQuery = errors.New("query error")
)
