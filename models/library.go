package models

import "time"

// LibraryRoot is read-only from this package's perspective; it is seeded
// by the scan worker, not mutated here.
type LibraryRoot struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	RootPath string `db:"root_path" json:"root_path"`
}

// LibraryFile is read-only from this package's perspective; the
// thumbnail queue and duplicate-group query engine read it but never write
// it. The id is a numeric surrogate key, unlike Job's opaque identifier.
type LibraryFile struct {
	ID            int64      `db:"id" json:"id"`
	LibraryID     string     `db:"library_id" json:"library_id"`
	RelativePath  string     `db:"relative_path" json:"relative_path"`
	SizeBytes     int64      `db:"size_bytes" json:"size_bytes"`
	MtimeNs       int64      `db:"mtime_ns" json:"mtime_ns"`
	IsMissing     bool       `db:"is_missing" json:"is_missing"`
	NeedsHash     bool       `db:"needs_hash" json:"needs_hash"`
	HashAlgorithm *string    `db:"hash_algorithm" json:"hash_algorithm,omitempty"`
	ContentHash   []byte     `db:"content_hash" json:"-"`
	HashedAt      *time.Time `db:"hashed_at" json:"hashed_at,omitempty"`
}
