package models

// SupportedHashAlgorithms is the closed set the cursor validator and the
// duplicate-group query engine understand. Both emit 32-byte (64 hex
// char) digests; adding a new algorithm requires updating this set and
// HexDigestLength together.
var SupportedHashAlgorithms = map[string]bool{
	"blake3": true,
	"sha256": true,
}

// HexDigestLength is the hex-encoded length of every supported algorithm's
// digest (32 raw bytes).
const HexDigestLength = 64

// DuplicateGroup is a read model: an aggregation over LibraryFile rows
// sharing (hash_algorithm, content_hash).
type DuplicateGroup struct {
	GroupKey           string `db:"group_key" json:"group_key"`
	HashAlgorithm      string `db:"hash_algorithm" json:"hash_algorithm"`
	ContentHashHex     string `db:"content_hash_hex" json:"content_hash_hex"`
	FileCount          int64  `db:"file_count" json:"file_count"`
	TotalSizeBytes     int64  `db:"total_size_bytes" json:"total_size_bytes"`
	DuplicateWasteBytes int64 `db:"duplicate_waste_bytes" json:"duplicate_waste_bytes"`
	SampleFileID        int64 `db:"sample_file_id" json:"sample_file_id"`
}

// DuplicateGroupCursor is the decoded shape of a keyset-pagination cursor
// over the duplicate-group stable total order.
type DuplicateGroupCursor struct {
	FileCount      int64  `json:"file_count"`
	TotalSizeBytes int64  `json:"total_size_bytes"`
	HashAlgorithm  string `json:"hash_algorithm"`
	ContentHashHex string `json:"content_hash_hex"`
}

// DuplicateGroupFile is a row returned when listing the files within a
// duplicate group, joined against library_roots for convenience.
type DuplicateGroupFile struct {
	FileID       int64  `db:"file_id" json:"file_id"`
	LibraryID    string `db:"library_id" json:"library_id"`
	RelativePath string `db:"relative_path" json:"relative_path"`
	SizeBytes    int64  `db:"size_bytes" json:"size_bytes"`
	MtimeNs      int64  `db:"mtime_ns" json:"mtime_ns"`
}
