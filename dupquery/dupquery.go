// Package dupquery implements C7: the duplicate-group aggregation query
// engine with stable keyset pagination.
package dupquery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

type Engine struct {
	duplicates registry.DuplicateRegistry
}

func New(duplicates registry.DuplicateRegistry) *Engine {
	return &Engine{duplicates: duplicates}
}

var hexDigestRe = regexp.MustCompile(`^[0-9a-f]{64}$`)

// cursorPayload is the decoded-JSON shape before validation; fields are
// untyped so malformed inputs (strings where numbers belong, etc.) fail
// with a clear Validation error rather than a json.Unmarshal type error.
type cursorPayload struct {
	FileCount      json.Number `json:"file_count"`
	TotalSizeBytes json.Number `json:"total_size_bytes"`
	HashAlgorithm  string      `json:"hash_algorithm"`
	ContentHashHex string      `json:"content_hash_hex"`
}

// EncodeCursor implements §4.4's cursor encoding: URL-safe base64 of a
// canonical JSON object with sorted keys and no whitespace.
func EncodeCursor(c models.DuplicateGroupCursor) string {
	// Keys are written in sorted order by construction:
	// content_hash_hex, file_count, hash_algorithm, total_size_bytes.
	raw := fmt.Sprintf(
		`{"content_hash_hex":%q,"file_count":%d,"hash_algorithm":%q,"total_size_bytes":%d}`,
		c.ContentHashHex, c.FileCount, c.HashAlgorithm, c.TotalSizeBytes)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor implements §4.4's cursor decoding and validation.
func DecodeCursor(s string) (*models.DuplicateGroupCursor, error) {
	raw, err := decodeBase64Tolerant(s)
	if err != nil {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "base64 decode failed")
	}

	var p cursorPayload
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "json decode failed")
	}

	fileCount, err := p.FileCount.Int64()
	if err != nil {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "file_count not an integer")
	}
	totalSizeBytes, err := p.TotalSizeBytes.Int64()
	if err != nil {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "total_size_bytes not an integer")
	}
	if fileCount < 2 {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "file_count must be >= 2")
	}
	if totalSizeBytes < 1 {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "total_size_bytes must be >= 1")
	}
	if !models.SupportedHashAlgorithms[p.HashAlgorithm] {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "unsupported hash_algorithm")
	}
	if len(p.ContentHashHex) != models.HexDigestLength || !hexDigestRe.MatchString(p.ContentHashHex) {
		return nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "content_hash_hex must be 64 lower-case hex chars")
	}

	return &models.DuplicateGroupCursor{
		FileCount:      fileCount,
		TotalSizeBytes: totalSizeBytes,
		HashAlgorithm:  p.HashAlgorithm,
		ContentHashHex: p.ContentHashHex,
	}, nil
}

func decodeBase64Tolerant(s string) ([]byte, error) {
	if raw, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	padded := s
	if m := len(padded) % 4; m != 0 {
		padded += strings.Repeat("=", 4-m)
	}
	return base64.URLEncoding.DecodeString(padded)
}

// ListGroups implements §4.4's duplicate-group listing.
func (e *Engine) ListGroups(ctx context.Context, limit int, cursor *string) ([]models.DuplicateGroup, *string, error) {
	var decoded *models.DuplicateGroupCursor
	if cursor != nil {
		c, err := DecodeCursor(*cursor)
		if err != nil {
			return nil, nil, err
		}
		decoded = c
	}

	groups, err := e.duplicates.ListGroups(ctx, limit+1, decoded)
	if err != nil {
		return nil, nil, err
	}
	for _, g := range groups {
		if !models.SupportedHashAlgorithms[g.HashAlgorithm] {
			return nil, nil, errkit.WithFields(models.ErrQuery,
				"reason", "unknown hash_algorithm found during duplicate grouping",
				"hash_algorithm", g.HashAlgorithm, "group_key", g.GroupKey)
		}
	}

	var next *string
	if len(groups) > limit {
		groups = groups[:limit]
		last := groups[len(groups)-1]
		nc := EncodeCursor(models.DuplicateGroupCursor{
			FileCount:      last.FileCount,
			TotalSizeBytes: last.TotalSizeBytes,
			HashAlgorithm:  last.HashAlgorithm,
			ContentHashHex: last.ContentHashHex,
		})
		next = &nc
	}
	return groups, next, nil
}

// ParseGroupKey splits "<algo>:<hex>" and validates both halves, per
// §4.4 list_group_files.
func ParseGroupKey(groupKey string) (algo, hashHex string, err error) {
	idx := strings.IndexByte(groupKey, ':')
	if idx < 0 {
		return "", "", errkit.WithFields(models.ErrValidation, "reason", "malformed group_key")
	}
	algo, hashHex = groupKey[:idx], groupKey[idx+1:]
	if !models.SupportedHashAlgorithms[algo] {
		return "", "", errkit.WithFields(models.ErrValidation, "reason", "unsupported hash_algorithm", "hash_algorithm", algo)
	}
	if len(hashHex) != models.HexDigestLength || !hexDigestRe.MatchString(hashHex) {
		return "", "", errkit.WithFields(models.ErrValidation, "reason", "malformed content hash hex")
	}
	return algo, hashHex, nil
}

// ListGroupFiles implements §4.4 list_group_files.
func (e *Engine) ListGroupFiles(ctx context.Context, groupKey string, limit int, cursor *int64) ([]models.DuplicateGroupFile, *int64, error) {
	algo, hashHex, err := ParseGroupKey(groupKey)
	if err != nil {
		return nil, nil, err
	}

	var after int64
	if cursor != nil {
		if *cursor < 1 {
			return nil, nil, errkit.WithFields(models.ErrInvalidCursor, "reason", "cursor must be a positive integer file id")
		}
		after = *cursor
	}

	files, err := e.duplicates.ListGroupFiles(ctx, algo, hashHex, after, limit+1)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var next *int64
	if len(files) > limit {
		files = files[:limit]
		id := files[len(files)-1].FileID
		next = &id
	}
	return files, next, nil
}
