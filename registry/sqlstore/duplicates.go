package sqlstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// DuplicateRegistry is the C7 read-only sqlstore implementation. Both
// ListGroups and ListGroupFiles are written to be served by the
// composite index created in migration 11
// (idx_library_files_dedup on (is_missing, needs_hash, hash_algorithm,
// content_hash, id)); ExplainUsesDedupIndex lets tests assert that.
type DuplicateRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.DuplicateRegistry = (*DuplicateRegistry)(nil)

func NewDuplicateRegistry(db *sqlx.DB, dialect dbstore.Dialect) *DuplicateRegistry {
	return &DuplicateRegistry{db: db, dialect: dialect}
}

func (r *DuplicateRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

func (r *DuplicateRegistry) hexExpr(column string) string {
	if r.dialect == dbstore.DialectPostgres {
		return fmt.Sprintf("encode(%s, 'hex')", column)
	}
	return fmt.Sprintf("hex(%s)", column)
}

const dedupGroupsBase = `
	SELECT hash_algorithm, %s AS content_hash_hex,
		count(*) AS file_count,
		sum(size_bytes) AS total_size_bytes,
		sum(size_bytes) - min(size_bytes) AS duplicate_waste_bytes,
		min(id) AS sample_file_id
	FROM library_files
	WHERE is_missing = FALSE AND needs_hash = FALSE
		AND hash_algorithm IS NOT NULL AND content_hash IS NOT NULL
	GROUP BY hash_algorithm, content_hash
	HAVING count(*) > 1`

// ListGroups implements §4.4's stable keyset pagination over the
// duplicate-group aggregation: fetch up to limit rows past cursor in the
// total order (file_count DESC, total_size_bytes DESC, hash_algorithm
// ASC, content_hash_hex ASC) using the strictly-less paging predicate.
func (r *DuplicateRegistry) ListGroups(ctx context.Context, limit int, cursor *models.DuplicateGroupCursor) ([]models.DuplicateGroup, error) {
	base := fmt.Sprintf(dedupGroupsBase, r.hexExpr("content_hash"))

	query := fmt.Sprintf(`SELECT * FROM (%s) g`, base)
	var args []any
	if cursor != nil {
		query += ` WHERE
			(g.file_count < ?)
			OR (g.file_count = ? AND g.total_size_bytes < ?)
			OR (g.file_count = ? AND g.total_size_bytes = ? AND g.hash_algorithm > ?)
			OR (g.file_count = ? AND g.total_size_bytes = ? AND g.hash_algorithm = ? AND g.content_hash_hex > ?)`
		args = append(args,
			cursor.FileCount,
			cursor.FileCount, cursor.TotalSizeBytes,
			cursor.FileCount, cursor.TotalSizeBytes, cursor.HashAlgorithm,
			cursor.FileCount, cursor.TotalSizeBytes, cursor.HashAlgorithm, cursor.ContentHashHex)
	}
	query += ` ORDER BY g.file_count DESC, g.total_size_bytes DESC, g.hash_algorithm ASC, g.content_hash_hex ASC LIMIT ?`
	args = append(args, limit)

	var rows []models.DuplicateGroup
	if err := r.db.SelectContext(ctx, &rows, r.rebind(query), args...); err != nil {
		return nil, errkit.Wrap(err, "failed to list duplicate groups")
	}
	for i := range rows {
		rows[i].GroupKey = rows[i].HashAlgorithm + ":" + rows[i].ContentHashHex
	}
	return rows, nil
}

// ListGroupFiles implements §4.4 list_group_files: files sharing
// (algo, hashHex), ordered by id ASC, paged by "id > afterID".
func (r *DuplicateRegistry) ListGroupFiles(ctx context.Context, algo, hashHex string, afterID int64, limit int) ([]models.DuplicateGroupFile, error) {
	raw, err := hex.DecodeString(hashHex)
	if err != nil {
		return nil, errkit.Wrap(err, "failed to decode content hash hex")
	}

	query := r.rebind(`
		SELECT lf.id AS file_id, lf.library_id AS library_id, lf.relative_path AS relative_path,
			lf.size_bytes AS size_bytes, lf.mtime_ns AS mtime_ns
		FROM library_files lf
		JOIN library_roots lr ON lr.id = lf.library_id
		WHERE lf.hash_algorithm = ? AND lf.content_hash = ? AND lf.id > ?
			AND lf.is_missing = FALSE AND lf.needs_hash = FALSE
		ORDER BY lf.id ASC LIMIT ?`)

	var rows []models.DuplicateGroupFile
	if err := r.db.SelectContext(ctx, &rows, query, algo, raw, afterID, limit); err != nil {
		return nil, errkit.Wrap(err, "failed to list duplicate group files")
	}
	return rows, nil
}

// ExplainUsesDedupIndex runs the dialect's query-plan facility over the
// group listing query and reports whether it names
// idx_library_files_dedup, the assertion testable property §4.4's final
// paragraph requires ("must be verified... via the store's query-plan
// facility").
func (r *DuplicateRegistry) ExplainUsesDedupIndex(ctx context.Context) (bool, error) {
	base := fmt.Sprintf(dedupGroupsBase, r.hexExpr("content_hash"))
	explain := "EXPLAIN QUERY PLAN " + base
	if r.dialect == dbstore.DialectPostgres {
		explain = "EXPLAIN " + base
	}

	rows, err := r.db.QueryxContext(ctx, explain)
	if err != nil {
		return false, errkit.Wrap(err, "failed to explain duplicate groups query")
	}
	defer rows.Close()

	for rows.Next() {
		cols, err := rows.SliceScan()
		if err != nil {
			return false, errkit.Wrap(err, "failed to scan explain row")
		}
		for _, c := range cols {
			switch v := c.(type) {
			case string:
				if strings.Contains(v, "idx_library_files_dedup") {
					return true, nil
				}
			case []byte:
				if strings.Contains(string(v), "idx_library_files_dedup") {
					return true, nil
				}
			}
		}
	}
	return false, rows.Err()
}
