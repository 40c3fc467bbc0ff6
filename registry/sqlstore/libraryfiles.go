package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
	"github.com/denisvmedia/dedupfs/models"
	"github.com/denisvmedia/dedupfs/registry"
)

// LibraryRegistry is the read-only sqlstore implementation over
// LibraryFile/LibraryRoot, owned by the scan/hash workers and never
// mutated here.
type LibraryRegistry struct {
	db      *sqlx.DB
	dialect dbstore.Dialect
}

var _ registry.LibraryRegistry = (*LibraryRegistry)(nil)

func NewLibraryRegistry(db *sqlx.DB, dialect dbstore.Dialect) *LibraryRegistry {
	return &LibraryRegistry{db: db, dialect: dialect}
}

func (r *LibraryRegistry) rebind(q string) string { return dbstore.Rebind(r.dialect, r.db, q) }

func (r *LibraryRegistry) GetFile(ctx context.Context, fileID int64) (*models.LibraryFile, error) {
	var f models.LibraryFile
	query := r.rebind(`SELECT id, library_id, relative_path, size_bytes, mtime_ns, is_missing, needs_hash,
		hash_algorithm, content_hash, hashed_at FROM library_files WHERE id = ?`)
	if err := r.db.GetContext(ctx, &f, query, fileID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, errkit.Wrap(err, "failed to get library file", "id", fileID)
	}
	return &f, nil
}

func (r *LibraryRegistry) GetRoot(ctx context.Context, libraryID string) (*models.LibraryRoot, error) {
	var root models.LibraryRoot
	query := r.rebind(`SELECT id, name, root_path FROM library_roots WHERE id = ?`)
	if err := r.db.GetContext(ctx, &root, query, libraryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, errkit.Wrap(err, "failed to get library root", "id", libraryID)
	}
	return &root, nil
}
