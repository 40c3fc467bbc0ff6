package sqlstore

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/internal/errkit"
)

// columnExists reports whether table has column, checked the driver-native
// way so every migration's ADD COLUMN / table-rebuild step can guard
// itself instead of assuming a clean, never-migrated store. Every
// migration must be safe to re-apply.
func columnExists(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, table, column string) (bool, error) {
	switch dialect {
	case dbstore.DialectPostgres:
		var n int
		err := tx.GetContext(ctx, &n, `SELECT count(*) FROM information_schema.columns WHERE table_name = $1 AND column_name = $2`, table, column)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check column existence", "table", table, "column", column)
		}
		return n > 0, nil
	default:
		rows, err := tx.QueryxContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check column existence", "table", table, "column", column)
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return false, errkit.Wrap(err, "failed to scan column name")
			}
			if strings.EqualFold(name, column) {
				return true, nil
			}
		}
		return false, rows.Err()
	}
}

// tableExists reports whether table is present in the current schema.
func tableExists(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, table string) (bool, error) {
	switch dialect {
	case dbstore.DialectPostgres:
		var n int
		err := tx.GetContext(ctx, &n, `SELECT count(*) FROM information_schema.tables WHERE table_name = $1`, table)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check table existence", "table", table)
		}
		return n > 0, nil
	default:
		var n int
		err := tx.GetContext(ctx, &n, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check table existence", "table", table)
		}
		return n > 0, nil
	}
}

// indexExists reports whether index is present.
func indexExists(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, index string) (bool, error) {
	switch dialect {
	case dbstore.DialectPostgres:
		var n int
		err := tx.GetContext(ctx, &n, `SELECT count(*) FROM pg_indexes WHERE indexname = $1`, index)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check index existence", "index", index)
		}
		return n > 0, nil
	default:
		var n int
		err := tx.GetContext(ctx, &n, `SELECT count(*) FROM sqlite_master WHERE type = 'index' AND name = ?`, index)
		if err != nil {
			return false, errkit.Wrap(err, "failed to check index existence", "index", index)
		}
		return n > 0, nil
	}
}

// addColumnIfMissing runs an ADD COLUMN DDL statement only when the column
// is absent, the guard every schema-evolution step uses instead of
// catching a duplicate-column error.
func addColumnIfMissing(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, table, column, ddl string) error {
	exists, err := columnExists(ctx, tx, dialect, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return errkit.Wrap(err, "failed to add column", "table", table, "column", column)
	}
	return nil
}

func createTableIfMissing(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, table, ddl string) error {
	exists, err := tableExists(ctx, tx, dialect, table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return errkit.Wrap(err, "failed to create table", "table", table)
	}
	return nil
}

func createIndexIfMissing(ctx context.Context, tx *sqlx.Tx, dialect dbstore.Dialect, index, ddl string) error {
	exists, err := indexExists(ctx, tx, dialect, index)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return errkit.Wrap(err, "failed to create index", "index", index)
	}
	return nil
}
