// Package dbstore opens the single relational store every registry in
// registry/sqlstore is built on top of. It supports two drivers: the
// default embedded modernc.org/sqlite engine (database_url defaults to a
// file under state_root) and postgres via jackc/pgx/v5's stdlib adapter.
// This system has no tenancy, so the connection handling carries no
// multi-tenant pooling machinery.
package dbstore

import (
	"context"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/denisvmedia/dedupfs/internal/errkit"
)

// Dialect identifies which SQL surface a DSN targets. The registries use
// it to pick among dialect-specific statement fragments (placeholder
// style, hex encoding, query-plan syntax).
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DSNDialect inspects a database_url and reports which engine it targets.
func DSNDialect(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to dsn, returning the bound *sqlx.DB and its Dialect. For
// sqlite it additionally applies WAL journaling, synchronous=NORMAL,
// temp_store=memory, and foreign_keys=ON on every connection
// (modernc.org/sqlite does not apply these from the DSN alone on older
// driver versions, so they're set explicitly here via connection-
// bootstrap SQL run immediately after Open).
func Open(ctx context.Context, dsn string) (*sqlx.DB, Dialect, error) {
	dialect := DSNDialect(dsn)

	switch dialect {
	case DialectPostgres:
		db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
		if err != nil {
			return nil, dialect, errkit.Wrap(err, "failed to connect to postgres")
		}
		return db, dialect, nil
	default:
		// config.Config.DatabaseURL's "sqlite:"-prefixed default is a
		// dialect-selection scheme, not part of the driver DSN itself;
		// modernc.org/sqlite takes a bare file path (or ":memory:"/
		// "file:...?..." URI), not a "sqlite:"-prefixed one.
		db, err := sqlx.ConnectContext(ctx, "sqlite", strings.TrimPrefix(dsn, "sqlite:"))
		if err != nil {
			return nil, dialect, errkit.Wrap(err, "failed to open sqlite database")
		}
		db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers, WAL lets readers proceed
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA synchronous=NORMAL",
			"PRAGMA temp_store=MEMORY",
			"PRAGMA foreign_keys=ON",
			"PRAGMA busy_timeout=5000",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, dialect, errkit.Wrap(err, "failed to apply sqlite pragma", "pragma", pragma)
			}
		}
		return db, dialect, nil
	}
}

// Rebind converts a query written with "?" placeholders into the target
// dialect's native placeholder style. It's hand-rolled rather than
// delegated to sqlx.DB.Rebind because sqlx's driver-name-to-bind-type
// table doesn't reliably recognize "pgx"/"sqlite" (the stdlib driver
// names jackc/pgx/v5 and modernc.org/sqlite register themselves under)
// across sqlx releases, and a silent QUESTION fallback against postgres
// would build syntactically invalid SQL.
func Rebind(dialect Dialect, _ *sqlx.DB, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// PlaceholderList renders n "?"-or-"$N" placeholders, comma-joined, for
// dialect, for IN(...) clauses built at runtime. Nothing in this module
// calls it.
func PlaceholderList(dialect Dialect, startAt, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if dialect == DialectPostgres {
			parts[i] = "$" + strconv.Itoa(startAt+i)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}
