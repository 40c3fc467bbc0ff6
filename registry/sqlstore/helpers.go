package sqlstore

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/denisvmedia/dedupfs/internal/dbstore"
	"github.com/denisvmedia/dedupfs/registry"
)

// postgresUniqueViolationCode is the SQLSTATE for a unique_violation.
const postgresUniqueViolationCode = "23505"

// classifyWriteErr maps a driver-level error from an INSERT/UPDATE into
// the registry package's mechanical error kinds so service-layer code
// never imports a driver package directly.
func classifyWriteErr(err error, dialect dbstore.Dialect) error {
	if err == nil {
		return nil
	}

	if isUniqueViolation(err, dialect) {
		return registry.ErrUniqueViolation
	}

	return err
}

func isUniqueViolation(err error, dialect dbstore.Dialect) bool {
	if dialect == dbstore.DialectPostgres {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			return pgErr.Code == postgresUniqueViolationCode
		}
		return false
	}

	// modernc.org/sqlite's driver error message text is stable across
	// releases ("UNIQUE constraint failed: ..."); matching on it avoids
	// depending on the driver's internal error-code type directly.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed") || strings.Contains(msg, "constraint failed: unique")
}
