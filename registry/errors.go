package registry

import "errors"

// Store-level error kinds the sqlstore implementation raises and the
// service layer (coordinator, thumbqueue, walsched) translates into the
// taxonomic models errors (§7). These are mechanical (a predicated UPDATE
// matched no row, a unique index rejected an insert) rather than
// business-meaningful on their own.
var (
	// ErrNoRowsUpdated is returned by a predicated UPDATE ... WHERE ...
	// that matched zero rows — the caller's expected prior state didn't
	// hold (concurrent transition, or the row doesn't exist).
	ErrNoRowsUpdated = errors.New("no rows updated")

	// ErrUniqueViolation is returned when an INSERT or UPDATE collided
	// with a unique or partial-unique index (the scan/hash admission
	// mutex, a duplicate thumb_key, a duplicate cleanup group_key).
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrNotFound is returned by a single-row lookup that found nothing.
	ErrNotFound = errors.New("row not found")
)
