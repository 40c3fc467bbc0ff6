package models

import "time"

// SchemaMigration is a schema-migration ledger row: one per applied
// migration.
type SchemaMigration struct {
	Version   int       `db:"version" json:"version"`
	Name      string    `db:"name" json:"name"`
	AppliedAt time.Time `db:"applied_at" json:"applied_at"`
}
