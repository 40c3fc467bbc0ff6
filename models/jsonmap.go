package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/denisvmedia/dedupfs/internal/errkit"
)

// JSONMap is a free-form keyed-attribute map (job payload) stored as a
// JSON text column, preferring a variant tag plus
// a free-form payload over per-kind subclasses.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, errkit.Wrap(err, "failed to marshal json map")
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}

	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errkit.Wrap(errkit.NewEquivalent("unsupported scan type for JSONMap"), "scan json map")
	}

	if len(raw) == 0 {
		*m = nil
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return errkit.Wrap(err, "failed to unmarshal json map")
	}
	*m = out
	return nil
}
