package types

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Compile-time interface assertions.
// These ensure all JSONB types implement both sql.Scanner and driver.Valuer,
// catching any method signature drift at compile time rather than at runtime.
// Scan is on pointer receivers; Value is on value receivers.
var (
	_ sql.Scanner   = (*StatusMap)(nil)
	_ driver.Valuer = StatusMap(nil)
	_ sql.Scanner   = (*HistoryList)(nil)
	_ driver.Valuer = HistoryList(nil)
)

// scanJSONB is a generic helper that scans a JSONB database value into a Go pointer.
// It handles nil values, []byte, and string representations from different database drivers.
func scanJSONB(dest interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("jsonb: unsupported scan type %T", value)
	}
	return json.Unmarshal(data, dest)
}

// valueJSONB is a generic helper that converts a Go value to a JSONB-compatible driver.Value.
// Returns nil for nil interface values; otherwise marshals to JSON bytes.
func valueJSONB(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (m *StatusMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	return scanJSONB(m, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (m StatusMap) Value() (driver.Value, error) {
	if m == nil {
		return valueJSONB(StatusMap{})
	}
	return valueJSONB(m)
}

// Scan implements the sql.Scanner interface for reading JSONB from the database.
func (h *HistoryList) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}
	return scanJSONB(h, value)
}

// Value implements the driver.Valuer interface for writing JSONB to the database.
func (h HistoryList) Value() (driver.Value, error) {
	if h == nil {
		return valueJSONB(HistoryList{})
	}
	return valueJSONB(h)
}
