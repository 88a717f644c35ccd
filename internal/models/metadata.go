package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Metadata is a free-form JSON document stored alongside domain records.
type Metadata map[string]interface{}

// Common metadata keys used by lifecycle transitions.
const (
	MetaPostponementReason = "postponementReason"
	MetaRescheduledTo      = "rescheduledTo"
	MetaCancellationReason = "cancellationReason"
	MetaCourseDateID       = "courseDateId"
	MetaReservedSeats      = "reservedSeats"
	MetaReservedAt         = "reservedAt"
	MetaReleasedSeats      = "releasedSeats"
)

// Value implements driver.Valuer so Metadata persists as JSONB.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src interface{}) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata source type %T", src)
	}
	if len(raw) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(raw, m)
}

// String returns the string stored under key, or "" when absent.
func (m Metadata) String(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Int returns the integer stored under key, or 0 when absent.
// JSON round-trips numbers as float64, so both forms are accepted.
func (m Metadata) Int(key string) int {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
