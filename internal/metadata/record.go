// Package metadata persists key records (service, key name, key-id, status,
// timestamps) in a relational table and exports them as JSON or XML.
//
// Records never hold raw secrets. The key field is the key-id under which a
// backend stores the secret.
package metadata

import (
	"fmt"
	"time"
)

// Status values used by apikeyper. Callers may store others.
const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

// TimeLayout is the persisted timestamp format. It is fixed width in UTC so
// that ORDER BY on the text column is chronological.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

// legacyLayouts are accepted when reading rows written by older versions.
var legacyLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Record is one row of the apikeys table.
type Record struct {
	Service   string
	KeyName   string
	Added     time.Time
	Key       string
	Status    string
	RevokedOn *time.Time
}

// Active reports whether the record has the active status.
func (r Record) Active() bool {
	return r.Status == StatusActive
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// Normalize returns t as it reads back after a round trip through the
// store: UTC, truncated to TimeLayout's microsecond precision.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ParseTime parses a persisted timestamp. Zone-less values are read in
// local time, matching how older versions wrote them.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(TimeLayout, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func formatOptionalTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}
