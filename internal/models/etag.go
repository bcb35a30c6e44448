package models

import (
	"strings"
	"time"
)

// ETag formats a record timestamp as a quoted entity tag. The entity tag of
// a stored sheet is its UpdatedAt.
func ETag(at time.Time) string {
	return `"` + at.UTC().Format(time.RFC3339Nano) + `"`
}

// ParseETag reverses ETag. Weak validators are accepted.
func ParseETag(tag string) (time.Time, error) {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return time.Parse(time.RFC3339Nano, strings.Trim(tag, `"`))
}
