package db

import "strings"

// IsUniqueViolation reports whether err is a postgres unique violation.
// Passing a constraint narrows the check to that index, which callers use to
// tell a duplicate payment_ref from any other collision on the row.
func IsUniqueViolation(err error, constraint string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraint != "" {
		return strings.Contains(msg, constraint)
	}
	return strings.Contains(msg, "duplicate key value")
}
