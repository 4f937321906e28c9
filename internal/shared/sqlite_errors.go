// Package shared holds helpers the session stores have in common.
package shared

import (
	"fmt"
	"strings"
)

// conflictMarkers are the fragments modernc.org/sqlite puts in the message of
// an error raised because another connection holds the database or a table.
var conflictMarkers = []string{
	"SQLITE_BUSY",
	"SQLITE_LOCKED",
	"database is locked",
	"database table is locked",
}

// IsSQLiteConflictError reports whether a session write failed only because
// the database was busy, so the same write may succeed when retried. The
// driver exposes result codes only through its message, wrapped errors included.
func IsSQLiteConflictError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range conflictMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// ConflictError wraps the last conflict once retries are exhausted.
type ConflictError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }
