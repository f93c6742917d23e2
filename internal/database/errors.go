package database

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinel errors returned by repositories. Callers should check with
// errors.Is().
var (
	// ErrScanNotFound is returned when a scan does not exist.
	ErrScanNotFound = errors.New("scan not found")

	// ErrLinkNotFound is returned when a scan link does not exist.
	ErrLinkNotFound = errors.New("scan link not found")
)

// pq error code for unique constraint violations.
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation. The loser of a concurrent insert race for the same (scan, url)
// detects the conflict this way and treats the link as already registered.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
