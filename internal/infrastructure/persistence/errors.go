package persistence

import (
	"errors"

	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the sync engine reacts to
const (
	sqlstateSerializationFailure = "40001"
	sqlstateDeadlockDetected     = "40P01"
	sqlstateUniqueViolation      = "23505"
)

// IsSerializationFailure reports whether err is a transaction conflict that
// is safe to retry: a serialization failure or a deadlock. Page imports
// retry the whole page transaction on these.
func IsSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	code := string(pqErr.Code)
	return code == sqlstateSerializationFailure || code == sqlstateDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == sqlstateUniqueViolation
}
