package db

import (
	"errors"

	"github.com/lib/pq"
)

// uniqueViolationCode is the PostgreSQL SQLSTATE for a unique constraint
// violation (23505).
const uniqueViolationCode = "23505"

// IsUniqueViolation reports whether err is a unique-constraint conflict,
// e.g. a duplicate (accountId, tag) or (sessionId, localId) insert race.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}
