package repo

import (
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrTokenNotFound is returned when no token with the serial number exists.
	ErrTokenNotFound = errors.New("token not found")
	// ErrTokenExists is returned when provisioning a serial number twice.
	ErrTokenExists = errors.New("token already exists")
)

// AlreadyClaimedError is returned when a claim loses to an earlier one.
// ClaimedBy and ClaimedAt identify the winning claim when known.
type AlreadyClaimedError struct {
	ClaimedBy string
	ClaimedAt time.Time
}

func (e *AlreadyClaimedError) Error() string {
	if e.ClaimedBy == "" {
		return "token already claimed"
	}
	return fmt.Sprintf("token already claimed by %s at %s", e.ClaimedBy, e.ClaimedAt.Format(time.RFC3339))
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
