package membership

import (
	"time"

	"github.com/google/uuid"
)

// Record associates a user with exactly one group. A zero ExpiresAt means the
// assignment is permanent.
type Record struct {
	UserID     uuid.UUID
	GroupID    int64
	GroupName  string
	ExpiresAt  time.Time
	AssignedAt time.Time
}

// Temporary reports whether the assignment carries an expiry.
func (r Record) Temporary() bool {
	return !r.ExpiresAt.IsZero()
}

// Expired reports whether the assignment has lapsed at the given instant.
func (r Record) Expired(now time.Time) bool {
	return r.Temporary() && !r.ExpiresAt.After(now)
}

// Remaining returns the time left before expiry, or zero for permanent or
// already expired assignments.
func (r Record) Remaining(now time.Time) time.Duration {
	if !r.Temporary() {
		return 0
	}
	d := r.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
