package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Clock reports the current wall time in the device's local zone.
// Calendar days are derived from Now() in whatever location it carries.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location.
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// IDGenerator produces unique identifiers for logs and sync snapshots.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers.
//
// UUIDv7 embeds the creation timestamp in its most significant bits followed
// by random bits, which is exactly "creation time plus random suffix".
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
