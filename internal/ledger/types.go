package ledger

import "time"

// CeremonyLog is one recorded attempt. Logs are immutable once created and
// are never deleted.
type CeremonyLog struct {
	ID          string    `json:"id"`
	Date        Day       `json:"date"`
	CompletedAt time.Time `json:"completedAt"`
	Duration    int       `json:"duration"` // seconds, >= 0
	Completed   bool      `json:"completed"`
}

// Stats is a read-only view of the aggregate counters.
type Stats struct {
	TotalCeremonies     int `json:"totalCeremonies"`
	CompletedCeremonies int `json:"completedCeremonies"`
	CurrentStreak       int `json:"currentStreak"`
	LongestStreak       int `json:"longestStreak"`
	LastCeremonyDate    Day `json:"lastCeremonyDate,omitempty"`
}

// Change describes a single ledger mutation. Stats reflect the state right
// after Log was appended.
type Change struct {
	Log   CeremonyLog
	Stats Stats
}

// Record is the persisted form of the aggregate.
//
// Pointer fields distinguish "absent" from zero so Restore can derive
// defaults for records written by older versions or damaged on disk.
type Record struct {
	Logs                []CeremonyLog `json:"logs"`
	CurrentStreak       *int          `json:"currentStreak,omitempty"`
	LongestStreak       *int          `json:"longestStreak,omitempty"`
	LastCeremonyDate    *Day          `json:"lastCeremonyDate,omitempty"`
	TotalCeremonies     *int          `json:"totalCeremonies,omitempty"`
	CompletedCeremonies *int          `json:"completedCeremonies,omitempty"`
}
