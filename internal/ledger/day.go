package ledger

import (
	"fmt"
	"time"
)

const dayLayout = "2006-01-02"

// Day is a device-local calendar day in YYYY-MM-DD form.
// The zero value means "no day". Days compare correctly as strings.
type Day string

// DayOf returns the calendar day of t in t's own location.
func DayOf(t time.Time) Day {
	return Day(t.Format(dayLayout))
}

// ParseDay validates s as a YYYY-MM-DD calendar day.
func ParseDay(s string) (Day, error) {
	if _, err := time.Parse(dayLayout, s); err != nil {
		return "", fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day(s), nil
}

// IsZero reports whether d is absent.
func (d Day) IsZero() bool {
	return d == ""
}

// Valid reports whether d is a well-formed calendar day.
func (d Day) Valid() bool {
	_, err := time.Parse(dayLayout, string(d))
	return err == nil
}

// AddDays returns the day n calendar days after d (n may be negative).
// Arithmetic happens at UTC midnight so DST transitions cannot skip a day.
func (d Day) AddDays(n int) Day {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return ""
	}
	return DayOf(t.AddDate(0, 0, n))
}

// Prev returns the day before d.
func (d Day) Prev() Day {
	return d.AddDays(-1)
}

// Weekday returns the day of the week d falls on.
func (d Day) Weekday() time.Weekday {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Sunday
	}
	return t.Weekday()
}

// Month returns the YYYY-MM prefix of d.
func (d Day) Month() string {
	if len(d) < 7 {
		return ""
	}
	return string(d[:7])
}

func (d Day) String() string {
	return string(d)
}
