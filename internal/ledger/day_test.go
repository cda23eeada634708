package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOf_UsesTimeLocation(t *testing.T) {
	utc := time.Date(2026, 10, 18, 23, 30, 0, 0, time.UTC)
	tokyo := utc.In(time.FixedZone("JST", 9*3600))

	assert.Equal(t, Day("2026-10-18"), DayOf(utc))
	assert.Equal(t, Day("2026-10-19"), DayOf(tokyo))
}

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, Day("2026-02-28"), d)

	_, err = ParseDay("2026-02-30")
	assert.Error(t, err)
	_, err = ParseDay("yesterday")
	assert.Error(t, err)
}

func TestDay_AddDays(t *testing.T) {
	tests := []struct {
		day  Day
		n    int
		want Day
	}{
		{"2026-10-18", 1, "2026-10-19"},
		{"2026-10-31", 1, "2026-11-01"},
		{"2026-12-31", 1, "2027-01-01"},
		{"2028-03-01", -1, "2028-02-29"},
		{"2026-03-01", -1, "2026-02-28"},
		{"2026-10-18", -7, "2026-10-11"},
		{"garbage", 1, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.day), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.day.AddDays(tt.n))
		})
	}
}

func TestDay_Accessors(t *testing.T) {
	d := Day("2026-10-18")
	assert.Equal(t, Day("2026-10-17"), d.Prev())
	assert.Equal(t, time.Sunday, d.Weekday())
	assert.Equal(t, "2026-10", d.Month())
	assert.True(t, d.Valid())
	assert.False(t, d.IsZero())

	var zero Day
	assert.True(t, zero.IsZero())
	assert.False(t, zero.Valid())
	assert.Equal(t, "", zero.Month())
}
