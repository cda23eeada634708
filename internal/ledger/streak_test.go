package ledger

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func completedOn(days ...Day) []CeremonyLog {
	logs := make([]CeremonyLog, 0, len(days))
	for _, d := range days {
		logs = append(logs, CeremonyLog{Date: d, Completed: true})
	}
	return logs
}

func TestComputeStreak(t *testing.T) {
	const today = Day("2026-10-18")

	tests := []struct {
		name string
		logs []CeremonyLog
		last Day
		want int
	}{
		{
			name: "no last ceremony date",
			logs: completedOn(today),
			last: "",
			want: 0,
		},
		{
			name: "last ceremony two days ago breaks streak",
			logs: completedOn("2026-10-16", "2026-10-15"),
			last: "2026-10-16",
			want: 0,
		},
		{
			name: "single completion today",
			logs: completedOn(today),
			last: today,
			want: 1,
		},
		{
			name: "anchored at yesterday before today's ceremony",
			logs: completedOn("2026-10-17", "2026-10-16", "2026-10-15"),
			last: "2026-10-17",
			want: 3,
		},
		{
			name: "today plus consecutive history",
			logs: completedOn(today, "2026-10-17", "2026-10-16"),
			last: today,
			want: 3,
		},
		{
			name: "gap stops the walk",
			logs: completedOn(today, "2026-10-17", "2026-10-15", "2026-10-14"),
			last: today,
			want: 2,
		},
		{
			name: "duplicate days count once",
			logs: completedOn(today, today, "2026-10-17", "2026-10-17"),
			last: today,
			want: 2,
		},
		{
			name: "incomplete logs are ignored",
			logs: append(completedOn(today), CeremonyLog{Date: "2026-10-17", Completed: false}),
			last: today,
			want: 1,
		},
		{
			name: "last date says today but no completed log exists",
			logs: []CeremonyLog{{Date: today, Completed: false}},
			last: today,
			want: 0,
		},
		{
			name: "last date in the future",
			logs: completedOn("2026-11-01", "2026-10-31", "2026-10-30"),
			last: "2026-11-01",
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeStreak(tt.logs, tt.last, today))
		})
	}
}

func TestComputeStreak_MonthBoundary(t *testing.T) {
	logs := completedOn("2026-11-01", "2026-10-31", "2026-10-30")
	assert.Equal(t, 3, ComputeStreak(logs, "2026-11-01", "2026-11-01"))
	assert.Equal(t, 3, ComputeStreak(logs, "2026-11-01", "2026-11-02"))
	assert.Equal(t, 0, ComputeStreak(logs, "2026-11-01", "2026-11-03"))
}

// Consecutive completed days ending today always produce a streak equal to
// the number of days.
func TestComputeStreak_ConsecutiveDaysProperty(t *testing.T) {
	today := Day("2026-10-18")

	for n := 1; n <= 60; n++ {
		t.Run(fmt.Sprintf("days=%d", n), func(t *testing.T) {
			days := make([]Day, n)
			for i := 0; i < n; i++ {
				days[i] = today.AddDays(-i)
			}
			assert.Equal(t, n, ComputeStreak(completedOn(days...), today, today))
			// Same history queried the next day is still alive via yesterday.
			assert.Equal(t, n, ComputeStreak(completedOn(days...), today, today.AddDays(1)))
		})
	}
}
