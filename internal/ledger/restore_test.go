package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/testutil"
)

func intPtr(v int) *int { return &v }

func TestRecord_Golden(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(180, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(45, false)
	l.RecordCeremony(200, true)

	data, err := json.MarshalIndent(l.Record(), "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "ledger_record", append(data, '\n'))
}

func TestRecord_StreakAsOfToday(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(180, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(180, true)

	// A full day missed, then an abandoned attempt.
	clock.AdvanceDays(2)
	l.RecordCeremony(30, false)

	rec := l.Record()
	require.NotNil(t, rec.CurrentStreak)
	require.NotNil(t, rec.LongestStreak)
	assert.Equal(t, 0, *rec.CurrentStreak)
	assert.Equal(t, 2, *rec.LongestStreak)
	assert.Equal(t, l.Stats().CurrentStreak, *rec.CurrentStreak)
}

func TestRestore_RoundTrip(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(180, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(60, true)
	l.RecordCeremony(10, false)

	data, err := json.Marshal(l.Record())
	require.NoError(t, err)

	var rec ledger.Record
	require.NoError(t, json.Unmarshal(data, &rec))

	restored := ledger.New(ledger.WithClock(clock))
	restored.Restore(rec)

	if diff := cmp.Diff(l.Stats(), restored.Stats()); diff != "" {
		t.Errorf("stats mismatch after restore (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(l.RecentLogs(0), restored.RecentLogs(0)); diff != "" {
		t.Errorf("logs mismatch after restore (-want +got):\n%s", diff)
	}
	require.NoError(t, restored.CheckInvariants())
}

func TestRestore_DefaultsMissingFields(t *testing.T) {
	clock := testutil.NewFakeClock(dayD)
	l := ledger.New(ledger.WithClock(clock))

	l.Restore(ledger.Record{
		Logs: []ledger.CeremonyLog{
			{ID: "a", Date: "2026-10-16", CompletedAt: dayD.AddDate(0, 0, -2), Completed: true},
			{ID: "b", Date: "2026-10-17", CompletedAt: dayD.AddDate(0, 0, -1), Completed: true},
			{ID: "c", Date: "2026-10-17", CompletedAt: dayD.AddDate(0, 0, -1), Completed: false},
		},
	})

	stats := l.Stats()
	assert.Equal(t, 3, stats.TotalCeremonies, "total defaults to len(logs)")
	assert.Equal(t, 2, stats.CompletedCeremonies, "completed defaults to completed logs")
	assert.Equal(t, ledger.Day("2026-10-17"), stats.LastCeremonyDate)
	assert.Equal(t, 2, stats.CurrentStreak)
	assert.Equal(t, 2, stats.LongestStreak)
	require.NoError(t, l.CheckInvariants())
}

func TestRestore_KeepsStoredCounters(t *testing.T) {
	l := ledger.New(ledger.WithClock(testutil.NewFakeClock(dayD)))
	last := ledger.Day("2026-10-01")

	l.Restore(ledger.Record{
		TotalCeremonies:     intPtr(40),
		CompletedCeremonies: intPtr(35),
		LongestStreak:       intPtr(12),
		CurrentStreak:       intPtr(9),
		LastCeremonyDate:    &last,
	})

	stats := l.Stats()
	assert.Equal(t, 40, stats.TotalCeremonies)
	assert.Equal(t, 35, stats.CompletedCeremonies)
	assert.Equal(t, 12, stats.LongestStreak)
	assert.Equal(t, 0, stats.CurrentStreak, "stale stored streak is recomputed, not trusted")
	assert.Equal(t, ledger.Rank{Rank: 130, Percentile: 90}, l.Ranking())
}

func TestRestore_RepairsInconsistentCounters(t *testing.T) {
	l := ledger.New(ledger.WithClock(testutil.NewFakeClock(dayD)))
	bad := ledger.Day("not-a-day")

	l.Restore(ledger.Record{
		Logs: []ledger.CeremonyLog{
			{ID: "a", Date: "2026-10-18", CompletedAt: dayD, Completed: true},
		},
		TotalCeremonies:     intPtr(1),
		CompletedCeremonies: intPtr(5),
		LongestStreak:       intPtr(-3),
		LastCeremonyDate:    &bad,
	})

	stats := l.Stats()
	assert.Equal(t, 1, stats.CompletedCeremonies, "clamped to total")
	assert.Equal(t, ledger.Day("2026-10-18"), stats.LastCeremonyDate, "invalid date replaced by latest log")
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 1, stats.LongestStreak)
	require.NoError(t, l.CheckInvariants())
}

func TestRestore_ClearsActiveSession(t *testing.T) {
	l, _ := newTestLedger(t)
	l.MarkActive(true)

	l.Restore(ledger.Record{})

	active, _ := l.Active()
	assert.False(t, active)
}

func TestRestore_DecodesSparseRecord(t *testing.T) {
	// Older records may lack every counter; decoding must still succeed.
	var rec ledger.Record
	require.NoError(t, json.Unmarshal([]byte(`{"logs":[{"id":"x","date":"2026-10-18","completedAt":"2026-10-18T09:00:00Z","duration":60,"completed":true}]}`), &rec))

	l := ledger.New(ledger.WithClock(testutil.NewFakeClock(dayD.Add(time.Hour))))
	l.Restore(rec)

	assert.Equal(t, 1, l.Stats().CurrentStreak)
}
