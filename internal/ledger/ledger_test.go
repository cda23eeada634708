package ledger_test

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ceremony/internal/ledger"
	"github.com/roach88/ceremony/internal/testutil"
)

// dayD is a Sunday.
var dayD = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

func newTestLedger(t *testing.T, opts ...ledger.Option) (*ledger.Ledger, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(dayD)
	base := []ledger.Option{
		ledger.WithClock(clock),
		ledger.WithIDGenerator(testutil.NewSequenceGenerator("log")),
	}
	return ledger.New(append(base, opts...)...), clock
}

func TestScenarioA_FirstCompletion(t *testing.T) {
	var changes []ledger.Change
	l, _ := newTestLedger(t, ledger.WithOnChange(func(c ledger.Change) {
		changes = append(changes, c)
	}))

	log := l.RecordCeremony(180, true)

	stats := l.Stats()
	assert.Equal(t, 1, stats.TotalCeremonies)
	assert.Equal(t, 1, stats.CompletedCeremonies)
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 1, stats.LongestStreak)
	assert.Equal(t, ledger.Day("2026-10-18"), stats.LastCeremonyDate)

	assert.Equal(t, "log-1", log.ID)
	assert.Equal(t, ledger.Day("2026-10-18"), log.Date)
	assert.Equal(t, dayD, log.CompletedAt)
	assert.Equal(t, 180, log.Duration)
	assert.True(t, log.Completed)

	require.Len(t, changes, 1, "one snapshot per recorded ceremony")
	assert.Equal(t, stats, changes[0].Stats)
	require.NoError(t, l.CheckInvariants())
}

func TestScenarioB_ConsecutiveDays(t *testing.T) {
	l, clock := newTestLedger(t)

	l.RecordCeremony(180, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(180, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(180, true)

	assert.Equal(t, 3, l.CurrentStreak())
	assert.Equal(t, 3, l.Stats().LongestStreak)
	require.NoError(t, l.CheckInvariants())
}

func TestScenarioC_GapBreaksStreak(t *testing.T) {
	l, clock := newTestLedger(t)

	l.RecordCeremony(180, true)
	clock.AdvanceDays(2)
	l.RecordCeremony(180, true)

	stats := l.Stats()
	assert.Equal(t, 1, stats.CurrentStreak)
	assert.Equal(t, 1, stats.LongestStreak)
	require.NoError(t, l.CheckInvariants())
}

func TestScenarioD_Abandonment(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(180, true)
	before := l.Stats()

	clock.Advance(time.Hour)
	log := l.RecordCeremony(45, false)

	after := l.Stats()
	assert.False(t, log.Completed)
	assert.Equal(t, before.TotalCeremonies+1, after.TotalCeremonies)
	assert.Equal(t, before.CompletedCeremonies, after.CompletedCeremonies)
	assert.Equal(t, before.CurrentStreak, after.CurrentStreak)
	assert.Equal(t, before.LongestStreak, after.LongestStreak)
	assert.Equal(t, before.LastCeremonyDate, after.LastCeremonyDate)
}

func TestScenarioE_Ranking(t *testing.T) {
	l, _ := newTestLedger(t)
	for i := 0; i < 12; i++ {
		l.RecordCeremony(60, true)
	}

	first := l.Ranking()
	assert.Equal(t, ledger.Rank{Rank: 380, Percentile: 75}, first)
	assert.Equal(t, first, l.Ranking(), "ranking is pure without mutation")
}

func TestBreakingContiguityResetsToOne(t *testing.T) {
	l, clock := newTestLedger(t)
	for i := 0; i < 5; i++ {
		l.RecordCeremony(60, true)
		clock.AdvanceDays(1)
	}
	assert.Equal(t, 5, l.CurrentStreak())

	clock.AdvanceDays(1) // skip a whole day
	assert.Equal(t, 0, l.CurrentStreak())

	l.RecordCeremony(60, true)
	assert.Equal(t, 1, l.CurrentStreak())
	assert.Equal(t, 5, l.Stats().LongestStreak)
}

func TestStreakSurvivesUntilTodayIsCompleted(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(60, true)
	clock.AdvanceDays(1)
	l.RecordCeremony(60, true)

	clock.AdvanceDays(1)
	assert.Equal(t, 2, l.CurrentStreak(), "yesterday anchors the streak")

	l.RecordCeremony(30, false)
	assert.Equal(t, 2, l.CurrentStreak(), "an abandoned attempt does not extend it")

	l.RecordCeremony(60, true)
	assert.Equal(t, 3, l.CurrentStreak())
}

func TestRecordCeremony_ClampsNegativeDuration(t *testing.T) {
	l, _ := newTestLedger(t)
	log := l.RecordCeremony(-5, true)
	assert.Equal(t, 0, log.Duration)
}

// Arbitrary sequences of commands and day changes never violate the
// aggregate invariants.
func TestInvariantsHoldForRandomSequences(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		l, clock := newTestLedger(t)

		for step := 0; step < 200; step++ {
			switch rng.IntN(6) {
			case 0:
				clock.AdvanceDays(1 + rng.IntN(3))
			case 1:
				l.RecordCeremony(rng.IntN(600), false)
			case 2:
				l.MarkActive(true)
				clock.Advance(time.Duration(rng.IntN(300)) * time.Second)
				l.StopAndLogIncomplete()
			default:
				l.RecordCeremony(rng.IntN(600), true)
			}

			require.NoError(t, l.CheckInvariants(), "seed=%d step=%d", seed, step)
			stats := l.Stats()
			require.GreaterOrEqual(t, stats.LongestStreak, stats.CurrentStreak)
			require.LessOrEqual(t, stats.CompletedCeremonies, stats.TotalCeremonies)
		}
	}
}

func TestMarkActiveAndStopAndLogIncomplete(t *testing.T) {
	var changes int
	l, clock := newTestLedger(t, ledger.WithOnChange(func(ledger.Change) { changes++ }))

	_, ok := l.StopAndLogIncomplete()
	assert.False(t, ok, "nothing to stop when idle")
	assert.Equal(t, 0, changes)

	l.MarkActive(true)
	active, started := l.Active()
	assert.True(t, active)
	assert.Equal(t, dayD, started)

	clock.Advance(30 * time.Second)
	l.MarkActive(true) // already active: start stamp unchanged
	_, started = l.Active()
	assert.Equal(t, dayD, started)

	clock.Advance(45*time.Second + 900*time.Millisecond)
	log, ok := l.StopAndLogIncomplete()
	require.True(t, ok)
	assert.Equal(t, 75, log.Duration)
	assert.False(t, log.Completed)
	assert.Equal(t, 1, changes)

	active, started = l.Active()
	assert.False(t, active)
	assert.True(t, started.IsZero())

	stats := l.Stats()
	assert.Equal(t, 1, stats.TotalCeremonies)
	assert.Equal(t, 0, stats.CompletedCeremonies)
}

func TestMarkActiveFalseClearsSession(t *testing.T) {
	l, _ := newTestLedger(t)
	l.MarkActive(true)
	l.MarkActive(false)

	_, ok := l.StopAndLogIncomplete()
	assert.False(t, ok)
}

func TestCountQueries(t *testing.T) {
	// Start on Thursday 2026-10-01.
	clock := testutil.NewFakeClock(time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC))
	l := ledger.New(ledger.WithClock(clock), ledger.WithIDGenerator(testutil.NewSequenceGenerator("log")))

	for i := 0; i < 18; i++ { // 2026-10-01 .. 2026-10-18
		l.RecordCeremony(60, true)
		clock.AdvanceDays(1)
	}
	clock.AdvanceDays(-1) // back to Sunday 2026-10-18
	l.RecordCeremony(10, false)
	l.RecordCeremony(20, false)
	l.RecordCeremony(60, true)

	assert.Equal(t, 19, l.MonthlyCount())
	assert.Equal(t, 2, l.ThisWeekCount(), "week starting Sunday contains only today")
	assert.Equal(t, 2, l.TodayCompletedCount())
	assert.Equal(t, 2, l.TodayIncompleteCount())

	monday := ledger.New(ledger.WithClock(clock), ledger.WithWeekStart(time.Monday))
	monday.Restore(l.Record())
	assert.Equal(t, 8, monday.ThisWeekCount(), "Mon 10-12 .. Sun 10-18 with two today")

	clock.AdvanceDays(14) // 2026-11-01
	assert.Equal(t, 0, l.MonthlyCount())
	assert.Equal(t, 0, l.TodayCompletedCount())
}

func TestRecentLogs(t *testing.T) {
	l, clock := newTestLedger(t)
	l.RecordCeremony(1, true)
	clock.Advance(time.Minute)
	l.RecordCeremony(2, false)
	clock.Advance(time.Minute)
	l.RecordCeremony(3, true)

	logs := l.RecentLogs(2)
	require.Len(t, logs, 2)
	assert.Equal(t, "log-3", logs[0].ID)
	assert.Equal(t, "log-2", logs[1].ID)

	assert.Len(t, l.RecentLogs(0), 3)
	assert.Len(t, l.RecentLogs(10), 3)

	// Returned slice is a copy.
	logs[0].Duration = 999
	assert.Equal(t, 3, l.RecentLogs(1)[0].Duration)
}
