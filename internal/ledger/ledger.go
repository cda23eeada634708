package ledger

import (
	"sort"
	"sync"
	"time"
)

// Ledger owns the ceremony log list and the aggregates derived from it.
//
// Thread-safety model:
//   - Commands (RecordCeremony, MarkActive, StopAndLogIncomplete, Restore)
//     are serialized; the OnChange hook runs inside that serialization, so
//     hooks observe mutations in the order they were applied.
//   - Queries take a read lock and may run concurrently with each other and
//     with a hook that is reading the ledger.
type Ledger struct {
	cmdMu sync.Mutex // serializes commands and their hooks
	mu    sync.RWMutex

	clock     Clock
	ids       IDGenerator
	weekStart time.Weekday
	onChange  func(Change)

	logs                []CeremonyLog
	currentStreak       int
	longestStreak       int
	lastCeremonyDate    Day
	totalCeremonies     int
	completedCeremonies int

	// Transient session state; never persisted.
	ceremonyActive    bool
	ceremonyStartTime time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the wall clock used to stamp logs and derive "today".
func WithClock(c Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithIDGenerator sets the generator for log IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) {
		l.ids = g
	}
}

// WithWeekStart sets the first day of the week used by ThisWeekCount.
// Default: time.Sunday.
func WithWeekStart(d time.Weekday) Option {
	return func(l *Ledger) {
		l.weekStart = d
	}
}

// WithOnChange registers a hook invoked after every appended log.
func WithOnChange(fn func(Change)) Option {
	return func(l *Ledger) {
		l.onChange = fn
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		clock:     SystemClock{},
		ids:       UUIDv7Generator{},
		weekStart: time.Sunday,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RecordCeremony appends a log for an attempt that ended now.
//
// Totals always increase by one. A completed attempt also sets
// lastCeremonyDate to today, recomputes the streak and raises the longest
// streak if needed. Negative durations are clamped to zero.
func (l *Ledger) RecordCeremony(durationSeconds int, completed bool) CeremonyLog {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	change := l.record(durationSeconds, completed)
	l.notify(change)
	return change.Log
}

func (l *Ledger) record(durationSeconds int, completed bool) Change {
	now := l.clock.Now()
	today := DayOf(now)
	if durationSeconds < 0 {
		durationSeconds = 0
	}

	log := CeremonyLog{
		ID:          l.ids.Generate(),
		Date:        today,
		CompletedAt: now,
		Duration:    durationSeconds,
		Completed:   completed,
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = append(l.logs, log)
	l.totalCeremonies++
	if completed {
		l.completedCeremonies++
		l.lastCeremonyDate = today
		l.currentStreak = ComputeStreak(l.logs, l.lastCeremonyDate, today)
		l.longestStreak = max(l.longestStreak, l.currentStreak)
	}

	return Change{Log: log, Stats: l.statsLocked(today)}
}

func (l *Ledger) notify(c Change) {
	if l.onChange != nil {
		l.onChange(c)
	}
}

// MarkActive flags whether a ceremony is in progress. The transition to
// active stamps the start time used to measure an abandoned attempt.
func (l *Ledger) MarkActive(active bool) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if active && !l.ceremonyActive {
		l.ceremonyStartTime = l.clock.Now()
	}
	if !active {
		l.ceremonyStartTime = time.Time{}
	}
	l.ceremonyActive = active
}

// Active reports whether a ceremony is in progress and when it started.
func (l *Ledger) Active() (bool, time.Time) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.ceremonyActive, l.ceremonyStartTime
}

// StopAndLogIncomplete records an abandoned attempt for the active ceremony,
// measuring its duration from the start stamp, and clears the session.
// Returns false if no ceremony was active.
func (l *Ledger) StopAndLogIncomplete() (CeremonyLog, bool) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	l.mu.RLock()
	active, started := l.ceremonyActive, l.ceremonyStartTime
	l.mu.RUnlock()
	if !active {
		return CeremonyLog{}, false
	}

	elapsed := int(l.clock.Now().Sub(started) / time.Second)
	change := l.record(elapsed, false)

	l.mu.Lock()
	l.ceremonyActive = false
	l.ceremonyStartTime = time.Time{}
	l.mu.Unlock()

	l.notify(change)
	return change.Log, true
}

// Stats returns the aggregate counters as of now. The current streak is
// recomputed for today, so a streak broken by a missed day reads as 0 even
// before the next mutation.
func (l *Ledger) Stats() Stats {
	today := l.today()
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.statsLocked(today)
}

func (l *Ledger) statsLocked(today Day) Stats {
	current := ComputeStreak(l.logs, l.lastCeremonyDate, today)
	return Stats{
		TotalCeremonies:     l.totalCeremonies,
		CompletedCeremonies: l.completedCeremonies,
		CurrentStreak:       current,
		LongestStreak:       max(l.longestStreak, current),
		LastCeremonyDate:    l.lastCeremonyDate,
	}
}

// CurrentStreak returns the streak as of today.
func (l *Ledger) CurrentStreak() int {
	return l.Stats().CurrentStreak
}

// Ranking returns the approximate rank for the completed count. It is a pure
// function of completedCeremonies.
func (l *Ledger) Ranking() Rank {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return RankFor(l.completedCeremonies)
}

// MonthlyCount returns the number of completed ceremonies in the current
// calendar month.
func (l *Ledger) MonthlyCount() int {
	month := l.today().Month()
	return l.countCompleted(func(d Day) bool { return d.Month() == month })
}

// ThisWeekCount returns the number of completed ceremonies from the start of
// the current week through today.
func (l *Ledger) ThisWeekCount() int {
	today := l.today()
	offset := (int(today.Weekday()) - int(l.weekStart) + 7) % 7
	start := today.AddDays(-offset)
	return l.countCompleted(func(d Day) bool { return d >= start && d <= today })
}

// TodayCompletedCount returns the number of completed ceremonies today.
func (l *Ledger) TodayCompletedCount() int {
	today := l.today()
	return l.countCompleted(func(d Day) bool { return d == today })
}

// TodayIncompleteCount returns the number of abandoned attempts today.
func (l *Ledger) TodayIncompleteCount() int {
	today := l.today()
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, log := range l.logs {
		if !log.Completed && log.Date == today {
			n++
		}
	}
	return n
}

func (l *Ledger) countCompleted(match func(Day) bool) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, log := range l.logs {
		if log.Completed && match(log.Date) {
			n++
		}
	}
	return n
}

// RecentLogs returns up to limit logs, most recently completed first.
// A limit <= 0 returns every log.
func (l *Ledger) RecentLogs(limit int) []CeremonyLog {
	l.mu.RLock()
	logs := make([]CeremonyLog, len(l.logs))
	copy(logs, l.logs)
	l.mu.RUnlock()

	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].CompletedAt.After(logs[j].CompletedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs
}

func (l *Ledger) today() Day {
	return DayOf(l.clock.Now())
}
