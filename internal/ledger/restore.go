package ledger

import "time"

// Record returns the persisted form of the aggregate. Every field is set.
// The streak fields are as of today, matching Stats.
func (l *Ledger) Record() Record {
	today := l.today()
	l.mu.RLock()
	defer l.mu.RUnlock()

	logs := make([]CeremonyLog, len(l.logs))
	copy(logs, l.logs)
	stats := l.statsLocked(today)
	current, longest := stats.CurrentStreak, stats.LongestStreak
	total, completed := l.totalCeremonies, l.completedCeremonies

	rec := Record{
		Logs:                logs,
		CurrentStreak:       &current,
		LongestStreak:       &longest,
		TotalCeremonies:     &total,
		CompletedCeremonies: &completed,
	}
	if !l.lastCeremonyDate.IsZero() {
		last := l.lastCeremonyDate
		rec.LastCeremonyDate = &last
	}
	return rec
}

// Restore replaces the aggregate with a persisted record, deriving defaults
// for anything missing or inconsistent:
//   - totalCeremonies defaults to len(logs)
//   - completedCeremonies defaults to the number of completed logs
//   - lastCeremonyDate defaults to the latest completed log's day
//   - completedCeremonies is clamped to totalCeremonies
//   - the current streak is recomputed for today, and longestStreak is
//     raised to it if needed
//
// Restore never fails. Logs with an unparseable date are kept as history but
// do not count towards the streak.
func (l *Ledger) Restore(rec Record) {
	l.cmdMu.Lock()
	defer l.cmdMu.Unlock()

	today := l.today()

	logs := make([]CeremonyLog, len(rec.Logs))
	copy(logs, rec.Logs)

	completedLogs := 0
	var latest Day
	for _, log := range logs {
		if !log.Completed {
			continue
		}
		completedLogs++
		if log.Date.Valid() && log.Date > latest {
			latest = log.Date
		}
	}

	total := len(logs)
	if rec.TotalCeremonies != nil && *rec.TotalCeremonies >= 0 {
		total = *rec.TotalCeremonies
	}
	completed := completedLogs
	if rec.CompletedCeremonies != nil && *rec.CompletedCeremonies >= 0 {
		completed = *rec.CompletedCeremonies
	}
	completed = min(completed, total)

	last := latest
	if rec.LastCeremonyDate != nil && rec.LastCeremonyDate.Valid() {
		last = *rec.LastCeremonyDate
	}

	longest := 0
	if rec.LongestStreak != nil && *rec.LongestStreak > 0 {
		longest = *rec.LongestStreak
	}
	current := ComputeStreak(validDayLogs(logs), last, today)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.logs = logs
	l.totalCeremonies = total
	l.completedCeremonies = completed
	l.lastCeremonyDate = last
	l.currentStreak = current
	l.longestStreak = max(longest, current)
	l.ceremonyActive = false
	l.ceremonyStartTime = time.Time{}
}

func validDayLogs(logs []CeremonyLog) []CeremonyLog {
	out := logs[:0:0]
	for _, log := range logs {
		if log.Date.Valid() {
			out = append(out, log)
		}
	}
	return out
}
