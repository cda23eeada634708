package ledger

import "sort"

// ComputeStreak returns the number of consecutive calendar days, anchored at
// today or yesterday, that have at least one completed log.
//
//  1. No lastCeremonyDate: 0.
//  2. lastCeremonyDate is neither today nor yesterday: 0 (a full day was
//     missed).
//  3. Otherwise walk the distinct completed days, most recent first, starting
//     from the most recent of {today, yesterday} present in the set, and
//     count days until the first gap.
//
// Anchoring at yesterday keeps a streak alive on a day the user has not yet
// completed.
func ComputeStreak(logs []CeremonyLog, lastCeremonyDate, today Day) int {
	if lastCeremonyDate.IsZero() {
		return 0
	}
	yesterday := today.Prev()
	if lastCeremonyDate != today && lastCeremonyDate != yesterday {
		return 0
	}

	days := completedDaysDescending(logs)

	// Skip anything after today; day 0 is today if present, else yesterday.
	i := 0
	for i < len(days) && days[i] > today {
		i++
	}
	var anchor Day
	switch {
	case i < len(days) && days[i] == today:
		anchor = today
	case i < len(days) && days[i] == yesterday:
		anchor = yesterday
	default:
		return 0
	}

	streak := 0
	expected := anchor
	for ; i < len(days); i++ {
		if days[i] != expected {
			break
		}
		streak++
		expected = expected.Prev()
	}
	return streak
}

// completedDaysDescending returns the distinct days of completed logs,
// most recent first.
func completedDaysDescending(logs []CeremonyLog) []Day {
	seen := make(map[Day]struct{}, len(logs))
	days := make([]Day, 0, len(logs))
	for _, l := range logs {
		if !l.Completed {
			continue
		}
		if _, ok := seen[l.Date]; ok {
			continue
		}
		seen[l.Date] = struct{}{}
		days = append(days, l.Date)
	}
	sort.Slice(days, func(a, b int) bool { return days[a] > days[b] })
	return days
}
