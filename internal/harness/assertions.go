package harness

import "fmt"

// checkExpect compares the state after a step with exp and returns one
// message per mismatch.
func checkExpect(exp *Expect, event TraceEvent) []string {
	var errs []string
	st := event.State

	checkInt := func(name string, want *int, got int) {
		if want != nil && *want != got {
			errs = append(errs, fmt.Sprintf("%s: want %d, got %d", name, *want, got))
		}
	}
	checkInt("total", exp.Total, st.Total)
	checkInt("completed", exp.Completed, st.Completed)
	checkInt("current_streak", exp.CurrentStreak, st.CurrentStreak)
	checkInt("longest_streak", exp.LongestStreak, st.LongestStreak)
	checkInt("pending", exp.Pending, st.Pending)
	checkInt("rank", exp.Rank, st.Rank)
	checkInt("percentile", exp.Percentile, st.Percentile)

	if exp.LastCeremonyDate != nil && *exp.LastCeremonyDate != st.LastCeremonyDate {
		errs = append(errs, fmt.Sprintf("last_ceremony_date: want %q, got %q", *exp.LastCeremonyDate, st.LastCeremonyDate))
	}
	if exp.Ranking != "" && exp.Ranking != st.Ranking {
		errs = append(errs, fmt.Sprintf("ranking: want %s, got %s", exp.Ranking, st.Ranking))
	}
	if exp.Error != nil && *exp.Error != (event.Error != "") {
		if *exp.Error {
			errs = append(errs, "error: want a failure, got none")
		} else {
			errs = append(errs, fmt.Sprintf("error: want none, got %s", event.Error))
		}
	}
	return errs
}
