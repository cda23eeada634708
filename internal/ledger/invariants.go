package ledger

import (
	"errors"
	"fmt"
)

// CheckInvariants verifies the aggregate invariants. A violation is a
// programming error; tests call this after every command.
func (l *Ledger) CheckInvariants() error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var errs []error
	if l.completedCeremonies > l.totalCeremonies {
		errs = append(errs, fmt.Errorf("completedCeremonies %d > totalCeremonies %d",
			l.completedCeremonies, l.totalCeremonies))
	}
	if l.currentStreak < 0 || l.longestStreak < 0 {
		errs = append(errs, fmt.Errorf("negative streak: current=%d longest=%d",
			l.currentStreak, l.longestStreak))
	}
	if l.longestStreak < l.currentStreak {
		errs = append(errs, fmt.Errorf("longestStreak %d < currentStreak %d",
			l.longestStreak, l.currentStreak))
	}
	for _, log := range l.logs {
		if log.Completed && log.Date > DayOf(log.CompletedAt) {
			errs = append(errs, fmt.Errorf("log %s dated %s after its creation day %s",
				log.ID, log.Date, DayOf(log.CompletedAt)))
		}
	}
	return errors.Join(errs...)
}
