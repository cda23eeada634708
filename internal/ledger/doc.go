// Package ledger records ceremony attempts and derives the statistics shown
// to the user: totals, the current and longest streak, and the approximate
// ranking bucket.
//
// Every mutation is local, synchronous and total. The ledger never performs
// I/O; callers observe mutations through the OnChange hook and decide what
// to persist or sync.
//
// INVARIANTS (hold after every command):
//   - completedCeremonies <= totalCeremonies
//   - longestStreak >= currentStreak
//   - currentStreak is only ever produced by ComputeStreak or reset to 0
//   - no completed log is dated after the day it was created
package ledger
