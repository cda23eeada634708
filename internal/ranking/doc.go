// Package ranking holds the last known server ranking as a
// stale-while-revalidate cache.
//
// The cache is an explicit tri-state value:
//
//	Absent                  never populated
//	Fresh(data)             populated and not yet known to be out of date
//	Stale(data, refreshing) populated, but a ceremony has been recorded since
//	                        or the entry has aged past staleAfter
//
// Read never blocks and never touches the network. Two paths write to it:
// MergeVerified, pushed by the sync outbox after a successful submission,
// and Refresh, an explicit fetch issued by the UI. Both are token-checked so
// that a result which arrives after it has been superseded is dropped.
//
// The cache is never persisted.
package ranking
