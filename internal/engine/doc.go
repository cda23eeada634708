// Package engine wires the ceremony ledger, sync outbox, ranking cache and
// persistence gate into one service.
//
// ARCHITECTURE:
//
// Local first:
// Commands mutate the ledger synchronously and never wait on I/O. Each
// mutation then, in order:
//  1. marks the ranking cache stale
//  2. enqueues a stat snapshot into the outbox (no network yet)
//  3. schedules a save of the persisted record
//
// Background sync:
// Run starts the outbox worker and a retry ticker. The worker submits one
// snapshot at a time, head first; acknowledged rankings flow into the cache
// without another round trip. Failed items wait for the next trigger
// (enqueue, Foreground, or the ticker).
//
// Hydration:
// Until Hydrate completes, commands return ErrHydrating. A missing, unreadable
// or corrupt record is not fatal: the engine starts fresh.
//
// Persistence:
// All state lives under one key (DefaultStoreKey):
//
//	{logs, currentStreak, longestStreak, lastCeremonyDate, totalCeremonies,
//	 completedCeremonies, pendingStats, syncSeq}
//
// Saves go through the gate's last-write-wins pipeline and encode the state
// at write time, so the newest state is what lands. The ranking cache is
// never persisted.
package engine
