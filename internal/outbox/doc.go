// Package outbox implements the sync outbox: a FIFO of stat snapshots waiting
// for server acknowledgment, drained by a single worker.
//
// Lifecycle of an item:
//
//	queued -> in flight -> acknowledged (popped)
//	                    -> failed (stays at the head, attempts++)
//
// Guarantees:
//   - At most one submission is in flight at any time. Items are submitted
//     in FIFO order, so the ranking cache only ever moves forward in
//     submission order.
//   - A failed item stays at the head. The worker does not spin on it; it
//     waits for the next trigger (an Enqueue, Trigger, or the caller's retry
//     tick).
//   - Cancellation: Clear and Restore cancel the in-flight request if they
//     change the head. A result whose seq is no longer the head when it
//     arrives is discarded: no cache write, no pop.
//   - Every submission is bounded by a timeout (default 30s).
//
// Items are identified by a logical seq from a monotonic Clock. The clock is
// resumed after a restart so seqs never repeat.
package outbox
