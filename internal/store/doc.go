// Package store provides the SQLite-backed key-value medium the engine
// persists into.
//
// Each key holds one opaque blob. The engine writes a single record per
// installation; the reference server keeps one record per device. Values
// are replaced wholesale, and every write bumps a per-key version counter
// that is useful when inspecting a database by hand.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - One open connection: SQLite allows a single writer
package store
