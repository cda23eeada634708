// Package harness runs ceremony scenarios against a real engine.
//
// A scenario is a YAML file listing steps (record, abandon, advance_days,
// offline, flush, restart, ...) with optional expectations after each step.
// The harness drives an engine backed by in-memory storage, a fake sync
// server and a settable clock, so multi-day scenarios run instantly and
// produce the same trace every time.
//
// Traces are serialized as canonical JSON and compared against golden files
// under testdata/golden:
//
//	go test ./internal/harness -update
package harness
