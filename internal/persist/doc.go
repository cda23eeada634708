// Package persist provides the persistence gate that sits between the engine
// and its durable key-value medium.
//
// The gate adds three guarantees on top of a plain Storage:
//
//   - Load deduplication: concurrent Loads of the same key share one
//     underlying read and resolve together.
//   - Last-write-wins Save: a newer Save for a key cancels any in-flight
//     Save for that key and skips queued ones, and writes for one key are
//     serialized so an older write can never land after a newer one.
//   - Hydration: Hydrate loads the keys the engine needs at startup. Until
//     it returns, Hydrated reports false and Ready stays open.
//
// A failed initial load is not fatal. Hydrate logs it and reports the key as
// absent, so the engine starts from fresh state.
package persist
