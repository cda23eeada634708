// Package canonical produces deterministic JSON encodings and digests for
// sync snapshots.
//
// A snapshot that is resubmitted after a failed attempt must carry the same
// digest it had the first time, so the server can treat the retry as the
// same write. Encodings follow RFC 8785 for the subset of JSON the engine
// emits:
//   - Object keys sorted by UTF-16 code units
//   - No HTML escaping
//   - Strings NFC normalized
//   - No floats and no null
package canonical
