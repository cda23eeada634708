// Package config loads ceremony settings.
//
// Settings come from three layers, later layers winning:
//
//  1. Defaults declared in the embedded CUE schema (schema.cue).
//  2. A YAML file, usually ceremony.yaml.
//  3. CEREMONY_* environment variables.
//
// The merged document is unified against the schema before it is decoded,
// so unknown keys, malformed durations and out-of-range values are rejected
// with the offending path in the error.
package config
