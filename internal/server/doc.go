// Package server is the reference sync server the ceremony client talks to.
//
// Routes:
//
//	POST /api/auth/device  {deviceId, secret} -> {token, expiresAt}
//	POST /api/stats        StatSnapshot       -> Ranking      (Bearer)
//	GET  /api/ranking                         -> Ranking      (Bearer)
//	GET  /health
//
// The first auth call for a device registers it (the secret is stored as a
// bcrypt hash); later calls must present the same secret. Tokens are HS256
// JWTs whose subject is the device ID.
//
// Submissions are idempotent on the snapshot digest, and a snapshot whose
// seq is not newer than the last applied one never regresses the stored
// state; both return the current ranking. The rank itself is the same
// coarse bucket formula the device computes locally.
//
// Errors use the envelope {"error":{"code","message"}}.
package server
