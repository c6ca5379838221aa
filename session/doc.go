// Package session tracks live refresh tokens per subject in Redis.
//
// # Storage layout
//
// Each subject owns one Redis hash. Fields are SHA-256 hex digests of issued
// refresh tokens, values are issuance times in unix seconds. The raw token is
// never written to Redis; possession of the registry contents does not allow
// minting a usable refresh token.
//
// # Rotation
//
// [Registry.Rotate] is a single Lua compare-and-swap: it removes the old hash
// and inserts the new one atomically, so N concurrent refresh calls presenting
// the same token produce exactly one winner and N-1 not-found results. This is
// what makes refresh-token replay detectable.
//
// # What this package must NOT do
//
//   - Import the root package or jwt (no upward imports).
//   - Interpret or verify JWT tokens.
//   - Store plaintext tokens in Redis.
package session
