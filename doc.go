// Package usermgmt implements the credential and session lifecycle of a
// multi-tenant learning platform: registration, password login with
// progressive lockout, JWT access tokens with rotating refresh tokens,
// and one-time tokens for password reset and email verification.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// usermgmt is the public surface. It exposes [Engine], [Builder],
// [Config], the [CredentialStore] port and value types (Credential,
// TokenPair, AuthResult, MetricsSnapshot). Token signing lives in
// jwt/, hashing in password/, the Redis refresh-token registry in
// session/ and the lockout state machine in lockout/. Credential
// persistence is pluggable; store/memory and store/postgres ship with
// the module.
//
// # What this package must NOT do
//
//   - Parse HTTP requests or render responses. Transport, routing and
//     request-shape validation belong to the caller.
//   - Deliver email. Reset and verification tokens are handed to the
//     integrator (or returned directly under Debug.ExposeTokens).
//   - Make authorization decisions. ValidateAccess returns the subject
//     and role; what they may do is the caller's problem.
//
// # Performance contract
//
// ValidateAccess is the hot path: pure claim verification, no store or
// Redis round trip. Login, Refresh and the one-time token flows are
// allowed one store access plus one Redis round trip each.
package usermgmt
