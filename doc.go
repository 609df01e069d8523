// Package authgate provides an authentication and access-control core with
// argon2id credential verification, TOTP and backup-code MFA, JWT access
// tokens, rotating opaque refresh tokens, Redis-backed sessions, and a
// role-based permission engine with cached effective-permission resolution.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (LoginResult, TokenPair, AuthResult, MetricsSnapshot).
// Durable account and role state sits behind the [UserProvider] and
// rbac.Directory interfaces; the gormstore sub-package supplies a relational
// implementation of both. Session records, MFA login challenges, and lockout
// counters live in Redis.
//
// # What this package must NOT do
//
//   - Expose Redis clients, challenge stores, or record encodings in its
//     public API.
//   - Perform I/O outside of Engine methods (construction via Builder is
//     allocation-only until Build).
//   - Store authenticator secrets or backup codes in recoverable plaintext.
//
// # Security contract
//
// Failed logins never reveal whether the identifier exists. Refresh rotation
// is compare-and-swap: a replayed token destroys its session. Every state
// transition is appended to the audit stream when auditing is enabled.
package authgate
