// Package middleware exposes HTTP middleware adapters for access token and
// permission enforcement built on top of authgate.Engine validation.
//
// # Guards
//
//   - [Guard] — bearer token verification with session revocation checks.
//   - [RequirePermission] — [Guard] plus a named permission check.
//   - [RequireRole] — [Guard] plus a role membership check.
//
// Each guard reads the Authorization header, calls Engine.Validate, and injects
// the validated result into the request context. Client IP and User-Agent are
// propagated so downstream audit events carry request provenance.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT implement
// authentication logic itself — all decisions are delegated to the Engine.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Access Redis or the database (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine results.
package middleware
