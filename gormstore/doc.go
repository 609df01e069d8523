// Package gormstore provides the relational persistence layer for authgate.
//
// It implements authgate.UserProvider and rbac.Directory on top of gorm,
// persists audit events as append-only rows, and owns schema migration and
// catalog seeding. The package targets PostgreSQL in production; tests run
// against an in-memory SQLite database through the same gorm surface.
//
// Concurrency-sensitive updates (TOTP counter advancement, backup code
// consumption) are expressed as conditional UPDATE statements so the
// database, not application locks, decides the single winner.
package gormstore
