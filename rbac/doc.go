// Package rbac implements the role-based access-control engine: a permission
// registry that maps permission names onto a compact bitmask arena, a
// Directory interface over the relational role store, and a caching resolver
// that computes effective permission sets per user.
//
// # Architecture boundaries
//
// The Directory owns persistence; the Resolver owns caching and set algebra.
// Neither issues tokens or touches sessions — the Engine composes them.
package rbac
