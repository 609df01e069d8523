// Package session implements the Redis-backed session store: durable session
// records keyed by structurally unique IDs, sliding expiration with optional
// jitter, per-user session indexes, and atomic refresh-hash rotation.
package session
