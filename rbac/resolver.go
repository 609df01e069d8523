package rbac

import (
	"context"
	"sync"
	"time"
)

// Resolver computes effective permission sets and caches them per user.
// Cached entries serve reads for at most the configured TTL; explicit
// invalidation on any role mutation keeps revocations visible well inside
// that window.
type Resolver struct {
	registry *Registry
	dir      Directory
	ttl      time.Duration

	mu    sync.RWMutex
	cache map[string]resolverEntry

	now func() time.Time
}

type resolverEntry struct {
	mask    Mask
	roles   []string
	staleAt time.Time
}

// NewResolver describes the newresolver operation and its observable behavior.
//
// NewResolver may return an error when input validation, dependency calls, or security checks fail.
// NewResolver does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewResolver(registry *Registry, dir Directory, ttl time.Duration) *Resolver {
	return &Resolver{
		registry: registry,
		dir:      dir,
		ttl:      ttl,
		cache:    make(map[string]resolverEntry),
		now:      time.Now,
	}
}

// Registry exposes the permission arena used by this resolver.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

// EffectivePermissions returns the user's permission mask and active role
// names, served from cache when fresh.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID string) (Mask, []string, error) {
	if r.ttl > 0 {
		r.mu.RLock()
		entry, ok := r.cache[userID]
		r.mu.RUnlock()
		if ok && r.now().Before(entry.staleAt) {
			return entry.mask.Clone(), append([]string(nil), entry.roles...), nil
		}
	}

	return r.refresh(ctx, userID)
}

// EffectivePermissionsUncached bypasses the cache for callers that need
// revocation immediacy, and repopulates it with the fresh result.
func (r *Resolver) EffectivePermissionsUncached(ctx context.Context, userID string) (Mask, []string, error) {
	return r.refresh(ctx, userID)
}

// HasPermission reports whether any active, unexpired role grants the named
// permission.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	mask, _, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return r.registry.Has(mask, permission), nil
}

// HasRole reports whether the user holds an active, unexpired grant of the
// named role.
func (r *Resolver) HasRole(ctx context.Context, userID, role string) (bool, error) {
	_, roles, err := r.EffectivePermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, held := range roles {
		if held == role {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops the cached entry for one user. Called after every
// AssignRole/RevokeRole so the next check recomputes.
func (r *Resolver) Invalidate(userID string) {
	r.mu.Lock()
	delete(r.cache, userID)
	r.mu.Unlock()
}

// InvalidateAll drops every cached entry. Called after role-permission edges
// change, which can affect any number of users.
func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.cache = make(map[string]resolverEntry)
	r.mu.Unlock()
}

func (r *Resolver) refresh(ctx context.Context, userID string) (Mask, []string, error) {
	grants, err := r.dir.UserGrants(ctx, userID)
	if err != nil {
		return nil, nil, err
	}

	now := r.now()
	mask := r.registry.NewMask()
	roles := make([]string, 0, len(grants))

	for _, grant := range grants {
		if grant.Expired(now) {
			continue
		}

		perms, err := r.dir.RolePermissions(ctx, grant.Role)
		if err != nil {
			return nil, nil, err
		}

		roleMask, err := r.registry.MaskOf(perms...)
		if err != nil {
			return nil, nil, err
		}

		mask = Union(mask, roleMask)
		roles = append(roles, grant.Role)
	}

	if r.ttl > 0 {
		r.mu.Lock()
		r.cache[userID] = resolverEntry{
			mask:    mask.Clone(),
			roles:   append([]string(nil), roles...),
			staleAt: now.Add(r.ttl),
		}
		r.mu.Unlock()
	}

	return mask, roles, nil
}
