package authgate

import (
	"context"
	"errors"
	"time"

	"github.com/venrik/authgate/rbac"
)

// AssignRole describes the assignrole operation and its observable behavior.
//
// AssignRole may return an error when input validation, dependency calls, or security checks fail.
// AssignRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Assigning a role the user already holds is a no-op success. expiresAt, when
// non-nil, bounds the grant; expired grants drop out of effective permission
// resolution without an explicit revoke.
func (e *Engine) AssignRole(ctx context.Context, userID, roleName string, expiresAt *time.Time) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	grantedBy := ActorFromContext(ctx)
	if grantedBy == "" {
		grantedBy = "system"
	}

	created, err := e.directory.AssignRole(ctx, userID, roleName, grantedBy, expiresAt)
	if err != nil {
		e.emitAudit(ctx, auditEventRoleAssigned, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"role": roleName,
			}
		})
		// Input errors pass through untouched; only infrastructure
		// failures get the availability wrapper.
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return err
		}
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !created {
		return nil
	}

	if e.resolver != nil {
		e.resolver.Invalidate(userID)
	}

	e.metricInc(MetricRoleAssigned)
	e.emitAudit(ctx, auditEventRoleAssigned, true, userID, "", nil, func() map[string]string {
		meta := map[string]string{
			"role": roleName,
		}
		if expiresAt != nil {
			meta["expires_at"] = expiresAt.UTC().Format(time.RFC3339)
		}
		return meta
	})
	return nil
}

// RevokeRole describes the revokerole operation and its observable behavior.
//
// RevokeRole may return an error when input validation, dependency calls, or security checks fail.
// RevokeRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Revoking a role the user does not hold is a no-op success.
func (e *Engine) RevokeRole(ctx context.Context, userID, roleName string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	removed, err := e.directory.RevokeRole(ctx, userID, roleName)
	if err != nil {
		e.emitAudit(ctx, auditEventRoleRevoked, false, userID, "", err, func() map[string]string {
			return map[string]string{
				"role": roleName,
			}
		})
		if errors.Is(err, rbac.ErrRoleNotFound) {
			return err
		}
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !removed {
		return nil
	}

	if e.resolver != nil {
		e.resolver.Invalidate(userID)
	}

	e.metricInc(MetricRoleRevoked)
	e.emitAudit(ctx, auditEventRoleRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"role": roleName,
		}
	})
	return nil
}

// CheckPermission describes the checkpermission operation and its observable behavior.
//
// CheckPermission may return an error when input validation, dependency calls, or security checks fail.
// CheckPermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// A missing permission returns ErrPermissionDenied rather than false-and-nil
// so callers cannot accidentally ignore the outcome. Denials are audited.
func (e *Engine) CheckPermission(ctx context.Context, userID, permission string) error {
	if e == nil || e.resolver == nil {
		return ErrEngineNotReady
	}

	e.metricInc(MetricPermissionChecked)
	ok, err := e.resolver.HasPermission(ctx, userID, permission)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !ok {
		e.metricInc(MetricPermissionDenied)
		e.emitAudit(ctx, auditEventPermissionDenied, false, userID, "", ErrPermissionDenied, func() map[string]string {
			return map[string]string{
				"permission": permission,
			}
		})
		return ErrPermissionDenied
	}
	return nil
}

// CheckRole describes the checkrole operation and its observable behavior.
//
// CheckRole may return an error when input validation, dependency calls, or security checks fail.
// CheckRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) CheckRole(ctx context.Context, userID, roleName string) error {
	if e == nil || e.resolver == nil {
		return ErrEngineNotReady
	}

	ok, err := e.resolver.HasRole(ctx, userID, roleName)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if !ok {
		return ErrRoleDenied
	}
	return nil
}

// EffectivePermissions describes the effectivepermissions operation and its observable behavior.
//
// EffectivePermissions may return an error when input validation, dependency calls, or security checks fail.
// EffectivePermissions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	if e == nil || e.resolver == nil {
		return nil, ErrEngineNotReady
	}
	_, perms, err := e.resolver.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return perms, nil
}

// InvalidatePermissionCache describes the invalidatepermissioncache operation and its observable behavior.
//
// InvalidatePermissionCache may return an error when input validation, dependency calls, or security checks fail.
// InvalidatePermissionCache does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Use it after changing role-to-permission edges outside the engine, which
// the per-user invalidation on AssignRole and RevokeRole cannot see.
func (e *Engine) InvalidatePermissionCache(userID string) {
	if e == nil || e.resolver == nil {
		return
	}
	if userID == "" {
		e.resolver.InvalidateAll()
		return
	}
	e.resolver.Invalidate(userID)
}

// GrantPermission describes the grantpermission operation and its observable behavior.
//
// GrantPermission may return an error when input validation, dependency calls, or security checks fail.
// GrantPermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Changing a role's permission set affects every holder, so the whole
// resolver cache is flushed.
func (e *Engine) GrantPermission(ctx context.Context, roleName, permission string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	grantedBy := ActorFromContext(ctx)
	if grantedBy == "" {
		grantedBy = "system"
	}

	added, err := e.directory.GrantPermission(ctx, roleName, permission, grantedBy)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if added && e.resolver != nil {
		e.resolver.InvalidateAll()
	}
	return nil
}

// RevokePermission describes the revokepermission operation and its observable behavior.
//
// RevokePermission may return an error when input validation, dependency calls, or security checks fail.
// RevokePermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) RevokePermission(ctx context.Context, roleName, permission string) error {
	if e == nil || e.directory == nil {
		return ErrEngineNotReady
	}

	removed, err := e.directory.RevokePermission(ctx, roleName, permission)
	if err != nil {
		return errors.Join(ErrProviderUnavailable, err)
	}
	if removed && e.resolver != nil {
		e.resolver.InvalidateAll()
	}
	return nil
}
