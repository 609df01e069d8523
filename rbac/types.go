package rbac

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRoleNotFound is an exported constant or variable used by the authentication engine.
	ErrRoleNotFound = errors.New("role not found")
	// ErrPermissionNotFound is an exported constant or variable used by the authentication engine.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrSystemRoleImmutable is an exported constant or variable used by the authentication engine.
	ErrSystemRoleImmutable = errors.New("system role cannot be modified")
	// ErrDirectoryUnavailable is an exported constant or variable used by the authentication engine.
	ErrDirectoryUnavailable = errors.New("rbac directory unavailable")
)

// Role defines a public type used by authgate APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role struct {
	Name        string
	Description string
	System      bool
}

// Permission defines a public type used by authgate APIs.
//
// Permission instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Permission struct {
	Name        string
	Resource    string
	Action      string
	Description string
}

// Grant is a user-role edge. A nil ExpiresAt means the grant never expires.
type Grant struct {
	Role      string
	GrantedBy string
	GrantedAt time.Time
	ExpiresAt *time.Time
}

// Expired reports whether the grant has lapsed at the given instant.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// Directory is the persistence boundary for roles, permissions, and
// user-role edges. gormstore provides the production implementation.
type Directory interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)

	CreateRole(ctx context.Context, role Role) error
	DeleteRole(ctx context.Context, name string) error

	RolePermissions(ctx context.Context, roleName string) ([]string, error)
	GrantPermission(ctx context.Context, roleName, permission, grantedBy string) (bool, error)
	RevokePermission(ctx context.Context, roleName, permission string) (bool, error)

	UserGrants(ctx context.Context, userID string) ([]Grant, error)
	AssignRole(ctx context.Context, userID, roleName, grantedBy string, expiresAt *time.Time) (bool, error)
	RevokeRole(ctx context.Context, userID, roleName string) (bool, error)
}
