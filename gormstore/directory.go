package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/venrik/authgate/rbac"
)

// Directory implements rbac.Directory on a gorm database.
type Directory struct {
	db *gorm.DB
}

// NewDirectory describes the newdirectory operation and its observable behavior.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// ListRoles describes the listroles operation and its observable behavior.
//
// ListRoles may return an error when input validation, dependency calls, or security checks fail.
// ListRoles does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	var rows []Role
	if err := d.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	out := make([]rbac.Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, rbac.Role{
			Name:        row.Name,
			Description: row.Description,
			System:      row.System,
		})
	}
	return out, nil
}

// ListPermissions describes the listpermissions operation and its observable behavior.
//
// ListPermissions may return an error when input validation, dependency calls, or security checks fail.
// ListPermissions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	var rows []Permission
	if err := d.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	out := make([]rbac.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, rbac.Permission{
			Name:        row.Name,
			Resource:    row.Resource,
			Action:      row.Action,
			Description: row.Description,
		})
	}
	return out, nil
}

// CreateRole describes the createrole operation and its observable behavior.
//
// CreateRole may return an error when input validation, dependency calls, or security checks fail.
// CreateRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) CreateRole(ctx context.Context, role rbac.Role) error {
	row := Role{
		Name:        role.Name,
		Description: role.Description,
		System:      role.System,
	}
	if err := d.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	return nil
}

// DeleteRole describes the deleterole operation and its observable behavior.
//
// DeleteRole may return an error when input validation, dependency calls, or security checks fail.
// DeleteRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// System roles cannot be removed. Deleting a role cascades over its
// permission edges and user grants in the same transaction.
func (d *Directory) DeleteRole(ctx context.Context, name string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row Role
		if err := tx.Where("name = ?", name).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return rbac.ErrRoleNotFound
			}
			return fmt.Errorf("lookup role: %w", err)
		}
		if row.System {
			return rbac.ErrSystemRoleImmutable
		}
		if err := tx.Where("role_name = ?", name).Delete(&RolePermission{}).Error; err != nil {
			return fmt.Errorf("delete role permissions: %w", err)
		}
		if err := tx.Where("role_name = ?", name).Delete(&UserRole{}).Error; err != nil {
			return fmt.Errorf("delete role grants: %w", err)
		}
		if err := tx.Delete(&row).Error; err != nil {
			return fmt.Errorf("delete role: %w", err)
		}
		return nil
	})
}

// RolePermissions describes the rolepermissions operation and its observable behavior.
//
// RolePermissions may return an error when input validation, dependency calls, or security checks fail.
// RolePermissions does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) RolePermissions(ctx context.Context, roleName string) ([]string, error) {
	var rows []RolePermission
	if err := d.db.WithContext(ctx).Where("role_name = ?", roleName).Order("permission").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Permission)
	}
	return out, nil
}

// GrantPermission describes the grantpermission operation and its observable behavior.
//
// GrantPermission may return an error when input validation, dependency calls, or security checks fail.
// GrantPermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Granting an edge that already exists is a no-op reported as false.
func (d *Directory) GrantPermission(ctx context.Context, roleName, permission, grantedBy string) (bool, error) {
	var existing RolePermission
	err := d.db.WithContext(ctx).
		Where("role_name = ? AND permission = ?", roleName, permission).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("lookup role permission: %w", err)
	}

	row := RolePermission{
		RoleName:   roleName,
		Permission: permission,
		GrantedBy:  grantedBy,
		GrantedAt:  time.Now().UTC(),
	}
	if err := d.db.WithContext(ctx).Create(&row).Error; err != nil {
		return false, fmt.Errorf("grant permission: %w", err)
	}
	return true, nil
}

// RevokePermission describes the revokepermission operation and its observable behavior.
//
// RevokePermission may return an error when input validation, dependency calls, or security checks fail.
// RevokePermission does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) RevokePermission(ctx context.Context, roleName, permission string) (bool, error) {
	res := d.db.WithContext(ctx).
		Where("role_name = ? AND permission = ?", roleName, permission).
		Delete(&RolePermission{})
	if res.Error != nil {
		return false, fmt.Errorf("revoke permission: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// UserGrants describes the usergrants operation and its observable behavior.
//
// UserGrants may return an error when input validation, dependency calls, or security checks fail.
// UserGrants does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Expired grants are returned too; callers filter with Grant.Expired so the
// expiry decision stays in one place.
func (d *Directory) UserGrants(ctx context.Context, userID string) ([]rbac.Grant, error) {
	var rows []UserRole
	if err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("role_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list user grants: %w", err)
	}
	out := make([]rbac.Grant, 0, len(rows))
	for _, row := range rows {
		out = append(out, rbac.Grant{
			Role:      row.RoleName,
			GrantedBy: row.GrantedBy,
			GrantedAt: row.GrantedAt,
			ExpiresAt: row.ExpiresAt,
		})
	}
	return out, nil
}

// AssignRole describes the assignrole operation and its observable behavior.
//
// AssignRole may return an error when input validation, dependency calls, or security checks fail.
// AssignRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
//
// Assigning a role the user already holds reports false without touching the
// existing grant, unless the old grant has expired, in which case it is
// replaced.
func (d *Directory) AssignRole(ctx context.Context, userID, roleName, grantedBy string, expiresAt *time.Time) (bool, error) {
	var role Role
	if err := d.db.WithContext(ctx).Where("name = ?", roleName).First(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, rbac.ErrRoleNotFound
		}
		return false, fmt.Errorf("lookup role: %w", err)
	}

	created := false
	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing UserRole
		err := tx.Where("user_id = ? AND role_name = ?", userID, roleName).First(&existing).Error
		switch {
		case err == nil:
			if existing.ExpiresAt == nil || existing.ExpiresAt.After(time.Now()) {
				return nil
			}
			if err := tx.Delete(&existing).Error; err != nil {
				return fmt.Errorf("replace expired grant: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("lookup grant: %w", err)
		}

		row := UserRole{
			UserID:    userID,
			RoleName:  roleName,
			GrantedBy: grantedBy,
			GrantedAt: time.Now().UTC(),
			ExpiresAt: expiresAt,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// RevokeRole describes the revokerole operation and its observable behavior.
//
// RevokeRole may return an error when input validation, dependency calls, or security checks fail.
// RevokeRole does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (d *Directory) RevokeRole(ctx context.Context, userID, roleName string) (bool, error) {
	res := d.db.WithContext(ctx).
		Where("user_id = ? AND role_name = ?", userID, roleName).
		Delete(&UserRole{})
	if res.Error != nil {
		return false, fmt.Errorf("revoke role: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
