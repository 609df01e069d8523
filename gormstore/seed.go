package gormstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/venrik/authgate/rbac"
)

// Seed installs the built-in permission and role catalog. It is idempotent:
// existing rows keep their attributes and grants added by operators are
// never removed, so it is safe to call on every startup.
func Seed(ctx context.Context, db *gorm.DB) error {
	now := time.Now().UTC()

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, perm := range rbac.DefaultPermissions() {
			row := Permission{
				Name:        perm.Name,
				Resource:    perm.Resource,
				Action:      perm.Action,
				Description: perm.Description,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("seed permission %s: %w", perm.Name, err)
			}
		}

		roles := rbac.DefaultRoles()
		names := make([]rbac.Role, 0, len(roles))
		for role := range roles {
			names = append(names, role)
		}
		sort.Slice(names, func(i, j int) bool { return names[i].Name < names[j].Name })

		for _, role := range names {
			row := Role{
				Name:        role.Name,
				Description: role.Description,
				System:      role.System,
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
				return fmt.Errorf("seed role %s: %w", role.Name, err)
			}
			for _, permName := range roles[role] {
				edge := RolePermission{
					RoleName:   role.Name,
					Permission: permName,
					GrantedBy:  "system",
					GrantedAt:  now,
				}
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error; err != nil {
					return fmt.Errorf("seed grant %s->%s: %w", role.Name, permName, err)
				}
			}
		}

		return nil
	})
}
