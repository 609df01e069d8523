package rbac

// Default catalog seeded at bootstrap. System roles cannot be deleted and
// their permission edges are reconciled on every startup.

// DefaultPermissions returns the built-in resource.action permission arena.
func DefaultPermissions() []Permission {
	return []Permission{
		{Name: "users.read", Resource: "users", Action: "read", Description: "View user accounts"},
		{Name: "users.write", Resource: "users", Action: "write", Description: "Create and update user accounts"},
		{Name: "users.disable", Resource: "users", Action: "disable", Description: "Disable or deactivate user accounts"},
		{Name: "roles.read", Resource: "roles", Action: "read", Description: "View roles and assignments"},
		{Name: "roles.manage", Resource: "roles", Action: "manage", Description: "Assign and revoke roles"},
		{Name: "sessions.manage", Resource: "sessions", Action: "manage", Description: "Revoke sessions for any user"},
		{Name: "audit.read", Resource: "audit", Action: "read", Description: "Read the audit trail"},
		{Name: "content.read", Resource: "content", Action: "read", Description: "Read content"},
		{Name: "content.write", Resource: "content", Action: "write", Description: "Create and edit content"},
		{Name: "content.moderate", Resource: "content", Action: "moderate", Description: "Moderate content"},
		{Name: "service.invoke", Resource: "service", Action: "invoke", Description: "Invoke service-to-service APIs"},
	}
}

// DefaultRoles returns the built-in role set with their permission grants.
func DefaultRoles() map[Role][]string {
	return map[Role][]string{
		{Name: "admin", Description: "Full administrative access", System: true}: {
			"users.read", "users.write", "users.disable",
			"roles.read", "roles.manage",
			"sessions.manage", "audit.read",
			"content.read", "content.write", "content.moderate",
		},
		{Name: "moderator", Description: "Content moderation", System: true}: {
			"users.read",
			"content.read", "content.write", "content.moderate",
		},
		{Name: "user", Description: "Standard account", System: true}: {
			"content.read", "content.write",
		},
		{Name: "service", Description: "Machine-to-machine caller", System: true}: {
			"service.invoke",
		},
	}
}
