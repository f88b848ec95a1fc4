package auth

import "strings"

// Well-known permissions.
const (
	// PermissionAll grants every permission.
	PermissionAll = "*"

	// PermissionAdmin grants every permission.
	PermissionAdmin = "admin"

	// PermissionManageBots allows starting and stopping bot tenants.
	PermissionManageBots = "bots:manage"

	// TenantPermissionPrefix prefixes tenant-scoped permissions.
	TenantPermissionPrefix = "bot:"
)

// HasPermission reports whether required is granted.
//
// It is true iff required is in granted, or granted contains "admin" or "*".
// Tenant-scoped permissions ("bot:<id>") only match by exact string equality;
// there is no prefix or pattern matching.
func HasPermission(granted []string, required string) bool {
	for _, p := range granted {
		if p == required || p == PermissionAdmin || p == PermissionAll {
			return true
		}
	}
	return false
}

// IsSuperuser reports whether granted contains "admin" or "*".
func IsSuperuser(granted []string) bool {
	for _, p := range granted {
		if p == PermissionAdmin || p == PermissionAll {
			return true
		}
	}
	return false
}

// TenantPermission returns the permission string scoping access to one tenant.
func TenantPermission(tenantID string) string {
	return TenantPermissionPrefix + tenantID
}

// TenantsFromPermissions returns the tenant ids named by "bot:<id>" entries.
func TenantsFromPermissions(granted []string) []string {
	var ids []string
	for _, p := range granted {
		if id, ok := strings.CutPrefix(p, TenantPermissionPrefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// normalizePermissions trims and de-duplicates permissions, preserving order.
func normalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
