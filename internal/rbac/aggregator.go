package rbac

import (
	"github.com/medrex/hms-access/pkg/rbac"
)

// MergePermissions unions the grants of every held role into one flag set.
// The set starts all-false over the catalog's known capabilities and is only
// ever OR-ed into, so the result is independent of role order and no held
// role can take away what another grants.
func (e *RBACCoreEngine) MergePermissions(roles []rbac.Role) rbac.PermissionSet {
	known := e.catalog.known
	set := make(rbac.PermissionSet, len(known))
	for _, p := range known {
		set[p] = false
	}

	for _, role := range roles {
		if !e.catalog.knownRole(role) {
			continue
		}
		for _, p := range known {
			if e.catalog.granted(role, p) {
				set[p] = true
			}
		}
	}
	return set
}

// HasPermissionAny reports whether any held role grants permission.
// Unlike MergePermissions it is not limited to the known capability list.
func (e *RBACCoreEngine) HasPermissionAny(roles []rbac.Role, permission rbac.Permission) bool {
	for _, role := range roles {
		if e.HasPermission(role, permission) {
			return true
		}
	}
	return false
}
