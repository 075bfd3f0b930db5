package rbac

import (
	"github.com/medrex/hms-access/pkg/rbac"
)

// RBACCoreEngine answers static role/permission questions against a catalog.
// Every method is pure and safe for concurrent use; none of them panic on
// unknown roles or malformed permissions.
type RBACCoreEngine struct {
	catalog *Catalog
}

// NewRBACCoreEngine creates a core engine over an immutable catalog
func NewRBACCoreEngine(catalog *Catalog) *RBACCoreEngine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &RBACCoreEngine{catalog: catalog}
}

// Catalog returns the catalog the engine reads from
func (e *RBACCoreEngine) Catalog() *Catalog {
	return e.catalog
}

// HasPermission reports whether role statically holds permission, either
// exactly or through a category:* grant. The empty role is the unauthenticated caller.
func (e *RBACCoreEngine) HasPermission(role rbac.Role, permission rbac.Permission) bool {
	if role == "" || !permission.Valid() {
		return false
	}
	return e.catalog.granted(role, permission)
}

// HasAnyPermission is false for an empty list
func (e *RBACCoreEngine) HasAnyPermission(role rbac.Role, permissions []rbac.Permission) bool {
	for _, p := range permissions {
		if e.HasPermission(role, p) {
			return true
		}
	}
	return false
}

// HasAllPermissions is vacuously true for an empty list
func (e *RBACCoreEngine) HasAllPermissions(role rbac.Role, permissions []rbac.Permission) bool {
	for _, p := range permissions {
		if !e.HasPermission(role, p) {
			return false
		}
	}
	return true
}

// GetRolePermissions returns a copy of the role's grants; empty for unknown roles
func (e *RBACCoreEngine) GetRolePermissions(role rbac.Role) []rbac.Permission {
	perms, ok := e.catalog.permissions[role]
	if !ok {
		return []rbac.Permission{}
	}
	out := make([]rbac.Permission, len(perms))
	copy(out, perms)
	return out
}
