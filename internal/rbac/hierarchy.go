package rbac

import (
	"github.com/medrex/hms-access/pkg/rbac"
)

// GetRoleLevel returns the hierarchy level of role, 0 when unknown
func (e *RBACCoreEngine) GetRoleLevel(role rbac.Role) int {
	level, _ := e.catalog.level(role)
	return level
}

// CanManageRole decides whether manager may administer accounts held by target.
// The override table is consulted before the level formula so that level
// arithmetic can never bypass an explicit pair.
func (e *RBACCoreEngine) CanManageRole(manager, target rbac.Role) bool {
	managerLevel, ok := e.catalog.level(manager)
	if !ok {
		return false
	}
	targetLevel, ok := e.catalog.level(target)
	if !ok {
		return false
	}

	if allow, ok := e.catalog.overrides[managementKey{manager: manager, target: target}]; ok {
		return allow
	}
	if e.catalog.manageAll[manager] && manager != target {
		return true
	}

	return managerLevel > targetLevel
}

// CanAccessAdminPanel is true only for catalog-designated administrative roles
func (e *RBACCoreEngine) CanAccessAdminPanel(role rbac.Role) bool {
	if role == "" {
		return false
	}
	return e.catalog.adminRoles[role]
}

// GetAccessibleRoles lists the roles that role can manage, highest level first
func (e *RBACCoreEngine) GetAccessibleRoles(role rbac.Role) []rbac.Role {
	accessible := []rbac.Role{}
	for _, target := range e.catalog.Roles() {
		if e.CanManageRole(role, target) {
			accessible = append(accessible, target)
		}
	}
	return accessible
}

// ValidateRoleHierarchy checks that higher sits strictly above lower by level alone
func (e *RBACCoreEngine) ValidateRoleHierarchy(higher, lower rbac.Role) bool {
	hl, ok := e.catalog.level(higher)
	if !ok {
		return false
	}
	ll, ok := e.catalog.level(lower)
	if !ok {
		return false
	}
	return hl > ll
}
