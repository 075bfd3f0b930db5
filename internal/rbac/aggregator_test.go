package rbac

import (
	"testing"

	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRBACCoreEngine_MergePermissions(t *testing.T) {
	engine := NewRBACCoreEngine(DefaultCatalog())

	t.Run("nurse and receptionist", func(t *testing.T) {
		set := engine.MergePermissions([]rbac.Role{rbac.RoleNurse, rbac.RoleReceptionist})
		assert.True(t, set.Has("vitals:write"))
		assert.True(t, set.Has("billing:process"))
		assert.False(t, set.Has("user:create"))
	})

	t.Run("order independent", func(t *testing.T) {
		ab := engine.MergePermissions([]rbac.Role{rbac.RolePharmacist, rbac.RolePatient})
		ba := engine.MergePermissions([]rbac.Role{rbac.RolePatient, rbac.RolePharmacist})
		assert.Equal(t, ab, ba)
	})

	t.Run("monotonic union", func(t *testing.T) {
		single := engine.MergePermissions([]rbac.Role{rbac.RolePhysician})
		combined := engine.MergePermissions([]rbac.Role{rbac.RolePhysician, rbac.RolePatient, "janitor"})
		for p, granted := range single {
			if granted {
				assert.True(t, combined.Has(p), "adding roles revoked %s", p)
			}
		}
		assert.True(t, combined.Has("billing:pay"))
	})

	t.Run("covers every known capability", func(t *testing.T) {
		set := engine.MergePermissions(nil)
		known := engine.Catalog().KnownPermissions()
		require.Len(t, set, len(known))
		for _, p := range known {
			granted, ok := set[p]
			assert.True(t, ok)
			assert.False(t, granted)
		}
		assert.Empty(t, set.Granted())
	})

	t.Run("wildcards expand over known capabilities", func(t *testing.T) {
		set := engine.MergePermissions([]rbac.Role{rbac.RoleLabTechnician})
		assert.True(t, set.Has("lab:create"))
		assert.True(t, set.Has("lab:update"))
		assert.False(t, set.Has("lab:*"))
	})

	t.Run("granted list is sorted", func(t *testing.T) {
		granted := engine.MergePermissions([]rbac.Role{rbac.RolePatient}).Granted()
		assert.Equal(t, []rbac.Permission{
			"appointment:cancel",
			"appointment:create",
			"appointment:read",
			"billing:pay",
			"billing:read",
			"message:read",
			"message:send",
		}, granted)
	})
}

func TestRBACCoreEngine_HasPermissionAny(t *testing.T) {
	engine := NewRBACCoreEngine(DefaultCatalog())

	assert.True(t, engine.HasPermissionAny([]rbac.Role{rbac.RolePatient, rbac.RoleNurse}, "vitals:write"))
	assert.True(t, engine.HasPermissionAny([]rbac.Role{rbac.RolePharmacist}, "medication:recall"))
	assert.False(t, engine.HasPermissionAny(nil, "vitals:write"))
	assert.False(t, engine.HasPermissionAny([]rbac.Role{"", "janitor"}, "vitals:write"))
}
