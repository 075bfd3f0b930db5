package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Parts(t *testing.T) {
	tests := []struct {
		perm     Permission
		category string
		action   string
		valid    bool
		wildcard bool
	}{
		{"patient:read", "patient", "read", true, false},
		{"lab:*", "lab", "*", true, true},
		{"record:read:extra", "record", "read:extra", true, false},
		{"patient", "", "", false, false},
		{":read", "", "read", false, false},
		{"patient:", "patient", "", false, false},
		{"", "", "", false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			assert.Equal(t, tt.category, tt.perm.Category())
			assert.Equal(t, tt.action, tt.perm.Action())
			assert.Equal(t, tt.valid, tt.perm.Valid())
			assert.Equal(t, tt.wildcard, tt.perm.IsWildcard())
		})
	}
}

func TestPermission_Covers(t *testing.T) {
	assert.True(t, Permission("lab:*").Covers("lab:create"))
	assert.True(t, Permission("lab:*").Covers("lab:*"))
	assert.True(t, Permission("lab:read").Covers("lab:read"))
	assert.False(t, Permission("lab:read").Covers("lab:create"))
	assert.False(t, Permission("lab:*").Covers("patient:read"))
	assert.False(t, Permission("lab:create").Covers("lab:*"))
	assert.False(t, Permission("lab").Covers("lab"))

	assert.Equal(t, Permission("vitals:*"), Permission("vitals:write").WildcardFor())
	assert.Equal(t, Permission("billing:pay"), NewPermission(CategoryBilling, ActionPay))
}

func TestRole_Valid(t *testing.T) {
	for _, r := range AllRoles {
		assert.True(t, r.Valid(), r)
	}
	assert.False(t, Role("").Valid())
	assert.False(t, Role("Physician").Valid())
	assert.False(t, Role("janitor").Valid())
}

func TestClearanceLevel_Rank(t *testing.T) {
	assert.Equal(t, 1, ClearanceLow.Rank())
	assert.Equal(t, 2, ClearanceMedium.Rank())
	assert.Equal(t, 3, ClearanceHigh.Rank())
	assert.Equal(t, 3, ClearanceLevel("HIGH").Rank())
	assert.Equal(t, 0, ClearanceLevel("").Rank())
	assert.Equal(t, 0, ClearanceLevel("secret").Rank())
}

func TestUserAttributes(t *testing.T) {
	var nilUser *UserAttributes
	assert.False(t, nilUser.HasRole(RoleNurse))
	assert.Equal(t, Role(""), nilUser.EffectivePrimaryRole())

	user := &UserAttributes{Roles: []Role{RoleNurse, RoleReceptionist}}
	assert.True(t, user.HasRole(RoleReceptionist))
	assert.False(t, user.HasRole(RolePhysician))
	assert.Equal(t, RoleNurse, user.EffectivePrimaryRole())

	user.PrimaryRole = RoleReceptionist
	assert.Equal(t, RoleReceptionist, user.EffectivePrimaryRole())

	assert.Equal(t, Role(""), (&UserAttributes{}).EffectivePrimaryRole())
}

func TestPermissionRequest_Permission(t *testing.T) {
	var nilReq *PermissionRequest
	assert.Equal(t, Permission(""), nilReq.Permission())
	assert.Equal(t, Permission(""), (&PermissionRequest{Action: "read"}).Permission())

	req := &PermissionRequest{Resource: &ResourceAttributes{Type: "patient"}, Action: "read"}
	assert.Equal(t, Permission("patient:read"), req.Permission())
}

func TestPermissionSet(t *testing.T) {
	set := PermissionSet{
		"vitals:write": true,
		"patient:read": true,
		"user:delete":  false,
	}

	assert.True(t, set.Has("patient:read"))
	assert.False(t, set.Has("user:delete"))
	assert.False(t, set.Has("never:heard"))
	assert.Equal(t, []Permission{"patient:read", "vitals:write"}, set.Granted())
	assert.Empty(t, PermissionSet{}.Granted())
}
