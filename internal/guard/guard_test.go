package guard

import (
	"context"
	"io"
	"testing"
	"time"

	internalrbac "github.com/medrex/hms-access/internal/rbac"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logger.Logger {
	log := logger.New("error")
	log.SetOutput(io.Discard)
	return log
}

func setupGuardTest(t *testing.T) (*Guard, *internalrbac.Service) {
	t.Helper()
	log := testLogger()
	service, err := internalrbac.NewService(nil, log.Logger)
	require.NoError(t, err)
	return New(service, log), service
}

func staffUser(id string, roles ...rbac.Role) *rbac.UserAttributes {
	return &rbac.UserAttributes{
		ID:         id,
		Roles:      roles,
		HospitalID: "hosp-1",
		Department: "cardiology",
		Clearance:  rbac.ClearanceMedium,
		Active:     true,
	}
}

func TestGuard_Check(t *testing.T) {
	g, _ := setupGuardTest(t)
	nurse := staffUser("n-1", rbac.RoleNurse)

	t.Run("loading identity", func(t *testing.T) {
		result := g.Check(nil, true, Requirement{Roles: []rbac.Role{rbac.RoleNurse}})
		assert.Equal(t, StateAuthenticating, result.State)
		assert.False(t, result.Authorized())
		assert.Empty(t, result.Reason)
	})

	t.Run("no identity", func(t *testing.T) {
		result := g.Check(nil, false, Requirement{})
		assert.Equal(t, StateUnauthorized, result.State)
		assert.Equal(t, rbac.ReasonNotAuthenticated, result.Reason)
	})

	t.Run("inactive identity", func(t *testing.T) {
		inactive := staffUser("n-2", rbac.RoleNurse)
		inactive.Active = false
		result := g.Check(inactive, false, Requirement{})
		assert.Equal(t, StateUnauthorized, result.State)
		assert.Equal(t, rbac.ReasonInactive, result.Reason)
	})

	t.Run("empty requirement", func(t *testing.T) {
		assert.True(t, g.Check(nurse, false, Requirement{}).Authorized())
	})

	tests := []struct {
		name     string
		req      Requirement
		expected State
		reason   string
	}{
		{
			name:     "any role held",
			req:      Requirement{Roles: []rbac.Role{rbac.RolePhysician, rbac.RoleNurse}},
			expected: StateAuthorized,
		},
		{
			name:     "all roles not held",
			req:      Requirement{Roles: []rbac.Role{rbac.RolePhysician, rbac.RoleNurse}, RequireAll: true},
			expected: StateUnauthorized,
			reason:   ReasonMissingRole,
		},
		{
			name:     "any permission granted",
			req:      Requirement{Permissions: []rbac.Permission{"prescription:create", "vitals:write"}},
			expected: StateAuthorized,
		},
		{
			name:     "all permissions not granted",
			req:      Requirement{Permissions: []rbac.Permission{"prescription:create", "vitals:write"}, RequireAll: true},
			expected: StateUnauthorized,
			reason:   ReasonMissingPermission,
		},
		{
			name:     "all permissions granted",
			req:      Requirement{Permissions: []rbac.Permission{"vitals:read", "vitals:write"}, RequireAll: true},
			expected: StateAuthorized,
		},
		{
			name: "role satisfied but permission missing",
			req: Requirement{
				Roles:       []rbac.Role{rbac.RoleNurse},
				Permissions: []rbac.Permission{"user:delete"},
			},
			expected: StateUnauthorized,
			reason:   ReasonMissingPermission,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := g.Check(nurse, false, tt.req)
			assert.Equal(t, tt.expected, result.State)
			assert.Equal(t, tt.reason, result.Reason)
		})
	}

	t.Run("multi-role identity aggregates", func(t *testing.T) {
		both := staffUser("x-1", rbac.RoleNurse, rbac.RoleReceptionist)
		result := g.Check(both, false, Requirement{
			Permissions: []rbac.Permission{"vitals:write", "appointment:schedule"},
			RequireAll:  true,
		})
		assert.True(t, result.Authorized())
	})
}

func TestGuard_Authorize(t *testing.T) {
	g, _ := setupGuardTest(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	request := func(user *rbac.UserAttributes, resourceType, action string) *rbac.PermissionRequest {
		return &rbac.PermissionRequest{
			User: user,
			Resource: &rbac.ResourceAttributes{
				Type:       resourceType,
				ID:         "res-1",
				HospitalID: "hosp-1",
				Department: "cardiology",
			},
			Action:      action,
			Environment: rbac.EnvironmentAttributes{Timestamp: at},
		}
	}

	t.Run("granted", func(t *testing.T) {
		result, decision, err := g.Authorize(ctx, request(staffUser("p-1", rbac.RolePhysician), "patient", "read"))
		require.NoError(t, err)
		assert.True(t, result.Authorized())
		assert.True(t, decision.Allowed)
		assert.Equal(t, rbac.RuleRBAC, decision.Rule)
	})

	t.Run("denied with disclosable reason", func(t *testing.T) {
		result, decision, err := g.Authorize(ctx, request(staffUser("r-1", rbac.RoleReceptionist), "prescription", "create"))
		require.NoError(t, err)
		assert.Equal(t, StateUnauthorized, result.State)
		assert.Equal(t, rbac.ReasonRBACDenied, result.Reason)
		assert.False(t, decision.Allowed)
	})

	t.Run("denied reason withheld", func(t *testing.T) {
		req := request(staffUser("p-1", rbac.RolePhysician), "patient", "read")
		req.Resource.HospitalID = "hosp-2"

		result, decision, err := g.Authorize(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, ReasonAccessDenied, result.Reason)
		assert.Equal(t, rbac.ReasonTenantIsolation, decision.Reason)
	})

	t.Run("malformed request", func(t *testing.T) {
		req := request(staffUser("p-1", rbac.RolePhysician), "patient", "")
		_, _, err := g.Authorize(ctx, req)
		require.Error(t, err)
		assert.True(t, rbac.IsMalformedRequest(err))
	})
}

func TestSafeReason(t *testing.T) {
	tests := []struct {
		reason   string
		expected string
	}{
		{rbac.ReasonOutOfDepartment, rbac.ReasonOutOfDepartment},
		{rbac.ReasonDeviceNotPermitted, rbac.ReasonDeviceNotPermitted},
		{rbac.ReasonRBACDenied, rbac.ReasonRBACDenied},
		{ReasonMissingPermission, ReasonMissingPermission},
		{rbac.ReasonTenantIsolation, ReasonAccessDenied},
		{rbac.ReasonAttributeLookup, ReasonAccessDenied},
		{rbac.ReasonEmergencyAudit, ReasonAccessDenied},
		{"department cardiology != oncology", ReasonAccessDenied},
		{"", ReasonAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.expected, SafeReason(tt.reason))
		})
	}
}
