package rbac

import (
	"context"
)

// AttributeSource supplies the current profile of a user from an external store.
// A nil profile with a nil error means the user has no backing profile.
type AttributeSource interface {
	GetUserAttributes(ctx context.Context, userID string) (*UserAttributes, error)
}

// AuditSink persists emergency-override decisions for post-hoc review
type AuditSink interface {
	RecordEmergencyAccess(ctx context.Context, record *AuditRecord) error
}

// Evaluator is the ABAC query surface consumed by enforcement points
type Evaluator interface {
	EvaluateAccess(ctx context.Context, req *PermissionRequest) (*PermissionDecision, error)
}

// PermissionChecker is the synchronous RBAC query surface
type PermissionChecker interface {
	HasPermission(role Role, permission Permission) bool
	HasAnyPermission(role Role, permissions []Permission) bool
	HasAllPermissions(role Role, permissions []Permission) bool
	GetRolePermissions(role Role) []Permission
}

// HierarchyChecker is the role delegation query surface
type HierarchyChecker interface {
	GetRoleLevel(role Role) int
	CanManageRole(manager, target Role) bool
	CanAccessAdminPanel(role Role) bool
	GetAccessibleRoles(role Role) []Role
	ValidateRoleHierarchy(higher, lower Role) bool
}
