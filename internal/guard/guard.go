package guard

import (
	"context"

	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/rbac"
)

// State is what an enforcement point renders for a guarded view or route
type State string

const (
	StateAuthenticating State = "authenticating"
	StateAuthorized     State = "authorized"
	StateUnauthorized   State = "unauthorized"
)

// Reasons produced by the guard itself
const (
	ReasonMissingRole       = "required role not held"
	ReasonMissingPermission = "required permission not held"
	ReasonAccessDenied      = "access denied"
)

// Requirement describes what a route or component needs from its caller.
// Roles and Permissions are each satisfied by any one entry unless RequireAll is set;
// when both are given, both must be satisfied.
type Requirement struct {
	Roles       []rbac.Role       `json:"roles,omitempty"`
	Permissions []rbac.Permission `json:"permissions,omitempty"`
	RequireAll  bool              `json:"require_all,omitempty"`
}

// Result is the observable outcome of a guard check
type Result struct {
	State  State  `json:"state"`
	Reason string `json:"reason,omitempty"`
}

// Authorized reports whether the guarded content may render
func (r Result) Authorized() bool {
	return r.State == StateAuthorized
}

// Engine is the slice of the access-control service the guard needs
type Engine interface {
	rbac.Evaluator
	HasPermissionAny(roles []rbac.Role, permission rbac.Permission) bool
}

// Guard turns access decisions into the three-state route-guard contract
type Guard struct {
	engine Engine
	logger *logger.Logger
}

// New creates a guard over the access-control engine
func New(engine Engine, log *logger.Logger) *Guard {
	return &Guard{
		engine: engine,
		logger: log,
	}
}

// Check evaluates a static role/permission requirement for the caller.
// While the identity is still loading the result is StateAuthenticating.
func (g *Guard) Check(user *rbac.UserAttributes, loading bool, req Requirement) Result {
	if loading {
		return Result{State: StateAuthenticating}
	}
	if user == nil {
		return unauthorized(rbac.ReasonNotAuthenticated)
	}
	if !user.Active {
		return unauthorized(rbac.ReasonInactive)
	}

	if len(req.Roles) > 0 && !g.rolesSatisfied(user, req) {
		return unauthorized(ReasonMissingRole)
	}
	if len(req.Permissions) > 0 && !g.permissionsSatisfied(user, req) {
		return unauthorized(ReasonMissingPermission)
	}

	return Result{State: StateAuthorized}
}

// Authorize runs a full attribute-based evaluation for component-level
// conditionals. Only malformed requests return an error.
func (g *Guard) Authorize(ctx context.Context, req *rbac.PermissionRequest) (Result, *rbac.PermissionDecision, error) {
	decision, err := g.engine.EvaluateAccess(ctx, req)
	if err != nil {
		return Result{}, nil, err
	}

	var userID string
	if req.User != nil {
		userID = req.User.ID
	}
	g.logger.AccessDecision(ctx, userID, string(req.Permission()), decision.Allowed, decision.Reason)

	if decision.Allowed {
		return Result{State: StateAuthorized}, decision, nil
	}
	return unauthorized(decision.Reason), decision, nil
}

func (g *Guard) rolesSatisfied(user *rbac.UserAttributes, req Requirement) bool {
	for _, role := range req.Roles {
		held := user.HasRole(role)
		if req.RequireAll && !held {
			return false
		}
		if !req.RequireAll && held {
			return true
		}
	}
	return req.RequireAll
}

func (g *Guard) permissionsSatisfied(user *rbac.UserAttributes, req Requirement) bool {
	for _, p := range req.Permissions {
		granted := g.engine.HasPermissionAny(user.Roles, p)
		if req.RequireAll && !granted {
			return false
		}
		if !req.RequireAll && granted {
			return true
		}
	}
	return req.RequireAll
}

func unauthorized(reason string) Result {
	return Result{State: StateUnauthorized, Reason: SafeReason(reason)}
}

// disclosable reasons carry no attribute values and may be shown to the caller
var disclosable = map[string]bool{
	rbac.ReasonNotAuthenticated:   true,
	rbac.ReasonInactive:           true,
	rbac.ReasonOutOfDepartment:    true,
	rbac.ReasonInsufficientClear:  true,
	rbac.ReasonDeviceNotPermitted: true,
	rbac.ReasonLocationDenied:     true,
	rbac.ReasonOutsideHours:       true,
	rbac.ReasonRBACDenied:         true,
	ReasonMissingRole:             true,
	ReasonMissingPermission:       true,
}

// SafeReason returns reason if it may be shown to the caller, otherwise a generic denial
func SafeReason(reason string) string {
	if disclosable[reason] {
		return reason
	}
	return ReasonAccessDenied
}
