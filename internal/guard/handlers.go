package guard

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	internalrbac "github.com/medrex/hms-access/internal/rbac"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/monitoring"
	"github.com/medrex/hms-access/pkg/rbac"
)

// Service identity reported by /health
const (
	serviceName    = "hms-access"
	serviceVersion = "1.0.0"
)

// AuditReader lists emergency-override records for review
type AuditReader interface {
	ListEmergencyAccess(ctx context.Context, filter *rbac.AuditFilter) ([]*rbac.AuditRecord, error)
}

// ProfileStore reads and persists user profiles and role assignments
type ProfileStore interface {
	rbac.AttributeSource
	SaveProfile(ctx context.Context, user *rbac.UserAttributes) error
}

// Handler serves the access-control query surface
type Handler struct {
	service  *internalrbac.Service
	guard    *Guard
	audit    AuditReader
	profiles ProfileStore
	health   *monitoring.HealthManager
	limiter  *RateLimiter
	logger   *logger.Logger
}

// HandlerOption configures optional collaborators of the handler
type HandlerOption func(*Handler)

// WithAuditReader enables GET /api/v1/audit/emergency
func WithAuditReader(audit AuditReader) HandlerOption {
	return func(h *Handler) { h.audit = audit }
}

// WithProfileStore enables PUT /api/v1/users/{id}/profile
func WithProfileStore(profiles ProfileStore) HandlerOption {
	return func(h *Handler) { h.profiles = profiles }
}

// WithHealthManager serves /health from the given manager's checks
func WithHealthManager(health *monitoring.HealthManager) HandlerOption {
	return func(h *Handler) { h.health = health }
}

// WithRateLimiter throttles authenticated API calls per caller
func WithRateLimiter(limiter *RateLimiter) HandlerOption {
	return func(h *Handler) { h.limiter = limiter }
}

// NewHandler creates the HTTP handler set
func NewHandler(service *internalrbac.Service, guard *Guard, log *logger.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		service: service,
		guard:   guard,
		logger:  log,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.health == nil {
		h.health = monitoring.NewHealthManager(serviceName, serviceVersion)
	}
	return h
}

// RegisterRoutes registers the handler routes with the router
func (h *Handler) RegisterRoutes(r *mux.Router, mw *Middleware) {
	r.HandleFunc("/health", h.health.HTTPHandler()).Methods(http.MethodGet)
	r.HandleFunc("/health/live", h.health.LivenessHandler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(mw.Authenticate)
	if h.limiter != nil {
		api.Use(mw.RateLimit(h.limiter))
	}

	api.HandleFunc("/access/evaluate", h.handleEvaluate).Methods(http.MethodPost)
	api.HandleFunc("/permissions/check", h.handleCheckPermissions).Methods(http.MethodPost)
	api.HandleFunc("/me/permissions", h.handleMyPermissions).Methods(http.MethodGet)

	roles := api.PathPrefix("/roles").Subrouter()
	roles.HandleFunc("/{role}/permissions", h.handleRolePermissions).Methods(http.MethodGet)
	roles.HandleFunc("/{role}/level", h.handleRoleLevel).Methods(http.MethodGet)
	roles.HandleFunc("/{role}/accessible", h.handleAccessibleRoles).Methods(http.MethodGet)
	roles.HandleFunc("/{role}/admin-panel", h.handleAdminPanel).Methods(http.MethodGet)
	roles.HandleFunc("/{manager}/manage/{target}", h.handleCanManage).Methods(http.MethodGet)
	roles.HandleFunc("/{higher}/outranks/{lower}", h.handleOutranks).Methods(http.MethodGet)

	api.Handle("/audit/emergency", mw.Require(Requirement{
		Permissions: []rbac.Permission{rbac.NewPermission(rbac.CategoryAudit, rbac.ActionRead)},
	})(http.HandlerFunc(h.handleListEmergencyAccess))).Methods(http.MethodGet)

	api.Handle("/users/{id}/profile", mw.Require(Requirement{
		Permissions: []rbac.Permission{rbac.NewPermission(rbac.CategoryUser, rbac.ActionUpdate)},
	})(http.HandlerFunc(h.handleSaveProfile))).Methods(http.MethodPut)
}

type evaluateRequest struct {
	Resource    *rbac.ResourceAttributes   `json:"resource"`
	Action      string                     `json:"action"`
	Environment rbac.EnvironmentAttributes `json:"environment"`
}

type evaluateResponse struct {
	State         State       `json:"state"`
	Allowed       bool        `json:"allowed"`
	Reason        string      `json:"reason"`
	Rule          rbac.RuleID `json:"rule"`
	AuditRequired bool        `json:"audit_required,omitempty"`
	EvaluatedAt   time.Time   `json:"evaluated_at"`
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())

	var body evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, invalidInput("invalid request body"))
		return
	}

	env := body.Environment
	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now()
	}
	if env.IPAddress == "" {
		env.IPAddress = clientIP(r)
	}
	if env.DeviceType == "" {
		env.DeviceType = user.DeviceType
	}
	if env.Location == "" {
		env.Location = user.Location
	}
	env.EmergencyAssertedBy = ""
	if env.IsEmergency {
		operator, ok := EmergencyOperatorFromContext(r.Context())
		if ok {
			env.EmergencyAssertedBy = operator
		} else {
			h.logger.Security("emergency_not_asserted", user.ID, map[string]interface{}{
				"resource_type": resourceType(body.Resource),
				"action":        body.Action,
			})
			env.IsEmergency = false
		}
	}

	req := &rbac.PermissionRequest{
		User:        user,
		Resource:    body.Resource,
		Action:      body.Action,
		Environment: env,
	}

	result, decision, err := h.guard.Authorize(r.Context(), req)
	if err != nil {
		if rbacErr, ok := rbac.GetRBACError(err); ok && rbac.IsMalformedRequest(err) {
			writeError(w, h.logger, invalidInput(rbacErr.Message).WithDetail("field", rbacErr.Field))
			return
		}
		h.logger.WithContext(r.Context()).WithError(err).Error("Access evaluation failed")
		writeError(w, h.logger, internalError("access evaluation failed"))
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, &evaluateResponse{
		State:         result.State,
		Allowed:       decision.Allowed,
		Reason:        SafeReason(decision.Reason),
		Rule:          decision.Rule,
		AuditRequired: decision.AuditRequired,
		EvaluatedAt:   decision.EvaluatedAt,
	})
}

type checkPermissionsRequest struct {
	Role        rbac.Role         `json:"role"`
	Permissions []rbac.Permission `json:"permissions"`
	Mode        string            `json:"mode"`
}

func (h *Handler) handleCheckPermissions(w http.ResponseWriter, r *http.Request) {
	var body checkPermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, invalidInput("invalid request body"))
		return
	}

	var granted bool
	switch body.Mode {
	case "", "any":
		granted = h.service.HasAnyPermission(body.Role, body.Permissions)
	case "all":
		granted = h.service.HasAllPermissions(body.Role, body.Permissions)
	default:
		writeError(w, h.logger, invalidInput("mode must be any or all"))
		return
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"role":    body.Role,
		"granted": granted,
	})
}

func (h *Handler) handleMyPermissions(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	set := h.service.UserPermissions(user)

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"user_id":     user.ID,
		"roles":       user.Roles,
		"permissions": set,
		"granted":     set.Granted(),
	})
}

func (h *Handler) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(mux.Vars(r)["role"])
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"role":        role,
		"permissions": h.service.GetRolePermissions(role),
	})
}

func (h *Handler) handleRoleLevel(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(mux.Vars(r)["role"])
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"role":  role,
		"level": h.service.GetRoleLevel(role),
	})
}

func (h *Handler) handleAccessibleRoles(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(mux.Vars(r)["role"])
	roles := h.service.GetAccessibleRoles(role)
	if roles == nil {
		roles = []rbac.Role{}
	}
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"role":             role,
		"accessible_roles": roles,
	})
}

func (h *Handler) handleAdminPanel(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(mux.Vars(r)["role"])
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"role":    role,
		"allowed": h.service.CanAccessAdminPanel(role),
	})
}

func (h *Handler) handleCanManage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	manager, target := rbac.Role(vars["manager"]), rbac.Role(vars["target"])
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"manager": manager,
		"target":  target,
		"allowed": h.service.CanManageRole(manager, target),
	})
}

func (h *Handler) handleOutranks(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	higher, lower := rbac.Role(vars["higher"]), rbac.Role(vars["lower"])
	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"higher":   higher,
		"lower":    lower,
		"outranks": h.service.ValidateRoleHierarchy(higher, lower),
	})
}

func (h *Handler) handleListEmergencyAccess(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, h.logger, notConfigured("audit store not configured"))
		return
	}

	filter, apiErr := parseAuditFilter(r)
	if apiErr != nil {
		writeError(w, h.logger, apiErr)
		return
	}

	records, err := h.audit.ListEmergencyAccess(r.Context(), filter)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to list emergency access records")
		writeError(w, h.logger, internalError("failed to list audit records"))
		return
	}
	if records == nil {
		records = []*rbac.AuditRecord{}
	}

	writeJSONResponse(w, h.logger, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func parseAuditFilter(r *http.Request) (*rbac.AuditFilter, *APIError) {
	q := r.URL.Query()
	filter := &rbac.AuditFilter{
		UserID:     q.Get("user_id"),
		ResourceID: q.Get("resource_id"),
	}

	if v := q.Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, invalidInput("start must be RFC3339").WithDetail("field", "start")
		}
		filter.StartTime = t
	}
	if v := q.Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, invalidInput("end must be RFC3339").WithDetail("field", "end")
		}
		filter.EndTime = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, invalidInput("limit must be a non-negative integer").WithDetail("field", "limit")
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, invalidInput("offset must be a non-negative integer").WithDetail("field", "offset")
		}
		filter.Offset = n
	}
	return filter, nil
}

func (h *Handler) handleSaveProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		writeError(w, h.logger, notConfigured("profile store not configured"))
		return
	}

	caller, _ := UserFromContext(r.Context())

	var profile rbac.UserAttributes
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, h.logger, invalidInput("invalid request body"))
		return
	}
	profile.ID = mux.Vars(r)["id"]
	if profile.HospitalID == "" {
		profile.HospitalID = caller.HospitalID
	}

	for _, role := range profile.Roles {
		if !role.Valid() {
			writeError(w, h.logger, invalidInput("unknown role: "+string(role)).WithDetail("field", "roles"))
			return
		}
		if !h.canAssign(caller, role) {
			h.denyProfileWrite(w, caller, profile.ID, "role_assignment_denied", ReasonMissingRole, role)
			return
		}
	}

	if caller.HospitalID == "" || profile.HospitalID != caller.HospitalID {
		h.denyProfileWrite(w, caller, profile.ID, "cross_tenant_profile_write", rbac.ReasonTenantIsolation, "")
		return
	}

	// the caller must already be able to administer the account as it stands
	current, err := h.profiles.GetUserAttributes(r.Context(), profile.ID)
	if err != nil {
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to load user profile")
		writeError(w, h.logger, internalError("failed to load profile"))
		return
	}
	if current != nil {
		if current.HospitalID != caller.HospitalID {
			h.denyProfileWrite(w, caller, profile.ID, "cross_tenant_profile_write", rbac.ReasonTenantIsolation, "")
			return
		}
		for _, role := range current.Roles {
			if !h.canAssign(caller, role) {
				h.denyProfileWrite(w, caller, profile.ID, "profile_management_denied", ReasonMissingRole, role)
				return
			}
		}
	}

	if err := h.profiles.SaveProfile(r.Context(), &profile); err != nil {
		if rbac.IsMalformedRequest(err) {
			writeError(w, h.logger, invalidInput("invalid profile"))
			return
		}
		h.logger.WithContext(r.Context()).WithError(err).Error("Failed to save user profile")
		writeError(w, h.logger, internalError("failed to save profile"))
		return
	}

	h.logger.Audit(caller.ID, "profile_update", profile.ID, true, map[string]interface{}{
		"roles": profile.Roles,
	})
	writeJSONResponse(w, h.logger, http.StatusOK, &profile)
}

func (h *Handler) denyProfileWrite(w http.ResponseWriter, caller *rbac.UserAttributes, targetID, event, reason string, role rbac.Role) {
	details := map[string]interface{}{
		"target_user": targetID,
		"reason":      reason,
	}
	if role != "" {
		details["role"] = role
	}
	h.logger.Security(event, caller.ID, details)
	writeError(w, h.logger, newAPIError(http.StatusForbidden, CodeForbidden, SafeReason(reason)))
}

// canAssign reports whether any role the caller holds may manage role
func (h *Handler) canAssign(caller *rbac.UserAttributes, role rbac.Role) bool {
	for _, held := range caller.Roles {
		if h.service.CanManageRole(held, role) {
			return true
		}
	}
	return false
}

func resourceType(res *rbac.ResourceAttributes) string {
	if res == nil {
		return ""
	}
	return res.Type
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
