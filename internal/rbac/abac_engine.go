package rbac

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/medrex/hms-access/pkg/monitoring"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// ABACConfig holds the tunables of the attribute evaluator
type ABACConfig struct {
	AttributeLookupTimeout      time.Duration
	EnableEmergencyOverride     bool
	DepartmentOverrideClearance rbac.ClearanceLevel
}

// DefaultABACConfig returns the production defaults
func DefaultABACConfig() ABACConfig {
	return ABACConfig{
		AttributeLookupTimeout:      rbac.DefaultAttributeLookupTimeoutMs * time.Millisecond,
		EnableEmergencyOverride:     true,
		DepartmentOverrideClearance: rbac.ClearanceHigh,
	}
}

// ABACEngine evaluates permission requests against user, resource and
// environment attributes, falling back to the static RBAC tables.
type ABACEngine struct {
	core    *RBACCoreEngine
	config  ABACConfig
	logger  *logrus.Logger
	source  rbac.AttributeSource
	audit   rbac.AuditSink
	metrics *Metrics
	monitor *ActivityMonitor
	now     func() time.Time
}

// ABACOption configures optional collaborators of the engine
type ABACOption func(*ABACEngine)

// WithAttributeSource makes the engine refresh user attributes before evaluating
func WithAttributeSource(source rbac.AttributeSource) ABACOption {
	return func(e *ABACEngine) { e.source = source }
}

// WithAuditSink sets the sink that receives emergency-override records
func WithAuditSink(sink rbac.AuditSink) ABACOption {
	return func(e *ABACEngine) { e.audit = sink }
}

// WithMetrics attaches Prometheus decision metrics
func WithMetrics(m *Metrics) ABACOption {
	return func(e *ABACEngine) { e.metrics = m }
}

// WithActivityMonitor feeds every decision to an activity monitor
func WithActivityMonitor(monitor *ActivityMonitor) ABACOption {
	return func(e *ABACEngine) { e.monitor = monitor }
}

// WithClock overrides the time source
func WithClock(now func() time.Time) ABACOption {
	return func(e *ABACEngine) { e.now = now }
}

// NewABACEngine creates an ABAC engine on top of a core engine
func NewABACEngine(core *RBACCoreEngine, config ABACConfig, logger *logrus.Logger, opts ...ABACOption) *ABACEngine {
	if config.AttributeLookupTimeout <= 0 {
		config.AttributeLookupTimeout = rbac.DefaultAttributeLookupTimeoutMs * time.Millisecond
	}
	if config.DepartmentOverrideClearance == "" {
		config.DepartmentOverrideClearance = rbac.ClearanceHigh
	}
	if logger == nil {
		logger = logrus.New()
	}

	engine := &ABACEngine{
		core:   core,
		config: config,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine
}

// EvaluateAccess returns an allow/deny decision with its reason. It returns an
// error only for malformed requests; every other failure resolves to a deny.
func (e *ABACEngine) EvaluateAccess(ctx context.Context, req *rbac.PermissionRequest) (*rbac.PermissionDecision, error) {
	var userID string
	if req != nil && req.User != nil {
		userID = req.User.ID
	}
	ctx, span := monitoring.StartEvaluationSpan(ctx, userID, string(req.Permission()))

	if err := validateRequest(req); err != nil {
		monitoring.EndEvaluationSpan(span, false, "", "", err)
		return nil, err
	}

	start := time.Now()
	at := req.Environment.Timestamp
	if at.IsZero() {
		at = e.now()
	}

	decision := e.evaluate(ctx, req, at)
	decision.EvaluatedAt = at

	// an abandoned check is dropped: no metrics, no activity tracking
	if ctx.Err() != nil {
		decision = deny(rbac.RuleAuthentication, rbac.ReasonCancelled)
		decision.EvaluatedAt = at
		e.logger.WithField("user_id", userID).Debug("Access evaluation cancelled")
		monitoring.EndEvaluationSpan(span, false, string(decision.Rule), decision.Reason, ctx.Err())
		return decision, nil
	}

	e.metrics.ObserveDecision(decision, time.Since(start))
	e.logDecision(req, decision)
	e.monitor.Observe(ctx, req, decision)
	monitoring.EndEvaluationSpan(span, decision.Allowed, string(decision.Rule), decision.Reason, nil)

	return decision, nil
}

func (e *ABACEngine) evaluate(ctx context.Context, req *rbac.PermissionRequest, at time.Time) *rbac.PermissionDecision {
	if ctx.Err() != nil {
		return deny(rbac.RuleAuthentication, rbac.ReasonCancelled)
	}

	user := req.User
	if user == nil {
		return deny(rbac.RuleAuthentication, rbac.ReasonNotAuthenticated)
	}

	if e.source != nil {
		fetched, err := e.lookupUser(ctx, user.ID)
		if err != nil && ctx.Err() != nil {
			return deny(rbac.RuleAuthentication, rbac.ReasonCancelled)
		}
		if err != nil {
			e.metrics.AttributeLookupFailed()
			e.logger.WithError(err).WithField("user_id", user.ID).Warn("User attribute lookup failed")
			return deny(rbac.RuleAttributeFetch, rbac.ReasonAttributeLookup)
		}
		if fetched == nil {
			return deny(rbac.RuleAuthentication, rbac.ReasonNotAuthenticated)
		}
		user = mergeRequestAttributes(fetched, user)
	}

	if !user.Active {
		return deny(rbac.RuleAuthentication, rbac.ReasonInactive)
	}

	return e.applyRules(ctx, req, user, at)
}

// applyRules runs the ordered rule chain; the first rule that matches decides
func (e *ABACEngine) applyRules(ctx context.Context, req *rbac.PermissionRequest, user *rbac.UserAttributes, at time.Time) *rbac.PermissionDecision {
	catalog := e.core.catalog
	res := req.Resource
	env := req.Environment
	p := req.Permission()

	if res.HospitalID != "" && res.HospitalID != user.HospitalID {
		return deny(rbac.RuleHardDeny, rbac.ReasonTenantIsolation)
	}
	if catalog.hardDenied(p) {
		return deny(rbac.RuleHardDeny, rbac.ReasonExplicitDeny)
	}

	if e.config.EnableEmergencyOverride && env.IsEmergency &&
		catalog.isEmergencyEligible(user.Roles) && catalog.emergencyPermitted(p) {
		return e.emergencyOverride(ctx, req, user, at)
	}

	if rbac.ReadActions[strings.ToLower(req.Action)] &&
		((res.PatientID != "" && res.PatientID == user.ID) || (res.OwnerID != "" && res.OwnerID == user.ID)) {
		return allow(rbac.RuleOwnership, rbac.ReasonSelfAccess)
	}

	if res.Department != "" && !strings.EqualFold(res.Department, user.Department) &&
		!catalog.isHospitalWide(user.Roles) &&
		user.Clearance.Rank() < e.config.DepartmentOverrideClearance.Rank() {
		return deny(rbac.RuleDepartment, rbac.ReasonOutOfDepartment)
	}

	if res.Sensitivity != "" {
		required := res.Sensitivity.Rank()
		if required == 0 || user.Clearance.Rank() < required {
			return deny(rbac.RuleClearance, rbac.ReasonInsufficientClear)
		}
	}

	device := firstNonEmpty(env.DeviceType, user.DeviceType)
	location := firstNonEmpty(env.Location, user.Location)
	for _, cc := range catalog.constraints {
		if !constraintApplies(cc, p, user.Roles) {
			continue
		}
		if reason := evaluateConstraint(cc, device, location, at); reason != "" {
			return deny(rbac.RuleContext, reason)
		}
	}

	if e.core.HasPermissionAny(user.Roles, p) {
		return allow(rbac.RuleRBAC, rbac.ReasonRBACGranted)
	}
	return deny(rbac.RuleRBAC, rbac.ReasonRBACDenied)
}

// emergencyOverride writes the mandatory audit record before allowing.
// Without a working audit sink the override is refused.
func (e *ABACEngine) emergencyOverride(ctx context.Context, req *rbac.PermissionRequest, user *rbac.UserAttributes, at time.Time) *rbac.PermissionDecision {
	fields := logrus.Fields{
		"security":      true,
		"event":         rbac.AuditEventEmergencyOverride,
		"user_id":       user.ID,
		"resource_type": req.Resource.Type,
		"resource_id":   req.Resource.ID,
		"action":        req.Action,
	}

	if e.audit == nil {
		e.logger.WithFields(fields).Error("Emergency override refused: no audit sink configured")
		return deny(rbac.RuleEmergency, rbac.ReasonEmergencyAudit)
	}

	record := &rbac.AuditRecord{
		ID:           uuid.New().String(),
		EventType:    rbac.AuditEventEmergencyOverride,
		UserID:       user.ID,
		Roles:        append([]rbac.Role(nil), user.Roles...),
		ResourceType: req.Resource.Type,
		ResourceID:   req.Resource.ID,
		Action:       req.Action,
		Reason:       rbac.ReasonEmergencyOverride,
		Timestamp:    at,
		IPAddress:    req.Environment.IPAddress,
		Metadata: map[string]interface{}{
			"hospital_id":   user.HospitalID,
			"department":    user.Department,
			"patient_id":    req.Resource.PatientID,
			"access_level":  string(req.Environment.AccessLevel),
			"asserted_by":   req.Environment.EmergencyAssertedBy,
			"justification": req.Environment.Justification,
		},
	}

	if err := e.audit.RecordEmergencyAccess(ctx, record); err != nil {
		e.logger.WithFields(fields).WithError(err).Error("Emergency override refused: audit write failed")
		return deny(rbac.RuleEmergency, rbac.ReasonEmergencyAudit)
	}

	e.metrics.EmergencyOverride()
	e.logger.WithFields(fields).WithField("audit_id", record.ID).Warn("Emergency override granted")

	decision := allow(rbac.RuleEmergency, rbac.ReasonEmergencyOverride)
	decision.AuditRequired = true
	return decision
}

// lookupUser fetches the backing profile under the configured deadline.
// A source that ignores its context still cannot hold the caller past the deadline.
func (e *ABACEngine) lookupUser(ctx context.Context, userID string) (*rbac.UserAttributes, error) {
	ctx, span := monitoring.StartLookupSpan(ctx, userID)
	defer span.End()

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.AttributeLookupTimeout)
	defer cancel()

	type result struct {
		user *rbac.UserAttributes
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		u, err := e.source.GetUserAttributes(lookupCtx, userID)
		ch <- result{user: u, err: err}
	}()

	var err error
	select {
	case r := <-ch:
		if r.err == nil {
			return r.user, nil
		}
		err = r.err
	case <-lookupCtx.Done():
		err = lookupCtx.Err()
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	span.RecordError(err)
	return nil, rbac.NewRBACErrorWithCause(rbac.ErrorTypeAttributeLookup, rbac.ErrorCodeAttributeLookup,
		"User attribute lookup failed", err)
}

func (e *ABACEngine) logDecision(req *rbac.PermissionRequest, decision *rbac.PermissionDecision) {
	fields := logrus.Fields{
		"resource_type": req.Resource.Type,
		"resource_id":   req.Resource.ID,
		"action":        req.Action,
		"allowed":       decision.Allowed,
		"rule":          decision.Rule,
		"reason":        decision.Reason,
	}
	if req.User != nil {
		fields["user_id"] = req.User.ID
	}

	if decision.Allowed {
		e.logger.WithFields(fields).Debug("Access granted")
	} else {
		e.logger.WithFields(fields).Info("Access denied")
	}
}

// validateRequest rejects requests that break the calling contract
func validateRequest(req *rbac.PermissionRequest) error {
	if req == nil {
		return rbac.ErrMalformedRequest.WithField("request")
	}
	if req.Resource == nil {
		return rbac.ErrMalformedRequest.WithField("resource")
	}
	if strings.TrimSpace(req.Resource.Type) == "" || strings.Contains(req.Resource.Type, ":") {
		return rbac.ErrMalformedRequest.WithField("resource.type")
	}
	if strings.TrimSpace(req.Action) == "" || strings.Contains(req.Action, ":") {
		return rbac.ErrMalformedRequest.WithField("action")
	}
	if req.User != nil && req.User.ID == "" {
		return rbac.ErrMalformedRequest.WithField("user.id")
	}
	return nil
}

// mergeRequestAttributes lays request-time device/location over the stored profile
func mergeRequestAttributes(stored, request *rbac.UserAttributes) *rbac.UserAttributes {
	merged := *stored
	merged.Roles = append([]rbac.Role(nil), stored.Roles...)
	if merged.ID == "" {
		merged.ID = request.ID
	}
	if request.DeviceType != "" {
		merged.DeviceType = request.DeviceType
	}
	if request.Location != "" {
		merged.Location = request.Location
	}
	return &merged
}

func allow(rule rbac.RuleID, reason string) *rbac.PermissionDecision {
	return &rbac.PermissionDecision{Allowed: true, Rule: rule, Reason: reason}
}

func deny(rule rbac.RuleID, reason string) *rbac.PermissionDecision {
	return &rbac.PermissionDecision{Allowed: false, Rule: rule, Reason: reason}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IsAttributeLookupError reports whether err came from the attribute source
func IsAttributeLookupError(err error) bool {
	return errors.Is(err, rbac.ErrAttributeLookup)
}
