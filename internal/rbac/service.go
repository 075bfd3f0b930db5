package rbac

import (
	"context"

	"github.com/medrex/hms-access/pkg/monitoring"
	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/sirupsen/logrus"
)

// Config holds configuration for the access-control service
type Config struct {
	// CatalogFile, when set, replaces the built-in catalog
	CatalogFile string
	// EmergencyRoles and EmergencyPermissions, when set, replace the catalog allowlists
	EmergencyRoles       []rbac.Role
	EmergencyPermissions []rbac.Permission
	ABAC                 ABACConfig
}

// Service is the facade handed to enforcement points: the synchronous RBAC
// and hierarchy surface of the core engine plus asynchronous ABAC evaluation.
type Service struct {
	*RBACCoreEngine
	abac   *ABACEngine
	logger *logrus.Logger
}

// NewService loads the catalog once and wires the engines
func NewService(config *Config, logger *logrus.Logger, opts ...ABACOption) (*Service, error) {
	if config == nil {
		config = &Config{ABAC: DefaultABACConfig()}
	}
	if logger == nil {
		logger = logrus.New()
	}

	spec := DefaultCatalogSpec()
	if config.CatalogFile != "" {
		loaded, err := LoadCatalogFile(config.CatalogFile)
		if err != nil {
			return nil, rbac.NewRBACErrorWithCause(
				rbac.ErrorTypeInvalidConfiguration,
				rbac.ErrorCodeInvalidConfiguration,
				"Failed to load role catalog",
				err,
			)
		}
		spec = loaded.spec()
	}
	if len(config.EmergencyRoles) > 0 {
		spec.EmergencyRoles = config.EmergencyRoles
	}
	if len(config.EmergencyPermissions) > 0 {
		spec.EmergencyPermissions = config.EmergencyPermissions
	}

	catalog, err := NewCatalog(spec)
	if err != nil {
		return nil, err
	}

	core := NewRBACCoreEngine(catalog)
	abac := NewABACEngine(core, config.ABAC, logger, opts...)

	logger.WithFields(logrus.Fields{
		"roles":             len(catalog.permissions),
		"capabilities":      len(catalog.known),
		"emergency_enabled": abac.config.EnableEmergencyOverride,
		"emergency_roles":   spec.EmergencyRoles,
	}).Info("Access-control catalog loaded")

	return &Service{
		RBACCoreEngine: core,
		abac:           abac,
		logger:         logger,
	}, nil
}

// EvaluateAccess runs the ABAC rule chain for one request
func (s *Service) EvaluateAccess(ctx context.Context, req *rbac.PermissionRequest) (*rbac.PermissionDecision, error) {
	return s.abac.EvaluateAccess(ctx, req)
}

// UserPermissions aggregates the static grants of every role the user holds
func (s *Service) UserPermissions(user *rbac.UserAttributes) rbac.PermissionSet {
	if user == nil {
		return s.MergePermissions(nil)
	}
	return s.MergePermissions(user.Roles)
}

// Check reports the loaded catalog. Emergency override enabled without an
// audit sink is degraded: every override would be refused.
func (s *Service) Check(ctx context.Context) monitoring.HealthCheck {
	check := monitoring.HealthCheck{
		Status: monitoring.HealthStatusHealthy,
		Details: map[string]interface{}{
			"roles":              len(s.catalog.permissions),
			"capabilities":       len(s.catalog.known),
			"emergency_override": s.abac.config.EnableEmergencyOverride,
		},
	}
	if s.abac.config.EnableEmergencyOverride && s.abac.audit == nil {
		check.Status = monitoring.HealthStatusDegraded
		check.Message = "emergency override enabled without an audit sink"
	}
	return check
}

// spec reconstructs the plain-data form of an already validated catalog
func (c *Catalog) spec() CatalogSpec {
	spec := CatalogSpec{
		Capabilities:         c.KnownPermissions(),
		RolePermissions:      make(map[rbac.Role][]rbac.Permission, len(c.permissions)),
		RoleLevels:           make(map[rbac.Role]int, len(c.levels)),
		HardDeny:             append([]rbac.Permission(nil), c.hardDeny...),
		EmergencyPermissions: append([]rbac.Permission(nil), c.emergencyPermissions...),
		ContextConstraints:   append([]rbac.ContextConstraint(nil), c.constraints...),
	}
	for role, perms := range c.permissions {
		spec.RolePermissions[role] = append([]rbac.Permission(nil), perms...)
	}
	for role, level := range c.levels {
		spec.RoleLevels[role] = level
	}
	spec.AdminRoles = setToRoles(c, c.adminRoles)
	spec.HospitalWideRoles = setToRoles(c, c.hospitalWide)
	spec.ManageAllRoles = setToRoles(c, c.manageAll)
	spec.EmergencyRoles = setToRoles(c, c.emergencyRoles)
	for key, allow := range c.overrides {
		spec.ManagementOverrides = append(spec.ManagementOverrides, rbac.ManagementRule{
			Manager: key.manager,
			Target:  key.target,
			Allow:   allow,
		})
	}
	return spec
}

func setToRoles(c *Catalog, set map[rbac.Role]bool) []rbac.Role {
	var roles []rbac.Role
	for role, ok := range set {
		if ok {
			roles = append(roles, role)
		}
	}
	c.sortByLevel(roles)
	return roles
}
