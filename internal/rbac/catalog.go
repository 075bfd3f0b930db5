package rbac

import (
	"fmt"
	"sort"
	"time"

	"github.com/medrex/hms-access/pkg/rbac"
)

// CatalogSpec is the plain-data form of the role catalog. It is what the YAML
// catalog file decodes into and what tests use to build fixture catalogs.
type CatalogSpec struct {
	Capabilities         []rbac.Permission               `yaml:"capabilities"`
	RolePermissions      map[rbac.Role][]rbac.Permission `yaml:"role_permissions"`
	RoleLevels           map[rbac.Role]int               `yaml:"role_levels"`
	AdminRoles           []rbac.Role                     `yaml:"admin_roles"`
	HospitalWideRoles    []rbac.Role                     `yaml:"hospital_wide_roles"`
	ManageAllRoles       []rbac.Role                     `yaml:"manage_all_roles"`
	ManagementOverrides  []rbac.ManagementRule           `yaml:"management_overrides"`
	HardDeny             []rbac.Permission               `yaml:"hard_deny"`
	EmergencyRoles       []rbac.Role                     `yaml:"emergency_roles"`
	EmergencyPermissions []rbac.Permission               `yaml:"emergency_permissions"`
	ContextConstraints   []rbac.ContextConstraint        `yaml:"context_constraints"`
}

type managementKey struct {
	manager rbac.Role
	target  rbac.Role
}

// Catalog is the immutable, validated role catalog. Nothing mutates it after
// NewCatalog returns, so it is safe for concurrent readers.
type Catalog struct {
	permissions          map[rbac.Role][]rbac.Permission
	grants               map[rbac.Role]map[rbac.Permission]struct{}
	levels               map[rbac.Role]int
	adminRoles           map[rbac.Role]bool
	hospitalWide         map[rbac.Role]bool
	manageAll            map[rbac.Role]bool
	overrides            map[managementKey]bool
	known                []rbac.Permission
	hardDeny             []rbac.Permission
	emergencyRoles       map[rbac.Role]bool
	emergencyPermissions []rbac.Permission
	constraints          []rbac.ContextConstraint
}

// NewCatalog validates spec and builds the lookup indexes
func NewCatalog(spec CatalogSpec) (*Catalog, error) {
	if errs := validateCatalogSpec(spec); errs.HasErrors() {
		return nil, rbac.NewRBACErrorWithCause(
			rbac.ErrorTypeInvalidConfiguration,
			rbac.ErrorCodeInvalidConfiguration,
			"Role catalog is invalid",
			errs,
		)
	}

	c := &Catalog{
		permissions:    make(map[rbac.Role][]rbac.Permission, len(spec.RolePermissions)),
		grants:         make(map[rbac.Role]map[rbac.Permission]struct{}, len(spec.RolePermissions)),
		levels:         make(map[rbac.Role]int, len(spec.RoleLevels)),
		adminRoles:     roleSet(spec.AdminRoles),
		hospitalWide:   roleSet(spec.HospitalWideRoles),
		manageAll:      roleSet(spec.ManageAllRoles),
		overrides:      make(map[managementKey]bool, len(spec.ManagementOverrides)),
		emergencyRoles: roleSet(spec.EmergencyRoles),
	}

	knownSet := make(map[rbac.Permission]struct{})
	for _, p := range spec.Capabilities {
		knownSet[p] = struct{}{}
	}

	for role, perms := range spec.RolePermissions {
		list := make([]rbac.Permission, len(perms))
		copy(list, perms)
		c.permissions[role] = list

		index := make(map[rbac.Permission]struct{}, len(perms))
		for _, p := range perms {
			index[p] = struct{}{}
			if !p.IsWildcard() {
				knownSet[p] = struct{}{}
			}
		}
		c.grants[role] = index
	}

	for role, level := range spec.RoleLevels {
		c.levels[role] = level
	}

	for _, rule := range spec.ManagementOverrides {
		c.overrides[managementKey{manager: rule.Manager, target: rule.Target}] = rule.Allow
	}

	c.known = make([]rbac.Permission, 0, len(knownSet))
	for p := range knownSet {
		c.known = append(c.known, p)
	}
	sort.Slice(c.known, func(i, j int) bool { return c.known[i] < c.known[j] })

	c.hardDeny = append([]rbac.Permission(nil), spec.HardDeny...)
	c.emergencyPermissions = append([]rbac.Permission(nil), spec.EmergencyPermissions...)
	c.constraints = append([]rbac.ContextConstraint(nil), spec.ContextConstraints...)

	return c, nil
}

// MustNewCatalog is NewCatalog for static tables known to be valid
func MustNewCatalog(spec CatalogSpec) *Catalog {
	c, err := NewCatalog(spec)
	if err != nil {
		panic(err)
	}
	return c
}

// DefaultCatalog returns the built-in hospital catalog
func DefaultCatalog() *Catalog {
	return MustNewCatalog(DefaultCatalogSpec())
}

// Roles returns the roles that have a permission entry, in descending level order
func (c *Catalog) Roles() []rbac.Role {
	roles := make([]rbac.Role, 0, len(c.permissions))
	for role := range c.permissions {
		roles = append(roles, role)
	}
	c.sortByLevel(roles)
	return roles
}

// KnownPermissions returns every concrete capability flag, sorted
func (c *Catalog) KnownPermissions() []rbac.Permission {
	out := make([]rbac.Permission, len(c.known))
	copy(out, c.known)
	return out
}

func (c *Catalog) knownRole(role rbac.Role) bool {
	_, ok := c.permissions[role]
	return ok
}

func (c *Catalog) granted(role rbac.Role, p rbac.Permission) bool {
	index, ok := c.grants[role]
	if !ok {
		return false
	}
	if _, ok := index[p]; ok {
		return true
	}
	_, ok = index[p.WildcardFor()]
	return ok
}

func (c *Catalog) level(role rbac.Role) (int, bool) {
	level, ok := c.levels[role]
	return level, ok
}

func (c *Catalog) isHospitalWide(roles []rbac.Role) bool {
	for _, r := range roles {
		if c.hospitalWide[r] {
			return true
		}
	}
	return false
}

func (c *Catalog) isEmergencyEligible(roles []rbac.Role) bool {
	for _, r := range roles {
		if c.emergencyRoles[r] {
			return true
		}
	}
	return false
}

func (c *Catalog) emergencyPermitted(p rbac.Permission) bool {
	return coveredByAny(c.emergencyPermissions, p)
}

func (c *Catalog) hardDenied(p rbac.Permission) bool {
	return coveredByAny(c.hardDeny, p)
}

func (c *Catalog) sortByLevel(roles []rbac.Role) {
	sort.SliceStable(roles, func(i, j int) bool {
		li, lj := c.levels[roles[i]], c.levels[roles[j]]
		if li != lj {
			return li > lj
		}
		return roles[i] < roles[j]
	})
}

func coveredByAny(list []rbac.Permission, p rbac.Permission) bool {
	for _, candidate := range list {
		if candidate.Covers(p) {
			return true
		}
	}
	return false
}

func roleSet(roles []rbac.Role) map[rbac.Role]bool {
	set := make(map[rbac.Role]bool, len(roles))
	for _, r := range roles {
		set[r] = true
	}
	return set
}

func validateCatalogSpec(spec CatalogSpec) rbac.ValidationErrors {
	var errs rbac.ValidationErrors

	if len(spec.RolePermissions) == 0 {
		errs.Add("role_permissions", "", "at least one role is required")
	}

	for role, perms := range spec.RolePermissions {
		if role == "" {
			errs.Add("role_permissions", "", "empty role tag")
			continue
		}
		if _, ok := spec.RoleLevels[role]; !ok {
			errs.Add("role_levels", string(role), "role has no hierarchy level")
		}
		seen := make(map[rbac.Permission]bool, len(perms))
		for _, p := range perms {
			if !p.Valid() {
				errs.Add("role_permissions."+string(role), string(p), "permission must have the form category:action")
			}
			if seen[p] {
				errs.Add("role_permissions."+string(role), string(p), "duplicate permission")
			}
			seen[p] = true
		}
	}

	for role := range spec.RoleLevels {
		if _, ok := spec.RolePermissions[role]; !ok {
			errs.Add("role_levels", string(role), "role has no permission entry")
		}
	}

	checkRoles := func(field string, roles []rbac.Role) {
		for _, r := range roles {
			if _, ok := spec.RolePermissions[r]; !ok {
				errs.Add(field, string(r), "unknown role")
			}
		}
	}
	checkRoles("admin_roles", spec.AdminRoles)
	checkRoles("hospital_wide_roles", spec.HospitalWideRoles)
	checkRoles("manage_all_roles", spec.ManageAllRoles)
	checkRoles("emergency_roles", spec.EmergencyRoles)

	for i, rule := range spec.ManagementOverrides {
		field := fmt.Sprintf("management_overrides[%d]", i)
		checkRoles(field, []rbac.Role{rule.Manager, rule.Target})
	}

	checkPerms := func(field string, perms []rbac.Permission) {
		for _, p := range perms {
			if !p.Valid() {
				errs.Add(field, string(p), "permission must have the form category:action")
			}
		}
	}
	checkPerms("capabilities", spec.Capabilities)
	checkPerms("hard_deny", spec.HardDeny)
	checkPerms("emergency_permissions", spec.EmergencyPermissions)

	for i, cc := range spec.ContextConstraints {
		field := fmt.Sprintf("context_constraints[%d]", i)
		if cc.Category == "" {
			errs.Add(field, "", "category is required")
		}
		checkRoles(field+".roles", cc.Roles)
		if tr := cc.TimeRestriction; tr != nil {
			switch {
			case tr.StartTime == "" && tr.EndTime == "":
				if len(tr.DaysOfWeek) == 0 {
					errs.Add(field+".time_restriction", "", "needs a time window or days of week")
				}
			default:
				if _, err := parseClock(tr.StartTime); err != nil {
					errs.Add(field+".start_time", tr.StartTime, err.Error())
				}
				if _, err := parseClock(tr.EndTime); err != nil {
					errs.Add(field+".end_time", tr.EndTime, err.Error())
				}
			}
			for _, day := range tr.DaysOfWeek {
				if !validWeekday(day) {
					errs.Add(field+".days_of_week", day, "expected a full weekday name such as monday")
				}
			}
			if tr.Timezone != "" {
				if _, err := time.LoadLocation(tr.Timezone); err != nil {
					errs.Add(field+".timezone", tr.Timezone, "unknown timezone")
				}
			}
		}
	}

	return errs
}
