package rbac

import (
	"sort"
	"strings"
	"time"
)

// Role is a tag from the closed role set
type Role string

// Valid reports whether r belongs to the closed role set
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// RuleID names the rule that produced a decision
type RuleID string

// Permission is a capability token of the form category:action
type Permission string

// NewPermission joins a category and an action into a token
func NewPermission(category, action string) Permission {
	return Permission(category + ":" + action)
}

// Category returns the part before the first colon, or "" for malformed tokens
func (p Permission) Category() string {
	idx := strings.IndexByte(string(p), ':')
	if idx <= 0 {
		return ""
	}
	return string(p)[:idx]
}

// Action returns the part after the first colon, or "" for malformed tokens
func (p Permission) Action() string {
	idx := strings.IndexByte(string(p), ':')
	if idx < 0 || idx == len(p)-1 {
		return ""
	}
	return string(p)[idx+1:]
}

// Valid reports whether p has a non-empty category and action
func (p Permission) Valid() bool {
	return p.Category() != "" && p.Action() != ""
}

// IsWildcard reports whether p is a category:* grant
func (p Permission) IsWildcard() bool {
	return p.Valid() && p.Action() == Wildcard
}

// WildcardFor returns the category:* token for p's category
func (p Permission) WildcardFor() Permission {
	return NewPermission(p.Category(), Wildcard)
}

// Covers reports whether holding p grants other
func (p Permission) Covers(other Permission) bool {
	if !p.Valid() || !other.Valid() {
		return false
	}
	if p == other {
		return true
	}
	return p.IsWildcard() && p.Category() == other.Category()
}

// ClearanceLevel is an ordered clearance / sensitivity label
type ClearanceLevel string

const (
	ClearanceLow    ClearanceLevel = "low"
	ClearanceMedium ClearanceLevel = "medium"
	ClearanceHigh   ClearanceLevel = "high"
)

// Rank returns 1..3 for known levels and 0 otherwise
func (c ClearanceLevel) Rank() int {
	switch ClearanceLevel(strings.ToLower(string(c))) {
	case ClearanceLow:
		return 1
	case ClearanceMedium:
		return 2
	case ClearanceHigh:
		return 3
	default:
		return 0
	}
}

// AccessLevel is the operator-asserted access level of a request
type AccessLevel string

const (
	AccessLevelNormal   AccessLevel = "normal"
	AccessLevelElevated AccessLevel = "elevated"
)

// UserAttributes is a per-request snapshot of the caller
type UserAttributes struct {
	ID          string         `json:"id"`
	Roles       []Role         `json:"roles"`
	PrimaryRole Role           `json:"primary_role,omitempty"`
	HospitalID  string         `json:"hospital_id"`
	Department  string         `json:"department,omitempty"`
	Seniority   int            `json:"seniority,omitempty"`
	Clearance   ClearanceLevel `json:"clearance"`
	Active      bool           `json:"active"`
	LastLogin   *time.Time     `json:"last_login,omitempty"`
	DeviceType  string         `json:"device_type,omitempty"`
	Location    string         `json:"location,omitempty"`
}

// HasRole reports whether the user holds role
func (u *UserAttributes) HasRole(role Role) bool {
	if u == nil {
		return false
	}
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EffectivePrimaryRole returns PrimaryRole, falling back to the first held role
func (u *UserAttributes) EffectivePrimaryRole() Role {
	if u == nil {
		return ""
	}
	if u.PrimaryRole != "" {
		return u.PrimaryRole
	}
	if len(u.Roles) > 0 {
		return u.Roles[0]
	}
	return ""
}

// ResourceAttributes describes the target of an action
type ResourceAttributes struct {
	Type        string         `json:"type"`
	ID          string         `json:"id,omitempty"`
	HospitalID  string         `json:"hospital_id,omitempty"`
	Department  string         `json:"department,omitempty"`
	Sensitivity ClearanceLevel `json:"sensitivity,omitempty"`
	PatientID   string         `json:"patient_id,omitempty"`
	OwnerID     string         `json:"owner_id,omitempty"`
}

// EnvironmentAttributes is the request-time context
type EnvironmentAttributes struct {
	Timestamp           time.Time   `json:"timestamp"`
	IPAddress           string      `json:"ip_address,omitempty"`
	DeviceType          string      `json:"device_type,omitempty"`
	Location            string      `json:"location,omitempty"`
	IsEmergency         bool        `json:"is_emergency"`
	AccessLevel         AccessLevel `json:"access_level,omitempty"`
	EmergencyAssertedBy string      `json:"emergency_asserted_by,omitempty"`
	Justification       string      `json:"justification,omitempty"`
}

// PermissionRequest is the input of one ABAC evaluation
type PermissionRequest struct {
	User        *UserAttributes       `json:"user"`
	Resource    *ResourceAttributes   `json:"resource"`
	Action      string                `json:"action"`
	Environment EnvironmentAttributes `json:"environment"`
}

// Permission maps the request onto its resource.Type:action token
func (r *PermissionRequest) Permission() Permission {
	if r == nil || r.Resource == nil {
		return ""
	}
	return NewPermission(r.Resource.Type, r.Action)
}

// PermissionDecision is the outcome of an evaluation
type PermissionDecision struct {
	Allowed       bool      `json:"allowed"`
	Reason        string    `json:"reason"`
	Rule          RuleID    `json:"rule"`
	AuditRequired bool      `json:"audit_required,omitempty"`
	EvaluatedAt   time.Time `json:"evaluated_at"`
}

// PermissionSet holds one flag per known capability
type PermissionSet map[Permission]bool

// Has reports whether p is granted. Unknown permissions are never granted.
func (s PermissionSet) Has(p Permission) bool {
	return s[p]
}

// Granted returns the granted permissions in sorted order
func (s PermissionSet) Granted() []Permission {
	granted := make([]Permission, 0, len(s))
	for p, ok := range s {
		if ok {
			granted = append(granted, p)
		}
	}
	sort.Slice(granted, func(i, j int) bool { return granted[i] < granted[j] })
	return granted
}

// AuditRecord is persisted for every emergency-override decision
type AuditRecord struct {
	ID           string                 `json:"id"`
	EventType    string                 `json:"event_type"`
	UserID       string                 `json:"user_id"`
	Roles        []Role                 `json:"roles"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Action       string                 `json:"action"`
	Reason       string                 `json:"reason"`
	Timestamp    time.Time              `json:"timestamp"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// AuditFilter represents filters for audit log queries
type AuditFilter struct {
	UserID     string    `json:"user_id,omitempty"`
	ResourceID string    `json:"resource_id,omitempty"`
	StartTime  time.Time `json:"start_time,omitempty"`
	EndTime    time.Time `json:"end_time,omitempty"`
	Limit      int       `json:"limit,omitempty"`
	Offset     int       `json:"offset,omitempty"`
}

// TimeRestriction defines a time-of-day access window
type TimeRestriction struct {
	StartTime  string   `json:"start_time" yaml:"start_time"`     // "08:00"
	EndTime    string   `json:"end_time" yaml:"end_time"`         // "18:00"
	DaysOfWeek []string `json:"days_of_week" yaml:"days_of_week"` // ["monday", ...]
	Timezone   string   `json:"timezone" yaml:"timezone"`
}

// ContextConstraint restricts a permission category by device, location and time
type ContextConstraint struct {
	Category         string           `json:"category" yaml:"category"`
	Roles            []Role           `json:"roles,omitempty" yaml:"roles,omitempty"`
	AllowedDevices   []string         `json:"allowed_devices,omitempty" yaml:"allowed_devices,omitempty"`
	AllowedLocations []string         `json:"allowed_locations,omitempty" yaml:"allowed_locations,omitempty"`
	TimeRestriction  *TimeRestriction `json:"time_restriction,omitempty" yaml:"time_restriction,omitempty"`
}

// ManagementRule is an explicit entry in the management override table
type ManagementRule struct {
	Manager Role `json:"manager" yaml:"manager"`
	Target  Role `json:"target" yaml:"target"`
	Allow   bool `json:"allow" yaml:"allow"`
}
