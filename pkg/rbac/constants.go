package rbac

// Seven-role closed set for the hospital information system
const (
	RoleAdministrator Role = "administrator"
	RolePhysician     Role = "physician"
	RoleNurse         Role = "nurse"
	RoleReceptionist  Role = "receptionist"
	RolePharmacist    Role = "pharmacist"
	RoleLabTechnician Role = "lab_technician"
	RolePatient       Role = "patient"
)

// AllRoles lists the closed role set in descending authority order
var AllRoles = []Role{
	RoleAdministrator,
	RolePhysician,
	RolePharmacist,
	RoleNurse,
	RoleLabTechnician,
	RoleReceptionist,
	RolePatient,
}

// Permission categories (resource types)
const (
	CategoryUser         = "user"
	CategoryRole         = "role"
	CategorySettings     = "settings"
	CategoryAudit        = "audit"
	CategoryReport       = "report"
	CategoryPatient      = "patient"
	CategoryRecord       = "record"
	CategoryVitals       = "vitals"
	CategoryPrescription = "prescription"
	CategoryMedication   = "medication"
	CategoryInventory    = "inventory"
	CategoryLab          = "lab"
	CategoryAppointment  = "appointment"
	CategoryBilling      = "billing"
	CategoryMessage      = "message"
)

// Action types
const (
	ActionCreate     = "create"
	ActionRead       = "read"
	ActionView       = "view"
	ActionList       = "list"
	ActionDownload   = "download"
	ActionWrite      = "write"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionProcess    = "process"
	ActionPay        = "pay"
	ActionOrder      = "order"
	ActionDispense   = "dispense"
	ActionAdminister = "administer"
	ActionSchedule   = "schedule"
	ActionCancel     = "cancel"
	ActionSend       = "send"
	ActionExport     = "export"
)

// ReadActions are the read-class actions honoured by the self-access rule
var ReadActions = map[string]bool{
	ActionRead:     true,
	ActionView:     true,
	ActionList:     true,
	ActionDownload: true,
}

// Wildcard is the action suffix covering every action in a category
const Wildcard = "*"

// Decision reasons. These strings are part of the audit trail.
const (
	ReasonNotAuthenticated   = "user not authenticated"
	ReasonInactive           = "user inactive"
	ReasonAttributeLookup    = "attribute lookup failed"
	ReasonTenantIsolation    = "tenant isolation violated"
	ReasonExplicitDeny       = "explicitly denied"
	ReasonEmergencyOverride  = "emergency override"
	ReasonEmergencyAudit     = "emergency audit unavailable"
	ReasonSelfAccess         = "self-access"
	ReasonOutOfDepartment    = "out of department scope"
	ReasonInsufficientClear  = "insufficient clearance"
	ReasonDeviceNotPermitted = "device not permitted"
	ReasonLocationDenied     = "location not permitted"
	ReasonOutsideHours       = "outside permitted hours"
	ReasonRBACGranted        = "RBAC permission granted"
	ReasonRBACDenied         = "RBAC permission denied"
	ReasonCancelled          = "evaluation cancelled"
)

// Rule identifiers attached to every decision
const (
	RuleAuthentication RuleID = "authentication"
	RuleAttributeFetch RuleID = "attribute_fetch"
	RuleHardDeny       RuleID = "hard_deny"
	RuleEmergency      RuleID = "emergency_override"
	RuleOwnership      RuleID = "ownership"
	RuleDepartment     RuleID = "department_scope"
	RuleClearance      RuleID = "clearance"
	RuleContext        RuleID = "context_constraint"
	RuleRBAC           RuleID = "rbac"
)

// Audit event types
const (
	AuditEventEmergencyOverride = "emergency_override"
	AuditEventAccessDenied      = "access_denied"
)

// Error codes for RBAC operations
const (
	ErrorCodeInsufficientPrivileges = "RBAC_001"
	ErrorCodeInvalidRole            = "RBAC_002"
	ErrorCodeMalformedRequest       = "RBAC_003"
	ErrorCodeAttributeLookup        = "RBAC_004"
	ErrorCodeEmergencyAudit         = "RBAC_008"
	ErrorCodeInvalidConfiguration   = "RBAC_011"
	ErrorCodeSystemError            = "RBAC_012"
)

// Defaults
const (
	DefaultAttributeLookupTimeoutMs = 250
	DefaultAuditQueryLimit          = 100
)

// Time formats
const (
	TimeFormatHourMinute = "15:04"
	TimeFormatDateTime   = "2006-01-02T15:04:05Z07:00"
)
