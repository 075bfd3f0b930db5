package rbac

import (
	"errors"
	"fmt"
)

// RBACErrorType represents the type of RBAC error
type RBACErrorType string

const (
	ErrorTypeInsufficientPrivileges RBACErrorType = "insufficient_privileges"
	ErrorTypeInvalidRole            RBACErrorType = "invalid_role"
	ErrorTypeMalformedRequest       RBACErrorType = "malformed_request"
	ErrorTypeAttributeLookup        RBACErrorType = "attribute_lookup"
	ErrorTypeEmergencyAudit         RBACErrorType = "emergency_audit"
	ErrorTypeInvalidConfiguration   RBACErrorType = "invalid_configuration"
	ErrorTypeSystemError            RBACErrorType = "system_error"
)

// RBACError represents an RBAC-specific error with detailed context
type RBACError struct {
	Type       RBACErrorType `json:"type"`
	Code       string        `json:"code"`
	Message    string        `json:"message"`
	UserID     string        `json:"user_id,omitempty"`
	ResourceID string        `json:"resource_id,omitempty"`
	Action     string        `json:"action,omitempty"`
	Field      string        `json:"field,omitempty"`
	Cause      error         `json:"-"`
}

// Error implements the error interface
func (e *RBACError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (caused by: %v)", e.Code, e.Type, msg, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Type, msg)
}

// Unwrap returns the underlying cause of the error
func (e *RBACError) Unwrap() error {
	return e.Cause
}

// Is matches RBAC errors by type and code so derived errors compare equal to the predefined ones
func (e *RBACError) Is(target error) bool {
	t, ok := target.(*RBACError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Code == t.Code
}

// NewRBACError creates a new RBAC error
func NewRBACError(errorType RBACErrorType, code, message string) *RBACError {
	return &RBACError{
		Type:    errorType,
		Code:    code,
		Message: message,
	}
}

// NewRBACErrorWithCause creates a new RBAC error with an underlying cause
func NewRBACErrorWithCause(errorType RBACErrorType, code, message string, cause error) *RBACError {
	return &RBACError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WithContext returns a copy of e carrying request context
func (e *RBACError) WithContext(userID, resourceID, action string) *RBACError {
	cp := *e
	cp.UserID = userID
	cp.ResourceID = resourceID
	cp.Action = action
	return &cp
}

// WithField returns a copy of e naming the offending field
func (e *RBACError) WithField(field string) *RBACError {
	cp := *e
	cp.Field = field
	return &cp
}

// Predefined RBAC errors
var (
	ErrMalformedRequest = NewRBACError(
		ErrorTypeMalformedRequest,
		ErrorCodeMalformedRequest,
		"Permission request is missing a required attribute",
	)

	ErrInvalidRole = NewRBACError(
		ErrorTypeInvalidRole,
		ErrorCodeInvalidRole,
		"Invalid or unrecognized role",
	)

	ErrAttributeLookup = NewRBACError(
		ErrorTypeAttributeLookup,
		ErrorCodeAttributeLookup,
		"User attribute lookup failed",
	)

	ErrEmergencyAudit = NewRBACError(
		ErrorTypeEmergencyAudit,
		ErrorCodeEmergencyAudit,
		"Emergency override could not be audited",
	)

	ErrInvalidCatalog = NewRBACError(
		ErrorTypeInvalidConfiguration,
		ErrorCodeInvalidConfiguration,
		"Role catalog is invalid",
	)
)

// IsMalformedRequest reports whether err is a caller-side contract violation
func IsMalformedRequest(err error) bool {
	return errors.Is(err, ErrMalformedRequest)
}

// GetRBACError extracts an RBAC error from a generic error
func GetRBACError(err error) (*RBACError, bool) {
	var rbacErr *RBACError
	ok := errors.As(err, &rbacErr)
	return rbacErr, ok
}

// ValidationError represents a validation error with field-specific details
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error implements the error interface for ValidationError
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' with value '%s': %s", e.Field, e.Value, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("multiple validation errors: %d errors found (first: %s)", len(e), e[0].Error())
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, value, message string) {
	*e = append(*e, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
