package guard

import (
	"net/http"

	"github.com/medrex/hms-access/pkg/logger"
)

// ErrorType classifies an API error for clients
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeAuthorization  ErrorType = "authorization"
	ErrorTypeRateLimited    ErrorType = "rate_limited"
	ErrorTypeUnavailable    ErrorType = "unavailable"
	ErrorTypeInternal       ErrorType = "internal"
)

// Error codes carried in APIError.Code
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	CodeForbidden            = "FORBIDDEN"
	CodeRateLimited          = "RATE_LIMITED"
	CodeNotConfigured        = "NOT_CONFIGURED"
	CodeInternalError        = "INTERNAL_ERROR"
)

// APIError is the JSON body of every non-2xx response
type APIError struct {
	Status  int                    `json:"-"`
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// WithDetail attaches a detail entry and returns e
func (e *APIError) WithDetail(key string, value interface{}) *APIError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func newAPIError(status int, code, message string) *APIError {
	return &APIError{
		Status:  status,
		Type:    errorTypeFor(status),
		Code:    code,
		Message: message,
	}
}

func invalidInput(message string) *APIError {
	return newAPIError(http.StatusBadRequest, CodeInvalidInput, message)
}

func notConfigured(message string) *APIError {
	return newAPIError(http.StatusServiceUnavailable, CodeNotConfigured, message)
}

func internalError(message string) *APIError {
	return newAPIError(http.StatusInternalServerError, CodeInternalError, message)
}

func errorTypeFor(status int) ErrorType {
	switch status {
	case http.StatusBadRequest:
		return ErrorTypeValidation
	case http.StatusUnauthorized:
		return ErrorTypeAuthentication
	case http.StatusForbidden:
		return ErrorTypeAuthorization
	case http.StatusTooManyRequests:
		return ErrorTypeRateLimited
	case http.StatusServiceUnavailable:
		return ErrorTypeUnavailable
	default:
		return ErrorTypeInternal
	}
}

func writeError(w http.ResponseWriter, log *logger.Logger, err *APIError) {
	writeJSONResponse(w, log, err.Status, err)
}
