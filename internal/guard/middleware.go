package guard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/medrex/hms-access/pkg/logger"
	"github.com/medrex/hms-access/pkg/rbac"
)

type contextKey string

const (
	userContextKey     contextKey = "user_attributes"
	operatorContextKey contextKey = "emergency_operator"
)

// UserFromContext returns the authenticated caller stored by Authenticate
func UserFromContext(ctx context.Context) (*rbac.UserAttributes, bool) {
	user, ok := ctx.Value(userContextKey).(*rbac.UserAttributes)
	return user, ok && user != nil
}

// ContextWithUser stores the caller for downstream handlers
func ContextWithUser(ctx context.Context, user *rbac.UserAttributes) context.Context {
	ctx = logger.ContextWithUserID(ctx, user.ID)
	return context.WithValue(ctx, userContextKey, user)
}

// EmergencyOperatorFromContext returns the operator who asserted an emergency
// for the caller's session, if any
func EmergencyOperatorFromContext(ctx context.Context) (string, bool) {
	operator, ok := ctx.Value(operatorContextKey).(string)
	return operator, ok && operator != ""
}

// ContextWithEmergencyOperator records an operator-asserted emergency
func ContextWithEmergencyOperator(ctx context.Context, operatorID string) context.Context {
	return context.WithValue(ctx, operatorContextKey, operatorID)
}

// Middleware enforces authentication and route requirements on HTTP handlers
type Middleware struct {
	guard     *Guard
	validator *TokenValidator
	logger    *logger.Logger
}

// NewMiddleware creates the HTTP middleware set
func NewMiddleware(guard *Guard, validator *TokenValidator, log *logger.Logger) *Middleware {
	return &Middleware{
		guard:     guard,
		validator: validator,
		logger:    log,
	}
}

// RequestID assigns an X-Request-ID to every request and logs its completion
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)
		r = r.WithContext(logger.ContextWithRequestID(r.Context(), requestID))

		recorder := &responseRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}
		next.ServeHTTP(recorder, r)

		m.logger.HTTPRequest(r.Context(), r.Method, r.URL.Path, r.RemoteAddr, recorder.statusCode, time.Since(start).Milliseconds())
	})
}

// Authenticate validates the bearer token and stores the caller in the request context
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, m.logger, newAPIError(http.StatusUnauthorized, CodeUnauthorized, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, m.logger, newAPIError(http.StatusUnauthorized, CodeUnauthorized, "invalid authorization header format"))
			return
		}

		user, claims, err := m.validator.ValidateClaims(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("Token validation failed")
			writeError(w, m.logger, newAPIError(http.StatusUnauthorized, CodeAuthenticationFailed, "invalid token"))
			return
		}

		if device := r.Header.Get("X-Device-Type"); device != "" {
			user.DeviceType = device
		}
		if location := r.Header.Get("X-Location"); location != "" {
			user.Location = location
		}

		ctx := ContextWithUser(r.Context(), user)
		if operator, ok := claims.EmergencyOperator(); ok {
			ctx = ContextWithEmergencyOperator(ctx, operator)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require wraps a route with a role/permission requirement
func (m *Middleware) Require(req Requirement) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, _ := UserFromContext(r.Context())
			result := m.guard.Check(user, false, req)

			switch result.State {
			case StateAuthorized:
				next.ServeHTTP(w, r)
			default:
				status := http.StatusForbidden
				code := CodeForbidden
				if user == nil {
					status = http.StatusUnauthorized
					code = CodeUnauthorized
				}
				var userID string
				if user != nil {
					userID = user.ID
				}
				m.logger.AccessDecision(r.Context(), userID, r.Method+" "+r.URL.Path, false, result.Reason)
				writeError(w, m.logger, newAPIError(status, code, result.Reason))
			}
		})
	}
}

// writeJSONResponse writes a JSON response
func writeJSONResponse(w http.ResponseWriter, log *logger.Logger, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.WithError(err).Error("Failed to encode JSON response")
	}
}

// responseRecorder captures the status code for request logging
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	r.statusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
