package guard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorTypeFor(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorType
	}{
		{http.StatusBadRequest, ErrorTypeValidation},
		{http.StatusUnauthorized, ErrorTypeAuthentication},
		{http.StatusForbidden, ErrorTypeAuthorization},
		{http.StatusTooManyRequests, ErrorTypeRateLimited},
		{http.StatusServiceUnavailable, ErrorTypeUnavailable},
		{http.StatusInternalServerError, ErrorTypeInternal},
		{http.StatusTeapot, ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, errorTypeFor(tt.status))
		})
	}
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, testLogger(), invalidInput("limit must be a non-negative integer").WithDetail("field", "limit"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["type"])
	assert.Equal(t, CodeInvalidInput, body["code"])
	assert.Equal(t, map[string]interface{}{"field": "limit"}, body["details"])
	assert.NotContains(t, body, "Status")
}

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "NOT_CONFIGURED: audit store not configured", notConfigured("audit store not configured").Error())
	assert.Equal(t, http.StatusInternalServerError, internalError("boom").Status)
}
