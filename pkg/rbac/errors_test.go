package rbac

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRBACError(t *testing.T) {
	t.Run("message formats", func(t *testing.T) {
		assert.Equal(t, "[RBAC_002] invalid_role: Invalid or unrecognized role", ErrInvalidRole.Error())
		assert.Equal(t,
			"[RBAC_003] malformed_request: Permission request is missing a required attribute (field action)",
			ErrMalformedRequest.WithField("action").Error(),
		)

		cause := errors.New("connection refused")
		err := NewRBACErrorWithCause(ErrorTypeAttributeLookup, ErrorCodeAttributeLookup, "lookup failed", cause)
		assert.Contains(t, err.Error(), "caused by: connection refused")
		assert.Equal(t, cause, errors.Unwrap(err))
	})

	t.Run("derived errors match sentinels", func(t *testing.T) {
		derived := ErrMalformedRequest.WithField("resource")
		assert.True(t, errors.Is(derived, ErrMalformedRequest))
		assert.True(t, IsMalformedRequest(fmt.Errorf("wrapped: %w", derived)))
		assert.False(t, errors.Is(derived, ErrInvalidRole))

		assert.Empty(t, ErrMalformedRequest.Field)
	})

	t.Run("with context copies", func(t *testing.T) {
		err := ErrInvalidRole.WithContext("u-1", "res-1", "save_profile")
		assert.Equal(t, "u-1", err.UserID)
		assert.Equal(t, "res-1", err.ResourceID)
		assert.Equal(t, "save_profile", err.Action)
		assert.Empty(t, ErrInvalidRole.UserID)
	})

	t.Run("get rbac error", func(t *testing.T) {
		got, ok := GetRBACError(fmt.Errorf("outer: %w", ErrEmergencyAudit))
		require.True(t, ok)
		assert.Equal(t, ErrorCodeEmergencyAudit, got.Code)

		_, ok = GetRBACError(errors.New("plain"))
		assert.False(t, ok)
	})
}

func TestValidationErrors(t *testing.T) {
	var errs ValidationErrors
	assert.False(t, errs.HasErrors())
	assert.Equal(t, "no validation errors", errs.Error())

	errs.Add("role_levels", "janitor", "unknown role")
	assert.True(t, errs.HasErrors())
	assert.Equal(t, "validation error for field 'role_levels' with value 'janitor': unknown role", errs.Error())

	errs.Add("hard_deny", "audit", "malformed permission")
	assert.Contains(t, errs.Error(), "2 errors found")
}
