package guard

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/medrex/hms-access/pkg/rbac"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(60, 3)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("user-1"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("user-1"))

	t.Run("callers are independent", func(t *testing.T) {
		assert.True(t, rl.Allow("user-2"))
	})

	t.Run("refills over time", func(t *testing.T) {
		now = now.Add(time.Second)
		assert.True(t, rl.Allow("user-1"))
		assert.False(t, rl.Allow("user-1"))
	})

	t.Run("reset", func(t *testing.T) {
		rl.Reset("user-1")
		assert.True(t, rl.Allow("user-1"))
	})
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("user-1")
	now = now.Add(10 * time.Minute)
	rl.Allow("user-2")

	now = now.Add(25 * time.Minute)
	rl.cleanup()

	assert.False(t, rl.entries.Contains("user-1"))
	assert.True(t, rl.entries.Contains("user-2"))
}

func TestRateLimiter_EvictsLeastRecentCaller(t *testing.T) {
	rl := newRateLimiter(60, 1, 2)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("user-1"))
	require.True(t, rl.Allow("user-2"))
	require.False(t, rl.Allow("user-1"))

	rl.Allow("user-3")
	assert.Equal(t, 2, rl.entries.Len())
	assert.False(t, rl.entries.Contains("user-2"))
	assert.True(t, rl.entries.Contains("user-1"))
}

func TestRateLimiter_StartCleanupStops(t *testing.T) {
	rl := NewRateLimiter(60, 1)
	ctx, cancel := context.WithCancel(context.Background())
	rl.StartCleanup(ctx, time.Millisecond)
	cancel()
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, 1, rl.burst)
	assert.Equal(t, 60, rl.retryAfterSeconds())

	assert.Equal(t, 1, NewRateLimiter(600, 10).retryAfterSeconds())
}

func TestHandler_RateLimited(t *testing.T) {
	f := setupHandlerTest(t, WithRateLimiter(NewRateLimiter(1, 1)))
	caller := staffUser("n-1", rbac.RoleNurse)

	rr := f.do(t, http.MethodGet, "/api/v1/me/permissions", caller, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = f.do(t, http.MethodGet, "/api/v1/me/permissions", caller, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	rr = f.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}
