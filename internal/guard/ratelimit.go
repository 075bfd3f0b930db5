package guard

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	defaultLimiterTTL = 30 * time.Minute
	maxTrackedCallers = 10000
)

// RateLimiter throttles API requests per authenticated caller. At most
// maxTracked buckets are kept; the least recently seen caller is evicted first.
type RateLimiter struct {
	limit rate.Limit
	burst int
	rpm   int
	ttl   time.Duration

	mu      sync.Mutex
	entries *lru.Cache[string, *limiterEntry]
	now     func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows requestsPerMinute per caller with the given burst
func NewRateLimiter(requestsPerMinute, burst int) *RateLimiter {
	return newRateLimiter(requestsPerMinute, burst, maxTrackedCallers)
}

func newRateLimiter(requestsPerMinute, burst, maxTracked int) *RateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	// lru.New only fails on a non-positive size
	entries, _ := lru.New[string, *limiterEntry](max(maxTracked, 1))
	return &RateLimiter{
		limit:   rate.Every(time.Minute / time.Duration(requestsPerMinute)),
		burst:   burst,
		rpm:     requestsPerMinute,
		ttl:     defaultLimiterTTL,
		entries: entries,
		now:     time.Now,
	}
}

// Allow reports whether the caller may make another request now
func (rl *RateLimiter) Allow(userID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, ok := rl.entries.Get(userID)
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.entries.Add(userID, entry)
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Reset forgets the caller's bucket
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries.Remove(userID)
}

// cleanup drops buckets idle for longer than the TTL
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for _, userID := range rl.entries.Keys() {
		if entry, ok := rl.entries.Peek(userID); ok && now.Sub(entry.lastSeen) > rl.ttl {
			rl.entries.Remove(userID)
		}
	}
}

// StartCleanup evicts idle buckets every interval until ctx is done
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.cleanup()
			}
		}
	}()
}

func (rl *RateLimiter) retryAfterSeconds() int {
	seconds := int(math.Ceil(60.0 / float64(rl.rpm)))
	if seconds < 1 {
		return 1
	}
	return seconds
}

// RateLimit throttles authenticated callers; it must run after Authenticate
func (m *Middleware) RateLimit(limiter *RateLimiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok || limiter.Allow(user.ID) {
				next.ServeHTTP(w, r)
				return
			}

			m.logger.Security("rate_limited", user.ID, map[string]interface{}{
				"path": r.URL.Path,
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", limiter.retryAfterSeconds()))
			writeError(w, m.logger, newAPIError(http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded"))
		})
	}
}
