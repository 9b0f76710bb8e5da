package handlers

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tomisteven/cliente-natural-pets/internal/platform/auth"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/httpx"
	"github.com/tomisteven/cliente-natural-pets/internal/platform/requestctx"
)

// rateLimiter admits at most limit calls per key within a fixed window.
type rateLimiter interface {
	// Allow reports whether the call is admitted and, if not, how long until the window resets.
	Allow(key string) (bool, time.Duration)
}

type windowRateLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]rateWindow
}

type rateWindow struct {
	count int
	reset time.Time
}

// newWindowRateLimiter returns nil when limit or window is not positive, which disables limiting.
func newWindowRateLimiter(limit int, window time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowRateLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]rateWindow),
	}
}

func (l *windowRateLimiter) Allow(key string) (bool, time.Duration) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "anonymous"
	}
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.pruneLocked(now)
		l.store[key] = rateWindow{count: 1, reset: now.Add(l.window)}
		return true, 0
	}
	if entry.count >= l.limit {
		return false, entry.reset.Sub(now)
	}
	entry.count++
	l.store[key] = entry
	return true, 0
}

func (l *windowRateLimiter) pruneLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}

// RateLimitMiddleware throttles each caller to perMinute requests. Callers are keyed by Firebase
// uid, then cart session, then remote address, so it belongs after the auth and session middlewares.
// A non-positive perMinute disables throttling.
func RateLimitMiddleware(perMinute int, clock func() time.Time) func(http.Handler) http.Handler {
	limiter := newWindowRateLimiter(perMinute, time.Minute, clock)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowed, retry := limiter.Allow(rateLimitKey(r)); !allowed {
				writeRateLimited(r.Context(), w, retry, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimitKey(r *http.Request) string {
	ctx := r.Context()
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return "uid:" + identity.UID
	}
	if session := requestctx.CartSessionID(ctx); session != "" {
		return "session:" + session
	}
	return "addr:" + r.RemoteAddr
}

func writeRateLimited(ctx context.Context, w http.ResponseWriter, retry time.Duration, message string) {
	seconds := int(math.Ceil(retry.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", message, http.StatusTooManyRequests))
}
