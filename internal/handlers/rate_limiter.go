package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calvinseptyanto-clone/what-i-meant/internal/platform/httpx"
)

// generationLimiter admits or rejects one generation request for a client key. When it
// rejects, it reports how long the client should wait.
type generationLimiter interface {
	allow(key string) (bool, time.Duration)
}

// rateLimitMiddleware rejects clients that exceed the limiter with 429. Clients are
// keyed by remote IP, which RealIP has already resolved from forwarding headers.
func rateLimitMiddleware(limiter generationLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.allow(clientKey(r))
			if ok {
				next.ServeHTTP(w, r)
				return
			}
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many generation requests", http.StatusTooManyRequests).
				WithDetails(map[string]any{"retry_after_seconds": seconds}))
		})
	}
}

func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "anonymous"
	}
	return addr
}

// fixedWindowLimiter counts requests per client in fixed windows that start with the
// client's first request.
type fixedWindowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	windows map[string]clientWindow
}

type clientWindow struct {
	count int
	reset time.Time
}

// newFixedWindowLimiter returns nil when limit or window disables limiting.
func newFixedWindowLimiter(limit int, window time.Duration, clock func() time.Time) *fixedWindowLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &fixedWindowLimiter{
		limit:   limit,
		window:  window,
		clock:   clock,
		windows: make(map[string]clientWindow),
	}
}

func (l *fixedWindowLimiter) allow(key string) (bool, time.Duration) {
	now := l.clock()
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.windows[key]
	if !ok || !now.Before(current.reset) {
		l.evictLocked(now)
		l.windows[key] = clientWindow{count: 1, reset: now.Add(l.window)}
		return true, 0
	}
	if current.count >= l.limit {
		return false, current.reset.Sub(now)
	}
	current.count++
	l.windows[key] = current
	return true, 0
}

// evictLocked drops expired windows so idle clients do not accumulate.
func (l *fixedWindowLimiter) evictLocked(now time.Time) {
	for key, w := range l.windows {
		if !now.Before(w.reset) {
			delete(l.windows, key)
		}
	}
}
