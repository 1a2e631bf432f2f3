package shield

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

type bucket struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// RateLimiter allows each client IP a fixed number of requests per window.
type RateLimiter struct {
	max     int
	window  time.Duration
	exclude []string
	now     func() time.Time

	buckets sync.Map
	mu      sync.Mutex
	lastGC  time.Time
}

// NewRateLimiter creates a limiter of limit requests per window, one minute
// when window is zero.
func NewRateLimiter(limit int, window time.Duration, excludePrefixes ...string) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{max: limit, window: window, exclude: excludePrefixes, now: time.Now}
}

func (rl *RateLimiter) allow(ip string) bool {
	now := rl.now()
	rl.gc(now)

	val, loaded := rl.buckets.LoadOrStore(ip, &bucket{count: 1, resetAt: now.Add(rl.window)})
	if !loaded {
		return true
	}
	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.After(b.resetAt) {
		b.count = 1
		b.resetAt = now.Add(rl.window)
		return true
	}
	b.count++
	return b.count <= rl.max
}

// gc drops expired buckets at most once per window.
func (rl *RateLimiter) gc(now time.Time) {
	rl.mu.Lock()
	if now.Sub(rl.lastGC) < rl.window {
		rl.mu.Unlock()
		return
	}
	rl.lastGC = now
	rl.mu.Unlock()
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*bucket)
		b.mu.Lock()
		expired := now.After(b.resetAt)
		b.mu.Unlock()
		if expired {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// Middleware answers 429 once a client is over its budget.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range rl.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}
		ip := ExtractIP(r)
		if rl.allow(ip) {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("ratelimit: request blocked", "ip", ip, "path", r.URL.Path)
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the client IP from X-Forwarded-For or RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
