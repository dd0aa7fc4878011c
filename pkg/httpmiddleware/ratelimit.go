package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from two fixed windows: the
// previous count is weighted by how much of it the sliding window still
// covers.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

// Limiter is a per-key sliding window rate limiter.
type Limiter struct {
	max    float64
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

// NewLimiter creates a Limiter allowing limit requests per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		max:      float64(limit),
		window:   window,
		counters: make(map[string]*counter),
	}
}

// Allow records a request by key at now. It reports whether the request
// fits the limit, the requests left and when the current window ends.
func (l *Limiter) Allow(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := l.counters[key]
	if c == nil {
		c = &counter{start: now.Truncate(l.window)}
		l.counters[key] = c
	}
	switch elapsed := now.Sub(c.start); {
	case elapsed >= 2*l.window:
		c.start, c.prev, c.curr = now.Truncate(l.window), 0, 0
	case elapsed >= l.window:
		c.start, c.prev, c.curr = c.start.Add(l.window), c.curr, 0
	}

	weight := max(0, 1-now.Sub(c.start).Seconds()/l.window.Seconds())
	used := c.prev*weight + c.curr
	reset = c.start.Add(l.window)
	if used >= l.max {
		return false, 0, reset
	}
	c.curr++
	return true, max(0, int(l.max-used-1)), reset
}

// Evict drops keys idle for two windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.counters)
}

// RateLimit rejects requests over the limit with 429 and a JSON body.
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset. Idle keys are never evicted; see RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimit(cfg, NewLimiter(cfg.Max, cfg.Window))
}

// RateLimitWithCleanup is RateLimit with a goroutine evicting idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.Evict(now)
			}
		}
	}()
	return rateLimit(cfg, l)
}

func rateLimit(cfg RateLimitConfig, l *Limiter) Middleware {
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			ok, remaining, reset := l.Allow(keyOf(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(0, reset.Sub(now))
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For address, then X-Real-IP, then
// the host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
