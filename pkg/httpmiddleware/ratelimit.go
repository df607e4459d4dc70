package httpmiddleware

import (
	"context"
	"encoding/json"
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
	Max    int
	Window time.Duration
	// KeyFunc identifies the client. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// window counts requests in the current and previous fixed windows; the
// effective count weights the previous one by its remaining overlap.
type window struct {
	prev, curr float64
	start      time.Time
}

type limiter struct {
	max  float64
	size time.Duration
	now  func() time.Time

	mu      sync.Mutex
	clients map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{
		max:     float64(cfg.Max),
		size:    cfg.Window,
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

// take records a request for key when allowed and reports how many remain
// and when the current window ends.
func (l *limiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, found := l.clients[key]
	if !found {
		w = &window{start: now.Truncate(l.size)}
		l.clients[key] = w
	}
	switch elapsed := now.Sub(w.start); {
	case elapsed >= 2*l.size:
		w.prev, w.curr, w.start = 0, 0, now.Truncate(l.size)
	case elapsed >= l.size:
		w.prev, w.curr, w.start = w.curr, 0, w.start.Add(l.size)
	}

	overlap := 1 - now.Sub(w.start).Seconds()/l.size.Seconds()
	effective := w.prev*math.Max(overlap, 0) + w.curr
	reset = w.start.Add(l.size)
	if effective >= l.max {
		return 0, reset, false
	}
	w.curr++
	return max(int(l.max-effective-1), 0), reset, true
}

func (l *limiter) evict() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.clients {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.clients, key)
		}
	}
}

// RateLimit enforces a per-client sliding window limit. Rejected requests
// get 429 with a JSON body; every response carries X-RateLimit-* headers.
// Idle clients are evicted until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		t := time.NewTicker(2 * l.size)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.evict()
			}
		}
	}()
	return rateLimit(l, cfg)
}

func rateLimit(l *limiter, cfg RateLimitConfig) Middleware {
	keyOf := cfg.KeyFunc
	if keyOf == nil {
		keyOf = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, reset, ok := l.take(keyOf(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				retry := max(reset.Sub(l.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CookieOrIP keys clients by the named cookie, falling back to ClientIP for
// requests that do not carry it yet.
func CookieOrIP(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return "c:" + c.Value
		}
		return "ip:" + ClientIP(r)
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "message": msg})
}
