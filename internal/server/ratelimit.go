package server

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// pruneThreshold is the client count above which idle entries are dropped.
const pruneThreshold = 4096

// RateLimitConfig bounds what one client may send. A zero limit disables
// that check.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	RequestsPerDay    int
	BytesPerDay       int64
	// TrustProxy takes the client address from X-Forwarded-For.
	TrustProxy bool
}

// RateLimiter tracks per-client request counts and uploaded bytes. Requests
// are counted in a one-minute window opened by the client's first request;
// daily budgets reset at local midnight.
type RateLimiter struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	now     func() time.Time
	clients map[string]*clientUsage
}

type clientUsage struct {
	windowStart time.Time
	inWindow    int

	day         time.Time
	requestsDay int
	bytesDay    int64
}

// NewRateLimiter creates a limiter for cfg. It returns nil when cfg is
// disabled; a nil limiter admits everything.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if !cfg.Enabled {
		return nil
	}
	return &RateLimiter{cfg: cfg, now: time.Now, clients: make(map[string]*clientUsage)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// usage returns the client's counters rolled forward to now. rl.mu is held.
func (rl *RateLimiter) usage(client string, now time.Time) *clientUsage {
	u, ok := rl.clients[client]
	if !ok {
		if len(rl.clients) >= pruneThreshold {
			rl.prune(now)
		}
		u = &clientUsage{windowStart: now, day: startOfDay(now)}
		rl.clients[client] = u
	}
	if now.Sub(u.windowStart) >= time.Minute {
		u.windowStart = now
		u.inWindow = 0
	}
	if today := startOfDay(now); !today.Equal(u.day) {
		u.day = today
		u.requestsDay = 0
		u.bytesDay = 0
	}
	return u
}

func (rl *RateLimiter) prune(now time.Time) {
	today := startOfDay(now)
	for id, u := range rl.clients {
		if now.Sub(u.windowStart) >= time.Minute && u.day.Before(today) {
			delete(rl.clients, id)
		}
	}
}

// Allow counts one request from client or reports the limit it hits.
func (rl *RateLimiter) Allow(client string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	u := rl.usage(client, now)
	if rl.cfg.RequestsPerMinute > 0 && u.inWindow >= rl.cfg.RequestsPerMinute {
		return &RateLimitError{
			Limit:      rl.cfg.RequestsPerMinute,
			RetryAfter: u.windowStart.Add(time.Minute).Sub(now),
		}
	}
	if rl.cfg.RequestsPerDay > 0 && u.requestsDay >= rl.cfg.RequestsPerDay {
		return &QuotaExceededError{
			Type:   "requests",
			Limit:  int64(rl.cfg.RequestsPerDay),
			Used:   int64(u.requestsDay),
			Resets: u.day.AddDate(0, 0, 1),
		}
	}
	u.inWindow++
	u.requestsDay++
	return nil
}

// Consume charges n uploaded bytes to client. A charge that would exceed the
// daily budget is refused and not recorded.
func (rl *RateLimiter) Consume(client string, n int64) error {
	if rl == nil || n <= 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	u := rl.usage(client, rl.now())
	if rl.cfg.BytesPerDay > 0 && u.bytesDay+n > rl.cfg.BytesPerDay {
		return &QuotaExceededError{
			Type:   "bytes",
			Limit:  rl.cfg.BytesPerDay,
			Used:   u.bytesDay,
			Resets: u.day.AddDate(0, 0, 1),
		}
	}
	u.bytesDay += n
	return nil
}

// clientID identifies the caller by IP address.
func (rl *RateLimiter) clientID(r *http.Request) string {
	if rl != nil && rl.cfg.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitError is returned when a client exceeds its per-minute budget.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%d requests per minute, retry after %s)",
		e.Limit, e.RetryAfter.Round(time.Second))
}

// QuotaExceededError is returned when a daily request or byte budget is spent.
type QuotaExceededError struct {
	Type   string // "requests" or "bytes"
	Limit  int64
	Used   int64
	Resets time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("daily %s quota exceeded (used %d of %d, resets %s)",
		e.Type, e.Used, e.Limit, e.Resets.Format(time.RFC3339))
}
