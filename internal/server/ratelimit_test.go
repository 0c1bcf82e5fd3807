package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable time source for RateLimiter.now.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestLimiter(cfg RateLimitConfig) (*RateLimiter, *fakeClock) {
	cfg.Enabled = true
	clock := &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.now
	return rl, clock
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerMinute: 2})

	require.NoError(t, rl.Allow("a"))
	require.NoError(t, rl.Allow("a"))

	clock.t = clock.t.Add(20 * time.Second)
	err := rl.Allow("a")
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, 2, rle.Limit)
	assert.Equal(t, 40*time.Second, rle.RetryAfter)

	// other clients have their own budget
	assert.NoError(t, rl.Allow("b"))

	clock.t = clock.t.Add(40 * time.Second)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimiter_DailyRequests(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerDay: 3})

	for range 3 {
		require.NoError(t, rl.Allow("a"))
		clock.t = clock.t.Add(time.Minute)
	}
	err := rl.Allow("a")
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(3), qe.Used)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), qe.Resets)

	clock.t = time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC)
	assert.NoError(t, rl.Allow("a"))
}

func TestRateLimiter_ByteQuota(t *testing.T) {
	rl, _ := newTestLimiter(RateLimitConfig{BytesPerDay: 100})

	require.NoError(t, rl.Consume("a", 60))

	err := rl.Consume("a", 50)
	var qe *QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, "bytes", qe.Type)
	assert.Equal(t, int64(60), qe.Used)

	// the refused charge was not recorded
	assert.NoError(t, rl.Consume("a", 40))
	assert.Error(t, rl.Consume("a", 1))
	assert.NoError(t, rl.Consume("a", 0))
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1})
	assert.Nil(t, rl)

	for range 5 {
		assert.NoError(t, rl.Allow("a"))
		assert.NoError(t, rl.Consume("a", 1<<40))
	}
}

func TestRateLimiter_Prune(t *testing.T) {
	rl, clock := newTestLimiter(RateLimitConfig{RequestsPerMinute: 1})
	for i := range pruneThreshold {
		require.NoError(t, rl.Allow(strconv.Itoa(i)))
	}
	require.Len(t, rl.clients, pruneThreshold)

	clock.t = clock.t.AddDate(0, 0, 1)
	require.NoError(t, rl.Allow("newcomer"))
	assert.Len(t, rl.clients, 1)
}

func TestRateLimiter_ClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5555"
	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")

	direct, _ := newTestLimiter(RateLimitConfig{})
	assert.Equal(t, "203.0.113.7", direct.clientID(req))

	proxied, _ := newTestLimiter(RateLimitConfig{TrustProxy: true})
	assert.Equal(t, "198.51.100.1", proxied.clientID(req))

	var none *RateLimiter
	req.RemoteAddr = "unix"
	assert.Equal(t, "unix", none.clientID(req))
}

func TestRateLimitMiddleware_Detect(t *testing.T) {
	server := newServer(Config{
		CORSOrigin:  "*",
		MaxUploadMB: 1,
		TimeoutSec:  5,
		RateLimit:   RateLimitConfig{Enabled: true, RequestsPerMinute: 1},
	}, &mockPipeline{})
	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, multipartRequest(t, pngBytes(t), nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, multipartRequest(t, pngBytes(t), nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp DetectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "rate limit")

	// preflight is never counted
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/detect", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDetectHandler_ByteQuota(t *testing.T) {
	server := newServer(Config{
		MaxUploadMB: 1,
		TimeoutSec:  5,
		RateLimit:   RateLimitConfig{Enabled: true, BytesPerDay: 10},
	}, &mockPipeline{})

	w := httptest.NewRecorder()
	server.detectHandler(w, multipartRequest(t, pngBytes(t), nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
