package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(ip string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/c/run", nil)
	req.RemoteAddr = ip + ":54321"
	return req
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	// Refill is slow enough that nothing comes back during the test.
	rl := NewRateLimiter(0.01, 2)
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, requestFrom("203.0.113.7"))
		require.Equal(t, http.StatusOK, rr.Code, "request %d", i+1)
		assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("203.0.113.7"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var body rateLimitResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "rate_limit_exceeded", body.Error)
	assert.GreaterOrEqual(t, body.RetryAfter, 1)
}

func TestRateLimiter_PerIP(t *testing.T) {
	rl := NewRateLimiter(0.01, 1)
	h := rl.Middleware(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("198.51.100.1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("198.51.100.1"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("198.51.100.2"))
	assert.Equal(t, http.StatusOK, rr.Code, "a different client has its own bucket")
}

func TestRateLimiter_Refill(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("192.0.2.1"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("192.0.2.1"))
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	now = now.Add(time.Second)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, requestFrom("192.0.2.1"))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	h := rl.Middleware(okHandler())

	h.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.1"))
	now = now.Add(5 * time.Minute)
	h.ServeHTTP(httptest.NewRecorder(), requestFrom("192.0.2.2"))

	assert.Equal(t, 1, rl.evictIdle(time.Minute))
	assert.Len(t, rl.visitors, 1)
	assert.Contains(t, rl.visitors, "192.0.2.2")
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	req.RemoteAddr = "10.0.0.1:8080"
	assert.Equal(t, "10.0.0.1", clientIP(req))

	// chimiddleware.RealIP stores a bare address.
	req.RemoteAddr = "10.0.0.2"
	assert.Equal(t, "10.0.0.2", clientIP(req))
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := chimiddleware.RequestID(Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/c/judge", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "/api/c/judge", entry["path"])
	assert.Equal(t, float64(http.StatusServiceUnavailable), entry["status"])
	assert.Equal(t, float64(4), entry["bytes"])
	assert.NotEmpty(t, entry["request_id"])
}
