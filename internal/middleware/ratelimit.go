package middleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sakif/cjudge/internal/metrics"
)

// RateLimiter hands every client IP its own token bucket.
//
// TOKEN BUCKET IN ONE PARAGRAPH:
// A bucket holds up to `burst` tokens and refills at `rps` tokens per second.
// Each request takes one token. An empty bucket means 429. A client that
// pauses gets its burst back; a client that hammers is held to the steady rate.
//
// Compiling and running C is expensive, so only /api/c/* sits behind this.
type RateLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor

	now func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimitResponse is the 429 body.
type rateLimitResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retryAfter"` // seconds
}

// NewRateLimiter allows each client IP rps requests per second on average,
// with bursts of up to burst requests.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

func (rl *RateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter
}

// Middleware rejects a request with 429 when its IP has no token left.
// Put it after chimiddleware.RealIP so RemoteAddr is the client, not the proxy.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := rl.now()
		lim := rl.limiterFor(clientIP(r), now)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.burst))

		res := lim.ReserveN(now, 1)
		delay := res.DelayFrom(now)
		if !res.OK() || delay > 0 {
			res.CancelAt(now)
			metrics.RateLimitHits.Inc()

			retryAfter := int(math.Ceil(delay.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(rateLimitResponse{
				Error:      "rate_limit_exceeded",
				Message:    "Too many requests, please try again later",
				RetryAfter: retryAfter,
			})
			return
		}

		remaining := int(math.Max(0, math.Floor(lim.TokensAt(now))))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		next.ServeHTTP(w, r)
	})
}

// Cleanup forgets IPs idle for longer than maxIdle, every interval, until
// ctx is done. Without it the map grows with every client ever seen.
func (rl *RateLimiter) Cleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evictIdle(maxIdle)
		}
	}
}

func (rl *RateLimiter) evictIdle(maxIdle time.Duration) int {
	cutoff := rl.now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	evicted := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
			evicted++
		}
	}
	return evicted
}

// clientIP strips the port. RealIP may have already replaced RemoteAddr
// with a bare address, so a split failure means "use it as is".
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
