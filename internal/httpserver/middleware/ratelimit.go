package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// RateLimiter limits requests per client with a token bucket. Stale
// buckets are swept lazily from Allow, so it owns no goroutine.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*bucket
	rate      float64 // tokens per second
	burst     float64
	staleAge  time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter allows perMinute requests per client per minute, with
// bursts of up to burst requests. A burst below one defaults to a tenth
// of perMinute.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if burst < 1 {
		burst = max(perMinute/10, 1)
	}
	return &RateLimiter{
		clients:  make(map[string]*bucket),
		rate:     float64(perMinute) / 60,
		burst:    float64(burst),
		staleAge: 10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request from client may proceed.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	b, ok := rl.clients[client]
	if !ok {
		rl.clients[client] = &bucket{tokens: rl.burst - 1, lastCheck: now}
		return true
	}

	b.tokens = min(rl.burst, b.tokens+now.Sub(b.lastCheck).Seconds()*rl.rate)
	b.lastCheck = now
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// sweep drops buckets idle for longer than staleAge. Callers hold mu.
func (rl *RateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.staleAge {
		return
	}
	rl.lastSweep = now
	for client, b := range rl.clients {
		if now.Sub(b.lastCheck) > rl.staleAge {
			delete(rl.clients, client)
		}
	}
}

// retryAfter is how long until a drained bucket holds one token.
func (rl *RateLimiter) retryAfter() time.Duration {
	if rl.rate <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / rl.rate)
}

// RateLimit returns middleware that rejects clients over the limit with
// 429. RealIP should run before it so RemoteAddr names the client.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(clientIP(r)) {
				secs := int(rl.retryAfter().Seconds() + 0.999)
				w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP strips the port so every connection from a host shares a bucket.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
