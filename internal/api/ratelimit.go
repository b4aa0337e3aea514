package api

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-client token bucket. Each client may burst up to a
// tenth of its per-minute allowance.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
}

// NewRateLimiter allows rpm requests per minute per client.
func NewRateLimiter(rpm int) *RateLimiter {
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		limit:   rate.Limit(float64(rpm) / 60.0),
		burst:   burst,
	}
}

// Allow reports whether a request from client may proceed now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	l, ok := rl.clients[client]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.clients[client] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

// clientKey is the request's remote IP. middleware.RealIP has already
// replaced RemoteAddr from X-Forwarded-For / X-Real-IP when present.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
