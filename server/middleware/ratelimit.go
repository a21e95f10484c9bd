package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/kbukum/tsengine/errors"
)

// RateLimitConfig configures the rate limiting middleware.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate allowed per client. Zero
	// disables rate limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	// Burst is the number of requests a client may make at once.
	Burst int `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string `yaml:"-" mapstructure:"-"`
}

// maxIdleClient is how long a client's limiter is kept after its last
// request.
const maxIdleClient = 3 * time.Minute

// RateLimit returns middleware that applies a token bucket per client.
// Over-budget requests get 429.
func RateLimit(cfg RateLimitConfig) Middleware {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPBasedKey
	}
	rl := &rateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if !rl.allow(key, time.Now()) {
				writeError(w, apperrors.RateLimited(key))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IPBasedKey extracts the client IP for use as a rate limit key.
func IPBasedKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	sweeps  int
}

func (rl *rateLimiter) allow(key string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	rl.sweeps++
	if rl.sweeps >= 1024 {
		rl.sweeps = 0
		for k, other := range rl.clients {
			if now.Sub(other.lastSeen) > maxIdleClient {
				delete(rl.clients, k)
			}
		}
	}
	return c.limiter.AllowN(now, 1)
}
