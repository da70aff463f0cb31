package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/flowdeck/flowdeck/pkg/httputil"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// RateLimitConfig defines login rate limiting configuration
type RateLimitConfig struct {
	// Burst is the number of attempts allowed before throttling kicks in
	Burst int
	// RefillInterval is how often one attempt token is restored
	RefillInterval time.Duration
	// MaxClients bounds how many per-client buckets are tracked at once
	MaxClients int
}

// DefaultLoginRateLimitConfig returns the default limits for the login and
// callback endpoints.
func DefaultLoginRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Burst:          10,
		RefillInterval: 6 * time.Second,
		MaxClients:     4096,
	}
}

type bucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// LoginRateLimiter throttles authentication attempts per client address
// using a token bucket per client. Buckets live in an expiring LRU so
// tracked state stays bounded no matter how many addresses probe the
// endpoint.
type LoginRateLimiter struct {
	config  *RateLimitConfig
	mu      sync.Mutex
	buckets *expirable.LRU[string, *bucket]
	now     func() time.Time
}

// NewLoginRateLimiter creates a rate limiter with the given config, or the
// defaults when nil.
func NewLoginRateLimiter(config *RateLimitConfig) *LoginRateLimiter {
	if config == nil {
		config = DefaultLoginRateLimitConfig()
	}
	ttl := time.Duration(config.Burst) * config.RefillInterval
	return &LoginRateLimiter{
		config:  config,
		buckets: expirable.NewLRU[string, *bucket](config.MaxClients, nil, ttl),
		now:     time.Now,
	}
}

// Allow reports whether the client may make another attempt now.
func (rl *LoginRateLimiter) Allow(clientIP string) bool {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.buckets.Get(clientIP)
	if !ok {
		b = &bucket{tokens: float64(rl.config.Burst), lastRefill: now}
		rl.buckets.Add(clientIP, b)
	}
	rl.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	refill := now.Sub(b.lastRefill).Seconds() / rl.config.RefillInterval.Seconds()
	b.tokens += refill
	if b.tokens > float64(rl.config.Burst) {
		b.tokens = float64(rl.config.Burst)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Handler wraps an HTTP handler with per-client rate limiting.
func (rl *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(httputil.ClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			httputil.WriteErrorMessage(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
