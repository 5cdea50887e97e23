package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc maps a request to its rate-limit bucket.
type KeyFunc func(*gin.Context) string

// KeyByIP buckets requests by client IP.
func KeyByIP(c *gin.Context) string { return "ip:" + c.ClientIP() }

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a process-local token bucket per key. Buckets idle for
// longer than the TTL are swept every sweepEvery lookups.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   KeyFunc
	now   func() time.Time

	ttl        time.Duration
	sweepEvery int

	mu      sync.Mutex
	buckets map[string]*bucket
	lookups int
}

// NewRateLimiter allows rps requests per second with the given burst per key.
// rps == 0 disables limiting.
func NewRateLimiter(rps float64, burst int, key KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(rps)
	if rps == 0 {
		lim = rate.Inf
	}
	if key == nil {
		key = KeyByIP
	}
	return &RateLimiter{
		limit:      lim,
		burst:      burst,
		key:        key,
		now:        time.Now,
		ttl:        10 * time.Minute,
		sweepEvery: 1000,
		buckets:    make(map[string]*bucket),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= rl.sweepEvery {
		rl.lookups = 0
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Len reports the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler rejects requests over the limit with 429 and Retry-After: 1.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limiterFor(rl.key(c)).AllowN(rl.now(), 1) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
