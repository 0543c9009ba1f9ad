package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc maps a request to the identity that owns its token bucket.
type keyFunc func(*gin.Context) string

// KeyBySenderOrIP keys buckets by the platform sender identity carried in the
// X-Sender-ID header, falling back to the client IP when the header is absent
// (staff dashboards and probes). Prefixes keep the two namespaces apart.
func KeyBySenderOrIP() keyFunc {
	return func(c *gin.Context) string {
		if s := c.GetHeader(HeaderSenderID); s != "" {
			return "sender:" + s
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter enforces a per-identity token bucket at the HTTP edge. It is
// process-local: one support backend serves one event, so a distributed
// limiter would be dead weight here. Safe for concurrent use.
//
// Note this is edge abuse control only. The router service applies its own
// per-attendee message throttle with different limits.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	ttl     time.Duration
	lookups uint64
}

// bucketGCEvery is how many lookups pass between idle-bucket sweeps.
const bucketGCEvery = 5000

// NewRateLimiter builds a limiter replenishing rps tokens per second with the
// given burst (coerced to at least 1), keyed by keyFn. Install it with
// Handler().
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		ttl:     10 * time.Minute,
	}
}

// bucketFor returns the limiter for key, creating it on first sight. Every
// bucketGCEvery lookups it sweeps buckets idle for at least ttl; the sweep
// runs before the key is touched so a stale bucket for this very key can
// still be evicted and recreated fresh.
func (rl *RateLimiter) bucketFor(key string) *rate.Limiter {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= bucketGCEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.ttl {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	if b, ok := rl.buckets[key]; ok {
		b.lastSeen = now
		return b.limiter
	}

	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.buckets[key] = &bucket{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether IdempotencyValidator flagged this request as a
// replay of an already-completed one. Replays are served without spending
// tokens so a retrying webhook bridge cannot rate-limit itself out of its own
// confirmation.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler returns the enforcement middleware. Over-limit requests get a 429
// with the standard error envelope and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		if rl.bucketFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}

		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
