package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's dedup key on unsafe requests.
// Webhook bridges reuse the key across delivery retries so a flaky network
// cannot double-route a message.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderSenderID identifies the platform-side sender on webhook-style
// requests. It scopes both idempotency keys and rate-limit buckets.
const HeaderSenderID = "X-Sender-ID"

// Context keys stashing idempotency state; read via the accessors below.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
// Handlers should use this instead of re-reading the header.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether this request repeats an operation that already
// completed under the same (sender, route, key).
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions tunes header validation. MaxLen caps key length
// (values <= 0 mean 200); Pattern restricts the alphabet, defaulting to a
// token-ish set: letters, digits, ._~-:
type IdempotencyOptions struct {
	MaxLen  int
	Pattern *regexp.Regexp
}

// IdempotencyLookup answers whether a still-valid completed request exists
// for (senderID, scope, key) at now. Scope is the route path so identical
// keys on different endpoints never collide. Lookup errors are treated as
// "no replay"; deduplication must never block live traffic.
type IdempotencyLookup func(ctx context.Context, senderID, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present,
// stashes it for handlers, and consults lookup for a prior completion. On a
// hit it flags the context as a replay and as rate-limit bypass; serving the
// stored result stays the handler's job. Requests without the header pass
// through untouched, and a malformed header is rejected with a 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"code":    "bad_idempotency_key",
				"message": "invalid Idempotency-Key",
			})
			return
		}

		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			sender := senderIDFromCtx(c)
			if exists, _ := lookup(c.Request.Context(), sender, c.FullPath(), key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// senderIDFromCtx reads the sender identity from X-Sender-ID, falling back to
// the client IP so anonymous callers still get per-origin scoping.
func senderIDFromCtx(c *gin.Context) string {
	if v := strings.TrimSpace(c.GetHeader(HeaderSenderID)); v != "" {
		return v
	}
	return c.ClientIP()
}
