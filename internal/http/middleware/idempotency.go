package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's idempotency key on unsafe
// requests. Retrying a submission with the same key never charges twice.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the key validated by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether a still-valid record exists for this request's key.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope derives the namespace of a key from the request. Keys are
	// unique per (user, scope). Nil scopes by route and :id parameter.
	Scope func(*gin.Context) string
}

// IdempotencyLookup reports whether a completed, unexpired request exists
// for (userID, scope, key). Errors are treated as "no replay".
type IdempotencyLookup func(ctx context.Context, userID, scope, key string, now time.Time) (bool, error)

// RouteScope namespaces keys by matched route and :id parameter.
func RouteScope(c *gin.Context) string { return c.FullPath() + "#" + c.Param("id") }

// IdempotencyValidator validates the Idempotency-Key header when present and
// stashes it for handlers. If lookup finds a prior result the request is
// flagged as a replay and exempted from rate limiting. The handler still
// serves the replay itself. An invalid key is rejected with 400.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}
	scope := opts.Scope
	if scope == nil {
		scope = RouteScope
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if uid := UserIDFrom(c); uid != "" {
				if ok, _ := lookup(c.Request.Context(), uid, scope(c), key, time.Now().UTC()); ok {
					c.Set(ctxKeyIdemReplay, true)
					c.Set(ctxKeyRateBypass, true)
				}
			}
		}
		c.Next()
	}
}
