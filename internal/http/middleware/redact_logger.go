package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions adds headers to the built-in mask list of RedactingLogger.
type RedactOptions struct {
	MaskHeaders []string
}

var (
	emailRE  = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	secretRE = regexp.MustCompile(`(?i)\b(token|secret|key|signature)=[^&\s]+`)
)

// Redact scrubs emails and token-like query parameters from s.
func Redact(s string) string {
	if s == "" {
		return s
	}
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return secretRE.ReplaceAllString(s, "$1=[REDACTED]")
}

// RedactingLogger logs each request with request headers and query scrubbed.
// Authorization, Cookie, Set-Cookie, X-Executor-Token and Idempotency-Key
// are masked entirely; the identity email header is reduced to its domain.
// Bodies are never logged.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := map[string]struct{}{
		"authorization":                      {},
		"cookie":                             {},
		"set-cookie":                         {},
		strings.ToLower(HeaderExecutorToken):  {},
		strings.ToLower(HeaderIdempotencyKey): {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		query := Redact(c.Request.URL.RawQuery)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			lk := strings.ToLower(k)
			switch {
			case lk == strings.ToLower(HeaderUserEmail):
				headers[k] = maskEmail(strings.Join(vv, ", "))
			case hasKey(mask, lk):
				headers[k] = "[REDACTED]"
			default:
				headers[k] = Redact(strings.Join(vv, ", "))
			}
		}

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", RequestIDFrom(c)).
			Str("user_id", UserIDFrom(c)).
			Str("method", c.Request.Method).
			Str("path", routeLabel(c)).
			Str("query", query).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

func hasKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}

// maskEmail keeps only the domain: "a.b@example.com" → "***@example.com".
func maskEmail(e string) string {
	if i := strings.LastIndexByte(e, '@'); i >= 0 {
		return "***" + e[i:]
	}
	return "[REDACTED]"
}
