package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Identity keys and headers. An upstream auth middleware may set the context
// keys directly; otherwise the headers injected by the gateway are used.
const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"

	HeaderUserID        = "X-User-ID"
	HeaderUserEmail     = "X-User-Email"
	HeaderExecutorToken = "X-Executor-Token"

	maxUserIDLen = 64
)

// Identity resolves the caller and stores it under "userID" / "userEmail".
// Requests without a user id are rejected with 401 when required is set.
func Identity(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := UserIDFrom(c)
		if uid == "" {
			uid = strings.TrimSpace(c.GetHeader(HeaderUserID))
		}
		email := EmailFrom(c)
		if email == "" {
			email = strings.TrimSpace(c.GetHeader(HeaderUserEmail))
		}

		if len(uid) > maxUserIDLen || strings.ContainsAny(uid, `/\`) {
			abortJSON(c, http.StatusBadRequest, "invalid_user", "invalid user id")
			return
		}
		if uid == "" && required {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing user identity")
			return
		}
		if uid != "" {
			c.Set(userIDKey, uid)
		}
		if email != "" {
			c.Set(userEmailKey, email)
		}
		c.Next()
	}
}

// UserIDFrom returns the caller's user id, or "" when unauthenticated.
func UserIDFrom(c *gin.Context) string {
	v, _ := c.Get(userIDKey)
	return asString(v)
}

// EmailFrom returns the caller's email, or "".
func EmailFrom(c *gin.Context) string {
	v, _ := c.Get(userEmailKey)
	return asString(v)
}

// RequireExecutorToken guards executor and billing callbacks. The
// X-Executor-Token header must equal token; an empty token disables the
// check.
func RequireExecutorToken(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		got := []byte(c.GetHeader(HeaderExecutorToken))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid executor token")
			return
		}
		c.Next()
	}
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}
