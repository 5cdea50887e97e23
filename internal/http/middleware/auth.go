package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth admits only requests carrying "Authorization: Bearer <token>".
// An empty token admits nothing.
func BearerAuth(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got, ok := bearerToken(c.GetHeader("Authorization"))
		if len(want) > 0 && ok && subtle.ConstantTimeCompare([]byte(got), want) == 1 {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", `Bearer realm="ops"`)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"request_id": RequestIDFrom(c),
			"code":       "unauthorized",
			"message":    "missing or invalid ops token",
		})
	}
}

func bearerToken(h string) (string, bool) {
	scheme, tok, found := strings.Cut(strings.TrimSpace(h), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}
