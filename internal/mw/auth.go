package mw

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminSecretHeader carries the shared secret for administrative routes.
const AdminSecretHeader = "X-Admin-Secret"

// AdminAuth rejects requests whose X-Admin-Secret header does not equal
// secret exactly. An empty secret rejects everything.
func AdminAuth(secret string) gin.HandlerFunc {
	want := []byte(secret)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader(AdminSecretHeader))
		if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
