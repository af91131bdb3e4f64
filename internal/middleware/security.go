package middleware

import (
	"github.com/gin-gonic/gin"
)

// SecurityHeaders adds the headers a JSON API needs. Media is served from
// object storage, so nothing here has to allow inline content.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}
