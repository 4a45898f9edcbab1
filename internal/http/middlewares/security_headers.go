package middlewares

import (
	"github.com/gin-gonic/gin"
)

const (
	defaultCSP = "default-src 'none'; frame-ancestors 'none'"
	// the upload form posts back to this origin and needs nothing else
	importFormCSP = "default-src 'none'; form-action 'self'; frame-ancestors 'none'; base-uri 'none'"
)

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("X-XSS-Protection", "0")
		if c.Request.URL.Path == "/file_import" {
			c.Header("Content-Security-Policy", importFormCSP)
		} else {
			c.Header("Content-Security-Policy", defaultCSP)
		}
		c.Next()
	}
}
