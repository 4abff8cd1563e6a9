package middleware

import "github.com/gin-gonic/gin"

// SecurityHeaders sets baseline security headers. The frame-src directive
// stays open for YouTube so embedded lesson players keep working.
func SecurityHeaders() gin.HandlerFunc {
	const csp = "default-src 'self'; frame-src 'self' https://www.youtube.com https://www.youtube-nocookie.com; img-src 'self' data: https:; media-src 'self' https:"

	return func(c *gin.Context) {
		c.Header("Content-Security-Policy", csp)
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
