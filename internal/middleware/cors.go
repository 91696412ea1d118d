package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS allows any origin to call the relay's HTTP API. The relay trusts
// its bearer tokens and Ed25519 signatures for authorization, not
// same-origin policy, so the origin check adds no security here and
// would only get in the way of CLI/agent clients (§6).
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Expose-Headers", "X-Request-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
