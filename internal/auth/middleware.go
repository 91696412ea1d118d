package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	apierrors "github.com/consortium/relay/internal/errors"
)

// AccountIDKey is the gin context key set by Middleware on success.
const AccountIDKey = "accountId"

// Middleware requires a valid bearer token on every request, setting
// request.accountId on success or returning 401 (§4.4: "the preHandler
// sets request.accountId on success or returns 401").
func Middleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			apierrors.AbortWithError(c, apierrors.Unauthorized("authorization header required"))
			return
		}

		claims, err := tokens.Verify(c.Request.Context(), tokenString)
		if err != nil {
			apierrors.AbortWithError(c, apierrors.Unauthorized("invalid or unrecognized token"))
			return
		}

		c.Set(AccountIDKey, claims.AccountID)
		c.Set("claims", claims)
		c.Next()
	}
}

// extractToken reads the bearer token from the Authorization header, or
// from a "token" query parameter for WebSocket upgrade requests (browser
// WebSocket clients can't set custom headers on the handshake).
func extractToken(c *gin.Context) string {
	upgrade := strings.ToLower(c.GetHeader("Upgrade"))
	connection := strings.ToLower(c.GetHeader("Connection"))
	isWebSocket := upgrade == "websocket" && strings.Contains(connection, "upgrade")

	if isWebSocket {
		if t := c.Query("token"); t != "" {
			return t
		}
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// AccountID returns the authenticated account id set by Middleware.
func AccountID(c *gin.Context) string {
	if v, ok := c.Get(AccountIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
