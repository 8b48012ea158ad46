package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/clipforge/backend/pkg/ctxkeys"
)

// JWTAuthMiddleware validates bearer JWT tokens and injects the account
// identity into the Gin context.
func JWTAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			// Browser clients typically use httpOnly cookies for auth.
			if cookieToken, err := c.Cookie("access_token"); err == nil && cookieToken != "" {
				auth = "Bearer " + cookieToken
			} else {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
				c.Abort()
				return
			}
		}

		parts := strings.Split(auth, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			c.Abort()
			return
		}

		claims, err := ValidateJWT(parts[1], secret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid JWT token"})
			c.Abort()
			return
		}

		c.Set(string(ctxkeys.KeyAccountID), claims.AccountID)
		c.Set(string(ctxkeys.KeyEmail), claims.Email)
		c.Set(string(ctxkeys.KeyAuthType), "jwt")
		c.Set(string(ctxkeys.KeyJWTToken), parts[1])
		c.Next()
	}
}

// GetAccountID extracts the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) string {
	if v, ok := c.Get(string(ctxkeys.KeyAccountID)); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetEmail extracts the authenticated email from the Gin context.
func GetEmail(c *gin.Context) string {
	if v, ok := c.Get(string(ctxkeys.KeyEmail)); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
