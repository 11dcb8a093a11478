package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/atef1995/sayarat-sub000/internal/auth"
)

// ContextKeyAccountID holds the key for the account ID in Gin context.
const ContextKeyAccountID = "accountID"

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1], jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fmt.Sprintf("Invalid or expired token: %v", err)})
			return
		}

		c.Set(ContextKeyAccountID, claims.AccountID)
		c.Next()
	}
}

// AccountID returns the authenticated account ID from the Gin context.
// Assumes AuthMiddleware ran first.
func AccountID(c *gin.Context) string {
	id, _ := c.Get(ContextKeyAccountID)
	accountID, _ := id.(string)
	return accountID
}
