package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/identity"
)

// AuthMiddleware validates the Authorization header and attaches the
// resolved caller identity to the request context. Handlers read identity
// from the context only; nothing downstream touches the raw token.
func AuthMiddleware(resolver *identity.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"kind": "unauthorized", "error": "missing authorization"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"kind": "unauthorized", "error": "invalid authorization header"})
			return
		}

		ident, err := resolver.Resolve(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"kind": "unauthorized", "error": "invalid token"})
			return
		}

		c.Set("userID", ident.UserID)
		c.Set("userRole", ident.Role)
		c.Next()
	}
}
