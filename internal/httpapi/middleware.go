package httpapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pagemark/ingest/internal/config"
	"github.com/pagemark/ingest/internal/security"
)

// ownerIDKey is the gin context key carrying the authenticated owner.
const ownerIDKey = "ownerID"

// ownerAuthMiddleware validates bearer credentials and loads the owner id
// into context. Service keys are matched against configured bcrypt hashes;
// everything else is treated as an owner JWT.
func ownerAuthMiddleware(jwtSecret string, serviceKeys []config.ServiceKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		if security.IsServiceKey(token) {
			for _, key := range serviceKeys {
				if security.CheckServiceKey(key.Hash, token) {
					c.Set(ownerIDKey, key.OwnerID)
					c.Next()
					return
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown service key"})
			return
		}

		claims, errJWT := security.ParseToken(jwtSecret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ownerIDKey, claims.OwnerID)
		c.Next()
	}
}

// ownerIDFromContext reads the owner id set by the auth middleware.
func ownerIDFromContext(c *gin.Context) (uint64, bool) {
	value, exists := c.Get(ownerIDKey)
	if !exists {
		return 0, false
	}
	id, ok := value.(uint64)
	if !ok || id == 0 {
		return 0, false
	}
	return id, true
}
