package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Gin context keys set by the API key middleware.
const (
	ContextOrgIDKey = "webhookOrgID"
	ContextKeyIDKey = "webhookKeyID"
)

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header and sets the
// organization context on the gin context. Every inbound event is scoped to
// the key's tenant; the payload can never name another organization.
func APIKeyAuthMiddleware(repo *Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-Webhook-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repo.GetKeyByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		c.Set(ContextOrgIDKey, key.OrganizationID)
		c.Set(ContextKeyIDKey, key.ID)
		c.Next()
	}
}

// orgIDFromContext extracts the tenant set by the auth middleware.
func orgIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(ContextOrgIDKey)
	if !ok {
		return uuid.Nil, false
	}
	orgID, ok := value.(uuid.UUID)
	return orgID, ok
}
