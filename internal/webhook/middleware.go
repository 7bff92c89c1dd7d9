package webhook

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	headerAPIKey = "X-Webhook-API-Key"
	ctxOrgID     = "webhookOrgID"
	ctxKeyID     = "webhookKeyID"
)

// APIKeyAuthMiddleware validates the X-Webhook-API-Key header
// and sets the organization context on the gin context.
func APIKeyAuthMiddleware(keys KeyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(headerAPIKey)
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := keys.GetByHash(c.Request.Context(), HashKey(apiKey))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			return
		}

		// Set organization context for downstream handlers
		c.Set(ctxOrgID, key.OrganizationID)
		c.Set(ctxKeyID, key.ID)
		c.Next()
	}
}
