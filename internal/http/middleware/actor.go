package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	UserIDHeader = "X-User-Id"
	ActorKey     = "actor_id"
)

// Actor requires the caller's profile id in X-User-Id. Authentication happens in front of
// this service.
func Actor() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "X-User-Id header required",
				},
			})
			return
		}
		c.Set(ActorKey, id)
		c.Next()
	}
}
