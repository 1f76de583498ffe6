package ginserver

import (
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	"roomies/internal/domain/shared/actor"
)

const (
	principalContextKey = "roomies.principal"
	headerUserID        = "X-User-ID"
	headerUserRole      = "X-User-Role"
)

// GatewayIdentity trusts the identity headers set by the upstream gateway. Requests without
// them stay anonymous and are rejected by requireRole.
func GatewayIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		rawRole := strings.TrimSpace(c.GetHeader(headerUserRole))
		if rawRole == "" {
			c.Next()
			return
		}
		role, err := actor.ParseRole(rawRole)
		if err != nil {
			c.Next()
			return
		}
		p := actor.Actor{Role: role, ID: strings.TrimSpace(c.GetHeader(headerUserID))}
		if role != actor.System && p.ID == "" {
			c.Next()
			return
		}
		c.Set(principalContextKey, p)
		c.Next()
	}
}

func currentPrincipal(c *gin.Context) (actor.Actor, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return actor.Actor{}, false
	}
	p, ok := val.(actor.Actor)
	return p, ok
}

// requireRole writes 401 or 403 and reports false unless the caller holds one of roles. No
// roles means any identified caller.
func requireRole(c *gin.Context, roles ...actor.Role) (actor.Actor, bool) {
	p, ok := currentPrincipal(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return actor.Actor{}, false
	}
	if len(roles) == 0 {
		return p, true
	}
	for _, r := range roles {
		if p.Role == r {
			return p, true
		}
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
	return actor.Actor{}, false
}
