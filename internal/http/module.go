package http

import (
	"lead_distribution_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

// Module is a feature area that mounts its own routes.
type Module interface {
	Name() string
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext is what the router hands to each module. Both groups are
// already behind AuthRequired; Admin additionally requires the admin role.
type RouterContext struct {
	Protected *gin.RouterGroup
	Admin     *gin.RouterGroup

	// ActionRateLimiter throttles console write actions. May be nil.
	ActionRateLimiter *httpkit.IPRateLimiter
}

// ActionLimit returns the write-action middleware, or a pass-through when
// no limiter is configured.
func (rc *RouterContext) ActionLimit() gin.HandlerFunc {
	if rc.ActionRateLimiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return rc.ActionRateLimiter.RateLimit()
}
