// Package matching provides the lead matching and distribution module.
package matching

import (
	"lead_distribution_backend/internal/events"
	apphttp "lead_distribution_backend/internal/http"
	"lead_distribution_backend/internal/matching/configstore"
	"lead_distribution_backend/internal/matching/domain"
	"lead_distribution_backend/internal/matching/funnel"
	"lead_distribution_backend/internal/matching/handler"
	"lead_distribution_backend/internal/matching/lifecycle"
	"lead_distribution_backend/platform/httpkit"
	"lead_distribution_backend/platform/logger"
	"lead_distribution_backend/platform/validator"
)

// Module represents the matching domain module
type Module struct {
	handler   *handler.Handler
	lifecycle *lifecycle.Service
}

// NewModule creates a new matching module with all dependencies wired.
// jobs may be nil when no queue is configured.
func NewModule(store domain.Store, configs *configstore.Store, eventBus events.Bus, jobs handler.Jobs, val *validator.Validator, log *logger.Logger) *Module {
	lc := lifecycle.New(store, eventBus, log)
	fn := funnel.New(store)
	return &Module{
		handler:   handler.New(lc, fn, configs, jobs, val),
		lifecycle: lc,
	}
}

// Name returns the module name for logging
func (m *Module) Name() string {
	return "matching"
}

// Lifecycle returns the lifecycle service for external use
func (m *Module) Lifecycle() *lifecycle.Service {
	return m.lifecycle
}

// RegisterRoutes registers the module's routes
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	limit := ctx.ActionLimit()

	artisan := ctx.Protected.Group("/artisan")
	artisan.Use(httpkit.RequireRole(httpkit.RoleArtisan))
	m.handler.RegisterArtisanRoutes(artisan, limit)

	requests := ctx.Protected.Group("/requests")
	requests.Use(httpkit.RequireRole(httpkit.RoleClient))
	m.handler.RegisterRequesterRoutes(requests, limit)

	m.handler.RegisterAdminRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
