// Package http holds the composition types shared by the router and the
// feature modules.
package http

import (
	"context"

	"lead_distribution_backend/platform/config"
	"lead_distribution_backend/platform/logger"
)

// RouterConfig is the slice of configuration the router reads.
type RouterConfig interface {
	config.HTTPConfig
	config.JWTConfig
}

// HealthChecker backs GET /api/health. The pgx pool satisfies it.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// App is assembled in main and passed to router.New.
type App struct {
	Config RouterConfig
	Logger *logger.Logger
	// Health is optional; nil reports healthy without probing.
	Health  HealthChecker
	Modules []Module
}
