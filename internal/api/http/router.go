package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-relay/internal/api/http/handlers"
	"github.com/spec-kit/support-relay/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health            *handlers.HealthHandler
	Webhook           *handlers.WebhookHandler
	Metrics           *handlers.MetricsHandler
	WebhookMiddleware *auth.WebhookMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	gatewayGroup := app.Group("/gateway", cfg.WebhookMiddleware.Handle)
	gatewayGroup.Post("/events", cfg.Webhook.HandleEvent)

	opsGroup := app.Group("/ops")
	opsGroup.Get("/metrics", cfg.Metrics.Snapshot)
}
