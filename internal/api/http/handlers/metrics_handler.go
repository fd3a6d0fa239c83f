package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-relay/internal/observability"
)

// MetricsHandler exposes the in-process counters for operators.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler returns a new handler instance.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Snapshot dumps current counter values.
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	return c.JSON(h.metrics.Snapshot())
}
