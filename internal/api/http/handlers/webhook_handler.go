package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/auth"
	"github.com/spec-kit/support-relay/internal/bot"
	"github.com/spec-kit/support-relay/internal/gateway"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// WebhookHandler accepts inbound gateway events and feeds them to the
// dispatcher.
type WebhookHandler struct {
	dispatcher *bot.Dispatcher
	logger     *zap.Logger
}

// NewWebhookHandler returns a new handler instance.
func NewWebhookHandler(dispatcher *bot.Dispatcher, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, logger: logger}
}

// HandleEvent processes one inbound event. The gateway adapter expects
// 202 as the only success signal; user-facing outcomes travel back
// through deliveries, not this response.
func (h *WebhookHandler) HandleEvent(c *fiber.Ctx) error {
	var ev gateway.InboundEvent
	if err := c.BodyParser(&ev); err != nil {
		return apperrors.NewValidationError("malformed event payload", nil)
	}
	if ev.SenderID == "" {
		return apperrors.NewValidationError("sender_id is required", nil)
	}

	gatewayID, _ := auth.GatewayFromContext(c)
	h.logger.Debug("inbound gateway event",
		zap.String("gateway_id", gatewayID),
		zap.String("sender_id", ev.SenderID))

	if err := h.dispatcher.HandleEvent(c.UserContext(), ev); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"status": "accepted"})
}
