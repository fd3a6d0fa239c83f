package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

const gatewayKey = "auth_gateway"

// WebhookMiddleware validates the bearer token on inbound webhook calls.
type WebhookMiddleware struct {
	tokens *TokenManager
}

// NewWebhookMiddleware constructs middleware.
func NewWebhookMiddleware(tokens *TokenManager) *WebhookMiddleware {
	return &WebhookMiddleware{tokens: tokens}
}

// Handle enforces authentication for the webhook routes.
func (m *WebhookMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(gatewayKey, claims.GatewayID)
	return c.Next()
}

// GatewayFromContext retrieves the authenticated gateway id.
func GatewayFromContext(c *fiber.Ctx) (string, bool) {
	val := c.Locals(gatewayKey)
	if val == nil {
		return "", false
	}
	id, ok := val.(string)
	return id, ok
}
