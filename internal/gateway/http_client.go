package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/domain"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// HTTPClient talks to the messaging gateway over its REST surface.
// Each call is bounded by the configured delivery timeout; failures are
// returned to the caller, never retried here.
type HTTPClient struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient builds a gateway client from config.
func NewHTTPClient(cfg config.GatewayConfig, logger *zap.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		timeout: cfg.DeliveryTimeout(),
		client:  &http.Client{Timeout: cfg.DeliveryTimeout()},
		logger:  logger,
	}
}

type deliverRequest struct {
	RecipientID string          `json:"recipient_id"`
	Message     OutboundMessage `json:"message"`
}

type announceResponse struct {
	Ref string `json:"ref"`
}

// Deliver sends a message to one recipient.
func (c *HTTPClient) Deliver(ctx context.Context, recipientID string, msg OutboundMessage) error {
	body := deliverRequest{RecipientID: recipientID, Message: msg}
	if err := c.post(ctx, "/deliver", body, nil); err != nil {
		return apperrors.NewDeliveryFailed(recipientID, err)
	}
	return nil
}

// PostAnnouncement posts to a channel and returns the message reference.
func (c *HTTPClient) PostAnnouncement(ctx context.Context, ann Announcement) (string, error) {
	var resp announceResponse
	if err := c.post(ctx, "/announcements", ann, &resp); err != nil {
		return "", apperrors.NewDeliveryFailed(ann.ChannelID, err)
	}
	return resp.Ref, nil
}

// UpdateAnnouncement switches the affordance on a posted announcement.
func (c *HTTPClient) UpdateAnnouncement(ctx context.Context, channelID, ref string, aff domain.AnnouncementAffordance) error {
	payload := map[string]string{
		"channel_id": channelID,
		"ref":        ref,
		"affordance": string(aff),
	}
	if err := c.post(ctx, "/announcements/update", payload, nil); err != nil {
		return apperrors.NewDeliveryFailed(channelID, err)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("gateway call failed",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, snippet)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
