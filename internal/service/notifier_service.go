package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/config"
	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/repository"
)

// NotifierService carries gateway side effects out of the transactional
// path. All handlers are best-effort: a failed delivery is logged and
// never rolls back the state change that triggered the event.
type NotifierService struct {
	tickets repository.TicketRepository
	gateway gateway.Gateway
	cfg     config.GatewayConfig
	logger  *zap.Logger
}

// NewNotifierService creates the service.
func NewNotifierService(tickets repository.TicketRepository, gw gateway.Gateway, cfg config.GatewayConfig, logger *zap.Logger) *NotifierService {
	return &NotifierService{tickets: tickets, gateway: gw, cfg: cfg, logger: logger}
}

// RegisterHandlers subscribes to domain events.
func (n *NotifierService) RegisterHandlers(dispatcher events.Dispatcher) {
	if dispatcher == nil {
		return
	}
	dispatcher.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	dispatcher.Subscribe(events.EventTicketClaimed, n.handleTicketClaimed)
	dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	dispatcher.Subscribe(events.EventFeedbackReceived, n.handleFeedbackReceived)
}

// handleTicketCreated announces the new ticket to the agent channel and
// stores the announcement ref for later affordance updates.
func (n *NotifierService) handleTicketCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketCreatedPayload)
	if !ok {
		return nil
	}

	handle := "no handle"
	if payload.RequesterHandle != nil {
		handle = "@" + *payload.RequesterHandle
	}
	text := fmt.Sprintf(
		"NEW TICKET #%s\nCategory: %s\nPriority: %s\nRequester: %s (%s)\n\n%s",
		payload.Number, payload.Category, payload.Priority,
		payload.RequesterName, handle, payload.IssuePreview,
	)

	ref, err := n.gateway.PostAnnouncement(ctx, gateway.Announcement{
		ChannelID:  n.cfg.SupportChannelID,
		Content:    domain.Content{Kind: domain.ContentText, Text: text},
		Affordance: domain.AffordanceClaim,
		TicketID:   event.TicketID,
	})
	if err != nil {
		n.logger.Warn("ticket announcement failed", zap.String("ticket", payload.Number), zap.Error(err))
		return nil
	}
	if err := n.tickets.SetAnnouncementRef(ctx, event.TicketID, ref); err != nil {
		n.logger.Warn("storing announcement ref failed", zap.String("ticket", payload.Number), zap.Error(err))
	}
	return nil
}

// handleTicketClaimed flips the announcement affordance, briefs the
// claiming agent with the full issue text and posts a status line.
func (n *NotifierService) handleTicketClaimed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClaimedPayload)
	if !ok {
		return nil
	}
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		n.logger.Warn("claimed ticket vanished", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}

	n.updateAnnouncement(ctx, ticket)

	briefing := fmt.Sprintf(
		"You claimed ticket #%s.\nRequester: %s (id %s)\n\nIssue:\n%s\n\nMessages you send here are relayed to the requester.",
		ticket.Number, ticket.RequesterName, ticket.RequesterID, ticket.Issue,
	)
	n.deliver(ctx, payload.AgentID, gateway.OutboundMessage{
		Content:    domain.Content{Kind: domain.ContentText, Text: briefing},
		Affordance: string(domain.AffordanceClose),
	})

	n.deliver(ctx, n.cfg.SupportChannelID, gateway.OutboundMessage{
		Content: domain.Content{
			Kind: domain.ContentText,
			Text: fmt.Sprintf("Ticket #%s is now being handled by agent %s.", ticket.Number, payload.AgentID),
		},
	})
	return nil
}

// handleTicketClosed marks the announcement terminal, notifies the
// counterpart and sends the requester the rating prompt that starts
// the feedback flow.
func (n *NotifierService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return nil
	}
	ticket, err := n.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		n.logger.Warn("closed ticket vanished", zap.String("ticket_id", event.TicketID), zap.Error(err))
		return nil
	}

	n.updateAnnouncement(ctx, ticket)

	if payload.ClosedBy == domain.RoleRequester && ticket.ClaimantID != nil {
		n.deliver(ctx, *ticket.ClaimantID, gateway.OutboundMessage{
			Content: domain.Content{
				Kind: domain.ContentText,
				Text: fmt.Sprintf("The requester closed ticket #%s.", ticket.Number),
			},
		})
	}

	prompt := fmt.Sprintf(
		"Your ticket #%s is closed.\nPlease rate the support you received, 1 (poor) to 10 (great), or skip.",
		ticket.Number,
	)
	n.deliver(ctx, ticket.RequesterID, gateway.OutboundMessage{
		Content:    domain.Content{Kind: domain.ContentText, Text: prompt},
		Affordance: "RATE",
	})
	return nil
}

// handleFeedbackReceived publishes the aggregate record to the
// feedback-review channel.
func (n *NotifierService) handleFeedbackReceived(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.FeedbackReceivedPayload)
	if !ok {
		return nil
	}
	if n.cfg.FeedbackChannelID == "" {
		return nil
	}

	handle := "no handle"
	if payload.RequesterHandle != nil {
		handle = "@" + *payload.RequesterHandle
	}
	stars := strings.Repeat("*", payload.Rating)
	text := fmt.Sprintf(
		"FEEDBACK on ticket #%s\nFrom: %s (%s, id %s)\nRating: %d/10 %s\n\n%s",
		payload.Number, payload.RequesterName, handle, payload.RequesterID,
		payload.Rating, stars, payload.Comment,
	)
	n.deliver(ctx, n.cfg.FeedbackChannelID, gateway.OutboundMessage{
		Content: domain.Content{Kind: domain.ContentText, Text: text},
	})
	return nil
}

func (n *NotifierService) updateAnnouncement(ctx context.Context, ticket *domain.Ticket) {
	if ticket.AnnouncementRef == nil {
		return
	}
	err := n.gateway.UpdateAnnouncement(ctx, n.cfg.SupportChannelID, *ticket.AnnouncementRef, domain.AnnouncementFor(ticket))
	if err != nil {
		n.logger.Warn("announcement update failed",
			zap.String("ticket", ticket.Number), zap.Error(err))
	}
}

func (n *NotifierService) deliver(ctx context.Context, recipientID string, msg gateway.OutboundMessage) {
	if err := n.gateway.Deliver(ctx, recipientID, msg); err != nil {
		n.logger.Warn("notification delivery failed",
			zap.String("recipient_id", recipientID), zap.Error(err))
	}
}
