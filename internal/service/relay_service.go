package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/gateway"
	"github.com/spec-kit/support-relay/internal/observability"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// RelayService forwards messages between the requester and the
// claiming agent while a ticket is active. The audit log write and the
// forward attempt are independent: a failed forward is reported to the
// sender, but the Response row stands as the attempt record.
type RelayService struct {
	tickets    repository.TicketRepository
	responses  repository.ResponseRepository
	gateway    gateway.Gateway
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// RelayDependencies bundles collaborators for the relay service.
type RelayDependencies struct {
	TicketRepo   repository.TicketRepository
	ResponseRepo repository.ResponseRepository
	Gateway      gateway.Gateway
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
}

// NewRelayService constructs the service.
func NewRelayService(deps RelayDependencies) *RelayService {
	return &RelayService{
		tickets:    deps.TicketRepo,
		responses:  deps.ResponseRepo,
		gateway:    deps.Gateway,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
	}
}

// Relay forwards content on a ticket from senderRole to the other side.
func (s *RelayService) Relay(ctx context.Context, ticketID string, senderRole domain.SenderRole, senderID string, content domain.Content) error {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return apperrors.MapError(err)
	}

	recipientID, err := s.authorize(ticket, senderRole, senderID)
	if err != nil {
		return err
	}

	if !domain.SupportedContentKind(content.Kind) {
		return apperrors.NewUnsupportedContent(string(content.Kind))
	}

	// The attempt is recorded before the forward so history never loses
	// a message, whatever the gateway does next.
	response := &domain.Response{
		TicketID: ticket.ID,
		SenderID: senderID,
		Text:     content.LogText(),
	}
	if err := s.responses.Create(ctx, response); err != nil {
		return apperrors.MapError(err)
	}

	deliverErr := s.gateway.Deliver(ctx, recipientID, gateway.OutboundMessage{
		Content:    s.bannered(ticket.Number, senderRole, content),
		Affordance: string(affordanceForRecipient(ticket, senderRole)),
	})

	s.metrics.RecordRelay(string(content.Kind), deliverErr == nil)
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventMessageRelayed,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: senderRole, ID: senderID},
		Payload: events.MessageRelayedPayload{
			Number:    ticket.Number,
			Kind:      content.Kind,
			Delivered: deliverErr == nil,
		},
	})

	if deliverErr != nil {
		s.logger.Warn("relay delivery failed",
			zap.String("ticket", ticket.Number),
			zap.String("recipient_id", recipientID),
			zap.Error(deliverErr))
		return deliverErr
	}
	return nil
}

// RelayFromActive resolves the sender's active ticket and relays on it.
// Used by the dispatcher, which knows the sender but not the ticket.
func (s *RelayService) RelayFromActive(ctx context.Context, senderRole domain.SenderRole, senderID string, content domain.Content) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	var err error
	switch senderRole {
	case domain.RoleAgent:
		ticket, err = s.tickets.ActiveByClaimant(ctx, senderID)
	case domain.RoleRequester:
		ticket, err = s.tickets.ActiveByRequester(ctx, senderID)
	default:
		return nil, apperrors.NewValidationError("unknown sender role", nil)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNoActiveTicket("no active ticket for this conversation")
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, s.Relay(ctx, ticket.ID, senderRole, senderID, content)
}

func (s *RelayService) authorize(ticket *domain.Ticket, senderRole domain.SenderRole, senderID string) (recipientID string, err error) {
	switch senderRole {
	case domain.RoleRequester:
		if ticket.RequesterID != senderID {
			return "", apperrors.NewUnauthorized("not the requester of this ticket")
		}
		if ticket.Status == domain.TicketStatusOpen {
			return "", apperrors.NewNoActiveTicket("your ticket has not been claimed yet")
		}
		if ticket.Status != domain.TicketStatusInProgress || ticket.ClaimantID == nil {
			return "", apperrors.NewNoActiveTicket("this ticket is not active")
		}
		return *ticket.ClaimantID, nil
	case domain.RoleAgent:
		if ticket.Status != domain.TicketStatusInProgress {
			return "", apperrors.NewNoActiveTicket("this ticket is not active")
		}
		if !ticket.ClaimedBy(senderID) {
			return "", apperrors.NewUnauthorized("this ticket is handled by another agent")
		}
		return ticket.RequesterID, nil
	}
	return "", apperrors.NewValidationError("unknown sender role", nil)
}

// bannered prefixes the payload with a routing banner so the recipient
// always knows which conversation and which side the message belongs to.
func (s *RelayService) bannered(number string, senderRole domain.SenderRole, content domain.Content) domain.Content {
	side := "the user"
	if senderRole == domain.RoleAgent {
		side = "support"
	}
	banner := fmt.Sprintf("Reply on ticket #%s (from %s):", number, side)

	out := content
	if content.Kind == domain.ContentText {
		out.Text = banner + "\n" + content.Text
	} else {
		out.Caption = banner + "\n" + content.LogText()
	}
	return out
}

func affordanceForRecipient(ticket *domain.Ticket, senderRole domain.SenderRole) domain.RequesterAffordance {
	// The agent side always keeps its close control while in progress;
	// the requester side is projected from the self-close flag.
	if senderRole == domain.RoleAgent {
		return domain.RequesterAffordanceFor(ticket)
	}
	return domain.AffordanceClose
}
