package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// LifecycleService owns the close transition. OPEN to IN_PROGRESS goes
// through the claim service only; CLOSED is terminal.
type LifecycleService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	now        func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(tickets repository.TicketRepository, dispatcher events.Dispatcher, clock func() time.Time) *LifecycleService {
	if clock == nil {
		clock = time.Now
	}
	return &LifecycleService{tickets: tickets, dispatcher: dispatcher, now: clock}
}

// CloseTicket transitions an IN_PROGRESS ticket to CLOSED. Permitted
// for the claiming agent, or for the requester while the self-close
// flag is set.
func (s *LifecycleService) CloseTicket(ctx context.Context, ticketID string, closerRole domain.SenderRole, closerID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	if ticket.Status != domain.TicketStatusInProgress {
		return nil, apperrors.NewNoActiveTicket("this ticket is not active")
	}

	switch closerRole {
	case domain.RoleAgent:
		if !ticket.ClaimedBy(closerID) {
			return nil, apperrors.NewNotAuthorizedToClose("only the claiming agent can close this ticket")
		}
	case domain.RoleRequester:
		if ticket.RequesterID != closerID {
			return nil, apperrors.NewNotAuthorizedToClose("not the requester of this ticket")
		}
		if !ticket.CanRequesterClose {
			return nil, apperrors.NewNotAuthorizedToClose("you cannot close this ticket")
		}
	default:
		return nil, apperrors.NewValidationError("unknown closer role", nil)
	}

	closedAt := s.now()
	if err := s.tickets.Close(ctx, ticketID, closedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost a close race; the ticket is already terminal.
			return nil, apperrors.NewNoActiveTicket("this ticket is already closed")
		}
		return nil, apperrors.MapError(err)
	}

	ticket.Status = domain.TicketStatusClosed
	ticket.CanRequesterClose = false
	ticket.ClosedAt = &closedAt

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketClosed,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: closerRole, ID: closerID},
		Payload: events.TicketClosedPayload{
			Number:   ticket.Number,
			ClosedBy: closerRole,
		},
	})
	return ticket, nil
}

// CloseActive resolves the caller's current IN_PROGRESS ticket and
// closes it. Used when the close affordance carries no ticket id.
func (s *LifecycleService) CloseActive(ctx context.Context, closerRole domain.SenderRole, closerID string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	var err error
	switch closerRole {
	case domain.RoleAgent:
		ticket, err = s.tickets.ActiveByClaimant(ctx, closerID)
	case domain.RoleRequester:
		ticket, err = s.tickets.ActiveByRequester(ctx, closerID)
	default:
		return nil, apperrors.NewValidationError("unknown closer role", nil)
	}
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNoActiveTicket("no active ticket to close")
		}
		return nil, apperrors.MapError(err)
	}
	return s.CloseTicket(ctx, ticket.ID, closerRole, closerID)
}
