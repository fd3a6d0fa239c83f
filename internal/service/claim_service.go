package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// ClaimService arbitrates exclusive ticket ownership. The store-level
// compare-and-swap guarantees at most one winner; this service only
// classifies the outcome and fires side effects for the winner.
type ClaimService struct {
	tickets    repository.TicketRepository
	staff      *StaffService
	dispatcher events.Dispatcher
}

// NewClaimService constructs the service.
func NewClaimService(tickets repository.TicketRepository, staff *StaffService, dispatcher events.Dispatcher) *ClaimService {
	return &ClaimService{tickets: tickets, staff: staff, dispatcher: dispatcher}
}

// ClaimTicket takes ownership of an unclaimed ticket for agentID.
// Claiming a ticket the agent already owns is an idempotent no-op;
// a ticket owned by anyone else fails with ALREADY_CLAIMED and no
// state change.
func (s *ClaimService) ClaimTicket(ctx context.Context, ticketID, agentID string) (*domain.Ticket, error) {
	authorized, err := s.staff.IsAuthorizedAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, apperrors.NewNotAuthorizedToClaim("you are not authorized to claim tickets")
	}

	won, err := s.tickets.Claim(ctx, ticketID, agentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}

	if !won {
		if ticket.ClaimedBy(agentID) {
			// Already theirs; nothing to change or announce.
			return ticket, nil
		}
		claimant := ""
		if ticket.ClaimantID != nil {
			claimant = *ticket.ClaimantID
		}
		return nil, apperrors.NewAlreadyClaimed(ticket.Number, claimant)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTicketClaimed,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: domain.RoleAgent, ID: agentID},
		Payload: events.TicketClaimedPayload{
			Number:  ticket.Number,
			AgentID: agentID,
		},
	})
	return ticket, nil
}
