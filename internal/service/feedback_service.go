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

// FeedbackService runs the post-close rating-then-comment flow. Once
// the provided flag is set the flow is terminal: no further feedback
// action is accepted for the ticket.
type FeedbackService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
}

// NewFeedbackService constructs the service.
func NewFeedbackService(tickets repository.TicketRepository, dispatcher events.Dispatcher) *FeedbackService {
	return &FeedbackService{tickets: tickets, dispatcher: dispatcher}
}

// Rate stores the step-one rating. The caller moves the requester into
// the awaiting-comment wait state on success.
func (s *FeedbackService) Rate(ctx context.Context, ticketID, requesterID string, rating int) (*domain.Ticket, error) {
	if rating < 1 || rating > 10 {
		return nil, apperrors.NewValidationError("rating must be between 1 and 10", map[string]any{"rating": rating})
	}
	ticket, err := s.ticketForFeedback(ctx, ticketID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := s.tickets.SetRating(ctx, ticket.ID, rating); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, feedbackAlreadyProvided(ticket.Number)
		}
		return nil, apperrors.MapError(err)
	}
	value := rating
	ticket.Rating = &value
	return ticket, nil
}

// Skip ends the flow with no rating or comment.
func (s *FeedbackService) Skip(ctx context.Context, ticketID, requesterID string) error {
	ticket, err := s.ticketForFeedback(ctx, ticketID, requesterID)
	if err != nil {
		return err
	}
	done, err := s.tickets.FinishFeedback(ctx, ticket.ID, nil)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !done {
		return feedbackAlreadyProvided(ticket.Number)
	}
	return nil
}

// SubmitComment stores the step-two comment, marks feedback provided
// and publishes the aggregate record for the review channel. The
// publication fires at most once per ticket because only the single
// FinishFeedback winner reaches it.
func (s *FeedbackService) SubmitComment(ctx context.Context, ticketID, requesterID string, rating int, comment string) error {
	ticket, err := s.ticketForFeedback(ctx, ticketID, requesterID)
	if err != nil {
		return err
	}
	done, err := s.tickets.FinishFeedback(ctx, ticket.ID, &comment)
	if err != nil {
		return apperrors.MapError(err)
	}
	if !done {
		return feedbackAlreadyProvided(ticket.Number)
	}

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventFeedbackReceived,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: domain.RoleRequester, ID: requesterID},
		Payload: events.FeedbackReceivedPayload{
			Number:          ticket.Number,
			Rating:          rating,
			Comment:         comment,
			RequesterID:     ticket.RequesterID,
			RequesterName:   ticket.RequesterName,
			RequesterHandle: ticket.RequesterHandle,
		},
	})
	return nil
}

func (s *FeedbackService) ticketForFeedback(ctx context.Context, ticketID, requesterID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.RequesterID != requesterID {
		return nil, apperrors.NewUnauthorized("feedback is only accepted from the requester")
	}
	if ticket.FeedbackProvided {
		return nil, feedbackAlreadyProvided(ticket.Number)
	}
	return ticket, nil
}

func feedbackAlreadyProvided(number string) error {
	return apperrors.NewDomainError("FEEDBACK_ALREADY_PROVIDED",
		"feedback for ticket "+number+" was already recorded", 409,
		map[string]any{"ticket_number": number})
}
