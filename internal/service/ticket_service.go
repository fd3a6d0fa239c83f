package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

// TicketService coordinates ticket creation and read views.
type TicketService struct {
	tickets      repository.TicketRepository
	staff        repository.StaffRepository
	dispatcher   events.Dispatcher
	numberPrefix string
	now          func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo   repository.TicketRepository
	StaffRepo    repository.StaffRepository
	Dispatcher   events.Dispatcher
	NumberPrefix string
	Clock        func() time.Time
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	RequesterID     string
	RequesterName   string
	RequesterHandle *string
	Category        domain.TicketCategory
	Priority        domain.TicketPriority
	Issue           string
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tickets:      deps.TicketRepo,
		staff:        deps.StaffRepo,
		dispatcher:   deps.Dispatcher,
		numberPrefix: deps.NumberPrefix,
		now:          clock,
	}
}

// OpenTicket creates a ticket with the next date-scoped number. A
// requester may hold at most one unresolved ticket; a second creation
// attempt is rejected here rather than assumed away by later lookups.
func (s *TicketService) OpenTicket(ctx context.Context, input TicketCreateInput) (*domain.Ticket, error) {
	if !domain.ValidCategory(input.Category) {
		return nil, apperrors.NewValidationError("unknown category", map[string]any{"category": input.Category})
	}
	if !domain.ValidPriority(input.Priority) {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	issue := strings.TrimSpace(input.Issue)
	if issue == "" {
		return nil, apperrors.NewValidationError("issue text is required", nil)
	}

	existing, err := s.tickets.UnresolvedByRequester(ctx, input.RequesterID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}
	if existing != nil {
		return nil, apperrors.NewDomainError("TICKET_ALREADY_ACTIVE",
			"you already have an active ticket: "+existing.Number,
			409, map[string]any{"ticket_number": existing.Number})
	}

	ticket := &domain.Ticket{
		RequesterID:     input.RequesterID,
		RequesterName:   strings.TrimSpace(input.RequesterName),
		RequesterHandle: input.RequesterHandle,
		Category:        input.Category,
		Priority:        input.Priority,
		Issue:           issue,
	}
	if err := s.tickets.CreateWithNumber(ctx, ticket, s.numberPrefix, s.now()); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    events.Actor{Role: domain.RoleRequester, ID: ticket.RequesterID},
		Payload: events.TicketCreatedPayload{
			Number:          ticket.Number,
			Category:        ticket.Category,
			Priority:        ticket.Priority,
			RequesterName:   ticket.RequesterName,
			RequesterHandle: ticket.RequesterHandle,
			IssuePreview:    stringPreview(ticket.Issue, 500),
		},
	})
	return ticket, nil
}

// GetTicket fetches one ticket by id.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// ListRequesterTickets returns the requester's most recent tickets.
func (s *TicketService) ListRequesterTickets(ctx context.Context, requesterID string, limit int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByRequester(ctx, requesterID, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListSolved returns the most recently closed tickets, for the admin
// panel.
func (s *TicketService) ListSolved(ctx context.Context, limit int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListByStatus(ctx, domain.TicketStatusClosed, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// ListUnsolved returns tickets still awaiting resolution, most urgent
// first so the queue reads top-down.
func (s *TicketService) ListUnsolved(ctx context.Context, limit int) ([]domain.Ticket, error) {
	tickets, err := s.tickets.ListUnresolved(ctx, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// RequesterStats summarizes one requester's history.
func (s *TicketService) RequesterStats(ctx context.Context, requesterID string) (repository.RequesterStats, error) {
	stats, err := s.tickets.StatsForRequester(ctx, requesterID)
	if err != nil {
		return repository.RequesterStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

// OverallStats summarizes all tickets plus staff headcount, for the
// admin panel.
func (s *TicketService) OverallStats(ctx context.Context) (repository.OverallStats, int, error) {
	stats, err := s.tickets.Stats(ctx)
	if err != nil {
		return repository.OverallStats{}, 0, apperrors.MapError(err)
	}
	staffCount := 0
	if s.staff != nil {
		if staffCount, err = s.staff.Count(ctx); err != nil {
			return repository.OverallStats{}, 0, apperrors.MapError(err)
		}
	}
	return stats, staffCount, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	publishEvent(ctx, s.dispatcher, event)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	_ = dispatcher.Publish(ctx, event)
}

// stringPreview truncates on rune boundaries so a multi-byte issue
// text never yields a broken trailing character.
func stringPreview(body string, max int) string {
	body = strings.TrimSpace(body)
	runes := []rune(body)
	if len(runes) <= max {
		return body
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
