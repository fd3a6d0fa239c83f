package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-relay/internal/domain"
	"github.com/spec-kit/support-relay/internal/events"
	"github.com/spec-kit/support-relay/internal/repository"
	apperrors "github.com/spec-kit/support-relay/pkg/util"
)

func validInput(requesterID string) TicketCreateInput {
	return TicketCreateInput{
		RequesterID:   requesterID,
		RequesterName: "Dana",
		Category:      domain.TicketCategoryError,
		Priority:      domain.TicketPriorityHigh,
		Issue:         "the export button does nothing",
	}
}

func TestOpenTicket_NumberContinuesDateSequence(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	day := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 3; i++ {
		repo.Seed(&domain.Ticket{
			RequesterID: fmt.Sprintf("earlier-%d", i),
			Number:      fmt.Sprintf("BH-20240101-%04d", i),
			Status:      domain.TicketStatusClosed,
			CreatedAt:   day.Add(time.Duration(i) * time.Minute),
		})
	}

	svc := newTicketService(repo, repository.NewMemoryStaffRepository(),
		events.NewInMemoryDispatcher(), fixedClock(day.Add(2*time.Hour)))

	ticket, err := svc.OpenTicket(context.Background(), validInput("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "BH-20240101-0004", ticket.Number)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
}

func TestOpenTicket_SequenceRestartsNextDay(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	repo.Seed(&domain.Ticket{
		RequesterID: "earlier",
		Number:      "BH-20240101-0001",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   time.Date(2024, 1, 1, 23, 50, 0, 0, time.UTC),
	})

	svc := newTicketService(repo, repository.NewMemoryStaffRepository(),
		events.NewInMemoryDispatcher(), fixedClock(time.Date(2024, 1, 2, 0, 10, 0, 0, time.UTC)))

	ticket, err := svc.OpenTicket(context.Background(), validInput("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "BH-20240102-0001", ticket.Number)
}

func TestOpenTicket_NumberBucketsByUTCDay(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	repo.Seed(&domain.Ticket{
		RequesterID: "earlier",
		Number:      "BH-20240301-0001",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})

	// Local 03:00 on March 2nd in UTC+5 is still March 1st in UTC, so
	// the number continues that day's sequence.
	local := time.Date(2024, 3, 2, 3, 0, 0, 0, time.FixedZone("UTC+5", 5*3600))
	svc := newTicketService(repo, repository.NewMemoryStaffRepository(),
		events.NewInMemoryDispatcher(), fixedClock(local))

	ticket, err := svc.OpenTicket(context.Background(), validInput("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "BH-20240301-0002", ticket.Number)
}

func TestOpenTicket_RejectsSecondUnresolvedTicket(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	dispatcher := events.NewInMemoryDispatcher()
	svc := newTicketService(repo, repository.NewMemoryStaffRepository(), dispatcher,
		fixedClock(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)))

	_, err := svc.OpenTicket(context.Background(), validInput("user-1"))
	require.NoError(t, err)

	_, err = svc.OpenTicket(context.Background(), validInput("user-1"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "TICKET_ALREADY_ACTIVE"))
}

func TestOpenTicket_ValidatesInput(t *testing.T) {
	svc := newTicketService(repository.NewMemoryTicketRepository(),
		repository.NewMemoryStaffRepository(), events.NewInMemoryDispatcher(), nil)

	cases := []struct {
		name   string
		mutate func(*TicketCreateInput)
	}{
		{"unknown category", func(in *TicketCreateInput) { in.Category = "URGENT" }},
		{"unknown priority", func(in *TicketCreateInput) { in.Priority = "SOON" }},
		{"blank issue", func(in *TicketCreateInput) { in.Issue = "   " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validInput("user-1")
			tc.mutate(&input)
			_, err := svc.OpenTicket(context.Background(), input)
			assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
		})
	}
}

func TestOpenTicket_PublishesCreatedEvent(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	rec := recordEvents(dispatcher, events.EventTicketCreated)
	svc := newTicketService(repository.NewMemoryTicketRepository(),
		repository.NewMemoryStaffRepository(), dispatcher,
		fixedClock(time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)))

	ticket, err := svc.OpenTicket(context.Background(), validInput("user-1"))
	require.NoError(t, err)

	published := rec.ofType(events.EventTicketCreated)
	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.TicketCreatedPayload)
	require.True(t, ok)
	assert.Equal(t, ticket.Number, payload.Number)
	assert.Equal(t, "Dana", payload.RequesterName)
}

func TestListRequesterTickets_NewestFirst(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	base := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		repo.Seed(&domain.Ticket{
			RequesterID: "user-1",
			Number:      fmt.Sprintf("BH-20240401-%04d", i+1),
			Status:      domain.TicketStatusClosed,
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
		})
	}
	svc := newTicketService(repo, repository.NewMemoryStaffRepository(),
		events.NewInMemoryDispatcher(), nil)

	tickets, err := svc.ListRequesterTickets(context.Background(), "user-1", 2)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "BH-20240401-0003", tickets[0].Number)
	assert.Equal(t, "BH-20240401-0002", tickets[1].Number)
}

func TestListSolvedAndUnsolved(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	base := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	rating := 9
	closedAt := base.Add(time.Hour)
	repo.Seed(&domain.Ticket{
		RequesterID: "user-1",
		Number:      "BH-20240401-0001",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   base,
		ClosedAt:    &closedAt,
		Rating:      &rating,
	})
	repo.Seed(&domain.Ticket{
		RequesterID: "user-2",
		Number:      "BH-20240401-0002",
		Priority:    domain.TicketPriorityLow,
		Status:      domain.TicketStatusOpen,
		CreatedAt:   base.Add(time.Minute),
	})
	repo.Seed(&domain.Ticket{
		RequesterID: "user-3",
		Number:      "BH-20240401-0003",
		Priority:    domain.TicketPriorityCritical,
		Status:      domain.TicketStatusInProgress,
		CreatedAt:   base.Add(2 * time.Minute),
	})

	svc := newTicketService(repo, repository.NewMemoryStaffRepository(),
		events.NewInMemoryDispatcher(), nil)

	solved, err := svc.ListSolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, solved, 1)
	assert.Equal(t, "BH-20240401-0001", solved[0].Number)
	require.NotNil(t, solved[0].Rating)
	assert.Equal(t, 9, *solved[0].Rating)

	// The critical ticket jumps the older low-priority one.
	unsolved, err := svc.ListUnsolved(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, unsolved, 2)
	assert.Equal(t, "BH-20240401-0003", unsolved[0].Number)
	assert.Equal(t, "BH-20240401-0002", unsolved[1].Number)
}

func TestStringPreview_TruncatesOnRuneBoundaries(t *testing.T) {
	issue := strings.Repeat("при", 4) // 12 runes, 24 bytes

	short := stringPreview(issue, 20)
	assert.Equal(t, issue, short)

	cut := stringPreview(issue, 8)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 8, utf8.RuneCountInString(cut))
	assert.True(t, strings.HasSuffix(cut, "..."))
}

func TestOverallStats_IncludesStaffCount(t *testing.T) {
	repo := repository.NewMemoryTicketRepository()
	staffRepo := repository.NewMemoryStaffRepository()
	require.NoError(t, staffRepo.Upsert(context.Background(), &domain.SupportStaff{AgentID: "agent-1"}))

	rating := 8
	closedAt := time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC)
	repo.Seed(&domain.Ticket{
		RequesterID: "user-1",
		Status:      domain.TicketStatusClosed,
		CreatedAt:   closedAt.Add(-30 * time.Minute),
		ClosedAt:    &closedAt,
		Rating:      &rating,
	})
	repo.Seed(&domain.Ticket{
		RequesterID: "user-2",
		Status:      domain.TicketStatusOpen,
		CreatedAt:   closedAt,
	})

	svc := newTicketService(repo, staffRepo, events.NewInMemoryDispatcher(), nil)
	stats, staffCount, err := svc.OverallStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, staffCount)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 2, stats.UniqueRequesters)
	assert.InDelta(t, 8.0, stats.AvgRating, 0.001)
	assert.InDelta(t, 30.0, stats.AvgCloseMinutes, 0.001)
}
