package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-relay/internal/domain"
)

// MemoryTicketRepository implements TicketRepository with in-memory
// storage for development and testing. Production uses the pgx
// implementation; both serialize number generation and claim the same
// way, here under one mutex.
type MemoryTicketRepository struct {
	mu      sync.Mutex
	tickets map[string]*domain.Ticket
	nextID  int
}

// NewMemoryTicketRepository creates an in-memory ticket repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		nextID:  1,
	}
}

// Seed inserts a ticket directly, for tests that need a preset state.
func (r *MemoryTicketRepository) Seed(ticket *domain.Ticket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ticket.ID == "" {
		ticket.ID = fmt.Sprintf("mem-%d", r.nextID)
		r.nextID++
	}
	copied := *ticket
	r.tickets[ticket.ID] = &copied
}

func (r *MemoryTicketRepository) CreateWithNumber(ctx context.Context, ticket *domain.Ticket, prefix string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Same UTC bucketing as the pgx implementation.
	day := now.UTC().Format("20060102")
	count := 0
	for _, t := range r.tickets {
		if t.CreatedAt.UTC().Format("20060102") == day {
			count++
		}
	}
	ticket.ID = fmt.Sprintf("mem-%d", r.nextID)
	r.nextID++
	ticket.Number = fmt.Sprintf("%s-%s-%04d", prefix, day, count+1)
	ticket.Status = domain.TicketStatusOpen
	ticket.CreatedAt = now

	copied := *ticket
	r.tickets[ticket.ID] = &copied
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id)
}

func (r *MemoryTicketRepository) Claim(ctx context.Context, ticketID, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return false, nil
	}
	if ticket.ClaimantID != nil || ticket.Status != domain.TicketStatusOpen {
		return false, nil
	}
	claimant := agentID
	ticket.ClaimantID = &claimant
	ticket.Status = domain.TicketStatusInProgress
	ticket.CanRequesterClose = true
	return true, nil
}

func (r *MemoryTicketRepository) Close(ctx context.Context, ticketID string, closedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.Status != domain.TicketStatusInProgress {
		return pgx.ErrNoRows
	}
	ticket.Status = domain.TicketStatusClosed
	ticket.CanRequesterClose = false
	stamped := closedAt
	ticket.ClosedAt = &stamped
	return nil
}

func (r *MemoryTicketRepository) ActiveByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newestLocked(func(t *domain.Ticket) bool {
		return t.RequesterID == requesterID && t.Status == domain.TicketStatusInProgress
	})
}

func (r *MemoryTicketRepository) ActiveByClaimant(ctx context.Context, agentID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newestLocked(func(t *domain.Ticket) bool {
		return t.ClaimedBy(agentID) && t.Status == domain.TicketStatusInProgress
	})
}

func (r *MemoryTicketRepository) UnresolvedByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.newestLocked(func(t *domain.Ticket) bool {
		return t.RequesterID == requesterID && t.Status != domain.TicketStatusClosed
	})
}

func (r *MemoryTicketRepository) SetAnnouncementRef(ctx context.Context, ticketID, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, err := r.getLocked(ticketID)
	if err != nil {
		return err
	}
	stored := r.tickets[ticket.ID]
	reference := ref
	stored.AnnouncementRef = &reference
	return nil
}

func (r *MemoryTicketRepository) SetRating(ctx context.Context, ticketID string, rating int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.FeedbackProvided {
		return pgx.ErrNoRows
	}
	value := rating
	ticket.Rating = &value
	return nil
}

func (r *MemoryTicketRepository) FinishFeedback(ctx context.Context, ticketID string, comment *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok || ticket.FeedbackProvided {
		return false, nil
	}
	ticket.Comment = comment
	ticket.FeedbackProvided = true
	return true, nil
}

func (r *MemoryTicketRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 5
	}
	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.RequesterID == requesterID {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryTicketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.Status == status {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryTicketRepository) ListUnresolved(ctx context.Context, limit int) ([]domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	var result []domain.Ticket
	for _, t := range r.tickets {
		if t.Status != domain.TicketStatusClosed {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		ri, rj := domain.PriorityRank(result[i].Priority), domain.PriorityRank(result[j].Priority)
		if ri != rj {
			return ri < rj
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryTicketRepository) StatsForRequester(ctx context.Context, requesterID string) (RequesterStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats RequesterStats
	ratingSum, ratingCount := 0, 0
	for _, t := range r.tickets {
		if t.RequesterID != requesterID {
			continue
		}
		stats.Total++
		if t.Status == domain.TicketStatusClosed {
			stats.Closed++
		}
		if t.Rating != nil {
			ratingSum += *t.Rating
			ratingCount++
		}
	}
	if ratingCount > 0 {
		stats.AvgRating = float64(ratingSum) / float64(ratingCount)
	}
	return stats, nil
}

func (r *MemoryTicketRepository) Stats(ctx context.Context) (OverallStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stats OverallStats
	requesters := map[string]struct{}{}
	ratingSum := 0
	var closeMinutes float64
	closedWithStamp := 0
	for _, t := range r.tickets {
		stats.Total++
		requesters[t.RequesterID] = struct{}{}
		if t.Status == domain.TicketStatusClosed {
			stats.Closed++
		} else {
			stats.Active++
		}
		if t.Rating != nil {
			stats.FeedbackCount++
			ratingSum += *t.Rating
		}
		if t.ClosedAt != nil {
			closeMinutes += t.ClosedAt.Sub(t.CreatedAt).Minutes()
			closedWithStamp++
		}
	}
	stats.UniqueRequesters = len(requesters)
	if stats.FeedbackCount > 0 {
		stats.AvgRating = float64(ratingSum) / float64(stats.FeedbackCount)
	}
	if closedWithStamp > 0 {
		stats.AvgCloseMinutes = closeMinutes / float64(closedWithStamp)
	}
	return stats, nil
}

func (r *MemoryTicketRepository) getLocked(id string) (*domain.Ticket, error) {
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (r *MemoryTicketRepository) newestLocked(match func(*domain.Ticket) bool) (*domain.Ticket, error) {
	var newest *domain.Ticket
	for _, t := range r.tickets {
		if !match(t) {
			continue
		}
		if newest == nil || t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}
	if newest == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *newest
	return &copied, nil
}
