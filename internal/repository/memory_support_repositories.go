package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-relay/internal/domain"
)

// MemoryResponseRepository implements ResponseRepository in memory.
type MemoryResponseRepository struct {
	mu        sync.Mutex
	responses []domain.Response
	nextID    int
}

// NewMemoryResponseRepository creates an in-memory response log.
func NewMemoryResponseRepository() *MemoryResponseRepository {
	return &MemoryResponseRepository{nextID: 1}
}

func (r *MemoryResponseRepository) Create(ctx context.Context, response *domain.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	response.ID = fmt.Sprintf("resp-%d", r.nextID)
	r.nextID++
	if response.CreatedAt.IsZero() {
		response.CreatedAt = time.Now()
	}
	r.responses = append(r.responses, *response)
	return nil
}

func (r *MemoryResponseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []domain.Response
	for _, response := range r.responses {
		if response.TicketID == ticketID {
			result = append(result, response)
		}
	}
	return result, nil
}

// MemoryStaffRepository implements StaffRepository in memory.
type MemoryStaffRepository struct {
	mu    sync.Mutex
	staff map[string]domain.SupportStaff
}

// NewMemoryStaffRepository creates an in-memory staff registry.
func NewMemoryStaffRepository() *MemoryStaffRepository {
	return &MemoryStaffRepository{staff: make(map[string]domain.SupportStaff)}
}

func (r *MemoryStaffRepository) Upsert(ctx context.Context, staff *domain.SupportStaff) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if staff.EnrolledAt.IsZero() {
		staff.EnrolledAt = time.Now()
	}
	r.staff[staff.AgentID] = *staff
	return nil
}

func (r *MemoryStaffRepository) GetByID(ctx context.Context, agentID string) (*domain.SupportStaff, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	staff, ok := r.staff[agentID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &staff, nil
}

func (r *MemoryStaffRepository) Exists(ctx context.Context, agentID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.staff[agentID]
	return ok, nil
}

func (r *MemoryStaffRepository) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.staff), nil
}
