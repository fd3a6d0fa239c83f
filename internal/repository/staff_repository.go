package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-relay/internal/domain"
)

// StaffRepository handles persistence for enrolled support staff.
type StaffRepository interface {
	Upsert(ctx context.Context, staff *domain.SupportStaff) error
	GetByID(ctx context.Context, agentID string) (*domain.SupportStaff, error)
	Exists(ctx context.Context, agentID string) (bool, error)
	Count(ctx context.Context) (int, error)
}

type staffRepository struct {
	pool *pgxpool.Pool
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(pool *pgxpool.Pool) StaffRepository {
	return &staffRepository{pool: pool}
}

func (r *staffRepository) Upsert(ctx context.Context, staff *domain.SupportStaff) error {
	const query = `
        INSERT INTO support_staff (agent_id, display_name, enrolled_by)
        VALUES ($1,$2,$3)
        ON CONFLICT (agent_id) DO UPDATE
            SET display_name=EXCLUDED.display_name, enrolled_by=EXCLUDED.enrolled_by
        RETURNING enrolled_at`
	return r.pool.QueryRow(ctx, query,
		staff.AgentID,
		staff.DisplayName,
		staff.EnrolledBy,
	).Scan(&staff.EnrolledAt)
}

func (r *staffRepository) GetByID(ctx context.Context, agentID string) (*domain.SupportStaff, error) {
	const query = `
        SELECT agent_id, display_name, enrolled_by, enrolled_at
        FROM support_staff WHERE agent_id=$1`
	var staff domain.SupportStaff
	if err := r.pool.QueryRow(ctx, query, agentID).Scan(
		&staff.AgentID,
		&staff.DisplayName,
		&staff.EnrolledBy,
		&staff.EnrolledAt,
	); err != nil {
		return nil, err
	}
	return &staff, nil
}

func (r *staffRepository) Exists(ctx context.Context, agentID string) (bool, error) {
	_, err := r.GetByID(ctx, agentID)
	if err == nil {
		return true, nil
	}
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return false, err
}

func (r *staffRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM support_staff`).Scan(&count)
	return count, err
}
