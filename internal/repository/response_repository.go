package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-relay/internal/domain"
)

// ResponseRepository manages the append-only relay audit log.
type ResponseRepository interface {
	Create(ctx context.Context, response *domain.Response) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Response, error)
}

type responseRepository struct {
	pool *pgxpool.Pool
}

// NewResponseRepository builds the repository.
func NewResponseRepository(pool *pgxpool.Pool) ResponseRepository {
	return &responseRepository{pool: pool}
}

func (r *responseRepository) Create(ctx context.Context, response *domain.Response) error {
	const query = `
        INSERT INTO responses (ticket_id, sender_id, text)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.pool.QueryRow(ctx, query,
		response.TicketID,
		response.SenderID,
		response.Text,
	).Scan(&response.ID, &response.CreatedAt)
}

func (r *responseRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Response, error) {
	const query = `
        SELECT id, ticket_id, sender_id, text, created_at
        FROM responses WHERE ticket_id=$1 ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Response
	for rows.Next() {
		var response domain.Response
		if err := rows.Scan(
			&response.ID,
			&response.TicketID,
			&response.SenderID,
			&response.Text,
			&response.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	return result, rows.Err()
}
