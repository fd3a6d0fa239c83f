package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-relay/internal/domain"
)

// RequesterStats summarizes one requester's history.
type RequesterStats struct {
	Total     int
	Closed    int
	AvgRating float64
}

// OverallStats summarizes the whole ticket corpus for administrators.
type OverallStats struct {
	Total            int
	Closed           int
	Active           int
	UniqueRequesters int
	FeedbackCount    int
	AvgRating        float64
	AvgCloseMinutes  float64
}

// TicketRepository encapsulates ticket persistence. The create and
// claim operations are the two serialization points of the engine and
// must stay atomic in every implementation.
type TicketRepository interface {
	// CreateWithNumber assigns the next date-scoped ticket number and
	// inserts the row in one transaction.
	CreateWithNumber(ctx context.Context, ticket *domain.Ticket, prefix string, now time.Time) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// Claim is a compare-and-swap on the claimant field. It returns true
	// only for the single call that moved the ticket out of OPEN.
	Claim(ctx context.Context, ticketID, agentID string) (bool, error)
	// Close transitions IN_PROGRESS to CLOSED; pgx.ErrNoRows when the
	// ticket was not in progress.
	Close(ctx context.Context, ticketID string, closedAt time.Time) error
	// ActiveByRequester returns the most recently created IN_PROGRESS
	// ticket for a requester, or pgx.ErrNoRows.
	ActiveByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error)
	// ActiveByClaimant returns the most recently created IN_PROGRESS
	// ticket claimed by an agent, or pgx.ErrNoRows.
	ActiveByClaimant(ctx context.Context, agentID string) (*domain.Ticket, error)
	// UnresolvedByRequester returns the newest OPEN or IN_PROGRESS ticket
	// for a requester, or pgx.ErrNoRows. Backs the one-active-ticket rule.
	UnresolvedByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error)
	SetAnnouncementRef(ctx context.Context, ticketID, ref string) error
	// SetRating stores the rating while feedback is still open.
	SetRating(ctx context.Context, ticketID string, rating int) error
	// FinishFeedback sets the provided flag (and optional comment) once;
	// returns false when feedback was already provided.
	FinishFeedback(ctx context.Context, ticketID string, comment *string) (bool, error)
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]domain.Ticket, error)
	// ListByStatus returns the newest tickets in one lifecycle state.
	ListByStatus(ctx context.Context, status domain.TicketStatus, limit int) ([]domain.Ticket, error)
	// ListUnresolved returns OPEN and IN_PROGRESS tickets, most urgent
	// priority first, oldest first within a priority.
	ListUnresolved(ctx context.Context, limit int) ([]domain.Ticket, error)
	StatsForRequester(ctx context.Context, requesterID string) (RequesterStats, error)
	Stats(ctx context.Context) (OverallStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, number, requester_id, requester_name, requester_handle,
        category, priority, issue_text, status, claimant_id, can_requester_close,
        created_at, closed_at, rating, comment, feedback_provided, announcement_ref`

func (r *ticketRepository) CreateWithNumber(ctx context.Context, ticket *domain.Ticket, prefix string, now time.Time) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// The number label and the per-day count must bucket in the same
	// time zone or they disagree around midnight. Both use UTC.
	now = now.UTC()
	day := now.Format("20060102")

	// Serialize per-day sequence increments: two concurrent creations
	// must not both observe the same count.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "ticket-seq-"+day); err != nil {
		return err
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM tickets WHERE (created_at AT TIME ZONE 'UTC')::date = $1::date`, day,
	).Scan(&count); err != nil {
		return err
	}
	ticket.Number = fmt.Sprintf("%s-%s-%04d", prefix, day, count+1)

	const query = `
        INSERT INTO tickets (number, requester_id, requester_name, requester_handle,
            category, priority, issue_text, status, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at`
	if err := tx.QueryRow(ctx, query,
		ticket.Number,
		ticket.RequesterID,
		ticket.RequesterName,
		ticket.RequesterHandle,
		ticket.Category,
		ticket.Priority,
		ticket.Issue,
		domain.TicketStatusOpen,
		now,
	).Scan(&ticket.ID, &ticket.CreatedAt); err != nil {
		return err
	}
	ticket.Status = domain.TicketStatusOpen

	return tx.Commit(ctx)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) Claim(ctx context.Context, ticketID, agentID string) (bool, error) {
	const query = `
        UPDATE tickets
        SET claimant_id=$2, status=$3, can_requester_close=TRUE
        WHERE id=$1 AND claimant_id IS NULL AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, ticketID, agentID, domain.TicketStatusInProgress, domain.TicketStatusOpen)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) Close(ctx context.Context, ticketID string, closedAt time.Time) error {
	const query = `
        UPDATE tickets
        SET status=$2, can_requester_close=FALSE, closed_at=$3
        WHERE id=$1 AND status=$4`
	cmd, err := r.pool.Exec(ctx, query, ticketID, domain.TicketStatusClosed, closedAt, domain.TicketStatusInProgress)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ActiveByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE requester_id=$1 AND status=$2
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, requesterID, domain.TicketStatusInProgress)
}

func (r *ticketRepository) ActiveByClaimant(ctx context.Context, agentID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE claimant_id=$1 AND status=$2
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, agentID, domain.TicketStatusInProgress)
}

func (r *ticketRepository) UnresolvedByRequester(ctx context.Context, requesterID string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE requester_id=$1 AND status IN ($2,$3)
        ORDER BY created_at DESC LIMIT 1`
	return r.fetchSingle(ctx, query, requesterID, domain.TicketStatusOpen, domain.TicketStatusInProgress)
}

func (r *ticketRepository) SetAnnouncementRef(ctx context.Context, ticketID, ref string) error {
	_, err := r.pool.Exec(ctx, `UPDATE tickets SET announcement_ref=$2 WHERE id=$1`, ticketID, ref)
	return err
}

func (r *ticketRepository) SetRating(ctx context.Context, ticketID string, rating int) error {
	const query = `UPDATE tickets SET rating=$2 WHERE id=$1 AND feedback_provided=FALSE`
	cmd, err := r.pool.Exec(ctx, query, ticketID, rating)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) FinishFeedback(ctx context.Context, ticketID string, comment *string) (bool, error) {
	const query = `
        UPDATE tickets SET comment=$2, feedback_provided=TRUE
        WHERE id=$1 AND feedback_provided=FALSE`
	cmd, err := r.pool.Exec(ctx, query, ticketID, comment)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) ListByRequester(ctx context.Context, requesterID string, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 5
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE requester_id=$1
        ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, requesterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListByStatus(ctx context.Context, status domain.TicketStatus, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status=$1
        ORDER BY created_at DESC LIMIT $2`
	rows, err := r.pool.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) ListUnresolved(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + ticketColumns + `
        FROM tickets WHERE status<>$1
        ORDER BY CASE priority
            WHEN 'CRITICAL' THEN 1
            WHEN 'HIGH' THEN 2
            WHEN 'MEDIUM' THEN 3
            WHEN 'LOW' THEN 4
            ELSE 5
        END, created_at ASC
        LIMIT $2`
	rows, err := r.pool.Query(ctx, query, domain.TicketStatusClosed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) StatsForRequester(ctx context.Context, requesterID string) (RequesterStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='CLOSED'),
               COALESCE(AVG(rating), 0)
        FROM tickets WHERE requester_id=$1`
	var stats RequesterStats
	err := r.pool.QueryRow(ctx, query, requesterID).Scan(&stats.Total, &stats.Closed, &stats.AvgRating)
	return stats, err
}

func (r *ticketRepository) Stats(ctx context.Context) (OverallStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='CLOSED'),
               COUNT(*) FILTER (WHERE status<>'CLOSED'),
               COUNT(DISTINCT requester_id),
               COUNT(rating),
               COALESCE(AVG(rating), 0),
               COALESCE(AVG(EXTRACT(EPOCH FROM (closed_at - created_at)) / 60) FILTER (WHERE closed_at IS NOT NULL), 0)
        FROM tickets`
	var stats OverallStats
	err := r.pool.QueryRow(ctx, query).Scan(
		&stats.Total,
		&stats.Closed,
		&stats.Active,
		&stats.UniqueRequesters,
		&stats.FeedbackCount,
		&stats.AvgRating,
		&stats.AvgCloseMinutes,
	)
	return stats, err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.RequesterID,
		&ticket.RequesterName,
		&ticket.RequesterHandle,
		&ticket.Category,
		&ticket.Priority,
		&ticket.Issue,
		&ticket.Status,
		&ticket.ClaimantID,
		&ticket.CanRequesterClose,
		&ticket.CreatedAt,
		&ticket.ClosedAt,
		&ticket.Rating,
		&ticket.Comment,
		&ticket.FeedbackProvided,
		&ticket.AnnouncementRef,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.Number,
			&ticket.RequesterID,
			&ticket.RequesterName,
			&ticket.RequesterHandle,
			&ticket.Category,
			&ticket.Priority,
			&ticket.Issue,
			&ticket.Status,
			&ticket.ClaimantID,
			&ticket.CanRequesterClose,
			&ticket.CreatedAt,
			&ticket.ClosedAt,
			&ticket.Rating,
			&ticket.Comment,
			&ticket.FeedbackProvided,
			&ticket.AnnouncementRef,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
