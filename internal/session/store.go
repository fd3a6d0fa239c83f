package session

import (
	"context"
	"time"

	"github.com/spec-kit/support-relay/internal/domain"
)

// State tags the single conversational wait state a user can be in.
type State string

const (
	StateIdle                    State = "IDLE"
	StateSelectingCategory       State = "SELECTING_CATEGORY"
	StateSelectingPriority       State = "SELECTING_PRIORITY"
	StateAwaitingIssueText       State = "AWAITING_ISSUE_TEXT"
	StateAwaitingAgentIDInput    State = "AWAITING_AGENT_ID_INPUT"
	StateAwaitingFeedbackComment State = "AWAITING_FEEDBACK_COMMENT"
)

// Session is the per-user conversational record. One tagged state plus
// the data the next step needs; everything else lives in the ticket
// store.
type Session struct {
	UserID   string                `json:"user_id"`
	State    State                 `json:"state"`
	Category domain.TicketCategory `json:"category,omitempty"`
	Priority domain.TicketPriority `json:"priority,omitempty"`
	// Feedback wait state carries the ticket and rating between the two
	// steps of the feedback flow.
	FeedbackTicketID string    `json:"feedback_ticket_id,omitempty"`
	FeedbackRating   int       `json:"feedback_rating,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store holds sessions keyed by user id with an explicit TTL. Get on a
// missing or expired key returns an Idle session, never an error state.
type Store interface {
	Get(ctx context.Context, userID string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Clear(ctx context.Context, userID string) error
}

// NewIdle returns the zero state for a user.
func NewIdle(userID string) *Session {
	return &Session{UserID: userID, State: StateIdle, UpdatedAt: time.Now()}
}
