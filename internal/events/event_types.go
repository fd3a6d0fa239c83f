package events

import (
	"time"

	"github.com/spec-kit/support-relay/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated    EventType = "ticket_created"
	EventTicketClaimed    EventType = "ticket_claimed"
	EventTicketClosed     EventType = "ticket_closed"
	EventMessageRelayed   EventType = "message_relayed"
	EventFeedbackReceived EventType = "feedback_received"
)

// Actor encapsulates who triggered an event.
type Actor struct {
	Role domain.SenderRole `json:"role"`
	ID   string            `json:"id"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Number          string                `json:"number"`
	Category        domain.TicketCategory `json:"category"`
	Priority        domain.TicketPriority `json:"priority"`
	RequesterName   string                `json:"requester_name"`
	RequesterHandle *string               `json:"requester_handle,omitempty"`
	IssuePreview    string                `json:"issue_preview"`
}

// TicketClaimedPayload payload.
type TicketClaimedPayload struct {
	Number  string `json:"number"`
	AgentID string `json:"agent_id"`
}

// TicketClosedPayload payload. ClosedBy identifies the initiator so the
// notifier can pick the counterpart.
type TicketClosedPayload struct {
	Number   string            `json:"number"`
	ClosedBy domain.SenderRole `json:"closed_by"`
}

// MessageRelayedPayload payload.
type MessageRelayedPayload struct {
	Number    string             `json:"number"`
	Kind      domain.ContentKind `json:"kind"`
	Delivered bool               `json:"delivered"`
}

// FeedbackReceivedPayload payload published to the review channel.
type FeedbackReceivedPayload struct {
	Number          string  `json:"number"`
	Rating          int     `json:"rating"`
	Comment         string  `json:"comment"`
	RequesterID     string  `json:"requester_id"`
	RequesterName   string  `json:"requester_name"`
	RequesterHandle *string `json:"requester_handle,omitempty"`
}
