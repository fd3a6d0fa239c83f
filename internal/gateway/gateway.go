package gateway

import (
	"context"

	"github.com/spec-kit/support-relay/internal/domain"
)

// ActionKind enumerates structured callback actions the gateway can
// carry alongside a message.
type ActionKind string

const (
	ActionClaim        ActionKind = "claim"
	ActionRate         ActionKind = "rate"
	ActionSkipFeedback ActionKind = "skip_feedback"
	ActionNoop         ActionKind = "noop"
)

// Action is a structured affordance selection (button press).
type Action struct {
	Kind     ActionKind `json:"kind"`
	TicketID string     `json:"ticket_id,omitempty"`
	Rating   int        `json:"rating,omitempty"`
}

// InboundEvent is one event from the messaging gateway: a message, a
// command, or a structured action from a single sender.
type InboundEvent struct {
	SenderID     string         `json:"sender_id"`
	SenderName   string         `json:"sender_name"`
	SenderHandle string         `json:"sender_handle,omitempty"`
	Content      domain.Content `json:"content"`
	Action       *Action        `json:"action,omitempty"`
}

// OutboundMessage is a payload to deliver to one recipient. Affordance
// hints tell the presentation layer which reply controls are valid.
type OutboundMessage struct {
	Content    domain.Content `json:"content"`
	Affordance string         `json:"affordance,omitempty"`
}

// Announcement is a message posted to a shared channel whose affordance
// must stay updatable after claim and close.
type Announcement struct {
	ChannelID  string                        `json:"channel_id"`
	Content    domain.Content                `json:"content"`
	Affordance domain.AnnouncementAffordance `json:"affordance"`
	TicketID   string                        `json:"ticket_id"`
}

// Gateway is the engine's view of the messaging transport. Every call
// is bounded by its context; implementations must not retry silently.
type Gateway interface {
	// Deliver sends a message to one recipient.
	Deliver(ctx context.Context, recipientID string, msg OutboundMessage) error
	// PostAnnouncement posts to a channel and returns the gateway's
	// reference for later affordance updates.
	PostAnnouncement(ctx context.Context, ann Announcement) (string, error)
	// UpdateAnnouncement switches the affordance on a posted announcement.
	UpdateAnnouncement(ctx context.Context, channelID, ref string, aff domain.AnnouncementAffordance) error
}
