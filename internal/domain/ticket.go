package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// TicketCategory classifies what the requester is asking about.
type TicketCategory string

const (
	TicketCategoryError    TicketCategory = "ERROR"
	TicketCategoryFeature  TicketCategory = "FEATURE"
	TicketCategoryQuestion TicketCategory = "QUESTION"
	TicketCategoryOther    TicketCategory = "OTHER"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// SenderRole identifies which side of a ticket a message comes from.
type SenderRole string

const (
	RoleRequester SenderRole = "REQUESTER"
	RoleAgent     SenderRole = "AGENT"
)

// Ticket is the aggregate for one support conversation. Category,
// priority and issue text are set at creation and never mutated;
// ClaimantID is written exactly once by the claim operation.
type Ticket struct {
	ID                string
	Number            string
	RequesterID       string
	RequesterName     string
	RequesterHandle   *string
	Category          TicketCategory
	Priority          TicketPriority
	Issue             string
	Status            TicketStatus
	ClaimantID        *string
	CanRequesterClose bool
	CreatedAt         time.Time
	ClosedAt          *time.Time
	Rating            *int
	Comment           *string
	FeedbackProvided  bool
	AnnouncementRef   *string
}

// Claimed reports whether an agent currently owns the ticket.
func (t *Ticket) Claimed() bool {
	return t.ClaimantID != nil
}

// ClaimedBy reports whether agentID is the current claimant.
func (t *Ticket) ClaimedBy(agentID string) bool {
	return t.ClaimantID != nil && *t.ClaimantID == agentID
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c TicketCategory) bool {
	switch c {
	case TicketCategoryError, TicketCategoryFeature, TicketCategoryQuestion, TicketCategoryOther:
		return true
	}
	return false
}

// PriorityRank orders priorities for queue views, most urgent first.
// Unknown values sort last.
func PriorityRank(p TicketPriority) int {
	switch p {
	case TicketPriorityCritical:
		return 1
	case TicketPriorityHigh:
		return 2
	case TicketPriorityMedium:
		return 3
	case TicketPriorityLow:
		return 4
	}
	return 5
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p TicketPriority) bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}
