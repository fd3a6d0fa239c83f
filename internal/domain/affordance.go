package domain

// AnnouncementAffordance is the button state the presentation layer
// should render on the agent-channel announcement.
type AnnouncementAffordance string

const (
	AffordanceClaim     AnnouncementAffordance = "CLAIM"
	AffordanceClaimedBy AnnouncementAffordance = "CLAIMED_BY"
	AffordanceClosed    AnnouncementAffordance = "CLOSED"
)

// RequesterAffordance is the affordance valid on the requester side.
type RequesterAffordance string

const (
	AffordanceClose RequesterAffordance = "CLOSE"
	AffordanceNone  RequesterAffordance = "NONE"
)

// AnnouncementFor projects ticket state onto the announcement button.
func AnnouncementFor(t *Ticket) AnnouncementAffordance {
	switch t.Status {
	case TicketStatusClosed:
		return AffordanceClosed
	case TicketStatusInProgress:
		return AffordanceClaimedBy
	default:
		return AffordanceClaim
	}
}

// RequesterAffordanceFor projects ticket state onto the requester-side
// affordance set. The close button is only valid while the claim
// operation has enabled self-close.
func RequesterAffordanceFor(t *Ticket) RequesterAffordance {
	if t.Status == TicketStatusInProgress && t.CanRequesterClose {
		return AffordanceClose
	}
	return AffordanceNone
}
