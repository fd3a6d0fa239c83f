package domain

import "time"

// Response is an immutable audit entry recording one relayed message.
// Rows are append-only; media payloads are normalized to a placeholder
// so history reconstruction never loses an attempt.
type Response struct {
	ID        string
	TicketID  string
	SenderID  string
	Text      string
	CreatedAt time.Time
}
