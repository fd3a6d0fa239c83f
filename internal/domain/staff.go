package domain

import "time"

// SupportStaff is an agent's enrollment record. Top-level administrators
// are static configuration and never appear in this table.
type SupportStaff struct {
	AgentID     string
	DisplayName string
	EnrolledBy  string
	EnrolledAt  time.Time
}
