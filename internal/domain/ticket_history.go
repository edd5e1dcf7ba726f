package domain

import "time"

// TicketChangeType captures what changed in a history entry.
type TicketChangeType string

const (
	ChangeTypeAnalysis   TicketChangeType = "COMPLEXITY_ANALYSIS"
	ChangeTypeAssignment TicketChangeType = "ASSIGNMENT_OUTCOME"
)

// TicketHistory is an immutable audit trail entry.
type TicketHistory struct {
	ID         string
	TicketID   string
	MissionID  string
	ChangeType TicketChangeType
	OldValue   map[string]any
	NewValue   map[string]any
	CreatedAt  time.Time
}
