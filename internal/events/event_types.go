package events

import "time"

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketAssigned             EventType = "ticket_assigned"
	EventTicketAssignmentFailed     EventType = "ticket_assignment_failed"
	EventMissionAnalyzed            EventType = "mission_analyzed"
	EventMissionAssignmentCompleted EventType = "mission_assignment_completed"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	MissionID string    `json:"mission_id"`
	TicketID  string    `json:"ticket_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TicketKey  string `json:"ticket_key"`
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// TicketAssignmentFailedPayload payload.
type TicketAssignmentFailedPayload struct {
	TicketKey string `json:"ticket_key"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind"`
	Error     string `json:"error"`
}

// MissionAnalyzedPayload payload.
type MissionAnalyzedPayload struct {
	Analyzed int `json:"analyzed"`
	Total    int `json:"total"`
}

// MissionAssignmentCompletedPayload payload.
type MissionAssignmentCompletedPayload struct {
	Assigned int `json:"assigned"`
	Failed   int `json:"failed"`
	Timeout  int `json:"timeout"`
	Skipped  int `json:"skipped"`
}
