package dto

import (
	"time"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

// TicketResponse represents an imported mission ticket.
type TicketResponse struct {
	ID                   string                     `json:"id"`
	MissionID            string                     `json:"mission_id"`
	Key                  string                     `json:"jira_key"`
	Summary              string                     `json:"summary"`
	Description          string                     `json:"description"`
	Status               string                     `json:"status"`
	Priority             string                     `json:"priority"`
	Assignee             string                     `json:"assignee"`
	Labels               string                     `json:"labels"`
	IssueType            string                     `json:"issue_type"`
	JiraCreatedAt        *time.Time                 `json:"jira_created_at"`
	ComplexityScore      *int                       `json:"complexity_score"`
	ComplexityCategory   *domain.ComplexityCategory `json:"complexity_category"`
	ComplexityFactors    map[string]int             `json:"complexity_factors,omitempty"`
	AnalyzedAt           *time.Time                 `json:"analyzed_at"`
	Selected             bool                       `json:"selected"`
	SelectedAt           *time.Time                 `json:"selected_at"`
	AssignmentStatus     domain.AssignmentStatus    `json:"assignment_status"`
	AssignmentError      *string                    `json:"assignment_error"`
	AssignmentRetryCount int                        `json:"assignment_retry_count"`
	SessionID            *string                    `json:"session_id"`
	SessionURL           *string                    `json:"session_url"`
	AssignedAt           *time.Time                 `json:"assigned_at"`
	CreatedAt            time.Time                  `json:"created_at"`
	UpdatedAt            time.Time                  `json:"updated_at"`
}

// SelectionRequest replaces a mission's selected tickets.
type SelectionRequest struct {
	TicketIDs []string `json:"ticket_ids"`
}

// SelectionResponse reports how many tickets ended up selected.
type SelectionResponse struct {
	MissionID string `json:"mission_id"`
	Selected  int    `json:"selected"`
}

// TicketHistoryResponse is one audit entry of a ticket.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	OldValue   map[string]any          `json:"old_value"`
	NewValue   map[string]any          `json:"new_value"`
	CreatedAt  time.Time               `json:"created_at"`
}
