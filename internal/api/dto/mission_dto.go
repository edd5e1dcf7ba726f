package dto

import (
	"time"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/service"
)

// MissionResponse represents a mission.
type MissionResponse struct {
	ID                    string               `json:"id"`
	Name                  string               `json:"name"`
	Status                domain.MissionStatus `json:"status"`
	JQLQuery              string               `json:"jql_query"`
	TotalAssignedCount    int                  `json:"total_assigned_count"`
	FailedAssignmentCount int                  `json:"failed_assignment_count"`
	AssignedAt            *time.Time           `json:"assigned_at"`
	AssignmentCompletedAt *time.Time           `json:"assignment_completed_at"`
	CreatedAt             time.Time            `json:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at"`
}

// SaveQueryRequest payload.
type SaveQueryRequest struct {
	JQLQuery string `json:"jql_query"`
}

// SaveQueryResponse returns the stored mission with the validation outcome.
type SaveQueryResponse struct {
	Mission    MissionResponse `json:"mission"`
	Validation jira.Validation `json:"validation"`
}

// JQLRequest carries a query to validate or preview.
type JQLRequest struct {
	JQLQuery string `json:"jql_query"`
}

// JQLPreviewResponse lists tracker matches without storing them.
type JQLPreviewResponse struct {
	Validation jira.Validation `json:"validation"`
	Total      int             `json:"total"`
	Tickets    []TicketPreview `json:"tickets"`
}

// TicketPreview is the slim ticket view used by query previews.
type TicketPreview struct {
	Key      string `json:"jira_key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// AnalysisResponse reports a mission analysis.
type AnalysisResponse struct {
	Mission            MissionResponse         `json:"mission"`
	Analyzed           int                     `json:"analyzed"`
	Summary            service.AnalysisSummary `json:"summary"`
	SuggestedTicketIDs []string                `json:"suggested_ticket_ids"`
	Tickets            []TicketResponse        `json:"tickets"`
}
