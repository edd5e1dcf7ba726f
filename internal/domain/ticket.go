package domain

import "time"

// ComplexityCategory buckets a complexity score.
type ComplexityCategory string

const (
	ComplexityLow    ComplexityCategory = "low"
	ComplexityMedium ComplexityCategory = "medium"
	ComplexityHigh   ComplexityCategory = "high"
)

// AssignmentStatus is the dispatch state of a ticket.
type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAssigned AssignmentStatus = "assigned"
	AssignmentFailed   AssignmentStatus = "failed"
	AssignmentTimeout  AssignmentStatus = "timeout"
)

// Ticket is an issue-tracker item imported into a mission.
type Ticket struct {
	ID            string
	MissionID     string
	Key           string
	Summary       string
	Description   string
	Status        string
	Priority      string
	Assignee      string
	Labels        string
	JiraCreatedAt *time.Time
	RawData       map[string]any

	ComplexityScore    *int
	ComplexityCategory *ComplexityCategory
	ComplexityFactors  map[string]int
	AnalyzedAt         *time.Time

	Selected   bool
	SelectedAt *time.Time

	AssignmentStatus     AssignmentStatus
	AssignmentError      *string
	AssignmentRetryCount int
	SessionID            *string
	SessionURL           *string
	AssignedAt           *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Analyzed reports whether the ticket carries a complexity analysis.
func (t *Ticket) Analyzed() bool {
	return t.AnalyzedAt != nil
}

// IsAssigned reports whether a session was already created for the ticket.
func (t *Ticket) IsAssigned() bool {
	return t.AssignmentStatus == AssignmentAssigned
}

// IssueType returns fields.issuetype.name from the raw document, if any.
func (t *Ticket) IssueType() string {
	fields, _ := t.RawData["fields"].(map[string]any)
	issueType, _ := fields["issuetype"].(map[string]any)
	name, _ := issueType["name"].(string)
	return name
}

// Category returns the complexity category or the empty string when unanalyzed.
func (t *Ticket) Category() ComplexityCategory {
	if t.ComplexityCategory == nil {
		return ""
	}
	return *t.ComplexityCategory
}

// AssignmentOutcome is the terminal write recorded after one dispatch attempt.
type AssignmentOutcome struct {
	Status     AssignmentStatus
	Error      string
	SessionID  string
	SessionURL string
	At         time.Time
}
