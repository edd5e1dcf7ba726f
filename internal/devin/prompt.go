package devin

import (
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/richtext"
)

const defaultPriority = "Medium"

// sessionRequest is the POST /v1/sessions body.
type sessionRequest struct {
	Prompt string `json:"prompt"`
	Title  string `json:"title"`
}

// BuildPrompt renders the agent instructions for ticket. Output depends only
// on the ticket's fields and trackerURL.
func BuildPrompt(ticket *domain.Ticket, trackerURL string) string {
	var b strings.Builder
	b.WriteString("Please review and fix the following JIRA ticket:\n\n")
	fmt.Fprintf(&b, "**Ticket ID**: %s\n", ticket.Key)
	fmt.Fprintf(&b, "**Summary**: %s\n", ticket.Summary)
	fmt.Fprintf(&b, "**Status**: %s\n", ticket.Status)
	fmt.Fprintf(&b, "**Priority**: %s\n", priorityOf(ticket))
	if trackerURL != "" {
		fmt.Fprintf(&b, "**JIRA URL**: %s/browse/%s\n", strings.TrimRight(trackerURL, "/"), ticket.Key)
	}
	fmt.Fprintf(&b, "**Complexity**: %s\n\n", complexityOf(ticket))
	b.WriteString("**Description**:\n")
	b.WriteString(descriptionOf(ticket))
	b.WriteString("\n\nPlease analyze this ticket, implement a fix, and create a pull request.\n")
	return b.String()
}

func priorityOf(ticket *domain.Ticket) string {
	fields, _ := ticket.RawData["fields"].(map[string]any)
	if priority, ok := fields["priority"].(map[string]any); ok {
		if name, ok := priority["name"].(string); ok && name != "" {
			return name
		}
	}
	if ticket.Priority != "" {
		return ticket.Priority
	}
	return defaultPriority
}

func complexityOf(ticket *domain.Ticket) string {
	if ticket.ComplexityScore == nil || ticket.ComplexityCategory == nil {
		return "unanalyzed (score: n/a)"
	}
	return fmt.Sprintf("%s (score: %d)", *ticket.ComplexityCategory, *ticket.ComplexityScore)
}

func descriptionOf(ticket *domain.Ticket) string {
	if strings.TrimSpace(ticket.Description) != "" {
		return ticket.Description
	}
	fields, _ := ticket.RawData["fields"].(map[string]any)
	return richtext.Text(fields["description"])
}
