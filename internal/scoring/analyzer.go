// Package scoring converts a ticket's tracker metadata into a bounded
// complexity score and category.
package scoring

import (
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/richtext"
)

const (
	BaseScore = 3
	MinScore  = 1
	MaxScore  = 10
)

// Factor names as stored in the persisted breakdown.
const (
	FactorDescriptionLength = "description_length"
	FactorComments          = "comments"
	FactorLinkedIssues      = "linked_issues"
	FactorIssueType         = "issue_type"
	FactorLabels            = "labels"
	FactorTimeInBacklog     = "time_in_backlog"
)

var issueTypeWeights = map[string]int{
	"bug":   0,
	"task":  1,
	"story": 2,
	"epic":  3,
}

var labelWeights = map[string]int{
	"quick-win":           -2,
	"technical-debt":      0,
	"complex":             3,
	"needs-investigation": 2,
}

// Result is the outcome of scoring one ticket.
type Result struct {
	Score    int
	Category domain.ComplexityCategory
	Factors  map[string]int
}

// Analyzer scores tickets relative to a clock.
type Analyzer struct {
	now func() time.Time
}

// NewAnalyzer builds an analyzer. A nil clock means time.Now.
func NewAnalyzer(now func() time.Time) *Analyzer {
	if now == nil {
		now = time.Now
	}
	return &Analyzer{now: now}
}

// Score computes the complexity of ticket. It never fails; absent metadata
// falls back to each factor's default.
func (a *Analyzer) Score(ticket *domain.Ticket) Result {
	var raw map[string]any
	var created *time.Time
	if ticket != nil {
		raw = ticket.RawData
		created = ticket.JiraCreatedAt
	}
	fields, _ := raw["fields"].(map[string]any)

	factors := map[string]int{
		FactorDescriptionLength: descriptionLengthFactor(fields),
		FactorComments:          commentsFactor(fields),
		FactorLinkedIssues:      linkedIssuesFactor(fields),
		FactorIssueType:         issueTypeFactor(fields),
		FactorLabels:            labelsFactor(fields),
		FactorTimeInBacklog:     backlogFactor(created, a.now()),
	}

	score := BaseScore
	for _, v := range factors {
		score += v
	}
	score = clamp(score, MinScore, MaxScore)

	return Result{Score: score, Category: CategoryFor(score), Factors: factors}
}

// Apply scores ticket and writes the result onto it, stamping AnalyzedAt.
func (a *Analyzer) Apply(ticket *domain.Ticket) Result {
	res := a.Score(ticket)
	score := res.Score
	category := res.Category
	analyzedAt := a.now()
	ticket.ComplexityScore = &score
	ticket.ComplexityCategory = &category
	ticket.ComplexityFactors = res.Factors
	ticket.AnalyzedAt = &analyzedAt
	return res
}

// CategoryFor maps a score onto its category: 1-4 low, 5-7 medium, 8+ high.
func CategoryFor(score int) domain.ComplexityCategory {
	switch {
	case score <= 4:
		return domain.ComplexityLow
	case score <= 7:
		return domain.ComplexityMedium
	default:
		return domain.ComplexityHigh
	}
}

func descriptionLengthFactor(fields map[string]any) int {
	n := utf8.RuneCountInString(richtext.Text(fields["description"]))
	switch {
	case n < 100:
		return 2
	case n < 500:
		return 1
	case n < 2000:
		return 0
	default:
		return 1
	}
}

func commentsFactor(fields map[string]any) int {
	count := 0
	if comment, ok := fields["comment"].(map[string]any); ok {
		if total, ok := asInt(comment["total"]); ok {
			count = total
		} else if list, ok := comment["comments"].([]any); ok {
			count = len(list)
		}
	}
	switch {
	case count <= 2:
		return 0
	case count <= 5:
		return 1
	case count <= 10:
		return 2
	default:
		return 3
	}
}

func linkedIssuesFactor(fields map[string]any) int {
	links, _ := fields["issuelinks"].([]any)
	switch n := len(links); {
	case n == 0:
		return 0
	case n <= 2:
		return 1
	case n <= 5:
		return 2
	default:
		return 3
	}
}

func issueTypeFactor(fields map[string]any) int {
	issueType, _ := fields["issuetype"].(map[string]any)
	name, _ := issueType["name"].(string)
	if w, ok := issueTypeWeights[strings.ToLower(strings.TrimSpace(name))]; ok {
		return w
	}
	return 1
}

func labelsFactor(fields map[string]any) int {
	present := map[string]bool{}
	switch labels := fields["labels"].(type) {
	case []any:
		for _, l := range labels {
			if s, ok := l.(string); ok {
				present[s] = true
			}
		}
	case []string:
		for _, s := range labels {
			present[s] = true
		}
	}
	adjustment := 0
	for label, w := range labelWeights {
		if present[label] {
			adjustment += w
		}
	}
	return adjustment
}

// backlogFactor is flat beyond 31 days: 90+ days earns the same +1.
func backlogFactor(created *time.Time, now time.Time) int {
	if created == nil || created.IsZero() {
		return 0
	}
	days := calendarDays(*created, now)
	switch {
	case days < 31:
		return 0
	case days < 90:
		return 1
	default:
		return 1
	}
}

func calendarDays(from, to time.Time) int {
	f := from.UTC()
	t := to.UTC()
	start := time.Date(f.Year(), f.Month(), f.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
