package jira

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxQueryLength  = 2000
	WarnQueryLength = 1500
)

// Validation is the outcome of checking a JQL query before it is sent to the tracker.
type Validation struct {
	Valid       bool     `json:"valid"`
	Error       string   `json:"error,omitempty"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

const operatorPattern = `(=|!=|~|!~|>|>=|<|<=|IS|IS NOT|WAS|WAS NOT|IN|NOT IN)`

var (
	fieldOperatorValueRe = regexp.MustCompile(`(?i)\w+\s*` + operatorPattern + `\s*[\w"'(-]`)
	fieldOperatorRe      = regexp.MustCompile(`(?i)(\w+)\s*` + operatorPattern + `\s*`)
	invalidCharsRe       = regexp.MustCompile(`[{}$%^&*]`)
	doubledLogicalRe     = regexp.MustCompile(`(?i)\b(AND|OR)\s+(AND|OR)\b`)
	logicalSplitRe       = regexp.MustCompile(`(?i)\b(AND|OR)\b`)
	customFieldRe        = regexp.MustCompile(`(?i)^(cf\[\d+\]|customfield_\d+)$`)
	projectRe            = regexp.MustCompile(`(?i)\bproject\s*=`)
	statusFilterRe       = regexp.MustCompile(`(?i)\bstatus\s*(=|!=|IN|NOT IN)`)
	orderByRe            = regexp.MustCompile(`(?i)\bORDER BY\b`)
	assigneeEmptyRe      = regexp.MustCompile(`(?i)\bassignee\s*=\s*EMPTY\b`)

	unsafePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bUNION\s+SELECT\b`),
		regexp.MustCompile(`(?i)\bDROP\s+TABLE\b`),
		regexp.MustCompile(`(?i)\bINSERT\s+INTO\b`),
		regexp.MustCompile(`(?i)\bUPDATE\s+SET\b`),
		regexp.MustCompile(`(?i)\bDELETE\s+FROM\b`),
		regexp.MustCompile(`(?i)<script\b`),
		regexp.MustCompile(`(?i)javascript:`),
	}
)

var knownFields = func() map[string]bool {
	words := strings.Fields(`and or not in order by asc desc group having
		project issuetype status priority assignee reporter creator
		resolution fixversion affectedversion component labels
		created updated resolved due summary description environment
		comment worklogauthor worklogdate timespent originalestimate
		remainingestimate aggregatetimeoriginalestimate aggregatetimespent
		duedate lastviewed voter watcher issuekey parent epic
		sprint team rank cf custom field`)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}()

// ValidateJQL checks query syntax heuristically. Only the first error is reported.
func ValidateJQL(query string) Validation {
	query = strings.TrimSpace(query)
	if query == "" {
		return Validation{Valid: false, Error: "Query cannot be empty", Warnings: []string{}, Suggestions: []string{}}
	}

	var errs, warnings []string

	if !fieldOperatorValueRe.MatchString(query) {
		errs = append(errs, "Query must contain at least one field-operator-value combination")
	}
	if invalidCharsRe.MatchString(query) {
		errs = append(errs, "Query contains invalid characters")
	}
	if strings.Count(query, "(") != strings.Count(query, ")") {
		errs = append(errs, "Unbalanced parentheses in query")
	}
	if strings.Count(query, "'")%2 == 1 {
		errs = append(errs, "Unmatched single quotes in query")
	}
	if strings.Count(query, `"`)%2 == 1 {
		errs = append(errs, "Unmatched double quotes in query")
	}

	for _, m := range fieldOperatorRe.FindAllStringSubmatch(query, -1) {
		field := m[1]
		if knownFields[strings.ToLower(field)] || customFieldRe.MatchString(field) {
			continue
		}
		warnings = append(warnings, "Field '"+field+"' may not be a standard JIRA field")
	}

	if doubledLogicalRe.MatchString(query) {
		errs = append(errs, "Invalid logical operator sequence")
	}
	for _, condition := range logicalSplitRe.Split(query, -1) {
		condition = strings.TrimSpace(condition)
		if condition == "" {
			continue
		}
		if len(fieldOperatorRe.FindAllString(condition, -1)) > 1 {
			warnings = append(warnings, "Multiple conditions may need explicit logical operators")
		}
	}

	switch length := utf8.RuneCountInString(query); {
	case length > MaxQueryLength:
		errs = append(errs, "Query exceeds maximum length of 2000 characters")
	case length > WarnQueryLength:
		warnings = append(warnings, "Query is very long and may impact performance")
	}

	for _, re := range unsafePatterns {
		if re.MatchString(query) {
			errs = append(errs, "Query contains potentially unsafe content")
			break
		}
	}

	v := Validation{
		Valid:       len(errs) == 0,
		Warnings:    warnings,
		Suggestions: suggestions(query),
	}
	if v.Warnings == nil {
		v.Warnings = []string{}
	}
	if len(errs) > 0 {
		v.Error = errs[0]
	}
	return v
}

func suggestions(query string) []string {
	out := []string{}
	if !projectRe.MatchString(query) {
		out = append(out, `Consider specifying a project: project = "YOUR_PROJECT"`)
	}
	if !statusFilterRe.MatchString(query) {
		out = append(out, "Consider filtering by status to get more relevant results")
	}
	if !orderByRe.MatchString(query) {
		out = append(out, "Consider adding ORDER BY for consistent results")
	}
	if assigneeEmptyRe.MatchString(query) {
		out = append(out, "Use 'assignee IS EMPTY' instead of 'assignee = EMPTY'")
	}
	return out
}
