package jira

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateJQLAcceptsWellFormedQuery(t *testing.T) {
	v := ValidateJQL("project = ABC AND status = Open ORDER BY created DESC")

	assert.True(t, v.Valid)
	assert.Empty(t, v.Error)
	assert.Empty(t, v.Warnings)
	assert.Empty(t, v.Suggestions)
}

func TestValidateJQLErrors(t *testing.T) {
	cases := map[string]struct {
		query string
		want  string
	}{
		"empty":            {"   ", "Query cannot be empty"},
		"no condition":     {"hello world", "Query must contain at least one field-operator-value combination"},
		"bad characters":   {"project = ABC & status = Open", "Query contains invalid characters"},
		"open paren":       {"project = ABC AND (status = Open", "Unbalanced parentheses in query"},
		"single quote":     {"summary ~ 'crash", "Unmatched single quotes in query"},
		"double quote":     {`summary ~ "crash`, "Unmatched double quotes in query"},
		"doubled operator": {"project = ABC AND OR status = Open", "Invalid logical operator sequence"},
		"sql injection":    {"project = ABC OR DROP TABLE users", "Query contains potentially unsafe content"},
		"script":           {"summary ~ \"<script>\"", "Query contains potentially unsafe content"},
		"too long":         {"project = ABC AND summary ~ \"" + strings.Repeat("x", 2000) + "\"", "Query exceeds maximum length of 2000 characters"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			v := ValidateJQL(tc.query)
			assert.False(t, v.Valid)
			assert.Equal(t, tc.want, v.Error)
		})
	}
}

func TestValidateJQLWarnings(t *testing.T) {
	v := ValidateJQL("project = ABC AND sprintly = 3")
	assert.True(t, v.Valid)
	assert.Contains(t, v.Warnings, "Field 'sprintly' may not be a standard JIRA field")

	v = ValidateJQL("customfield_10010 = 5")
	assert.True(t, v.Valid)
	assert.Empty(t, v.Warnings)

	v = ValidateJQL("project = ABC AND summary ~ \"" + strings.Repeat("x", 1600) + "\"")
	assert.True(t, v.Valid)
	assert.Contains(t, v.Warnings, "Query is very long and may impact performance")
}

func TestValidateJQLSuggestions(t *testing.T) {
	v := ValidateJQL("assignee = EMPTY")

	assert.True(t, v.Valid)
	assert.Equal(t, []string{
		`Consider specifying a project: project = "YOUR_PROJECT"`,
		"Consider filtering by status to get more relevant results",
		"Consider adding ORDER BY for consistent results",
		"Use 'assignee IS EMPTY' instead of 'assignee = EMPTY'",
	}, v.Suggestions)
}
