// Package jira searches the issue tracker and maps issues to mission tickets.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/richtext"
)

const (
	searchPath        = "/rest/api/3/search/jql"
	searchFields      = "key,summary,status,priority,assignee,created,labels,description,issuetype,comment,issuelinks"
	DefaultMaxResults = 100
	DefaultTimeout    = 10 * time.Second
)

// InvalidQueryError is returned when the tracker rejects the JQL.
type InvalidQueryError struct {
	Message string
}

func (e *InvalidQueryError) Error() string {
	return "Invalid JQL query: " + e.Message
}

// APIError covers every other tracker failure.
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string { return e.Message }

func (e *APIError) Unwrap() error { return e.Err }

// SearchResult is one page of tickets returned by a search.
type SearchResult struct {
	Total   int
	Tickets []domain.Ticket
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Email      string
	APIToken   string
	MaxResults int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the Jira Cloud REST API.
type Client struct {
	baseURL    string
	email      string
	token      string
	maxResults int
	http       *http.Client
	logger     *zap.Logger
}

// NewClient builds a Client, applying defaults for zero options.
func NewClient(opts Options) *Client {
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		email:      opts.Email,
		token:      opts.APIToken,
		maxResults: opts.MaxResults,
		http:       httpClient,
		logger:     logger,
	}
}

// Search runs jql and returns the matching issues as unsaved tickets.
func (c *Client) Search(ctx context.Context, jql string) (*SearchResult, error) {
	if c.baseURL == "" {
		return nil, &APIError{Message: "JIRA is not configured"}
	}

	params := url.Values{}
	params.Set("jql", jql)
	params.Set("maxResults", fmt.Sprint(c.maxResults))
	params.Set("fields", searchFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+searchPath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &APIError{Message: "Failed to fetch tickets: " + err.Error(), Err: err}
	}
	req.SetBasicAuth(c.email, c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Message: "Failed to fetch tickets: " + err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "Failed to fetch tickets: " + err.Error(), Err: err}
	}
	if err := checkStatus(resp.StatusCode, body); err != nil {
		c.logger.Warn("jira search rejected", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, err
	}

	var payload struct {
		Total  *int             `json:"total"`
		Issues []map[string]any `json:"issues"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "Invalid JSON response from JIRA: " + err.Error(), Err: err}
	}

	result := &SearchResult{Tickets: make([]domain.Ticket, 0, len(payload.Issues))}
	for _, issue := range payload.Issues {
		result.Tickets = append(result.Tickets, TicketFromIssue(issue))
	}
	result.Total = len(result.Tickets)
	if payload.Total != nil {
		result.Total = *payload.Total
	}
	c.logger.Info("jira search completed", zap.Int("total", result.Total), zap.Int("returned", len(result.Tickets)))
	return result, nil
}

func checkStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusBadRequest:
		return &InvalidQueryError{Message: trackerMessage(body)}
	case status == http.StatusUnauthorized:
		return &APIError{StatusCode: status, Message: "Authentication failed. Please check your JIRA credentials."}
	case status == http.StatusForbidden:
		return &APIError{StatusCode: status, Message: "Access denied. You don't have permission to view these tickets."}
	case status == http.StatusTooManyRequests:
		return &APIError{StatusCode: status, Message: "JIRA rate limit exceeded. Please wait and try again."}
	default:
		return &APIError{StatusCode: status, Message: fmt.Sprintf("JIRA API error (%d): %s", status, http.StatusText(status))}
	}
}

func trackerMessage(body []byte) string {
	var payload struct {
		ErrorMessages []string `json:"errorMessages"`
		Error         string   `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "Unknown error"
	}
	if len(payload.ErrorMessages) > 0 && payload.ErrorMessages[0] != "" {
		return payload.ErrorMessages[0]
	}
	if payload.Error != "" {
		return payload.Error
	}
	return "Unknown error"
}

// TicketFromIssue maps one search issue to a ticket. The whole issue is kept as RawData.
func TicketFromIssue(issue map[string]any) domain.Ticket {
	fields, _ := issue["fields"].(map[string]any)
	key, _ := issue["key"].(string)
	summary, _ := fields["summary"].(string)

	ticket := domain.Ticket{
		Key:              key,
		Summary:          summary,
		Description:      richtext.Text(fields["description"]),
		Status:           nestedString(fields, "status", "name"),
		Priority:         nestedString(fields, "priority", "name"),
		Assignee:         nestedString(fields, "assignee", "displayName"),
		Labels:           joinLabels(fields["labels"]),
		JiraCreatedAt:    ParseTime(fields["created"]),
		RawData:          issue,
		AssignmentStatus: domain.AssignmentPending,
	}
	if ticket.Assignee == "" {
		ticket.Assignee = nestedString(fields, "assignee", "emailAddress")
	}
	return ticket
}

func nestedString(fields map[string]any, object, key string) string {
	inner, _ := fields[object].(map[string]any)
	value, _ := inner[key].(string)
	return value
}

func joinLabels(raw any) string {
	items, _ := raw.([]any)
	labels := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			labels = append(labels, s)
		}
	}
	return strings.Join(labels, ", ")
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// ParseTime reads the tracker's timestamp formats. Unparseable values yield nil.
func ParseTime(raw any) *time.Time {
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// IsInvalidQuery reports whether err is a tracker rejection of the query.
func IsInvalidQuery(err error) bool {
	var target *InvalidQueryError
	return errors.As(err, &target)
}
