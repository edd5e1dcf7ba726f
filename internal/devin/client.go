// Package devin creates coding agent sessions for tickets.
package devin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second

	sessionsPath    = "/v1/sessions"
	maxErrorBodyLen = 512
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the production SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NoSleep returns immediately. Used by tests.
func NoSleep(context.Context, time.Duration) error { return nil }

// AttemptRecorder observes every HTTP attempt. result is "ok", "transient" or an ErrorKind.
type AttemptRecorder interface {
	RecordDispatchAttempt(result string)
}

// Session is a created agent session.
type Session struct {
	ID        string
	URL       string
	Status    string
	CreatedAt *time.Time
}

type sessionResponse struct {
	SessionID string     `json:"session_id"`
	URL       string     `json:"url"`
	Status    string     `json:"status"`
	CreatedAt *time.Time `json:"created_at"`
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	APIKey     string
	TrackerURL string
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	HTTPClient *http.Client
	Sleep      SleepFunc
	Recorder   AttemptRecorder
	Logger     *zap.Logger
}

// Client talks to the agent session API.
type Client struct {
	baseURL    string
	apiKey     string
	trackerURL string
	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	http       *http.Client
	sleep      SleepFunc
	recorder   AttemptRecorder
	logger     *zap.Logger
}

// NewClient builds a client, filling unset options with defaults.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		apiKey:     strings.TrimSpace(opts.APIKey),
		trackerURL: opts.TrackerURL,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		http:       opts.HTTPClient,
		sleep:      opts.Sleep,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxRetries < 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.baseDelay <= 0 {
		c.baseDelay = DefaultBaseDelay
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.sleep == nil {
		c.sleep = ContextSleep
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// CreateSession starts one agent session for ticket. Every failure is a *DispatchError.
func (c *Client) CreateSession(ctx context.Context, ticket *domain.Ticket) (session *Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			session = nil
			err = &DispatchError{Kind: KindUnclassified, Message: fmt.Sprintf("Unexpected error: %v", r)}
		}
		if err != nil {
			c.logger.Error("devin session creation failed",
				zap.String("ticket_key", ticketKey(ticket)),
				zap.String("error_kind", string(KindOf(err))),
				zap.Error(err))
		}
	}()

	if c.apiKey == "" {
		return nil, &DispatchError{
			Kind:    KindAuthenticationFailed,
			Message: "Authentication failed. Please check API credentials.",
			Err:     errors.New("DEVIN_API_KEY not configured"),
		}
	}

	body, err := json.Marshal(sessionRequest{
		Prompt: BuildPrompt(ticket, c.trackerURL),
		Title:  ticket.Key,
	})
	if err != nil {
		return nil, &DispatchError{Kind: KindUnclassified, Message: "Unexpected error: " + err.Error(), Err: err}
	}

	return c.createWithRetry(ctx, ticket, body)
}

func (c *Client) createWithRetry(ctx context.Context, ticket *domain.Ticket, body []byte) (*Session, error) {
	delays := &backoff.ExponentialBackOff{
		InitialInterval:     c.baseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.baseDelay << uint(c.maxRetries+1),
	}
	delays.Reset()

	for attempt := 0; ; attempt++ {
		session, err := c.attempt(ctx, body)
		if err == nil {
			c.record("ok")
			return session, nil
		}
		if !isTransient(ctx, err) {
			de := classifyTerminal(err)
			c.record(string(de.Kind))
			return nil, de
		}
		c.record("transient")
		if attempt >= c.maxRetries {
			return nil, &DispatchError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("Request timed out after %d retries", c.maxRetries),
				Err:     err,
			}
		}
		delay := delays.NextBackOff()
		c.logger.Warn("devin request timed out, retrying",
			zap.String("ticket_key", ticketKey(ticket)),
			zap.Int("retry", attempt+1),
			zap.Int("max_retries", c.maxRetries),
			zap.Duration("delay", delay))
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &DispatchError{Kind: KindUnclassified, Message: "Unexpected error: " + err.Error(), Err: err}
		}
	}
}

// attempt performs one bounded HTTP round trip. Non-2xx answers come back as *DispatchError.
func (c *Client) attempt(ctx context.Context, body []byte) (*Session, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+sessionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if err := classifyStatus(resp.StatusCode, payload); err != nil {
		return nil, err
	}
	return parseSession(payload)
}

func classifyStatus(code int, body []byte) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return &DispatchError{Kind: KindAuthenticationFailed, StatusCode: code, Message: "Authentication failed. Please check API credentials."}
	case code == http.StatusForbidden:
		return &DispatchError{Kind: KindQuotaOrRateLimited, StatusCode: code, Message: "API quota exceeded or forbidden"}
	case code == http.StatusTooManyRequests:
		return &DispatchError{Kind: KindQuotaOrRateLimited, StatusCode: code, Message: "Rate limit exceeded"}
	case code >= 500 && code < 600:
		return &DispatchError{Kind: KindServiceError, StatusCode: code, Message: fmt.Sprintf("Devin service error (%d)", code)}
	default:
		return &DispatchError{
			Kind:       KindUnexpectedResponse,
			StatusCode: code,
			Message:    fmt.Sprintf("Unexpected response (%d): %s", code, truncate(string(body), maxErrorBodyLen)),
		}
	}
}

func parseSession(payload []byte) (*Session, error) {
	var data sessionResponse
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, &DispatchError{Kind: KindMalformedResponse, Message: "Invalid response from Devin API", Err: err}
	}
	if data.SessionID == "" {
		return nil, &DispatchError{Kind: KindMalformedResponse, Message: "Invalid response from Devin API", Err: errors.New("missing session_id")}
	}
	return &Session{ID: data.SessionID, URL: data.URL, Status: data.Status, CreatedAt: data.CreatedAt}, nil
}

// isTransient reports timeout and connection-level failures worth retrying.
// A cancelled parent context is never transient.
func isTransient(ctx context.Context, err error) bool {
	var de *DispatchError
	if errors.As(err, &de) {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

func classifyTerminal(err error) *DispatchError {
	var de *DispatchError
	if errors.As(err, &de) {
		return de
	}
	return &DispatchError{Kind: KindUnclassified, Message: "Unexpected error: " + err.Error(), Err: err}
}

func (c *Client) record(result string) {
	if c.recorder != nil {
		c.recorder.RecordDispatchAttempt(result)
	}
}

func ticketKey(ticket *domain.Ticket) string {
	if ticket == nil {
		return ""
	}
	return ticket.Key
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
