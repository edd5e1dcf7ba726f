package devin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func testTicket() *domain.Ticket {
	score := 2
	category := domain.ComplexityLow
	return &domain.Ticket{
		Key:                "TEST-123",
		Summary:            "Test ticket",
		Status:             "Open",
		ComplexityScore:    &score,
		ComplexityCategory: &category,
		RawData: map[string]any{"fields": map[string]any{
			"issuetype":   map[string]any{"name": "Bug"},
			"priority":    map[string]any{"name": "High"},
			"description": "Test description",
			"labels":      []any{"quick-win"},
		}},
	}
}

func newTestClient(url string, sleeper *recordingSleeper) *Client {
	return NewClient(Options{
		BaseURL:    url,
		APIKey:     "test_key_123",
		Timeout:    100 * time.Millisecond,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		Sleep:      sleeper.Sleep,
	})
}

func TestCreateSessionSuccess(t *testing.T) {
	var captured sessionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "Bearer test_key_123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"session_id":"devin_abc123","url":"https://devin.ai/sessions/abc123","status":"created","created_at":"2025-09-30T14:30:00Z"}`))
	}))
	defer server.Close()

	session, err := newTestClient(server.URL, &recordingSleeper{}).CreateSession(context.Background(), testTicket())

	require.NoError(t, err)
	assert.Equal(t, "devin_abc123", session.ID)
	assert.Equal(t, "https://devin.ai/sessions/abc123", session.URL)
	assert.Equal(t, "created", session.Status)
	require.NotNil(t, session.CreatedAt)

	assert.Equal(t, "TEST-123", captured.Title)
	assert.Contains(t, captured.Prompt, "**Ticket ID**: TEST-123")
	assert.Contains(t, captured.Prompt, "**Priority**: High")
	assert.Contains(t, captured.Prompt, "**Complexity**: low (score: 2)")
	assert.Contains(t, captured.Prompt, "Test description")
}

func TestCreateSessionMissingAPIKey(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer server.Close()

	client := NewClient(Options{BaseURL: server.URL, APIKey: "  "})
	_, err := client.CreateSession(context.Background(), testTicket())

	require.Error(t, err)
	assert.Equal(t, KindAuthenticationFailed, KindOf(err))
	assert.Equal(t, "Authentication failed. Please check API credentials.", err.Error())
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestCreateSessionStatusClassification(t *testing.T) {
	cases := []struct {
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{http.StatusUnauthorized, "Unauthorized", KindAuthenticationFailed, "Authentication failed. Please check API credentials."},
		{http.StatusForbidden, "Forbidden", KindQuotaOrRateLimited, "API quota exceeded or forbidden"},
		{http.StatusTooManyRequests, "slow down", KindQuotaOrRateLimited, "Rate limit exceeded"},
		{http.StatusInternalServerError, "boom", KindServiceError, "Devin service error (500)"},
		{http.StatusServiceUnavailable, "", KindServiceError, "Devin service error (503)"},
		{http.StatusTeapot, "short and stout", KindUnexpectedResponse, "Unexpected response (418): short and stout"},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			var hits int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			sleeper := &recordingSleeper{}
			_, err := newTestClient(server.URL, sleeper).CreateSession(context.Background(), testTicket())

			require.Error(t, err)
			var de *DispatchError
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tc.kind, de.Kind)
			assert.Equal(t, tc.status, de.StatusCode)
			assert.Equal(t, tc.message, de.Message)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "business errors are never retried")
			assert.Empty(t, sleeper.delays)
		})
	}
}

func TestCreateSessionMalformedBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":       "<html>oops</html>",
		"missing id":     `{"url":"https://devin.ai/sessions/x"}`,
		"truncated json": `{"session_id":`,
	} {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, &recordingSleeper{}).CreateSession(context.Background(), testTicket())

			assert.Equal(t, KindMalformedResponse, KindOf(err))
			assert.Equal(t, "Invalid response from Devin API", err.Error())
		})
	}
}

func TestCreateSessionRetriesTimeoutsThenGivesUp(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	_, err := newTestClient(server.URL, sleeper).CreateSession(context.Background(), testTicket())

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, "Request timed out after 3 retries", err.Error())
	assert.Equal(t, int32(4), atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, sleeper.delays)
}

func TestCreateSessionRecoversAfterTransientFailure(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`{"session_id":"devin_second","url":"https://devin.ai/sessions/second"}`))
	}))
	defer server.Close()

	sleeper := &recordingSleeper{}
	session, err := newTestClient(server.URL, sleeper).CreateSession(context.Background(), testTicket())

	require.NoError(t, err)
	assert.Equal(t, "devin_second", session.ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
	assert.Equal(t, []time.Duration{time.Second}, sleeper.delays)
}

func TestCreateSessionConnectionRefusedIsRetried(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	sleeper := &recordingSleeper{}
	client := NewClient(Options{
		BaseURL:    url,
		APIKey:     "k",
		MaxRetries: 2,
		BaseDelay:  10 * time.Millisecond,
		Sleep:      sleeper.Sleep,
	})
	_, err := client.CreateSession(context.Background(), testTicket())

	assert.True(t, IsTimeout(err))
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, sleeper.delays)
}

func TestCreateSessionRecoversPanics(t *testing.T) {
	client := NewClient(Options{
		BaseURL: "http://agent.invalid",
		APIKey:  "k",
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			panic("transport exploded")
		})},
	})

	_, err := client.CreateSession(context.Background(), testTicket())

	require.Error(t, err)
	assert.Equal(t, KindUnclassified, KindOf(err))
	assert.Equal(t, "Unexpected error: transport exploded", err.Error())
}

func TestCreateSessionUnclassifiedTransportError(t *testing.T) {
	var calls int32
	client := NewClient(Options{
		BaseURL: "http://agent.invalid",
		APIKey:  "k",
		Sleep:   NoSleep,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("certificate pinned elsewhere")
		})},
	})

	_, err := client.CreateSession(context.Background(), testTicket())

	assert.Equal(t, KindUnclassified, KindOf(err))
	assert.True(t, strings.HasPrefix(err.Error(), "Unexpected error: "))
	assert.Contains(t, err.Error(), "certificate pinned elsewhere")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCreateSessionCancelledContextIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	client := NewClient(Options{
		BaseURL: "http://agent.invalid",
		APIKey:  "k",
		Sleep:   NoSleep,
		HTTPClient: &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			return nil, r.Context().Err()
		})},
	})

	_, err := client.CreateSession(ctx, testTicket())

	assert.Equal(t, KindUnclassified, KindOf(err))
	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(1))
}

type countingRecorder struct {
	mu      sync.Mutex
	results []string
}

func (r *countingRecorder) RecordDispatchAttempt(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func TestCreateSessionRecordsAttempts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	rec := &countingRecorder{}
	client := NewClient(Options{BaseURL: server.URL, APIKey: "k", Recorder: rec})
	_, _ = client.CreateSession(context.Background(), testTicket())

	assert.Equal(t, []string{string(KindQuotaOrRateLimited)}, rec.results)
}
