package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/api/http/handlers"
	"github.com/spec-kit/ticket-dispatch/internal/auth"
	"github.com/spec-kit/ticket-dispatch/internal/devin"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/observability"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	"github.com/spec-kit/ticket-dispatch/internal/service"
)

type stubSearcher struct{ result *jira.SearchResult }

func (s stubSearcher) Search(context.Context, string) (*jira.SearchResult, error) {
	return s.result, nil
}

type stubSessions struct{ failKey string }

func (s stubSessions) CreateSession(_ context.Context, ticket *domain.Ticket) (*devin.Session, error) {
	if ticket.Key == s.failKey {
		return nil, &devin.DispatchError{Kind: devin.KindServiceError, StatusCode: 500, Message: "Devin API server error (HTTP 500)"}
	}
	return &devin.Session{ID: "sess-" + ticket.Key, URL: "https://app.devin.ai/sessions/" + ticket.Key}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	metrics *observability.Metrics
}

func newTestServer(t *testing.T, ready error) *testServer {
	t.Helper()
	missions := repository.NewMemoryMissionRepository()
	tickets := repository.NewMemoryTicketRepository()
	history := repository.NewMemoryTicketHistoryRepository()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()

	searcher := stubSearcher{result: &jira.SearchResult{Total: 2, Tickets: []domain.Ticket{
		{Key: "WEB-1", Summary: "Fix typo", Status: "Open", Priority: "Low",
			RawData: map[string]any{"fields": map[string]any{"issuetype": map[string]any{"name": "Bug"}, "labels": []any{"quick-win"}}}},
		{Key: "WEB-2", Summary: "Broken link", Status: "Open", Priority: "High",
			RawData: map[string]any{"fields": map[string]any{"issuetype": map[string]any{"name": "Bug"}, "labels": []any{"quick-win"}}}},
	}}}

	missionSvc := service.NewMissionService(service.MissionDependencies{MissionRepo: missions, TicketRepo: tickets, History: history, Searcher: searcher, Logger: logger})
	analysisSvc := service.NewAnalysisService(service.AnalysisDependencies{MissionRepo: missions, TicketRepo: tickets, History: history, Metrics: metrics, Logger: logger})
	selectionSvc := service.NewSelectionService(service.SelectionDependencies{MissionRepo: missions, TicketRepo: tickets, Logger: logger})
	assignmentSvc := service.NewAssignmentService(service.AssignmentDependencies{
		MissionRepo: missions, TicketRepo: tickets, History: history, Sessions: stubSessions{failKey: "WEB-2"}, Metrics: metrics, Logger: logger,
	})

	tokens := auth.NewTokenManager("test-secret", 10)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-dispatch", "test", map[string]handlers.Pinger{"postgres": stubPinger{err: ready}}),
		Missions:       handlers.NewMissionsHandler(missionSvc, analysisSvc),
		Tickets:        handlers.NewTicketsHandler(missionSvc, selectionSvc),
		Assignments:    handlers.NewAssignmentsHandler(assignmentSvc),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		Metrics:        metrics,
	})
	return &testServer{app: app, tokens: tokens, metrics: metrics}
}

func (s *testServer) token(t *testing.T, role domain.OperatorRole) string {
	t.Helper()
	_, raw, err := s.tokens.GenerateToken("ops@example.com", role)
	require.NoError(t, err)
	return raw
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "data object in %v", body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestMissionWorkflow(t *testing.T) {
	srv := newTestServer(t, nil)
	tok := srv.token(t, domain.RoleDispatcher)

	status, body := srv.do(t, nethttp.MethodPost, "/api/missions", tok, nil)
	require.Equal(t, nethttp.StatusCreated, status)
	missionID := data(t, body)["id"].(string)
	assert.Equal(t, "draft", data(t, body)["status"])

	status, body = srv.do(t, nethttp.MethodPut, "/api/missions/"+missionID+"/query", tok, map[string]string{"jql_query": "project = WEB AND status = Open"})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, true, data(t, body)["validation"].(map[string]any)["valid"])

	status, body = srv.do(t, nethttp.MethodPost, "/api/missions/"+missionID+"/tickets/fetch", tok, nil)
	require.Equal(t, nethttp.StatusOK, status)
	fetched := body["data"].([]any)
	require.Len(t, fetched, 2)

	status, body = srv.do(t, nethttp.MethodPost, "/api/missions/"+missionID+"/analyze", tok, nil)
	require.Equal(t, nethttp.StatusOK, status)
	analysis := data(t, body)
	assert.Equal(t, float64(2), analysis["analyzed"])
	assert.Equal(t, "analyzed", analysis["mission"].(map[string]any)["status"])
	suggested := analysis["suggested_ticket_ids"].([]any)
	require.Len(t, suggested, 2)

	status, body = srv.do(t, nethttp.MethodPut, "/api/missions/"+missionID+"/selection", tok, map[string]any{"ticket_ids": suggested})
	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(2), data(t, body)["selected"])

	status, body = srv.do(t, nethttp.MethodPost, "/api/missions/"+missionID+"/assign", tok, nil)
	require.Equal(t, nethttp.StatusOK, status)
	report := data(t, body)
	assert.Equal(t, float64(1), report["total_assigned"])
	assert.Equal(t, float64(1), report["failed_count"])
	assert.Equal(t, "assigned", report["mission_status"])
	assert.Len(t, report["success"], 1)
	assert.Len(t, report["failed"], 1)

	status, body = srv.do(t, nethttp.MethodGet, "/api/missions/"+missionID+"/tickets?assignment_status=failed", tok, nil)
	require.Equal(t, nethttp.StatusOK, status)
	failed := body["data"].([]any)
	require.Len(t, failed, 1)
	assert.Equal(t, "WEB-2", failed[0].(map[string]any)["jira_key"])
	assert.Equal(t, float64(1), failed[0].(map[string]any)["assignment_retry_count"])

	failedID := failed[0].(map[string]any)["id"].(string)
	status, body = srv.do(t, nethttp.MethodGet, "/api/missions/"+missionID+"/tickets/"+failedID+"/history", tok, nil)
	require.Equal(t, nethttp.StatusOK, status)
	entries := body["data"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "COMPLEXITY_ANALYSIS", entries[0].(map[string]any)["change_type"])
	last := entries[1].(map[string]any)
	assert.Equal(t, "ASSIGNMENT_OUTCOME", last["change_type"])
	assert.Equal(t, "failed", last["new_value"].(map[string]any)["assignment_status"])
	assert.Equal(t, "pending", last["old_value"].(map[string]any)["assignment_status"])

	status, _ = srv.do(t, nethttp.MethodGet, "/api/missions/"+missionID+"/tickets/unknown/history", tok, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)

	status, body = srv.do(t, nethttp.MethodGet, "/api/missions/"+missionID+"/assignments", srv.token(t, domain.RoleViewer), nil)
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, data(t, body)["success"], 1)
}

func TestErrorEnvelope(t *testing.T) {
	srv := newTestServer(t, nil)
	tok := srv.token(t, domain.RoleDispatcher)

	status, body := srv.do(t, nethttp.MethodGet, "/api/missions/nope", tok, nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))

	_, created := srv.do(t, nethttp.MethodPost, "/api/missions", tok, nil)
	missionID := data(t, created)["id"].(string)

	status, body = srv.do(t, nethttp.MethodPost, "/api/missions/"+missionID+"/assign", tok, nil)
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = srv.do(t, nethttp.MethodPut, "/api/missions/"+missionID+"/selection", tok, map[string]any{"ticket_ids": []string{}})
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = srv.do(t, nethttp.MethodGet, "/api/missions/"+missionID+"/tickets?category=huge", tok, nil)
	assert.Equal(t, nethttp.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestAuthorization(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodGet, "/api/missions", "", nil)
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = srv.do(t, nethttp.MethodGet, "/api/missions", srv.token(t, domain.RoleViewer), nil)
	assert.Equal(t, nethttp.StatusOK, status)

	status, body = srv.do(t, nethttp.MethodPost, "/api/missions", srv.token(t, domain.RoleViewer), nil)
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestValidateJQLEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/jql/validate", srv.token(t, domain.RoleViewer), map[string]string{"jql_query": "project = WEB AND (status = Open"})

	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, false, data(t, body)["valid"])
	assert.Equal(t, "Unbalanced parentheses in query", data(t, body)["error"])
}

func TestPreviewEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodPost, "/api/jql/preview", srv.token(t, domain.RoleViewer), map[string]string{"jql_query": "project = WEB"})

	require.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, float64(2), data(t, body)["total"])
	assert.Len(t, data(t, body)["tickets"], 2)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, nil)

	status, body := srv.do(t, nethttp.MethodGet, "/health/live", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = srv.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := srv.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "ticket_dispatch_http_requests_total")

	down := newTestServer(t, errors.New("connection refused"))
	status, body = down.do(t, nethttp.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, nethttp.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, nil)
	status, body := srv.do(t, nethttp.MethodGet, "/nowhere", "", nil)
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}
