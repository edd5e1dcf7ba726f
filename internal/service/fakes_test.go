package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-dispatch/internal/devin"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/persistence"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
)

var fixedNow = time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

// fakeSessions answers per ticket key; unknown keys succeed.
type fakeSessions struct {
	mu      sync.Mutex
	errs    map[string]error
	panics  map[string]bool
	calls   map[string]int
	overlap int
	active  int
	delay   time.Duration
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{errs: map[string]error{}, panics: map[string]bool{}, calls: map[string]int{}}
}

func (f *fakeSessions) CreateSession(_ context.Context, ticket *domain.Ticket) (*devin.Session, error) {
	f.mu.Lock()
	f.calls[ticket.Key]++
	f.active++
	if f.active > f.overlap {
		f.overlap = f.active
	}
	err, shouldPanic, delay := f.errs[ticket.Key], f.panics[ticket.Key], f.delay
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if shouldPanic {
		panic("agent client exploded")
	}
	if err != nil {
		return nil, err
	}
	return &devin.Session{ID: "sess-" + ticket.Key, URL: "https://app.devin.ai/sessions/" + ticket.Key}, nil
}

func (f *fakeSessions) callCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

type fakeLocker struct {
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(_ context.Context, key string) (persistence.ReleaseFunc, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

type fakeSearcher struct {
	result *jira.SearchResult
	err    error
	calls  int
	jql    string
}

func (f *fakeSearcher) Search(_ context.Context, jql string) (*jira.SearchResult, error) {
	f.calls++
	f.jql = jql
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fixture struct {
	missions *repository.MemoryMissionRepository
	tickets  *repository.MemoryTicketRepository
	mission  *domain.Mission
	byKey    map[string]domain.Ticket
}

func newFixture(t *testing.T, status domain.MissionStatus, keys ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		missions: repository.NewMemoryMissionRepository(),
		tickets:  repository.NewMemoryTicketRepository(),
		byKey:    map[string]domain.Ticket{},
	}
	f.mission = &domain.Mission{Name: "Mission - test", Status: status, JQLQuery: "project = TEST"}
	require.NoError(t, f.missions.Create(ctx, f.mission))

	tickets := make([]domain.Ticket, len(keys))
	for i, key := range keys {
		tickets[i] = domain.Ticket{MissionID: f.mission.ID, Key: key, Summary: "summary " + key}
	}
	require.NoError(t, f.tickets.CreateMany(ctx, tickets))
	for _, tk := range tickets {
		f.byKey[tk.Key] = tk
	}
	return f
}

func (f *fixture) selectKeys(t *testing.T, keys ...string) {
	t.Helper()
	ids := make([]string, len(keys))
	for i, k := range keys {
		ids[i] = f.byKey[k].ID
	}
	_, err := f.tickets.ReplaceSelection(context.Background(), f.mission.ID, ids, fixedNow)
	require.NoError(t, err)
}

func (f *fixture) ticket(t *testing.T, key string) domain.Ticket {
	t.Helper()
	all, err := f.tickets.ListByMission(context.Background(), f.mission.ID, repository.TicketFilter{})
	require.NoError(t, err)
	for _, tk := range all {
		if tk.Key == key {
			return tk
		}
	}
	t.Fatalf("ticket %s not found", key)
	return domain.Ticket{}
}

func (f *fixture) reloadMission(t *testing.T) *domain.Mission {
	t.Helper()
	m, err := f.missions.GetByID(context.Background(), f.mission.ID)
	require.NoError(t, err)
	return m
}

func timeoutErr() error {
	return &devin.DispatchError{Kind: devin.KindTimeout, Message: "Request timed out after 3 retries"}
}

func quotaErr() error {
	return &devin.DispatchError{Kind: devin.KindQuotaOrRateLimited, StatusCode: 429, Message: "Rate limit exceeded"}
}

var errBoom = errors.New("boom")
