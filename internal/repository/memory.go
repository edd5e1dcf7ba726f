package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

var (
	_ MissionRepository       = (*MemoryMissionRepository)(nil)
	_ TicketRepository        = (*MemoryTicketRepository)(nil)
	_ TicketHistoryRepository = (*MemoryTicketHistoryRepository)(nil)
)

// MemoryMissionRepository keeps missions in process memory. It backs the
// service when no POSTGRES_DSN is configured and in tests.
type MemoryMissionRepository struct {
	mu       sync.RWMutex
	missions map[string]domain.Mission
	now      func() time.Time
}

// NewMemoryMissionRepository returns an empty store.
func NewMemoryMissionRepository() *MemoryMissionRepository {
	return &MemoryMissionRepository{missions: map[string]domain.Mission{}, now: time.Now}
}

func (r *MemoryMissionRepository) Create(_ context.Context, mission *domain.Mission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mission.ID == "" {
		mission.ID = uuid.NewString()
	}
	now := r.now()
	mission.CreatedAt, mission.UpdatedAt = now, now
	r.missions[mission.ID] = *mission
	return nil
}

func (r *MemoryMissionRepository) Update(_ context.Context, mission *domain.Mission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.missions[mission.ID]; !ok {
		return pgx.ErrNoRows
	}
	mission.UpdatedAt = r.now()
	r.missions[mission.ID] = *mission
	return nil
}

func (r *MemoryMissionRepository) GetByID(_ context.Context, id string) (*domain.Mission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mission, ok := r.missions[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &mission, nil
}

func (r *MemoryMissionRepository) List(_ context.Context, limit, offset int) ([]domain.Mission, error) {
	r.mu.RLock()
	result := make([]domain.Mission, 0, len(r.missions))
	for _, m := range r.missions {
		result = append(result, m)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID > result[j].ID
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return page(result, limit, offset), nil
}

// MemoryTicketRepository keeps tickets in process memory.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	order   []string
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty store.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{tickets: map[string]domain.Ticket{}, now: time.Now}
}

func (r *MemoryTicketRepository) CreateMany(_ context.Context, tickets []domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := map[string]bool{}
	for _, t := range r.tickets {
		existing[t.MissionID+"/"+t.Key] = true
	}

	now := r.now()
	for i := range tickets {
		t := &tickets[i]
		if existing[t.MissionID+"/"+t.Key] {
			continue
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.AssignmentStatus == "" {
			t.AssignmentStatus = domain.AssignmentPending
		}
		t.CreatedAt, t.UpdatedAt = now, now
		r.tickets[t.ID] = *t
		r.order = append(r.order, t.ID)
		existing[t.MissionID+"/"+t.Key] = true
	}
	return nil
}

func (r *MemoryTicketRepository) ListByMission(_ context.Context, missionID string, filter TicketFilter) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []domain.Ticket
	for _, id := range r.order {
		t, ok := r.tickets[id]
		if !ok || t.MissionID != missionID || !filter.matches(t) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

func (r *MemoryTicketRepository) SaveAnalysis(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticket.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	t.ComplexityScore = ticket.ComplexityScore
	t.ComplexityCategory = ticket.ComplexityCategory
	t.ComplexityFactors = ticket.ComplexityFactors
	t.AnalyzedAt = ticket.AnalyzedAt
	t.UpdatedAt = r.now()
	r.tickets[t.ID] = t
	return nil
}

func (r *MemoryTicketRepository) ReplaceSelection(_ context.Context, missionID string, ticketIDs []string, at time.Time) (int, error) {
	wanted := make(map[string]bool, len(ticketIDs))
	for _, id := range ticketIDs {
		wanted[id] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	selected := 0
	for id, t := range r.tickets {
		if t.MissionID != missionID {
			continue
		}
		if wanted[id] {
			selectedAt := at
			t.Selected, t.SelectedAt = true, &selectedAt
			selected++
		} else {
			t.Selected, t.SelectedAt = false, nil
		}
		r.tickets[id] = t
	}
	return selected, nil
}

func (r *MemoryTicketRepository) RecordOutcome(_ context.Context, ticketID string, outcome domain.AssignmentOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tickets[ticketID]
	if !ok {
		return pgx.ErrNoRows
	}

	t.AssignmentStatus = outcome.Status
	if outcome.Status == domain.AssignmentAssigned {
		sessionID, sessionURL, at := outcome.SessionID, outcome.SessionURL, outcome.At
		t.AssignmentError = nil
		t.SessionID, t.SessionURL, t.AssignedAt = &sessionID, &sessionURL, &at
	} else {
		msg := outcome.Error
		t.AssignmentError = &msg
		t.AssignmentRetryCount++
	}
	t.UpdatedAt = r.now()
	r.tickets[ticketID] = t
	return nil
}

func (r *MemoryTicketRepository) DeleteByMission(_ context.Context, missionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.order[:0]
	for _, id := range r.order {
		if r.tickets[id].MissionID == missionID {
			delete(r.tickets, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	return nil
}

func (f TicketFilter) matches(t domain.Ticket) bool {
	if f.Selected != nil && t.Selected != *f.Selected {
		return false
	}
	if f.Category != nil && t.Category() != *f.Category {
		return false
	}
	if len(f.AssignmentStatuses) > 0 {
		for _, s := range f.AssignmentStatuses {
			if t.AssignmentStatus == s {
				return true
			}
		}
		return false
	}
	return true
}

// MemoryTicketHistoryRepository keeps audit entries in insertion order.
type MemoryTicketHistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.TicketHistory
	now     func() time.Time
}

// NewMemoryTicketHistoryRepository returns an empty store.
func NewMemoryTicketHistoryRepository() *MemoryTicketHistoryRepository {
	return &MemoryTicketHistoryRepository{now: time.Now}
}

func (r *MemoryTicketHistoryRepository) Create(_ context.Context, history *domain.TicketHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history.ID = uuid.NewString()
	history.CreatedAt = r.now()
	r.entries = append(r.entries, *history)
	return nil
}

func (r *MemoryTicketHistoryRepository) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.TicketHistory
	for _, e := range r.entries {
		if e.TicketID == ticketID {
			out = append(out, e)
		}
	}
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
