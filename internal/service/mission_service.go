package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/jira"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

const missionNameLayout = "2006-01-02 15:04:05"

// TicketSearcher runs a tracker query.
type TicketSearcher interface {
	Search(ctx context.Context, jql string) (*jira.SearchResult, error)
}

// MissionService manages missions and their imported tickets.
type MissionService struct {
	missions repository.MissionRepository
	tickets  repository.TicketRepository
	history  repository.TicketHistoryRepository
	searcher TicketSearcher
	preview  TicketSearcher
	logger   *zap.Logger
	now      func() time.Time
}

// MissionDependencies bundles collaborators. PreviewSearcher serves
// PreviewQuery and defaults to Searcher.
type MissionDependencies struct {
	MissionRepo     repository.MissionRepository
	TicketRepo      repository.TicketRepository
	History         repository.TicketHistoryRepository
	Searcher        TicketSearcher
	PreviewSearcher TicketSearcher
	Logger          *zap.Logger
	Now             func() time.Time
}

// NewMissionService creates the service.
func NewMissionService(deps MissionDependencies) *MissionService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	preview := deps.PreviewSearcher
	if preview == nil {
		preview = deps.Searcher
	}
	return &MissionService{
		missions: deps.MissionRepo,
		tickets:  deps.TicketRepo,
		history:  deps.History,
		searcher: deps.Searcher,
		preview:  preview,
		logger:   logger,
		now:      clockOrNow(deps.Now),
	}
}

// Create starts a draft mission named after the current time.
func (s *MissionService) Create(ctx context.Context) (*domain.Mission, error) {
	mission := &domain.Mission{
		Name:   "Mission - " + s.now().Format(missionNameLayout),
		Status: domain.MissionDraft,
	}
	if err := s.missions.Create(ctx, mission); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("mission created", zap.String("mission_id", mission.ID), zap.String("name", mission.Name))
	return mission, nil
}

// List returns missions newest first.
func (s *MissionService) List(ctx context.Context, limit, offset int) ([]domain.Mission, error) {
	missions, err := s.missions.List(ctx, limit, offset)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return missions, nil
}

// Get loads one mission.
func (s *MissionService) Get(ctx context.Context, id string) (*domain.Mission, error) {
	return loadMission(ctx, s.missions, id)
}

// Tickets returns the mission's stored tickets.
func (s *MissionService) Tickets(ctx context.Context, id string, filter repository.TicketFilter) ([]domain.Ticket, error) {
	if _, err := loadMission(ctx, s.missions, id); err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByMission(ctx, id, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// TicketHistory returns the audit trail of one mission ticket, oldest first.
func (s *MissionService) TicketHistory(ctx context.Context, missionID, ticketID string) ([]domain.TicketHistory, error) {
	tickets, err := s.Tickets(ctx, missionID, repository.TicketFilter{})
	if err != nil {
		return nil, err
	}
	found := false
	for _, t := range tickets {
		if t.ID == ticketID {
			found = true
			break
		}
	}
	if !found {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"mission_id": missionID, "ticket_id": ticketID})
	}
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if entries == nil {
		entries = []domain.TicketHistory{}
	}
	return entries, nil
}

// SaveQuery validates and stores the mission's JQL. Changing the query drops
// previously imported tickets so the next fetch reflects the new query.
func (s *MissionService) SaveQuery(ctx context.Context, id, query string) (*domain.Mission, jira.Validation, error) {
	query = strings.TrimSpace(query)
	validation := jira.ValidateJQL(query)
	if query == "" {
		return nil, validation, apperrors.NewValidationError("JQL query cannot be empty", nil)
	}
	if !validation.Valid {
		return nil, validation, apperrors.NewValidationError(validation.Error, map[string]any{
			"warnings":    validation.Warnings,
			"suggestions": validation.Suggestions,
		})
	}

	mission, err := loadMission(ctx, s.missions, id)
	if err != nil {
		return nil, validation, err
	}

	if mission.JQLQuery != query {
		if err := s.tickets.DeleteByMission(ctx, mission.ID); err != nil {
			return nil, validation, apperrors.MapError(err)
		}
		s.logger.Info("mission query changed; tickets cleared", zap.String("mission_id", mission.ID))
	}
	mission.JQLQuery = query
	if err := s.missions.Update(ctx, mission); err != nil {
		return nil, validation, apperrors.MapError(err)
	}
	return mission, validation, nil
}

// FetchTickets imports the query's results once. Later calls return the stored tickets.
func (s *MissionService) FetchTickets(ctx context.Context, id string) ([]domain.Ticket, error) {
	mission, err := loadMission(ctx, s.missions, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(mission.JQLQuery) == "" {
		return nil, apperrors.NewValidationError("mission has no JQL query", map[string]any{"mission_id": id})
	}

	existing, err := s.tickets.ListByMission(ctx, mission.ID, repository.TicketFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	result, err := s.search(ctx, s.searcher, mission.JQLQuery)
	if err != nil {
		return nil, err
	}
	for i := range result.Tickets {
		result.Tickets[i].MissionID = mission.ID
	}
	if err := s.tickets.CreateMany(ctx, result.Tickets); err != nil {
		return nil, apperrors.MapError(err)
	}

	mission.Advance(domain.MissionQueried)
	if err := s.missions.Update(ctx, mission); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("mission tickets imported",
		zap.String("mission_id", mission.ID),
		zap.Int("imported", len(result.Tickets)),
		zap.Int("total", result.Total))

	tickets, err := s.tickets.ListByMission(ctx, mission.ID, repository.TicketFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tickets, nil
}

// PreviewQuery validates and runs query without storing anything.
func (s *MissionService) PreviewQuery(ctx context.Context, query string) (*jira.SearchResult, jira.Validation, error) {
	validation := jira.ValidateJQL(query)
	if !validation.Valid {
		return nil, validation, apperrors.NewValidationError(validation.Error, map[string]any{
			"suggestions": validation.Suggestions,
		})
	}
	result, err := s.search(ctx, s.preview, strings.TrimSpace(query))
	if err != nil {
		return nil, validation, err
	}
	return result, validation, nil
}

func (s *MissionService) search(ctx context.Context, searcher TicketSearcher, query string) (*jira.SearchResult, error) {
	if searcher == nil {
		return nil, apperrors.NewBadGateway("issue tracker not configured", nil)
	}
	result, err := searcher.Search(ctx, query)
	if err == nil {
		return result, nil
	}

	var invalid *jira.InvalidQueryError
	if errors.As(err, &invalid) {
		return nil, apperrors.NewValidationError(invalid.Error(), nil)
	}
	s.logger.Warn("jira search failed", zap.Error(err))
	return nil, apperrors.NewBadGateway(err.Error(), err)
}
