package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/events"
	"github.com/spec-kit/ticket-dispatch/internal/observability"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	"github.com/spec-kit/ticket-dispatch/internal/scoring"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

// AnalysisSummary aggregates the complexity distribution of a mission.
type AnalysisSummary struct {
	Total          int `json:"total"`
	Low            int `json:"low"`
	Medium         int `json:"medium"`
	High           int `json:"high"`
	LowBugs        int `json:"low_bugs"`
	Selected       int `json:"selected"`
	SelectedLow    int `json:"selected_low"`
	SelectedMedium int `json:"selected_medium"`
	SelectedHigh   int `json:"selected_high"`
}

// AnalysisReport is returned by AnalyzeMission.
type AnalysisReport struct {
	Mission  *domain.Mission
	Tickets  []domain.Ticket
	Analyzed int
	Summary  AnalysisSummary
	// SuggestedTicketIDs lists low complexity tickets to preselect. It is only
	// filled while nothing is selected yet.
	SuggestedTicketIDs []string
}

// AnalysisService scores mission tickets.
type AnalysisService struct {
	missions   repository.MissionRepository
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	analyzer   *scoring.Analyzer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// AnalysisDependencies bundles collaborators.
type AnalysisDependencies struct {
	MissionRepo repository.MissionRepository
	TicketRepo  repository.TicketRepository
	History     repository.TicketHistoryRepository
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewAnalysisService creates the service.
func NewAnalysisService(deps AnalysisDependencies) *AnalysisService {
	now := clockOrNow(deps.Now)
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalysisService{
		missions:   deps.MissionRepo,
		tickets:    deps.TicketRepo,
		history:    deps.History,
		analyzer:   scoring.NewAnalyzer(now),
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		now:        now,
	}
}

// AnalyzeMission scores every ticket that has no analysis yet, or every ticket
// when force is set, and moves the mission to analyzed.
func (s *AnalysisService) AnalyzeMission(ctx context.Context, missionID string, force bool) (*AnalysisReport, error) {
	mission, err := loadMission(ctx, s.missions, missionID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByMission(ctx, missionID, repository.TicketFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(tickets) == 0 {
		return nil, apperrors.NewValidationError("No tickets to analyze. Please fetch tickets first.", map[string]any{"mission_id": missionID})
	}

	analyzed := 0
	for i := range tickets {
		ticket := &tickets[i]
		if ticket.Analyzed() && !force {
			continue
		}
		previous := analysisValue(ticket)
		res := s.analyzer.Apply(ticket)
		if err := s.tickets.SaveAnalysis(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.recordHistory(ctx, ticket, previous)
		s.metrics.RecordComplexity(string(res.Category), res.Score)
		analyzed++
	}

	if analyzed > 0 {
		mission.Advance(domain.MissionAnalyzed)
		if err := s.missions.Update(ctx, mission); err != nil {
			return nil, apperrors.MapError(err)
		}
		s.logger.Info("mission analyzed",
			zap.String("mission_id", mission.ID),
			zap.Int("analyzed", analyzed),
			zap.Int("total", len(tickets)))
		s.publish(ctx, mission.ID, events.MissionAnalyzedPayload{Analyzed: analyzed, Total: len(tickets)})
	}

	report := &AnalysisReport{
		Mission:  mission,
		Tickets:  tickets,
		Analyzed: analyzed,
		Summary:  Summarize(tickets),
	}
	if report.Summary.Selected == 0 {
		for _, t := range tickets {
			if t.Category() == domain.ComplexityLow {
				report.SuggestedTicketIDs = append(report.SuggestedTicketIDs, t.ID)
			}
		}
	}
	return report, nil
}

// Summarize counts tickets per category, overall and within the selection.
func Summarize(tickets []domain.Ticket) AnalysisSummary {
	summary := AnalysisSummary{Total: len(tickets)}
	for _, t := range tickets {
		category := t.Category()
		switch category {
		case domain.ComplexityLow:
			summary.Low++
			if t.IssueType() == "Bug" {
				summary.LowBugs++
			}
		case domain.ComplexityMedium:
			summary.Medium++
		case domain.ComplexityHigh:
			summary.High++
		}
		if !t.Selected {
			continue
		}
		summary.Selected++
		switch category {
		case domain.ComplexityLow:
			summary.SelectedLow++
		case domain.ComplexityMedium:
			summary.SelectedMedium++
		case domain.ComplexityHigh:
			summary.SelectedHigh++
		}
	}
	return summary
}

func (s *AnalysisService) recordHistory(ctx context.Context, ticket *domain.Ticket, previous map[string]any) {
	if s.history == nil {
		return
	}
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		MissionID:  ticket.MissionID,
		ChangeType: domain.ChangeTypeAnalysis,
		OldValue:   previous,
		NewValue:   analysisValue(ticket),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("analysis history not written", zap.String("ticket_key", ticket.Key), zap.Error(err))
	}
}

// analysisValue is nil for a ticket that was never analyzed.
func analysisValue(ticket *domain.Ticket) map[string]any {
	if ticket.ComplexityScore == nil {
		return nil
	}
	value := map[string]any{
		"complexity_score":    *ticket.ComplexityScore,
		"complexity_category": string(ticket.Category()),
	}
	if len(ticket.ComplexityFactors) > 0 {
		factors := make(map[string]any, len(ticket.ComplexityFactors))
		for name, v := range ticket.ComplexityFactors {
			factors[name] = v
		}
		value["complexity_factors"] = factors
	}
	return value
}

func (s *AnalysisService) publish(ctx context.Context, missionID string, payload events.MissionAnalyzedPayload) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventMissionAnalyzed,
		MissionID: missionID,
		Timestamp: s.now(),
		Payload:   payload,
	})
}
