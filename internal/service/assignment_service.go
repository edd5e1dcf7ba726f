package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/devin"
	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/events"
	"github.com/spec-kit/ticket-dispatch/internal/observability"
	"github.com/spec-kit/ticket-dispatch/internal/persistence"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

// DefaultWorkers bounds concurrent agent calls per run.
const DefaultWorkers = 5

// ErrNothingSelected is returned by AssignSelected when the mission has no selection.
var ErrNothingSelected = errors.New("no tickets selected for assignment")

// SessionCreator opens an agent session for a ticket.
type SessionCreator interface {
	CreateSession(ctx context.Context, ticket *domain.Ticket) (*devin.Session, error)
}

// RunLocker serializes assignment runs of one mission.
type RunLocker interface {
	Acquire(ctx context.Context, key string) (persistence.ReleaseFunc, error)
}

// TicketResult is the outcome of one ticket in a run.
type TicketResult struct {
	TicketID   string                  `json:"ticket_id"`
	Key        string                  `json:"key"`
	Summary    string                  `json:"summary"`
	Status     domain.AssignmentStatus `json:"status"`
	ErrorKind  devin.ErrorKind         `json:"error_kind,omitempty"`
	Error      string                  `json:"error,omitempty"`
	SessionID  string                  `json:"session_id,omitempty"`
	SessionURL string                  `json:"session_url,omitempty"`
}

// AssignmentReport groups per-ticket outcomes. A run always yields a report;
// TotalAssigned == 0 means the whole batch failed.
type AssignmentReport struct {
	MissionID     string         `json:"mission_id"`
	MissionStatus string         `json:"mission_status"`
	Success       []TicketResult `json:"success"`
	Failed        []TicketResult `json:"failed"`
	Timeout       []TicketResult `json:"timeout"`
	// Skipped holds selected tickets that already had a session.
	Skipped       []TicketResult `json:"skipped"`
	Pending       []TicketResult `json:"pending,omitempty"`
	TotalAssigned int            `json:"total_assigned"`
	FailedCount   int            `json:"failed_count"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

func newReport(missionID string) *AssignmentReport {
	return &AssignmentReport{
		MissionID: missionID,
		Success:   []TicketResult{},
		Failed:    []TicketResult{},
		Timeout:   []TicketResult{},
		Skipped:   []TicketResult{},
	}
}

func (r *AssignmentReport) add(result TicketResult) {
	switch result.Status {
	case domain.AssignmentAssigned:
		r.Success = append(r.Success, result)
	case domain.AssignmentTimeout:
		r.Timeout = append(r.Timeout, result)
	default:
		r.Failed = append(r.Failed, result)
	}
}

// AssignmentService dispatches selected mission tickets to the coding agent.
type AssignmentService struct {
	missions   repository.MissionRepository
	tickets    repository.TicketRepository
	history    repository.TicketHistoryRepository
	sessions   SessionCreator
	locker     RunLocker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	workers    int
	now        func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	MissionRepo repository.MissionRepository
	TicketRepo  repository.TicketRepository
	History     repository.TicketHistoryRepository
	Sessions    SessionCreator
	Locker      RunLocker
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Logger      *zap.Logger
	Workers     int
	Now         func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	workers := deps.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		missions:   deps.MissionRepo,
		tickets:    deps.TicketRepo,
		history:    deps.History,
		sessions:   deps.Sessions,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		workers:    workers,
		now:        clockOrNow(deps.Now),
	}
}

// AssignSelected checks that the mission has a selection and runs the assignment.
func (s *AssignmentService) AssignSelected(ctx context.Context, missionID string) (*AssignmentReport, error) {
	if _, err := loadMission(ctx, s.missions, missionID); err != nil {
		return nil, err
	}
	selected, err := s.tickets.ListByMission(ctx, missionID, repository.TicketFilter{Selected: ptrBool(true)})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(selected) == 0 {
		return nil, apperrors.WrapValidation(ErrNothingSelected, map[string]any{"mission_id": missionID})
	}
	return s.RunAssignment(ctx, missionID)
}

// RunAssignment dispatches every selected, not yet assigned ticket exactly once
// and records each outcome. Failures are contained per ticket. Once started the
// run completes even if ctx is cancelled.
func (s *AssignmentService) RunAssignment(ctx context.Context, missionID string) (*AssignmentReport, error) {
	if _, err := loadMission(ctx, s.missions, missionID); err != nil {
		return nil, err
	}

	release, err := s.lock(ctx, missionID)
	if err != nil {
		return nil, err
	}
	defer release()

	ctx = context.WithoutCancel(ctx)

	selected, err := s.tickets.ListByMission(ctx, missionID, repository.TicketFilter{Selected: ptrBool(true)})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := newReport(missionID)
	pending := make([]domain.Ticket, 0, len(selected))
	for _, t := range selected {
		if t.IsAssigned() {
			report.Skipped = append(report.Skipped, resultFromTicket(t))
			continue
		}
		pending = append(pending, t)
	}
	if len(pending) == 0 && len(report.Skipped) > 0 {
		s.logger.Info("assignment run has nothing to dispatch",
			zap.String("mission_id", missionID),
			zap.Int("skipped", len(report.Skipped)))
		return s.AssignmentResults(ctx, missionID)
	}

	s.logger.Info("assignment run started",
		zap.String("mission_id", missionID),
		zap.Int("dispatching", len(pending)),
		zap.Int("skipped", len(report.Skipped)),
		zap.Int("workers", s.workers))

	results := make([]TicketResult, len(pending))
	p := pool.New().WithMaxGoroutines(s.workers)
	for i := range pending {
		p.Go(func() {
			results[i] = s.dispatchOne(ctx, missionID, &pending[i])
		})
	}
	p.Wait()

	for _, result := range results {
		report.add(result)
	}
	report.TotalAssigned = len(report.Success)
	report.FailedCount = len(report.Failed) + len(report.Timeout)

	mission, err := s.finishMission(ctx, missionID, report)
	if err != nil {
		return report, err
	}
	report.MissionStatus = string(mission.Status)
	report.CompletedAt = mission.AssignmentCompletedAt

	s.logger.Info("assignment run completed",
		zap.String("mission_id", missionID),
		zap.Int("assigned", report.TotalAssigned),
		zap.Int("failed", len(report.Failed)),
		zap.Int("timeout", len(report.Timeout)),
		zap.String("mission_status", report.MissionStatus))
	s.publish(ctx, events.Event{
		Type:      events.EventMissionAssignmentCompleted,
		MissionID: missionID,
		Payload: events.MissionAssignmentCompletedPayload{
			Assigned: report.TotalAssigned,
			Failed:   len(report.Failed),
			Timeout:  len(report.Timeout),
			Skipped:  len(report.Skipped),
		},
	})
	return report, nil
}

// finishMission persists the run counters. Status moves to assigned only when
// at least one ticket was assigned; AssignedAt keeps its first value.
func (s *AssignmentService) finishMission(ctx context.Context, missionID string, report *AssignmentReport) (*domain.Mission, error) {
	mission, err := loadMission(ctx, s.missions, missionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	mission.TotalAssignedCount = report.TotalAssigned
	mission.FailedAssignmentCount = report.FailedCount
	mission.AssignmentCompletedAt = &now
	if report.TotalAssigned > 0 {
		mission.Advance(domain.MissionAssigned)
		if mission.AssignedAt == nil {
			mission.AssignedAt = &now
		}
	}
	if err := s.missions.Update(ctx, mission); err != nil {
		return nil, apperrors.MapError(err)
	}
	return mission, nil
}

// dispatchOne never panics; a panic while dispatching becomes a failed outcome
// for this ticket only.
func (s *AssignmentService) dispatchOne(ctx context.Context, missionID string, ticket *domain.Ticket) (result TicketResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("ticket dispatch panicked",
				zap.String("mission_id", missionID),
				zap.String("ticket_key", ticket.Key),
				zap.Any("panic", r))
			result = s.fail(ctx, missionID, ticket, domain.AssignmentFailed, devin.KindUnclassified, fmt.Sprintf("Unexpected error: %v", r))
		}
	}()

	session, err := s.sessions.CreateSession(ctx, ticket)
	if err != nil {
		status := domain.AssignmentFailed
		if devin.IsTimeout(err) {
			status = domain.AssignmentTimeout
		}
		return s.fail(ctx, missionID, ticket, status, devin.KindOf(err), err.Error())
	}
	if session == nil || session.ID == "" {
		return s.fail(ctx, missionID, ticket, domain.AssignmentFailed, devin.KindMalformedResponse, "Invalid response from Devin API")
	}

	outcome := domain.AssignmentOutcome{
		Status:     domain.AssignmentAssigned,
		SessionID:  session.ID,
		SessionURL: session.URL,
		At:         s.now(),
	}
	if err := s.record(ctx, ticket, outcome); err != nil {
		s.logger.Error("session created but outcome not persisted",
			zap.String("mission_id", missionID),
			zap.String("ticket_key", ticket.Key),
			zap.String("session_id", session.ID),
			zap.Error(err))
	}
	s.metrics.RecordAssignment(string(domain.AssignmentAssigned))
	s.logger.Info("ticket assigned",
		zap.String("mission_id", missionID),
		zap.String("ticket_key", ticket.Key),
		zap.String("session_id", session.ID))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketAssigned,
		MissionID: missionID,
		TicketID:  ticket.ID,
		Payload: events.TicketAssignedPayload{
			TicketKey:  ticket.Key,
			SessionID:  session.ID,
			SessionURL: session.URL,
		},
	})

	result = resultFromTicket(*ticket)
	result.Status = domain.AssignmentAssigned
	result.SessionID = session.ID
	result.SessionURL = session.URL
	return result
}

func (s *AssignmentService) fail(ctx context.Context, missionID string, ticket *domain.Ticket, status domain.AssignmentStatus, kind devin.ErrorKind, message string) TicketResult {
	outcome := domain.AssignmentOutcome{Status: status, Error: message, At: s.now()}
	if err := s.record(ctx, ticket, outcome); err != nil {
		s.logger.Error("failed outcome not persisted",
			zap.String("mission_id", missionID),
			zap.String("ticket_key", ticket.Key),
			zap.Error(err))
	}
	s.metrics.RecordAssignment(string(status))
	s.logger.Warn("ticket assignment failed",
		zap.String("mission_id", missionID),
		zap.String("ticket_key", ticket.Key),
		zap.String("status", string(status)),
		zap.String("error_kind", string(kind)),
		zap.String("error", message))
	s.publish(ctx, events.Event{
		Type:      events.EventTicketAssignmentFailed,
		MissionID: missionID,
		TicketID:  ticket.ID,
		Payload: events.TicketAssignmentFailedPayload{
			TicketKey: ticket.Key,
			Status:    string(status),
			ErrorKind: string(kind),
			Error:     message,
		},
	})

	result := resultFromTicket(*ticket)
	result.Status = status
	result.ErrorKind = kind
	result.Error = message
	return result
}

// record writes the outcome and its audit entry, turning a repository panic
// into an error. A failed audit write is only logged.
func (s *AssignmentService) record(ctx context.Context, ticket *domain.Ticket, outcome domain.AssignmentOutcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("record outcome: %v", r)
		}
	}()
	if err := s.tickets.RecordOutcome(ctx, ticket.ID, outcome); err != nil {
		return err
	}
	if s.history == nil {
		return nil
	}
	entry := &domain.TicketHistory{
		TicketID:   ticket.ID,
		MissionID:  ticket.MissionID,
		ChangeType: domain.ChangeTypeAssignment,
		OldValue: map[string]any{
			"assignment_status": string(ticket.AssignmentStatus),
			"retry_count":       ticket.AssignmentRetryCount,
		},
		NewValue: outcomeValue(outcome),
	}
	if err := s.history.Create(ctx, entry); err != nil {
		s.logger.Warn("assignment history not written", zap.String("ticket_key", ticket.Key), zap.Error(err))
	}
	return nil
}

func outcomeValue(outcome domain.AssignmentOutcome) map[string]any {
	value := map[string]any{"assignment_status": string(outcome.Status)}
	if outcome.Error != "" {
		value["error"] = outcome.Error
	}
	if outcome.SessionID != "" {
		value["session_id"] = outcome.SessionID
		value["session_url"] = outcome.SessionURL
	}
	return value
}

func (s *AssignmentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event handler panicked", zap.String("event_type", string(event.Type)), zap.Any("panic", r))
		}
	}()
	event.ID = uuid.NewString()
	event.Timestamp = s.now()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

// lock takes the mission's run lock. A held lock is a conflict; any other
// locking failure is logged and the run proceeds unlocked.
func (s *AssignmentService) lock(ctx context.Context, missionID string) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Acquire(ctx, "assignment:mission:"+missionID)
	if errors.Is(err, persistence.ErrLockHeld) {
		return nil, apperrors.NewConflict("assignment already running for mission", map[string]any{"mission_id": missionID})
	}
	if err != nil {
		s.logger.Warn("assignment lock unavailable; running unlocked", zap.String("mission_id", missionID), zap.Error(err))
		return noop, nil
	}
	return func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.logger.Warn("assignment lock release failed", zap.String("mission_id", missionID), zap.Error(err))
		}
	}, nil
}

// AssignmentResults rebuilds the latest report from stored ticket state.
func (s *AssignmentService) AssignmentResults(ctx context.Context, missionID string) (*AssignmentReport, error) {
	mission, err := loadMission(ctx, s.missions, missionID)
	if err != nil {
		return nil, err
	}
	tickets, err := s.tickets.ListByMission(ctx, missionID, repository.TicketFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	report := newReport(missionID)
	report.MissionStatus = string(mission.Status)
	report.TotalAssigned = mission.TotalAssignedCount
	report.FailedCount = mission.FailedAssignmentCount
	report.CompletedAt = mission.AssignmentCompletedAt
	for _, t := range tickets {
		switch {
		case t.AssignmentStatus == domain.AssignmentPending && t.Selected:
			report.Pending = append(report.Pending, resultFromTicket(t))
		case t.AssignmentStatus == domain.AssignmentPending:
		default:
			report.add(resultFromTicket(t))
		}
	}
	return report, nil
}

func resultFromTicket(t domain.Ticket) TicketResult {
	result := TicketResult{
		TicketID: t.ID,
		Key:      t.Key,
		Summary:  t.Summary,
		Status:   t.AssignmentStatus,
	}
	if t.AssignmentError != nil {
		result.Error = *t.AssignmentError
	}
	if t.SessionID != nil {
		result.SessionID = *t.SessionID
	}
	if t.SessionURL != nil {
		result.SessionURL = *t.SessionURL
	}
	return result
}
