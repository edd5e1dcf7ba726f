package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-dispatch/internal/repository"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

// DefaultMaxSelection caps how many tickets one selection may name.
const DefaultMaxSelection = 100

var (
	ErrEmptySelection    = errors.New("select at least one ticket to assign")
	ErrSelectionTooLarge = errors.New("too many tickets selected")
)

// SelectionService replaces a mission's ticket selection.
type SelectionService struct {
	missions repository.MissionRepository
	tickets  repository.TicketRepository
	max      int
	logger   *zap.Logger
	now      func() time.Time
}

// SelectionDependencies bundles collaborators.
type SelectionDependencies struct {
	MissionRepo  repository.MissionRepository
	TicketRepo   repository.TicketRepository
	MaxSelection int
	Logger       *zap.Logger
	Now          func() time.Time
}

// NewSelectionService creates the service.
func NewSelectionService(deps SelectionDependencies) *SelectionService {
	limit := deps.MaxSelection
	if limit <= 0 {
		limit = DefaultMaxSelection
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionService{
		missions: deps.MissionRepo,
		tickets:  deps.TicketRepo,
		max:      limit,
		logger:   logger,
		now:      clockOrNow(deps.Now),
	}
}

// SetSelection clears the mission's selection and selects exactly ticketIDs.
// Ids that do not belong to the mission are ignored. Assignment state is untouched.
func (s *SelectionService) SetSelection(ctx context.Context, missionID string, ticketIDs []string) (int, error) {
	if len(ticketIDs) == 0 {
		return 0, apperrors.WrapValidation(ErrEmptySelection, nil)
	}
	if len(ticketIDs) > s.max {
		return 0, apperrors.WrapValidation(ErrSelectionTooLarge, map[string]any{
			"max":       s.max,
			"requested": len(ticketIDs),
		})
	}
	if _, err := loadMission(ctx, s.missions, missionID); err != nil {
		return 0, err
	}

	count, err := s.tickets.ReplaceSelection(ctx, missionID, ticketIDs, s.now())
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	s.logger.Info("selection replaced",
		zap.String("mission_id", missionID),
		zap.Int("requested", len(ticketIDs)),
		zap.Int("selected", count))
	return count, nil
}
