package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

func newSelectionService(f *fixture) *SelectionService {
	return NewSelectionService(SelectionDependencies{MissionRepo: f.missions, TicketRepo: f.tickets, Now: fixedClock})
}

func TestSetSelectionRejectsEmptyAndOversized(t *testing.T) {
	f := newFixture(t, domain.MissionAnalyzed, "T-1")
	svc := newSelectionService(f)

	_, err := svc.SetSelection(context.Background(), f.mission.ID, nil)
	assert.ErrorIs(t, err, ErrEmptySelection)
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, 422, domainErr.HTTPStatus)

	ids := make([]string, 101)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%d", i)
	}
	_, err = svc.SetSelection(context.Background(), f.mission.ID, ids)
	assert.ErrorIs(t, err, ErrSelectionTooLarge)

	_, err = svc.SetSelection(context.Background(), f.mission.ID, ids[:100])
	assert.NoError(t, err)
}

func TestSetSelectionReplacesPreviousSet(t *testing.T) {
	f := newFixture(t, domain.MissionAnalyzed, "T-1", "T-2", "T-3", "T-4")
	svc := newSelectionService(f)
	ctx := context.Background()

	n, err := svc.SetSelection(ctx, f.mission.ID, []string{f.byKey["T-1"].ID, f.byKey["T-2"].ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = svc.SetSelection(ctx, f.mission.ID, []string{f.byKey["T-3"].ID, f.byKey["T-4"].ID})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, key := range []string{"T-1", "T-2"} {
		tk := f.ticket(t, key)
		assert.False(t, tk.Selected, key)
		assert.Nil(t, tk.SelectedAt, key)
	}
	for _, key := range []string{"T-3", "T-4"} {
		tk := f.ticket(t, key)
		assert.True(t, tk.Selected, key)
		require.NotNil(t, tk.SelectedAt)
		assert.True(t, tk.SelectedAt.Equal(fixedNow))
	}
}

func TestSetSelectionIgnoresForeignIDsAndKeepsAssignmentState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.MissionAnalyzed, "T-1")
	other := &domain.Mission{Name: "other", Status: domain.MissionAnalyzed}
	require.NoError(t, f.missions.Create(ctx, other))
	foreign := []domain.Ticket{{MissionID: other.ID, Key: "X-1"}}
	require.NoError(t, f.tickets.CreateMany(ctx, foreign))
	require.NoError(t, f.tickets.RecordOutcome(ctx, f.byKey["T-1"].ID, domain.AssignmentOutcome{Status: domain.AssignmentFailed, Error: "x"}))

	n, err := newSelectionService(f).SetSelection(ctx, f.mission.ID, []string{f.byKey["T-1"].ID, foreign[0].ID})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored, err := f.tickets.ListByMission(ctx, other.ID, repository.TicketFilter{})
	require.NoError(t, err)
	assert.False(t, stored[0].Selected)

	mine := f.ticket(t, "T-1")
	assert.True(t, mine.Selected)
	assert.Equal(t, domain.AssignmentFailed, mine.AssignmentStatus)
	assert.Equal(t, 1, mine.AssignmentRetryCount)
}

func TestSetSelectionUnknownMission(t *testing.T) {
	f := newFixture(t, domain.MissionAnalyzed, "T-1")
	_, err := newSelectionService(f).SetSelection(context.Background(), "missing", []string{"a"})
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "NOT_FOUND", domainErr.Code)
}
