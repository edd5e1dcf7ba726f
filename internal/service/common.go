package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
	"github.com/spec-kit/ticket-dispatch/internal/repository"
	apperrors "github.com/spec-kit/ticket-dispatch/pkg/util/errorutil"
)

func loadMission(ctx context.Context, missions repository.MissionRepository, id string) (*domain.Mission, error) {
	mission, err := missions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("mission", map[string]any{"mission_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return mission, nil
}

func ptrBool(v bool) *bool {
	return &v
}

func clockOrNow(now func() time.Time) func() time.Time {
	if now == nil {
		return time.Now
	}
	return now
}
