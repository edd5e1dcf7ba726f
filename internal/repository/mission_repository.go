package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

// MissionRepository persists missions.
type MissionRepository interface {
	Create(ctx context.Context, mission *domain.Mission) error
	Update(ctx context.Context, mission *domain.Mission) error
	GetByID(ctx context.Context, id string) (*domain.Mission, error)
	List(ctx context.Context, limit, offset int) ([]domain.Mission, error)
}

type missionRepository struct {
	pool *pgxpool.Pool
}

// NewMissionRepository instantiates the postgres repository.
func NewMissionRepository(pool *pgxpool.Pool) MissionRepository {
	return &missionRepository{pool: pool}
}

const missionColumns = `id, name, status, jql_query, total_assigned_count, failed_assignment_count,
               assigned_at, assignment_completed_at, created_at, updated_at`

func (r *missionRepository) Create(ctx context.Context, mission *domain.Mission) error {
	if mission.ID == "" {
		mission.ID = uuid.NewString()
	}
	const query = `
        INSERT INTO missions (id, name, status, jql_query)
        VALUES ($1,$2,$3,$4)
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		mission.ID,
		mission.Name,
		string(mission.Status),
		mission.JQLQuery,
	).Scan(&mission.CreatedAt, &mission.UpdatedAt)
}

func (r *missionRepository) Update(ctx context.Context, mission *domain.Mission) error {
	const query = `
        UPDATE missions SET name=$1, status=$2, jql_query=$3, total_assigned_count=$4,
            failed_assignment_count=$5, assigned_at=$6, assignment_completed_at=$7, updated_at=NOW()
        WHERE id=$8
        RETURNING updated_at`
	err := r.pool.QueryRow(ctx, query,
		mission.Name,
		string(mission.Status),
		mission.JQLQuery,
		mission.TotalAssignedCount,
		mission.FailedAssignmentCount,
		mission.AssignedAt,
		mission.AssignmentCompletedAt,
		mission.ID,
	).Scan(&mission.UpdatedAt)
	return err
}

func (r *missionRepository) GetByID(ctx context.Context, id string) (*domain.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE id=$1`
	rows, err := r.pool.Query(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	missions, err := scanMissions(rows)
	if err != nil {
		return nil, err
	}
	if len(missions) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &missions[0], nil
}

func (r *missionRepository) List(ctx context.Context, limit, offset int) ([]domain.Mission, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + missionColumns + ` FROM missions ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMissions(rows)
}

func scanMissions(rows pgx.Rows) ([]domain.Mission, error) {
	var result []domain.Mission
	for rows.Next() {
		var (
			mission domain.Mission
			status  string
		)
		if err := rows.Scan(
			&mission.ID,
			&mission.Name,
			&status,
			&mission.JQLQuery,
			&mission.TotalAssignedCount,
			&mission.FailedAssignmentCount,
			&mission.AssignedAt,
			&mission.AssignmentCompletedAt,
			&mission.CreatedAt,
			&mission.UpdatedAt,
		); err != nil {
			return nil, err
		}
		mission.Status = domain.MissionStatus(status)
		result = append(result, mission)
	}
	return result, rows.Err()
}
