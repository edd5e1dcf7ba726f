package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-dispatch/internal/domain"
)

// TicketFilter narrows ticket listings within a mission.
type TicketFilter struct {
	Selected           *bool
	Category           *domain.ComplexityCategory
	AssignmentStatuses []domain.AssignmentStatus
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	CreateMany(ctx context.Context, tickets []domain.Ticket) error
	ListByMission(ctx context.Context, missionID string, filter TicketFilter) ([]domain.Ticket, error)
	SaveAnalysis(ctx context.Context, ticket *domain.Ticket) error
	// ReplaceSelection clears the mission's selection and marks the given ids as
	// selected in one atomic step. Ids outside the mission are ignored.
	ReplaceSelection(ctx context.Context, missionID string, ticketIDs []string, at time.Time) (int, error)
	RecordOutcome(ctx context.Context, ticketID string, outcome domain.AssignmentOutcome) error
	DeleteByMission(ctx context.Context, missionID string) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the postgres repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, mission_id, jira_key, summary, description, status, priority, assignee, labels,
               jira_created_at, raw_data, complexity_score, complexity_category, complexity_factors, analyzed_at,
               selected, selected_at, assignment_status, assignment_error, assignment_retry_count,
               session_id, session_url, assigned_at, created_at, updated_at`

func (r *ticketRepository) CreateMany(ctx context.Context, tickets []domain.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	const query = `
        INSERT INTO tickets (id, mission_id, jira_key, summary, description, status, priority, assignee, labels,
            jira_created_at, raw_data, assignment_status)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (mission_id, jira_key) DO NOTHING`

	batch := &pgx.Batch{}
	for i := range tickets {
		t := &tickets[i]
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		if t.AssignmentStatus == "" {
			t.AssignmentStatus = domain.AssignmentPending
		}
		raw := t.RawData
		if raw == nil {
			raw = map[string]any{}
		}
		batch.Queue(query, t.ID, t.MissionID, t.Key, t.Summary, t.Description, t.Status, t.Priority,
			t.Assignee, t.Labels, t.JiraCreatedAt, raw, string(t.AssignmentStatus))
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *ticketRepository) ListByMission(ctx context.Context, missionID string, filter TicketFilter) ([]domain.Ticket, error) {
	clauses := []string{"mission_id=$1"}
	args := []any{missionID}

	if filter.Selected != nil {
		args = append(args, *filter.Selected)
		clauses = append(clauses, fmt.Sprintf("selected=$%d", len(args)))
	}
	if filter.Category != nil {
		args = append(args, string(*filter.Category))
		clauses = append(clauses, fmt.Sprintf("complexity_category=$%d", len(args)))
	}
	if len(filter.AssignmentStatuses) > 0 {
		placeholders := make([]string, len(filter.AssignmentStatuses))
		for i, status := range filter.AssignmentStatuses {
			args = append(args, string(status))
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("assignment_status IN (%s)", strings.Join(placeholders, ",")))
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY created_at, jira_key`,
		ticketColumns, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) SaveAnalysis(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET complexity_score=$1, complexity_category=$2, complexity_factors=$3,
            analyzed_at=$4, updated_at=NOW()
        WHERE id=$5`
	var category *string
	if ticket.ComplexityCategory != nil {
		c := string(*ticket.ComplexityCategory)
		category = &c
	}
	cmd, err := r.pool.Exec(ctx, query,
		ticket.ComplexityScore,
		category,
		ticket.ComplexityFactors,
		ticket.AnalyzedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) ReplaceSelection(ctx context.Context, missionID string, ticketIDs []string, at time.Time) (int, error) {
	var selected int
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`UPDATE tickets SET selected=FALSE, selected_at=NULL, updated_at=NOW()
             WHERE mission_id=$1 AND selected`, missionID); err != nil {
			return err
		}
		cmd, err := tx.Exec(ctx,
			`UPDATE tickets SET selected=TRUE, selected_at=$1, updated_at=NOW()
             WHERE mission_id=$2 AND id::text = ANY($3)`, at, missionID, ticketIDs)
		if err != nil {
			return err
		}
		selected = int(cmd.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return selected, nil
}

func (r *ticketRepository) RecordOutcome(ctx context.Context, ticketID string, outcome domain.AssignmentOutcome) error {
	var (
		cmd pgconn.CommandTag
		err error
	)
	if outcome.Status == domain.AssignmentAssigned {
		cmd, err = r.pool.Exec(ctx, `
            UPDATE tickets SET assignment_status=$1, assignment_error=NULL, session_id=$2, session_url=$3,
                assigned_at=$4, updated_at=NOW()
            WHERE id=$5`,
			string(outcome.Status), outcome.SessionID, outcome.SessionURL, outcome.At, ticketID)
	} else {
		cmd, err = r.pool.Exec(ctx, `
            UPDATE tickets SET assignment_status=$1, assignment_error=$2,
                assignment_retry_count=assignment_retry_count+1, updated_at=NOW()
            WHERE id=$3`,
			string(outcome.Status), outcome.Error, ticketID)
	}
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) DeleteByMission(ctx context.Context, missionID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE mission_id=$1`, missionID)
	return err
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var (
			ticket           domain.Ticket
			category         *string
			assignmentStatus string
		)
		if err := rows.Scan(
			&ticket.ID,
			&ticket.MissionID,
			&ticket.Key,
			&ticket.Summary,
			&ticket.Description,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Assignee,
			&ticket.Labels,
			&ticket.JiraCreatedAt,
			&ticket.RawData,
			&ticket.ComplexityScore,
			&category,
			&ticket.ComplexityFactors,
			&ticket.AnalyzedAt,
			&ticket.Selected,
			&ticket.SelectedAt,
			&assignmentStatus,
			&ticket.AssignmentError,
			&ticket.AssignmentRetryCount,
			&ticket.SessionID,
			&ticket.SessionURL,
			&ticket.AssignedAt,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if category != nil {
			c := domain.ComplexityCategory(*category)
			ticket.ComplexityCategory = &c
		}
		ticket.AssignmentStatus = domain.AssignmentStatus(assignmentStatus)
		result = append(result, ticket)
	}
	return result, rows.Err()
}
