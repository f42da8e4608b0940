package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// CompletionDB implements repository.CompletionRepository.
type CompletionDB struct {
	q querier
}

var _ repository.CompletionRepository = (*CompletionDB)(nil)

// Create appends a completion. The UNIQUE (habit_id, user_id, completed_on)
// constraint backs the one-per-day rule even if two requests race past the
// service's ExistsOn check.
func (r *CompletionDB) Create(ctx context.Context, c *model.HabitCompletion) error {
	c.ID = xid.New().String()
	if c.CompletedAt.IsZero() {
		c.CompletedAt = now()
	}
	if c.CompletedOn == "" {
		c.CompletedOn = model.DayKey(c.CompletedAt)
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO habit_completions
			(id, habit_id, user_id, participant_id, completed_at, completed_on, points, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.HabitID,
		c.UserID,
		nullString(c.ParticipantID),
		c.CompletedAt.UTC(),
		c.CompletedOn,
		c.Points,
		c.Notes,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("habit already completed on " + c.CompletedOn)
		}
		return fmt.Errorf("sqlite: creating completion: %w", err)
	}
	return nil
}

func (r *CompletionDB) ExistsOn(ctx context.Context, habitID, userID, day string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_completions
		 WHERE habit_id = ? AND user_id = ? AND completed_on = ?`,
		habitID, userID, day,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("sqlite: checking completion: %w", err)
	}
	return n > 0, nil
}

// completionWhere builds the WHERE clause shared by List and Count.
func completionWhere(f repository.CompletionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.HabitID != "" {
		conds = append(conds, "habit_id = ?")
		args = append(args, f.HabitID)
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.FromDay != "" {
		conds = append(conds, "completed_on >= ?")
		args = append(args, f.FromDay)
	}
	if f.ToDay != "" {
		conds = append(conds, "completed_on <= ?")
		args = append(args, f.ToDay)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *CompletionDB) List(ctx context.Context, f repository.CompletionFilter) ([]model.HabitCompletion, error) {
	where, args := completionWhere(f)
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, habit_id, user_id, participant_id, completed_at, completed_on, points, notes
		 FROM habit_completions`+where+`
		 ORDER BY completed_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing completions: %w", err)
	}
	defer rows.Close()

	out := []model.HabitCompletion{}
	for rows.Next() {
		var (
			c           model.HabitCompletion
			participant sql.NullString
		)
		if err := rows.Scan(
			&c.ID,
			&c.HabitID,
			&c.UserID,
			&participant,
			&c.CompletedAt,
			&c.CompletedOn,
			&c.Points,
			&c.Notes,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning completion: %w", err)
		}
		c.ParticipantID = participant.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating completions: %w", err)
	}
	return out, nil
}

func (r *CompletionDB) Count(ctx context.Context, f repository.CompletionFilter) (int, error) {
	where, args := completionWhere(f)
	var n int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_completions`+where, args...,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting completions: %w", err)
	}
	return n, nil
}
