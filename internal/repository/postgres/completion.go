package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

type CompletionDB struct {
	q querier
}

var _ repository.CompletionRepository = (*CompletionDB)(nil)

func (r *CompletionDB) Create(ctx context.Context, c *model.HabitCompletion) error {
	c.ID = xid.New().String()
	if c.CompletedAt.IsZero() {
		c.CompletedAt = now()
	}
	if c.CompletedOn == "" {
		c.CompletedOn = model.DayKey(c.CompletedAt)
	}

	_, err := r.q.Exec(ctx,
		`INSERT INTO habit_completions
			(id, habit_id, user_id, participant_id, completed_at, completed_on, points, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
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
		return fmt.Errorf("postgres: creating completion: %w", err)
	}
	return nil
}

func (r *CompletionDB) ExistsOn(ctx context.Context, habitID, userID, day string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM habit_completions
		 WHERE habit_id = $1 AND user_id = $2 AND completed_on = $3)`,
		habitID, userID, day,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: checking completion: %w", err)
	}
	return exists, nil
}

func completionWhere(f repository.CompletionFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.HabitID != "" {
		add("habit_id = $%d", f.HabitID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.FromDay != "" {
		add("completed_on >= $%d", f.FromDay)
	}
	if f.ToDay != "" {
		add("completed_on <= $%d", f.ToDay)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *CompletionDB) List(ctx context.Context, f repository.CompletionFilter) ([]model.HabitCompletion, error) {
	where, args := completionWhere(f)
	rows, err := r.q.Query(ctx,
		`SELECT id, habit_id, user_id, participant_id, completed_at, completed_on, points, notes
		 FROM habit_completions`+where+`
		 ORDER BY completed_at DESC, id DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing completions: %w", err)
	}
	defer rows.Close()

	out := []model.HabitCompletion{}
	for rows.Next() {
		var (
			c           model.HabitCompletion
			participant *string
		)
		if err := rows.Scan(&c.ID, &c.HabitID, &c.UserID, &participant,
			&c.CompletedAt, &c.CompletedOn, &c.Points, &c.Notes); err != nil {
			return nil, fmt.Errorf("postgres: scanning completion: %w", err)
		}
		if participant != nil {
			c.ParticipantID = *participant
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CompletionDB) Count(ctx context.Context, f repository.CompletionFilter) (int, error) {
	where, args := completionWhere(f)
	var n int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM habit_completions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: counting completions: %w", err)
	}
	return n, nil
}
