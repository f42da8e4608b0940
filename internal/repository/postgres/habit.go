package postgres

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

type HabitDB struct {
	q querier
}

var _ repository.HabitRepository = (*HabitDB)(nil)

const habitColumns = `h.id, h.user_id, h.title, h.description, h.recurrence_mask, h.points,
	h.difficulty, h.category, h.streak, h.longest_streak, h.last_completed_at,
	h.is_active, h.is_competitive, h.max_participants, h.created_at, h.updated_at`

func scanHabit(row interface{ Scan(...any) error }) (*model.Habit, error) {
	var h model.Habit
	err := row.Scan(
		&h.ID,
		&h.UserID,
		&h.Title,
		&h.Description,
		&h.RecurrenceMask,
		&h.Points,
		&h.Difficulty,
		&h.Category,
		&h.Streak,
		&h.LongestStreak,
		&h.LastCompletedAt,
		&h.IsActive,
		&h.IsCompetitive,
		&h.MaxParticipants,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *HabitDB) list(ctx context.Context, query string, args ...any) ([]model.Habit, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing habits: %w", err)
	}
	defer rows.Close()

	habits := []model.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning habit: %w", err)
		}
		habits = append(habits, *h)
	}
	return habits, rows.Err()
}

func (r *HabitDB) Create(ctx context.Context, habit *model.Habit) error {
	habit.ID = xid.New().String()
	habit.CreatedAt = now()
	habit.UpdatedAt = habit.CreatedAt

	_, err := r.q.Exec(ctx,
		`INSERT INTO habits (id, user_id, title, description, recurrence_mask, points,
			difficulty, category, streak, longest_streak, last_completed_at,
			is_active, is_competitive, max_participants, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		habit.ID,
		habit.UserID,
		habit.Title,
		habit.Description,
		habit.RecurrenceMask,
		habit.Points,
		habit.Difficulty,
		habit.Category,
		habit.Streak,
		habit.LongestStreak,
		utcPtr(habit.LastCompletedAt),
		habit.IsActive,
		habit.IsCompetitive,
		habit.MaxParticipants,
		habit.CreatedAt,
		habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: creating habit: %w", err)
	}
	return nil
}

func (r *HabitDB) GetByID(ctx context.Context, id string) (*model.Habit, error) {
	h, err := scanHabit(r.q.QueryRow(ctx, `SELECT `+habitColumns+` FROM habits h WHERE h.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "habit", id, "getting habit "+id)
	}
	return h, nil
}

func (r *HabitDB) ListByUser(ctx context.Context, userID string) ([]model.Habit, error) {
	return r.list(ctx,
		`SELECT `+habitColumns+` FROM habits h
		 WHERE h.user_id = $1
		 ORDER BY h.created_at ASC, h.id ASC`,
		userID,
	)
}

func (r *HabitDB) ListCompetitiveForUser(ctx context.Context, userID string) ([]model.Habit, error) {
	return r.list(ctx,
		`SELECT `+habitColumns+` FROM habits h
		 JOIN habit_participants p ON p.habit_id = h.id
		 WHERE h.is_competitive AND p.user_id = $1 AND p.status = $2
		 ORDER BY h.created_at DESC, h.id DESC`,
		userID, string(model.ParticipantAccepted),
	)
}

func (r *HabitDB) Update(ctx context.Context, habit *model.Habit) error {
	habit.UpdatedAt = now()
	tag, err := r.q.Exec(ctx,
		`UPDATE habits
		 SET title = $1, description = $2, recurrence_mask = $3, points = $4, difficulty = $5,
		     category = $6, streak = $7, longest_streak = $8, last_completed_at = $9,
		     is_active = $10, max_participants = $11, updated_at = $12
		 WHERE id = $13`,
		habit.Title,
		habit.Description,
		habit.RecurrenceMask,
		habit.Points,
		habit.Difficulty,
		habit.Category,
		habit.Streak,
		habit.LongestStreak,
		utcPtr(habit.LastCompletedAt),
		habit.IsActive,
		habit.MaxParticipants,
		habit.UpdatedAt,
		habit.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating habit %s: %w", habit.ID, err)
	}
	return checkAffected(tag, "habit", habit.ID)
}

func (r *HabitDB) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE habits SET is_active = $1, updated_at = $2 WHERE id = $3`, active, now(), id)
	if err != nil {
		return fmt.Errorf("postgres: setting habit %s active: %w", id, err)
	}
	return checkAffected(tag, "habit", id)
}

func (r *HabitDB) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM habits WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting habit %s: %w", id, err)
	}
	return checkAffected(tag, "habit", id)
}
