package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// HabitDB implements repository.HabitRepository.
type HabitDB struct {
	q querier
}

var _ repository.HabitRepository = (*HabitDB)(nil)

const habitColumns = `h.id, h.user_id, h.title, h.description, h.recurrence_mask, h.points,
	h.difficulty, h.category, h.streak, h.longest_streak, h.last_completed_at,
	h.is_active, h.is_competitive, h.max_participants, h.created_at, h.updated_at`

func scanHabit(row interface{ Scan(...any) error }) (*model.Habit, error) {
	var (
		h    model.Habit
		last sql.NullTime
	)
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
		&last,
		&h.IsActive,
		&h.IsCompetitive,
		&h.MaxParticipants,
		&h.CreatedAt,
		&h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	h.LastCompletedAt = timePtr(last)
	return &h, nil
}

func (r *HabitDB) list(ctx context.Context, query string, args ...any) ([]model.Habit, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing habits: %w", err)
	}
	defer rows.Close()

	habits := []model.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning habit: %w", err)
		}
		habits = append(habits, *h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating habits: %w", err)
	}
	return habits, nil
}

func (r *HabitDB) Create(ctx context.Context, habit *model.Habit) error {
	habit.ID = xid.New().String()
	habit.CreatedAt = now()
	habit.UpdatedAt = habit.CreatedAt

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO habits (id, user_id, title, description, recurrence_mask, points,
			difficulty, category, streak, longest_streak, last_completed_at,
			is_active, is_competitive, max_participants, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
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
		nullTime(habit.LastCompletedAt),
		boolInt(habit.IsActive),
		boolInt(habit.IsCompetitive),
		habit.MaxParticipants,
		habit.CreatedAt,
		habit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating habit: %w", err)
	}
	return nil
}

func (r *HabitDB) GetByID(ctx context.Context, id string) (*model.Habit, error) {
	h, err := scanHabit(r.q.QueryRowContext(ctx,
		`SELECT `+habitColumns+` FROM habits h WHERE h.id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "habit", id, "getting habit "+id)
	}
	return h, nil
}

func (r *HabitDB) ListByUser(ctx context.Context, userID string) ([]model.Habit, error) {
	return r.list(ctx,
		`SELECT `+habitColumns+` FROM habits h
		 WHERE h.user_id = ?
		 ORDER BY h.created_at ASC, h.id ASC`,
		userID,
	)
}

func (r *HabitDB) ListCompetitiveForUser(ctx context.Context, userID string) ([]model.Habit, error) {
	return r.list(ctx,
		`SELECT `+habitColumns+` FROM habits h
		 JOIN habit_participants p ON p.habit_id = h.id
		 WHERE h.is_competitive = 1 AND p.user_id = ? AND p.status = ?
		 ORDER BY h.created_at DESC, h.id DESC`,
		userID, model.ParticipantAccepted,
	)
}

func (r *HabitDB) Update(ctx context.Context, habit *model.Habit) error {
	habit.UpdatedAt = now()
	result, err := r.q.ExecContext(ctx,
		`UPDATE habits
		 SET title = ?, description = ?, recurrence_mask = ?, points = ?, difficulty = ?,
		     category = ?, streak = ?, longest_streak = ?, last_completed_at = ?,
		     is_active = ?, max_participants = ?, updated_at = ?
		 WHERE id = ?`,
		habit.Title,
		habit.Description,
		habit.RecurrenceMask,
		habit.Points,
		habit.Difficulty,
		habit.Category,
		habit.Streak,
		habit.LongestStreak,
		nullTime(habit.LastCompletedAt),
		boolInt(habit.IsActive),
		habit.MaxParticipants,
		habit.UpdatedAt,
		habit.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating habit %s: %w", habit.ID, err)
	}
	return checkAffected(result, "habit", habit.ID)
}

func (r *HabitDB) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE habits SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolInt(active), now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting habit %s active: %w", id, err)
	}
	return checkAffected(result, "habit", id)
}

// Delete relies on ON DELETE CASCADE to drop completions and participants.
func (r *HabitDB) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM habits WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting habit %s: %w", id, err)
	}
	return checkAffected(result, "habit", id)
}
