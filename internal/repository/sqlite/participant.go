package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// ParticipantDB implements repository.ParticipantRepository.
type ParticipantDB struct {
	q querier
}

var _ repository.ParticipantRepository = (*ParticipantDB)(nil)

const participantColumns = `id, habit_id, user_id, status, invited_at, joined_at, updated_at`

func scanParticipant(row interface{ Scan(...any) error }) (*model.HabitParticipant, error) {
	var (
		p      model.HabitParticipant
		joined sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.HabitID, &p.UserID, &p.Status, &p.InvitedAt, &joined, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.JoinedAt = timePtr(joined)
	return &p, nil
}

func (r *ParticipantDB) Create(ctx context.Context, p *model.HabitParticipant) error {
	p.ID = xid.New().String()
	p.InvitedAt = now()
	p.UpdatedAt = p.InvitedAt

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO habit_participants (`+participantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.HabitID, p.UserID, p.Status, p.InvitedAt, nullTime(p.JoinedAt), p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("user is already invited to this habit")
		}
		return fmt.Errorf("sqlite: creating participant: %w", err)
	}
	return nil
}

func (r *ParticipantDB) GetByID(ctx context.Context, id string) (*model.HabitParticipant, error) {
	p, err := scanParticipant(r.q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM habit_participants WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "participant", id, "getting participant "+id)
	}
	return p, nil
}

func (r *ParticipantDB) Find(ctx context.Context, habitID, userID string) (*model.HabitParticipant, error) {
	p, err := scanParticipant(r.q.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM habit_participants WHERE habit_id = ? AND user_id = ?`,
		habitID, userID,
	))
	if err != nil {
		return nil, notFoundOr(err, "participant", userID, "finding participant")
	}
	return p, nil
}

func (r *ParticipantDB) Update(ctx context.Context, p *model.HabitParticipant) error {
	p.UpdatedAt = now()
	result, err := r.q.ExecContext(ctx,
		`UPDATE habit_participants SET status = ?, joined_at = ?, updated_at = ? WHERE id = ?`,
		p.Status, nullTime(p.JoinedAt), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating participant %s: %w", p.ID, err)
	}
	return checkAffected(result, "participant", p.ID)
}

func (r *ParticipantDB) list(ctx context.Context, column, id string, statuses []model.ParticipantStatus) ([]model.HabitParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM habit_participants WHERE ` + column + ` = ?`
	args := []any{id}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY invited_at ASC, id ASC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing participants: %w", err)
	}
	defer rows.Close()

	out := []model.HabitParticipant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant: %w", err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participants: %w", err)
	}
	return out, nil
}

func (r *ParticipantDB) ListByHabit(ctx context.Context, habitID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error) {
	return r.list(ctx, "habit_id", habitID, statuses)
}

func (r *ParticipantDB) ListByUser(ctx context.Context, userID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error) {
	return r.list(ctx, "user_id", userID, statuses)
}

func (r *ParticipantDB) CountByHabit(ctx context.Context, habitID string, status model.ParticipantStatus) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM habit_participants WHERE habit_id = ? AND status = ?`,
		habitID, status,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting participants of %s: %w", habitID, err)
	}
	return n, nil
}
