package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// =========================================================================
// FRIENDSHIPS
// =========================================================================

type FriendshipDB struct {
	q querier
}

var _ repository.FriendshipRepository = (*FriendshipDB)(nil)

const friendshipColumns = `id, user_id, friend_id, status, created_at, updated_at`

func scanFriendship(row interface{ Scan(...any) error }) (*model.Friendship, error) {
	var f model.Friendship
	if err := row.Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FriendshipDB) Create(ctx context.Context, f *model.Friendship) error {
	f.ID = xid.New().String()
	f.CreatedAt = now()
	f.UpdatedAt = f.CreatedAt

	_, err := r.q.Exec(ctx,
		`INSERT INTO friendships (`+friendshipColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.UserID, f.FriendID, string(f.Status), f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("friendship already exists")
		}
		return fmt.Errorf("postgres: creating friendship: %w", err)
	}
	return nil
}

func (r *FriendshipDB) GetByID(ctx context.Context, id string) (*model.Friendship, error) {
	f, err := scanFriendship(r.q.QueryRow(ctx,
		`SELECT `+friendshipColumns+` FROM friendships WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "friendship", id, "getting friendship "+id)
	}
	return f, nil
}

func (r *FriendshipDB) FindBetween(ctx context.Context, a, b string) (*model.Friendship, error) {
	f, err := scanFriendship(r.q.QueryRow(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1)
		 ORDER BY created_at DESC LIMIT 1`,
		a, b,
	))
	if err != nil {
		return nil, notFoundOr(err, "friendship", a+"/"+b, "finding friendship")
	}
	return f, nil
}

func (r *FriendshipDB) Update(ctx context.Context, f *model.Friendship) error {
	f.UpdatedAt = now()
	tag, err := r.q.Exec(ctx,
		`UPDATE friendships SET user_id = $1, friend_id = $2, status = $3, updated_at = $4 WHERE id = $5`,
		f.UserID, f.FriendID, string(f.Status), f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating friendship %s: %w", f.ID, err)
	}
	return checkAffected(tag, "friendship", f.ID)
}

func (r *FriendshipDB) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM friendships WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting friendship %s: %w", id, err)
	}
	return checkAffected(tag, "friendship", id)
}

func (r *FriendshipDB) ListForUser(ctx context.Context, userID string, status model.FriendshipStatus) ([]model.Friendship, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE (user_id = $1 OR friend_id = $1) AND status = $2
		 ORDER BY created_at DESC, id DESC`,
		userID, string(status),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing friendships: %w", err)
	}
	defer rows.Close()

	out := []model.Friendship{}
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning friendship: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func (r *FriendshipDB) CountAccepted(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM friendships WHERE (user_id = $1 OR friend_id = $1) AND status = $2`,
		userID, string(model.FriendshipAccepted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: counting friends of %s: %w", userID, err)
	}
	return n, nil
}

// =========================================================================
// PARTICIPANTS
// =========================================================================

type ParticipantDB struct {
	q querier
}

var _ repository.ParticipantRepository = (*ParticipantDB)(nil)

const participantColumns = `id, habit_id, user_id, status, invited_at, joined_at, updated_at`

func scanParticipant(row interface{ Scan(...any) error }) (*model.HabitParticipant, error) {
	var p model.HabitParticipant
	if err := row.Scan(&p.ID, &p.HabitID, &p.UserID, &p.Status, &p.InvitedAt, &p.JoinedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ParticipantDB) Create(ctx context.Context, p *model.HabitParticipant) error {
	p.ID = xid.New().String()
	p.InvitedAt = now()
	p.UpdatedAt = p.InvitedAt

	_, err := r.q.Exec(ctx,
		`INSERT INTO habit_participants (`+participantColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.HabitID, p.UserID, string(p.Status), p.InvitedAt, utcPtr(p.JoinedAt), p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("user is already invited to this habit")
		}
		return fmt.Errorf("postgres: creating participant: %w", err)
	}
	return nil
}

func (r *ParticipantDB) GetByID(ctx context.Context, id string) (*model.HabitParticipant, error) {
	p, err := scanParticipant(r.q.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM habit_participants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "participant", id, "getting participant "+id)
	}
	return p, nil
}

func (r *ParticipantDB) Find(ctx context.Context, habitID, userID string) (*model.HabitParticipant, error) {
	p, err := scanParticipant(r.q.QueryRow(ctx,
		`SELECT `+participantColumns+` FROM habit_participants WHERE habit_id = $1 AND user_id = $2`,
		habitID, userID,
	))
	if err != nil {
		return nil, notFoundOr(err, "participant", userID, "finding participant")
	}
	return p, nil
}

func (r *ParticipantDB) Update(ctx context.Context, p *model.HabitParticipant) error {
	p.UpdatedAt = now()
	tag, err := r.q.Exec(ctx,
		`UPDATE habit_participants SET status = $1, joined_at = $2, updated_at = $3 WHERE id = $4`,
		string(p.Status), utcPtr(p.JoinedAt), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating participant %s: %w", p.ID, err)
	}
	return checkAffected(tag, "participant", p.ID)
}

func (r *ParticipantDB) list(ctx context.Context, column, id string, statuses []model.ParticipantStatus) ([]model.HabitParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM habit_participants WHERE ` + column + ` = $1`
	args := []any{id}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, s := range statuses {
			names[i] = string(s)
		}
		query += ` AND status = ANY($2)`
		args = append(args, names)
	}
	query += ` ORDER BY invited_at ASC, id ASC`

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing participants: %w", err)
	}
	defer rows.Close()

	out := []model.HabitParticipant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning participant: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *ParticipantDB) ListByHabit(ctx context.Context, habitID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error) {
	return r.list(ctx, "habit_id", habitID, statuses)
}

func (r *ParticipantDB) ListByUser(ctx context.Context, userID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error) {
	return r.list(ctx, "user_id", userID, statuses)
}

func (r *ParticipantDB) CountByHabit(ctx context.Context, habitID string, status model.ParticipantStatus) (int, error) {
	var n int
	err := r.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM habit_participants WHERE habit_id = $1 AND status = $2`,
		habitID, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: counting participants of %s: %w", habitID, err)
	}
	return n, nil
}

// =========================================================================
// CATEGORIES
// =========================================================================

type CategoryDB struct {
	q querier
}

var _ repository.CategoryRepository = (*CategoryDB)(nil)

func (r *CategoryDB) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, icon, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing categories: %w", err)
	}
	defer rows.Close()

	out := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scanning category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CategoryDB) GetByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := r.q.QueryRow(ctx,
		`SELECT id, name, icon, created_at FROM categories WHERE lower(name) = lower($1)`, name,
	).Scan(&c.ID, &c.Name, &c.Icon, &c.CreatedAt)
	if err != nil {
		return nil, notFoundOr(err, "category", name, "getting category "+name)
	}
	return &c, nil
}

func (r *CategoryDB) Upsert(ctx context.Context, c *model.Category) (bool, error) {
	existing, err := r.GetByName(ctx, c.Name)
	if err == nil {
		*c = *existing
		return false, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return false, err
	}

	c.ID = xid.New().String()
	c.CreatedAt = now()
	if _, err := r.q.Exec(ctx,
		`INSERT INTO categories (id, name, icon, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.Name, c.Icon, c.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("postgres: inserting category %q: %w", c.Name, err)
	}
	return true, nil
}
