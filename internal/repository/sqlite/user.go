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

// UserDB implements repository.UserRepository.
type UserDB struct {
	q querier
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, fullname, password_hash, google_id,
	avatar_url, xp_points, level, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u        model.User
		googleID sql.NullString
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FullName,
		&u.PasswordHash,
		&googleID,
		&u.AvatarURL,
		&u.XPPoints,
		&u.Level,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.GoogleID = googleID.String
	return &u, nil
}

// Create inserts a new user, filling in ID and timestamps. A taken email or
// username is reported as a conflict.
func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Level < 1 {
		user.Level = 1
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.Email,
		user.FullName,
		user.PasswordHash,
		nullString(user.GoogleID),
		user.AvatarURL,
		user.XPPoints,
		user.Level,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: creating user: %w", err)
	}
	return nil
}

func (r *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id, "getting user "+id)
	}
	return u, nil
}

// GetByIDForUpdate needs no row lock: the pool has a single connection, so
// a transaction already excludes every other writer.
func (r *UserDB) GetByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	return r.GetByID(ctx, id)
}

func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email))
	if err != nil {
		return nil, notFoundOr(err, "user", email, "getting user by email")
	}
	return u, nil
}

func (r *UserDB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = ?`, googleID))
	if err != nil {
		return nil, notFoundOr(err, "user", googleID, "getting user by google id")
	}
	return u, nil
}

// Update saves the profile fields. XP and level are left alone; they change
// only through UpdateProgress.
func (r *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()
	result, err := r.q.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, fullname = ?, avatar_url = ?, google_id = ?, updated_at = ?
		 WHERE id = ?`,
		user.Username,
		user.FullName,
		user.AvatarURL,
		nullString(user.GoogleID),
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Username)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return checkAffected(result, "user", user.ID)
}

func (r *UserDB) UpdateProgress(ctx context.Context, id string, xp, level int) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE users SET xp_points = ?, level = ?, updated_at = ? WHERE id = ?`,
		xp, level, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating progress for user %s: %w", id, err)
	}
	return checkAffected(result, "user", id)
}

// ListByIDs returns the users among ids that exist, highest XP first.
func (r *UserDB) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id IN (`+placeholders(len(ids))+`)
		 ORDER BY xp_points DESC, created_at ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating users: %w", err)
	}
	return users, nil
}
