package postgres

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

type UserDB struct {
	q querier
}

var _ repository.UserRepository = (*UserDB)(nil)

const userColumns = `id, username, email, fullname, password_hash, google_id, avatar_url,
	xp_points, level, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var (
		u        model.User
		googleID *string
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
	if googleID != nil {
		u.GoogleID = *googleID
	}
	return &u, nil
}

func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt
	if user.Level < 1 {
		user.Level = 1
	}

	_, err := r.q.Exec(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
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
		return fmt.Errorf("postgres: creating user: %w", err)
	}
	return nil
}

func (r *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id, "getting user "+id)
	}
	return u, nil
}

func (r *UserDB) GetByIDForUpdate(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, notFoundOr(err, "user", id, "locking user "+id)
	}
	return u, nil
}

func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
	if err != nil {
		return nil, notFoundOr(err, "user", email, "getting user by email")
	}
	return u, nil
}

func (r *UserDB) GetByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
	if err != nil {
		return nil, notFoundOr(err, "user", googleID, "getting user by google id")
	}
	return u, nil
}

func (r *UserDB) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()
	tag, err := r.q.Exec(ctx,
		`UPDATE users
		 SET username = $1, fullname = $2, avatar_url = $3, google_id = $4, updated_at = $5
		 WHERE id = $6`,
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
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}
	return checkAffected(tag, "user", user.ID)
}

func (r *UserDB) UpdateProgress(ctx context.Context, id string, xp, level int) error {
	tag, err := r.q.Exec(ctx,
		`UPDATE users SET xp_points = $1, level = $2, updated_at = $3 WHERE id = $4`,
		xp, level, now(), id,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating progress for user %s: %w", id, err)
	}
	return checkAffected(tag, "user", id)
}

func (r *UserDB) ListByIDs(ctx context.Context, ids []string) ([]model.User, error) {
	if len(ids) == 0 {
		return []model.User{}, nil
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id = ANY($1)
		 ORDER BY xp_points DESC, created_at ASC`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
