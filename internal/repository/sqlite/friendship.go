package sqlite

import (
	"context"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// FriendshipDB implements repository.FriendshipRepository.
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

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO friendships (`+friendshipColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		f.ID, f.UserID, f.FriendID, f.Status, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.ConflictMsg("friendship already exists")
		}
		return fmt.Errorf("sqlite: creating friendship: %w", err)
	}
	return nil
}

func (r *FriendshipDB) GetByID(ctx context.Context, id string) (*model.Friendship, error) {
	f, err := scanFriendship(r.q.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM friendships WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "friendship", id, "getting friendship "+id)
	}
	return f, nil
}

func (r *FriendshipDB) FindBetween(ctx context.Context, a, b string) (*model.Friendship, error) {
	f, err := scanFriendship(r.q.QueryRowContext(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)
		 ORDER BY created_at DESC LIMIT 1`,
		a, b, b, a,
	))
	if err != nil {
		return nil, notFoundOr(err, "friendship", a+"/"+b, "finding friendship")
	}
	return f, nil
}

func (r *FriendshipDB) Update(ctx context.Context, f *model.Friendship) error {
	f.UpdatedAt = now()
	result, err := r.q.ExecContext(ctx,
		`UPDATE friendships SET user_id = ?, friend_id = ?, status = ?, updated_at = ? WHERE id = ?`,
		f.UserID, f.FriendID, f.Status, f.UpdatedAt, f.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating friendship %s: %w", f.ID, err)
	}
	return checkAffected(result, "friendship", f.ID)
}

func (r *FriendshipDB) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM friendships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting friendship %s: %w", id, err)
	}
	return checkAffected(result, "friendship", id)
}

func (r *FriendshipDB) ListForUser(ctx context.Context, userID string, status model.FriendshipStatus) ([]model.Friendship, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+friendshipColumns+` FROM friendships
		 WHERE (user_id = ? OR friend_id = ?) AND status = ?
		 ORDER BY created_at DESC, id DESC`,
		userID, userID, status,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing friendships: %w", err)
	}
	defer rows.Close()

	out := []model.Friendship{}
	for rows.Next() {
		f, err := scanFriendship(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning friendship: %w", err)
		}
		out = append(out, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating friendships: %w", err)
	}
	return out, nil
}

func (r *FriendshipDB) CountAccepted(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friendships WHERE (user_id = ? OR friend_id = ?) AND status = ?`,
		userID, userID, model.FriendshipAccepted,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting friends of %s: %w", userID, err)
	}
	return n, nil
}
