package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// BadgeDB implements repository.BadgeRepository.
type BadgeDB struct {
	q querier
}

var _ repository.BadgeRepository = (*BadgeDB)(nil)

const badgeColumns = `b.id, b.name, b.description, b.type, b.rarity, b.criteria, b.points, b.created_at`

func scanBadge(row interface{ Scan(...any) error }) (*model.Badge, error) {
	var (
		b   model.Badge
		raw string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Type, &b.Rarity, &raw, &b.Points, &b.CreatedAt); err != nil {
		return nil, err
	}
	c, err := model.DecodeCriteria(b.Type, []byte(raw))
	if err != nil {
		return nil, fmt.Errorf("badge %s: %w", b.ID, err)
	}
	b.Criteria = c
	return &b, nil
}

// List returns every badge, rarest first.
func (r *BadgeDB) List(ctx context.Context) ([]model.Badge, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+badgeColumns+` FROM badges b
		 ORDER BY CASE b.rarity
			WHEN 'LEGENDARY' THEN 0 WHEN 'EPIC' THEN 1 WHEN 'RARE' THEN 2 ELSE 3 END,
			b.points DESC, b.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing badges: %w", err)
	}
	defer rows.Close()

	badges := []model.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning badge: %w", err)
		}
		badges = append(badges, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating badges: %w", err)
	}
	return badges, nil
}

func (r *BadgeDB) GetByID(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(r.q.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges b WHERE b.id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "badge", id, "getting badge "+id)
	}
	return b, nil
}

func (r *BadgeDB) Upsert(ctx context.Context, badge *model.Badge) (bool, error) {
	existing, err := scanBadge(r.q.QueryRowContext(ctx,
		`SELECT `+badgeColumns+` FROM badges b WHERE b.name = ?`, badge.Name))
	switch {
	case err == nil:
		*badge = *existing
		return false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("sqlite: looking up badge %q: %w", badge.Name, err)
	}

	raw, err := model.EncodeCriteria(badge.Criteria)
	if err != nil {
		return false, fmt.Errorf("sqlite: encoding badge %q: %w", badge.Name, err)
	}
	badge.ID = xid.New().String()
	badge.CreatedAt = now()

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO badges (id, name, description, type, rarity, criteria, points, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		badge.ID,
		badge.Name,
		badge.Description,
		badge.Type,
		badge.Rarity,
		string(raw),
		badge.Points,
		badge.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("badge", badge.Name)
		}
		return false, fmt.Errorf("sqlite: inserting badge %q: %w", badge.Name, err)
	}
	return true, nil
}

func (r *BadgeDB) ListEarned(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT ub.id, ub.user_id, ub.badge_id, ub.earned_at, `+badgeColumns+`
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = ?
		 ORDER BY ub.earned_at DESC, ub.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing user badges: %w", err)
	}
	defer rows.Close()

	out := []model.UserBadge{}
	for rows.Next() {
		var (
			ub  model.UserBadge
			b   model.Badge
			raw string
		)
		if err := rows.Scan(
			&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt,
			&b.ID, &b.Name, &b.Description, &b.Type, &b.Rarity, &raw, &b.Points, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scanning user badge: %w", err)
		}
		if b.Criteria, err = model.DecodeCriteria(b.Type, []byte(raw)); err != nil {
			return nil, fmt.Errorf("sqlite: badge %s: %w", b.ID, err)
		}
		ub.Badge = &b
		out = append(out, ub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user badges: %w", err)
	}
	return out, nil
}

func (r *BadgeDB) Award(ctx context.Context, userID, badgeID string, at time.Time) (*model.UserBadge, error) {
	ub := &model.UserBadge{
		ID:       xid.New().String(),
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: at.UTC(),
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at) VALUES (?, ?, ?, ?)`,
		ub.ID, ub.UserID, ub.BadgeID, ub.EarnedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperror.ConflictMsg("badge " + badgeID + " already earned")
		}
		return nil, fmt.Errorf("sqlite: awarding badge %s to %s: %w", badgeID, userID, err)
	}
	return ub, nil
}
