package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

type BadgeDB struct {
	q querier
}

var _ repository.BadgeRepository = (*BadgeDB)(nil)

const badgeColumns = `b.id, b.name, b.description, b.type, b.rarity, b.criteria, b.points, b.created_at`

// badgeRow collects the scanned columns of a badge before its criteria are
// decoded for the badge's type.
type badgeRow struct {
	model.Badge
	raw []byte
}

func (b *badgeRow) dest() []any {
	return []any{&b.ID, &b.Name, &b.Description, &b.Type, &b.Rarity, &b.raw, &b.Points, &b.CreatedAt}
}

func (b *badgeRow) decode() (*model.Badge, error) {
	c, err := model.DecodeCriteria(b.Type, b.raw)
	if err != nil {
		return nil, fmt.Errorf("badge %s: %w", b.ID, err)
	}
	b.Criteria = c
	return &b.Badge, nil
}

func scanBadge(row pgx.Row) (*model.Badge, error) {
	var b badgeRow
	if err := row.Scan(b.dest()...); err != nil {
		return nil, err
	}
	return b.decode()
}

func (r *BadgeDB) List(ctx context.Context) ([]model.Badge, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+badgeColumns+` FROM badges b
		 ORDER BY CASE b.rarity
			WHEN 'LEGENDARY' THEN 0 WHEN 'EPIC' THEN 1 WHEN 'RARE' THEN 2 ELSE 3 END,
			b.points DESC, b.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing badges: %w", err)
	}
	defer rows.Close()

	badges := []model.Badge{}
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

func (r *BadgeDB) GetByID(ctx context.Context, id string) (*model.Badge, error) {
	b, err := scanBadge(r.q.QueryRow(ctx, `SELECT `+badgeColumns+` FROM badges b WHERE b.id = $1`, id))
	if err != nil {
		return nil, notFoundOr(err, "badge", id, "getting badge "+id)
	}
	return b, nil
}

func (r *BadgeDB) Upsert(ctx context.Context, badge *model.Badge) (bool, error) {
	existing, err := scanBadge(r.q.QueryRow(ctx,
		`SELECT `+badgeColumns+` FROM badges b WHERE b.name = $1`, badge.Name))
	switch {
	case err == nil:
		*badge = *existing
		return false, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return false, fmt.Errorf("postgres: looking up badge %q: %w", badge.Name, err)
	}

	raw, err := model.EncodeCriteria(badge.Criteria)
	if err != nil {
		return false, fmt.Errorf("postgres: encoding badge %q: %w", badge.Name, err)
	}
	badge.ID = xid.New().String()
	badge.CreatedAt = now()

	_, err = r.q.Exec(ctx,
		`INSERT INTO badges (id, name, description, type, rarity, criteria, points, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		badge.ID,
		badge.Name,
		badge.Description,
		string(badge.Type),
		string(badge.Rarity),
		string(raw),
		badge.Points,
		badge.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("badge", badge.Name)
		}
		return false, fmt.Errorf("postgres: inserting badge %q: %w", badge.Name, err)
	}
	return true, nil
}

func (r *BadgeDB) ListEarned(ctx context.Context, userID string) ([]model.UserBadge, error) {
	rows, err := r.q.Query(ctx,
		`SELECT ub.id, ub.user_id, ub.badge_id, ub.earned_at, `+badgeColumns+`
		 FROM user_badges ub
		 JOIN badges b ON b.id = ub.badge_id
		 WHERE ub.user_id = $1
		 ORDER BY ub.earned_at DESC, ub.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing user badges: %w", err)
	}
	defer rows.Close()

	out := []model.UserBadge{}
	for rows.Next() {
		var (
			ub model.UserBadge
			b  badgeRow
		)
		dest := append([]any{&ub.ID, &ub.UserID, &ub.BadgeID, &ub.EarnedAt}, b.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("postgres: scanning user badge: %w", err)
		}
		if ub.Badge, err = b.decode(); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		out = append(out, ub)
	}
	return out, rows.Err()
}

func (r *BadgeDB) Award(ctx context.Context, userID, badgeID string, at time.Time) (*model.UserBadge, error) {
	ub := &model.UserBadge{
		ID:       xid.New().String(),
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: at.UTC(),
	}
	// ON CONFLICT keeps a duplicate from aborting the caller's transaction.
	tag, err := r.q.Exec(ctx,
		`INSERT INTO user_badges (id, user_id, badge_id, earned_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, badge_id) DO NOTHING`,
		ub.ID, ub.UserID, ub.BadgeID, ub.EarnedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: awarding badge %s to %s: %w", badgeID, userID, err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperror.ConflictMsg("badge " + badgeID + " already earned")
	}
	return ub, nil
}
