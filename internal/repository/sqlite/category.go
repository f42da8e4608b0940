package sqlite

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// CategoryDB implements repository.CategoryRepository.
type CategoryDB struct {
	q querier
}

var _ repository.CategoryRepository = (*CategoryDB)(nil)

func (r *CategoryDB) List(ctx context.Context) ([]model.Category, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, icon, created_at FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing categories: %w", err)
	}
	defer rows.Close()

	out := []model.Category{}
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Icon, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating categories: %w", err)
	}
	return out, nil
}

func (r *CategoryDB) GetByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := r.q.QueryRowContext(ctx,
		`SELECT id, name, icon, created_at FROM categories WHERE name = ? COLLATE NOCASE`, name,
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
	if _, err := r.q.ExecContext(ctx,
		`INSERT INTO categories (id, name, icon, created_at) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Icon, c.CreatedAt,
	); err != nil {
		return false, fmt.Errorf("sqlite: inserting category %q: %w", c.Name, err)
	}
	return true, nil
}
