package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/habitquest/internal/catalog"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// CategoryService serves the habit category list.
type CategoryService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewCategoryService(store repository.Store, logger *slog.Logger) *CategoryService {
	return &CategoryService{store: store, logger: logger}
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	categories, err := s.store.Categories().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return categories, nil
}

// Seed inserts the embedded default categories that are not stored yet.
func (s *CategoryService) Seed(ctx context.Context) (SeedResult, error) {
	defaults, err := catalog.Categories()
	if err != nil {
		return SeedResult{}, fmt.Errorf("loading category catalog: %w", err)
	}

	var res SeedResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		for i := range defaults {
			created, err := tx.Categories().Upsert(ctx, &defaults[i])
			if err != nil {
				return fmt.Errorf("seeding category %s: %w", defaults[i].Name, err)
			}
			if created {
				res.Created++
			} else {
				res.Existing++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	s.logger.Info("categories seeded",
		slog.Int("created", res.Created),
		slog.Int("existing", res.Existing),
	)
	return res, nil
}
