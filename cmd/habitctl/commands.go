package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sakif/habitquest/internal/config"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/repository/postgres"
	"github.com/sakif/habitquest/internal/repository/sqlite"
	"github.com/sakif/habitquest/internal/server"
)

// appContext is what every command's Run receives.
type appContext struct {
	ctx      context.Context
	db       server.Database
	services *server.Services
	logger   *slog.Logger
	out      io.Writer
}

// open connects to the configured database and wires the services without
// a scheduler, token service or object store; no command needs them.
func open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*appContext, error) {
	db, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	services, err := server.NewServices(cfg, db, nil, nil, nil, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &appContext{ctx: ctx, db: db, services: services, logger: logger, out: os.Stdout}, nil
}

func (a *appContext) Close() error {
	return a.db.Close()
}

type MigrateCmd struct{}

func (c *MigrateCmd) Run(app *appContext) error {
	switch db := app.db.(type) {
	case *sqlite.DB:
		if err := db.Migrate(); err != nil {
			return err
		}
	case *postgres.DB:
		if err := db.Migrate(app.ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("migrate: unsupported store %T", db)
	}
	fmt.Fprintln(app.out, "schema is up to date")
	return nil
}

type SeedCmd struct {
	Only string `enum:"all,badges,categories" default:"all" help:"Which catalog to seed (${enum})."`
}

func (c *SeedCmd) Run(app *appContext) error {
	if c.Only == "all" || c.Only == "badges" {
		res, err := app.services.Badges.Seed(app.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "badges: %d created, %d existing\n", res.Created, res.Existing)
	}
	if c.Only == "all" || c.Only == "categories" {
		res, err := app.services.Categories.Seed(app.ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(app.out, "categories: %d created, %d existing\n", res.Created, res.Existing)
	}
	return nil
}

type CheckBadgesCmd struct {
	User    string   `required:"" help:"User id to evaluate."`
	Trigger []string `default:"habit_completion,level_up" help:"Triggers to evaluate."`
}

func (c *CheckBadgesCmd) Run(app *appContext) error {
	triggers := make([]gamify.Trigger, 0, len(c.Trigger))
	for _, raw := range c.Trigger {
		t, err := gamify.ParseTrigger(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		triggers = append(triggers, t)
	}

	award, err := app.services.Badges.Check(app.ctx, c.User, triggers...)
	if err != nil {
		return err
	}
	if len(award.Badges) == 0 {
		fmt.Fprintln(app.out, "no new badges")
		return nil
	}
	for _, b := range award.Badges {
		fmt.Fprintf(app.out, "awarded %q (+%d XP)\n", b.Name, b.Points)
	}
	fmt.Fprintf(app.out, "xp: %d, level: %d\n", award.XP, award.Level)
	return nil
}

type ReactivateCmd struct {
	Habit string `required:"" help:"Habit id to recompute."`
}

func (c *ReactivateCmd) Run(app *appContext) error {
	h, err := app.services.Habits.Reactivate(app.ctx, c.Habit)
	if err != nil {
		return err
	}
	state := "inactive"
	if h.IsActive {
		state = "active"
	}
	fmt.Fprintf(app.out, "%s (%s) is %s\n", h.Title, h.ID, state)
	return nil
}
