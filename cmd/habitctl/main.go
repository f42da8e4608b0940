// Command habitctl runs administrative tasks against the habitquest
// database: schema migrations, catalog seeding, on-demand badge checks and
// habit reactivation. It reads the same environment variables as the server.
//
//	habitctl migrate
//	habitctl seed
//	habitctl check-badges --user <id> [--trigger level_up ...]
//	habitctl reactivate --habit <id>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"

	"github.com/sakif/habitquest/internal/config"
)

var cli struct {
	Verbose bool   `short:"v" help:"Log at debug level."`
	DBPath  string `help:"Override DB_PATH for the sqlite driver." placeholder:"PATH"`

	Migrate     MigrateCmd     `cmd:"" help:"Create or upgrade the database schema."`
	Seed        SeedCmd        `cmd:"" help:"Install the default badges and categories."`
	CheckBadges CheckBadgesCmd `cmd:"" help:"Evaluate badge rules for one user."`
	Reactivate  ReactivateCmd  `cmd:"" help:"Recompute whether a habit can be completed today."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("habitctl"),
		kong.Description("Administrative tasks for the habitquest API."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	level := log.InfoLevel
	if cli.Verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "habitctl",
	})
	logger := slog.New(handler)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if cli.DBPath != "" {
		cfg.DBPath = cli.DBPath
	}

	ctx := context.Background()
	app, err := open(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	if err := kctx.Run(app); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		app.Close()
		os.Exit(1)
	}
}
