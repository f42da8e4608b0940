// Package main is the entry point for the habitquest API server.
//
// MAIN PACKAGE IN GO:
// Every Go program starts execution in the main() function of the "main" package.
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables, via internal/config)
// 2. Create dependencies that belong to the process (the logger)
// 3. Start the application
//
// All actual logic lives in imported packages (internal/server, internal/service, ...).
//
// WHY cmd/server/?
// The cmd/ directory is a Go convention for executable entry points.
// habitquest has two: cmd/server (this file) and cmd/habitctl (admin tasks).
package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sakif/habitquest/internal/config"
	"github.com/sakif/habitquest/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// config.Load reads every setting from the environment and fails only on
	// values that are present but malformed (e.g. PORT=abc).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	// LOG_FORMAT picks the handler (text for humans, json for log shippers),
	// LOG_LEVEL the minimum level. With LOG_FILE set, output also goes to a
	// rotating file managed by lumberjack.
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	// === 3. PREPARE THE DATABASE DIRECTORY ===
	// SQLite creates the file but not its parent directories.
	// os.MkdirAll is `mkdir -p`; 0755 = owner rwx, others r-x.
	if cfg.DBDriver == "sqlite" && cfg.DBPath != ":memory:" {
		dbDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			logger.Error("failed to create database directory",
				slog.String("dir", dbDir),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// === 4. AUTH CONFIGURATION ===
	// JWT_SECRET must be a long random string, e.g.:
	//   JWT_SECRET=$(openssl rand -hex 32)
	// Every API route needs an identity, so the server refuses to start without it.
	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is not set")
		os.Exit(1)
	}

	// === 5. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (via Ctrl+C or SIGTERM)
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.LogFile != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
