// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects the store, the services,
// the handlers and the middleware, and decides:
// - Which URL patterns map to which handler functions
// - Which routes need an authenticated user
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go loads config.Config and builds the logger
//	server.New creates: Store → Scheduler → Services → Handlers → Routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place (New/setupRoutes), rather than scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/habitquest/internal/auth"
	"github.com/sakif/habitquest/internal/config"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/handler"
	"github.com/sakif/habitquest/internal/middleware"
	"github.com/sakif/habitquest/internal/repository"
	"github.com/sakif/habitquest/internal/repository/postgres"
	"github.com/sakif/habitquest/internal/repository/sqlite"
	"github.com/sakif/habitquest/internal/scheduler"
	"github.com/sakif/habitquest/internal/service"
	"github.com/sakif/habitquest/internal/storage"
)

// Database is a Store the server owns and must close on shutdown.
type Database interface {
	repository.Store
	Close() error
}

// OpenStore opens the backend cfg.DBDriver names. Both backends run their
// migrations before returning.
func OpenStore(ctx context.Context, cfg config.Config) (Database, error) {
	switch cfg.DBDriver {
	case "", "sqlite":
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.DBDriver)
	}
}

// Services bundles the business layer so the HTTP server and the admin CLI
// build it the same way.
type Services struct {
	Auth        *service.AuthService
	Habits      *service.HabitService
	Badges      *service.BadgeService
	Friends     *service.FriendshipService
	Competitive *service.CompetitiveService
	Stats       *service.StatsService
	Categories  *service.CategoryService
}

// NewServices wires every service over store. sched may be nil (the CLI
// runs without one); avatars may be nil when S3 is not configured.
func NewServices(
	cfg config.Config,
	store repository.Store,
	tokens *auth.TokenService,
	sched service.Scheduler,
	avatars service.ObjectStore,
	logger *slog.Logger,
) (*Services, error) {
	mode, err := gamify.ParseStreakMode(cfg.StreakMode)
	if err != nil {
		return nil, err
	}
	clock := service.LocalClock(cfg.Location)

	badges := service.NewBadgeService(store, clock, logger)
	return &Services{
		Auth:   service.NewAuthService(store.Users(), tokens, auth.NewPasswordService(), avatars, logger),
		Badges: badges,
		Habits: service.NewHabitService(store, badges, sched, service.HabitOptions{
			StreakMode:    mode,
			DefaultPoints: cfg.DefaultHabitPoints,
		}, clock, logger),
		Friends:     service.NewFriendshipService(store, badges, logger),
		Competitive: service.NewCompetitiveService(store, badges, cfg.DefaultHabitPoints, clock, logger),
		Stats:       service.NewStatsService(store, clock, logger),
		Categories:  service.NewCategoryService(store, logger),
	}, nil
}

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database and the reactivation scheduler. Start stops
// the scheduler first (so no job writes to a closing store) and then closes
// the database.
type Server struct {
	router    *chi.Mux
	config    config.Config
	logger    *slog.Logger
	db        Database
	scheduler *scheduler.Scheduler
	tokens    *auth.TokenService
	services  *Services
	google    *auth.GoogleProvider
}

// New creates a Server from cfg.
//
// DEPENDENCY INJECTION & WIRING:
//  1. Open the database (sqlite or postgres) and run migrations
//  2. Seed the default badges and categories (idempotent)
//  3. Start the reactivation scheduler
//  4. Create the services, then the handlers, then the routes
//
// Optional collaborators are switched on by config: no Google credentials
// means no Google routes, no S3 settings means no avatar upload route.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	// === CREATE DATABASE ===
	ctx := context.Background()
	db, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	var avatars service.ObjectStore
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3(storage.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating object storage: %w", err)
		}
		avatars = s3Store
	} else {
		logger.Warn("S3 not configured, avatar uploads are disabled")
	}

	sched := scheduler.New(logger)
	services, err := NewServices(cfg, db, tokens, sched, avatars, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating services: %w", err)
	}

	// === SEED CATALOGS ===
	if _, err := services.Badges.Seed(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding badges: %w", err)
	}
	if _, err := services.Categories.Seed(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seeding categories: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		db:        db,
		scheduler: sched,
		tokens:    tokens,
		services:  services,
	}
	if cfg.GoogleEnabled() {
		s.google = auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)
	} else {
		logger.Warn("Google OAuth not configured, /api/auth/google routes are disabled")
	}

	s.setupRoutes()
	sched.Start()
	return s, nil
}

// Handler exposes the router, mainly so tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the scheduler and closes the database. Start calls it on
// shutdown; tests that never call Start call it directly.
func (s *Server) Close() error {
	s.scheduler.Stop()
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	/healthz                          → liveness probe
//	/api/auth/...                     → public: register, login, logout, Google OAuth
//	/api/me, /api/habits, /api/badges,
//	/api/friends, /api/competitive,
//	/api/stats, /api/categories       → require a JWT (Bearer header or cookie)
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID: assigns a unique id to each request
// 2. RealIP: extracts the real client IP from proxy headers
// 3. Recoverer: turns panics into 500s instead of crashing
// 4. Logger: one structured line per request
// 5. CORS: answers preflight requests for the browser frontend
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	svc := s.services
	authHandler := handler.NewAuthHandler(svc.Auth, s.google, s.tokens.TTL(), s.logger)
	habitHandler := handler.NewHabitHandler(svc.Habits, s.logger)
	badgeHandler := handler.NewBadgeHandler(svc.Badges, s.logger)
	friendHandler := handler.NewFriendHandler(svc.Friends, s.logger)
	competitiveHandler := handler.NewCompetitiveHandler(svc.Competitive, s.logger)
	statsHandler := handler.NewStatsHandler(svc.Stats, svc.Categories, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		// === Public routes ===
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			if s.google != nil {
				r.Get("/google/login", authHandler.HandleGoogleLogin)
				r.Get("/google/callback", authHandler.HandleGoogleCallback)
			}
		})

		// === Authenticated routes ===
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(s.tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Patch("/me", authHandler.HandleUpdateProfile)
			if svc.Auth.AvatarsEnabled() {
				r.Post("/me/avatar", authHandler.HandleUploadAvatar)
			}

			r.Route("/habits", func(r chi.Router) {
				r.Get("/", habitHandler.HandleList)
				r.Post("/", habitHandler.HandleCreate)
				r.Get("/streaks/total", habitHandler.HandleTotalStreaks)
				r.Get("/stats/completion", habitHandler.HandleCompletionStats)
				r.Get("/calendar/{year}/{month}", habitHandler.HandleCalendar)
				r.Get("/{id}", habitHandler.HandleGet)
				r.Patch("/{id}", habitHandler.HandleUpdate)
				r.Put("/{id}", habitHandler.HandleUpdate)
				r.Delete("/{id}", habitHandler.HandleDelete)
				r.Post("/{id}/complete", habitHandler.HandleComplete)
				r.Get("/{id}/streak", habitHandler.HandleStreak)
				r.Get("/{id}/completions", habitHandler.HandleCompletions)
			})

			r.Route("/badges", func(r chi.Router) {
				r.Get("/", badgeHandler.HandleList)
				r.Get("/mine", badgeHandler.HandleMine)
				r.Get("/progress", badgeHandler.HandleProgress)
				r.Post("/check", badgeHandler.HandleCheck)
				r.Post("/seed", badgeHandler.HandleSeed)
			})

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", friendHandler.HandleList)
				r.Get("/stats", friendHandler.HandleStats)
				r.Post("/requests", friendHandler.HandleSendRequest)
				r.Get("/requests/incoming", friendHandler.HandleIncoming)
				r.Get("/requests/outgoing", friendHandler.HandleOutgoing)
				r.Post("/requests/{id}/accept", friendHandler.HandleAccept)
				r.Post("/requests/{id}/decline", friendHandler.HandleDecline)
				r.Delete("/{friendId}", friendHandler.HandleRemove)
			})

			r.Route("/competitive", func(r chi.Router) {
				r.Get("/", competitiveHandler.HandleMine)
				r.Post("/", competitiveHandler.HandleCreate)
				r.Get("/progress", competitiveHandler.HandleProgress)
				r.Get("/invitations", competitiveHandler.HandleInvitations)
				r.Post("/invitations/{id}/accept", competitiveHandler.HandleAccept)
				r.Post("/invitations/{id}/decline", competitiveHandler.HandleDecline)
				r.Post("/{id}/invite", competitiveHandler.HandleInvite)
				r.Delete("/{id}/participants/{participantId}", competitiveHandler.HandleRemoveParticipant)
				r.Get("/{id}/leaderboard", competitiveHandler.HandleLeaderboard)
				r.Post("/{id}/complete", competitiveHandler.HandleComplete)
				r.Get("/{id}/winner", competitiveHandler.HandleWinner)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Get("/leaderboard", statsHandler.HandleFriendsLeaderboard)
				r.Get("/me", statsHandler.HandleUserStats)
				r.Get("/level", statsHandler.HandleLevelProgress)
			})

			r.Get("/categories", statsHandler.HandleCategories)
			r.Post("/categories/seed", statsHandler.HandleSeedCategories)
		})
	})
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Stop the scheduler, then close the database
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("db_driver", s.config.DBDriver),
			slog.Bool("google_oauth", s.google != nil),
			slog.Bool("avatars", s.services.Auth.AvatarsEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
