// Package postgres is the multi-instance backend: a pgx connection pool
// behind the same repository.Store the sqlite package implements.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/repository"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ repository.Store = (*DB)(nil)

// New connects to connString, pings it and runs migrations.
func New(ctx context.Context, connString string) (*DB, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("postgres: parsing config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	db := &DB{pool: pool, q: pool}
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error {
	if !db.inTx {
		db.pool.Close()
	}
	return nil
}

func (db *DB) Users() repository.UserRepository             { return &UserDB{q: db.q} }
func (db *DB) Habits() repository.HabitRepository           { return &HabitDB{q: db.q} }
func (db *DB) Completions() repository.CompletionRepository { return &CompletionDB{q: db.q} }
func (db *DB) Badges() repository.BadgeRepository           { return &BadgeDB{q: db.q} }
func (db *DB) Friendships() repository.FriendshipRepository { return &FriendshipDB{q: db.q} }
func (db *DB) Participants() repository.ParticipantRepository {
	return &ParticipantDB{q: db.q}
}
func (db *DB) Categories() repository.CategoryRepository { return &CategoryDB{q: db.q} }

// WithTx implements repository.Store.
func (db *DB) WithTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	if db.inTx {
		return fn(db)
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	if err = fn(&DB{pool: db.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: committing transaction: %w", err)
	}
	return nil
}

// Migrate creates missing tables and indexes. Every statement is idempotent.
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrating: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL,
		fullname      TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL DEFAULT '',
		google_id     TEXT UNIQUE,
		avatar_url    TEXT NOT NULL DEFAULT '',
		xp_points     INTEGER NOT NULL DEFAULT 0,
		level         INTEGER NOT NULL DEFAULT 1,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (lower(email))`,
	`CREATE TABLE IF NOT EXISTS categories (
		id         TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		icon       TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS categories_name_lower_idx ON categories (lower(name))`,
	`CREATE TABLE IF NOT EXISTS habits (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title             TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		recurrence_mask   INTEGER NOT NULL,
		points            INTEGER NOT NULL,
		difficulty        INTEGER NOT NULL DEFAULT 0,
		category          TEXT NOT NULL DEFAULT '',
		streak            INTEGER NOT NULL DEFAULT 0 CHECK (streak >= 0),
		longest_streak    INTEGER NOT NULL DEFAULT 0 CHECK (longest_streak >= streak),
		last_completed_at TIMESTAMPTZ,
		is_active         BOOLEAN NOT NULL DEFAULT TRUE,
		is_competitive    BOOLEAN NOT NULL DEFAULT FALSE,
		max_participants  INTEGER NOT NULL DEFAULT 0,
		created_at        TIMESTAMPTZ NOT NULL,
		updated_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS habits_user_idx ON habits (user_id)`,
	`CREATE TABLE IF NOT EXISTS habit_participants (
		id         TEXT PRIMARY KEY,
		habit_id   TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		invited_at TIMESTAMPTZ NOT NULL,
		joined_at  TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (habit_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS habit_completions (
		id             TEXT PRIMARY KEY,
		habit_id       TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
		user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		participant_id TEXT REFERENCES habit_participants(id) ON DELETE CASCADE,
		completed_at   TIMESTAMPTZ NOT NULL,
		completed_on   TEXT NOT NULL,
		points         INTEGER NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT '',
		UNIQUE (habit_id, user_id, completed_on)
	)`,
	`CREATE INDEX IF NOT EXISTS completions_user_day_idx ON habit_completions (user_id, completed_on)`,
	`CREATE TABLE IF NOT EXISTS badges (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		type        TEXT NOT NULL,
		rarity      TEXT NOT NULL,
		criteria    JSONB NOT NULL,
		points      INTEGER NOT NULL DEFAULT 0,
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS user_badges (
		id        TEXT PRIMARY KEY,
		user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		badge_id  TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
		earned_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, badge_id)
	)`,
	`CREATE TABLE IF NOT EXISTS friendships (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		friend_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE (user_id, friend_id)
	)`,
}

// =========================================================================
// HELPERS
// =========================================================================

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFoundOr(err error, resource, id, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

func checkAffected(tag pgconn.CommandTag, resource, id string) error {
	if tag.RowsAffected() == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
