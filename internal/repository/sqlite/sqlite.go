// Package sqlite implements the repository interfaces on SQLite, using the
// pure-Go modernc.org/sqlite driver.
//
// CONNECTIONS:
// The pool is capped at one connection. SQLite serialises writers anyway,
// a single connection keeps ":memory:" databases alive for their whole
// lifetime, and it makes a transaction the only writer while it is open.
// Code running inside WithTx must therefore use the Store it was handed,
// never the outer DB, or it will wait on itself.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/repository"

	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is the SQLite-backed repository.Store.
type DB struct {
	conn *sql.DB
	q    querier
	inTx bool
}

var _ repository.Store = (*DB)(nil)

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/habitquest.db" → file-based database
//   - ":memory:"           → in-memory database, gone on Close
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn, q: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Calling it on a transactional Store is
// a no-op.
func (db *DB) Close() error {
	if db.inTx {
		return nil
	}
	return db.conn.Close()
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

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
		}
	}()

	if err = fn(&DB{conn: db.conn, q: tx, inTx: true}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// Migrate re-runs the idempotent schema migrations. New already calls it;
// the admin CLI exposes it for existing database files.
func (db *DB) Migrate() error {
	return db.migrate()
}

// migrate creates every table with CREATE TABLE IF NOT EXISTS, so running it
// against an up-to-date database changes nothing.
func (db *DB) migrate() error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				email         TEXT NOT NULL UNIQUE,
				fullname      TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL DEFAULT '',
				google_id     TEXT UNIQUE,
				avatar_url    TEXT NOT NULL DEFAULT '',
				xp_points     INTEGER NOT NULL DEFAULT 0,
				level         INTEGER NOT NULL DEFAULT 1,
				created_at    DATETIME NOT NULL,
				updated_at    DATETIME NOT NULL
			)`},
		{"categories", `
			CREATE TABLE IF NOT EXISTS categories (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL UNIQUE COLLATE NOCASE,
				icon       TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL
			)`},
		{"habits", `
			CREATE TABLE IF NOT EXISTS habits (
				id                TEXT PRIMARY KEY,
				user_id           TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				title             TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				recurrence_mask   INTEGER NOT NULL,
				points            INTEGER NOT NULL,
				difficulty        INTEGER NOT NULL DEFAULT 0,
				category          TEXT NOT NULL DEFAULT '',
				streak            INTEGER NOT NULL DEFAULT 0,
				longest_streak    INTEGER NOT NULL DEFAULT 0,
				last_completed_at DATETIME,
				is_active         INTEGER NOT NULL DEFAULT 1,
				is_competitive    INTEGER NOT NULL DEFAULT 0,
				max_participants  INTEGER NOT NULL DEFAULT 0,
				created_at        DATETIME NOT NULL,
				updated_at        DATETIME NOT NULL,
				CHECK (longest_streak >= streak AND streak >= 0)
			);
			CREATE INDEX IF NOT EXISTS idx_habits_user_id ON habits(user_id)`},
		{"habit_participants", `
			CREATE TABLE IF NOT EXISTS habit_participants (
				id         TEXT PRIMARY KEY,
				habit_id   TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				status     TEXT NOT NULL,
				invited_at DATETIME NOT NULL,
				joined_at  DATETIME,
				updated_at DATETIME NOT NULL,
				UNIQUE (habit_id, user_id)
			);
			CREATE INDEX IF NOT EXISTS idx_participants_user_id ON habit_participants(user_id)`},
		{"habit_completions", `
			CREATE TABLE IF NOT EXISTS habit_completions (
				id             TEXT PRIMARY KEY,
				habit_id       TEXT NOT NULL REFERENCES habits(id) ON DELETE CASCADE,
				user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				participant_id TEXT REFERENCES habit_participants(id) ON DELETE CASCADE,
				completed_at   DATETIME NOT NULL,
				completed_on   TEXT NOT NULL,
				points         INTEGER NOT NULL DEFAULT 0,
				notes          TEXT NOT NULL DEFAULT '',
				UNIQUE (habit_id, user_id, completed_on)
			);
			CREATE INDEX IF NOT EXISTS idx_completions_user_day ON habit_completions(user_id, completed_on)`},
		{"badges", `
			CREATE TABLE IF NOT EXISTS badges (
				id          TEXT PRIMARY KEY,
				name        TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				type        TEXT NOT NULL,
				rarity      TEXT NOT NULL,
				criteria    TEXT NOT NULL,
				points      INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL
			)`},
		{"user_badges", `
			CREATE TABLE IF NOT EXISTS user_badges (
				id        TEXT PRIMARY KEY,
				user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				badge_id  TEXT NOT NULL REFERENCES badges(id) ON DELETE CASCADE,
				earned_at DATETIME NOT NULL,
				UNIQUE (user_id, badge_id)
			)`},
		{"friendships", `
			CREATE TABLE IF NOT EXISTS friendships (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				friend_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				status     TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				UNIQUE (user_id, friend_id)
			);
			CREATE INDEX IF NOT EXISTS idx_friendships_friend_id ON friendships(friend_id)`},
	}

	for _, s := range statements {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}

	// Databases created before competitive habits existed lack these columns.
	if err := db.addColumnIfNotExists("habits", "is_competitive", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	if err := db.addColumnIfNotExists("habits", "max_participants", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	if err != nil {
		return fmt.Errorf("adding column %s.%s: %w", table, column, err)
	}
	return nil
}

// =========================================================================
// SHARED HELPERS
// =========================================================================

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// notFoundOr maps sql.ErrNoRows to a NotFound error and wraps anything else.
func notFoundOr(err error, resource, id, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

// checkAffected turns "no rows touched" into a NotFound error.
func checkAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

// now returns the current time in UTC. Timestamps are always stored in UTC
// so that text comparisons in SQL order them correctly.
func now() time.Time {
	return time.Now().UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// placeholders returns "?, ?, ?" with n markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
