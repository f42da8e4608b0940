package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// newTestDB connects to HABITQUEST_TEST_DATABASE_URL and empties every table.
// Without the variable the test is skipped.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("HABITQUEST_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("HABITQUEST_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.pool.Exec(ctx, `TRUNCATE users, categories, habits, habit_participants,
		habit_completions, badges, user_badges, friendships CASCADE`)
	require.NoError(t, err)
	return db
}

func TestIsUniqueViolation_PlainError(t *testing.T) {
	assert.False(t, isUniqueViolation(errors.New("duplicate key")))
	assert.False(t, isUniqueViolation(nil))
}

func TestNullString(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("g-1"))
	assert.Equal(t, "g-1", *nullString("g-1"))
}

func TestStore_CompletionFlow(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Username: "pg", Email: "pg@example.com"}
	require.NoError(t, db.Users().Create(ctx, user))
	habit := &model.Habit{UserID: user.ID, Title: "Read", RecurrenceMask: 127, Points: 10, IsActive: true}
	require.NoError(t, db.Habits().Create(ctx, habit))

	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	err := db.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Completions().Create(ctx, &model.HabitCompletion{HabitID: habit.ID, UserID: user.ID, CompletedAt: at}); err != nil {
			return err
		}
		return tx.Users().UpdateProgress(ctx, user.ID, 10, 1)
	})
	require.NoError(t, err)

	dup := &model.HabitCompletion{HabitID: habit.ID, UserID: user.ID, CompletedAt: at.Add(time.Hour)}
	assert.ErrorIs(t, db.Completions().Create(ctx, dup), apperror.ErrConflict)

	n, err := db.Completions().Count(ctx, repository.CompletionFilter{UserID: user.ID, FromDay: "2026-10-18"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_BadgeCriteriaRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	b := &model.Badge{
		Name:     "Consistency King",
		Type:     model.BadgeConsistency,
		Rarity:   model.RarityEpic,
		Criteria: &model.ConsistencyCriteria{TargetDays: 20, WithinDays: 30},
		Points:   300,
	}
	created, err := db.Badges().Upsert(ctx, b)
	require.NoError(t, err)
	assert.True(t, created)

	got, err := db.Badges().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.ConsistencyCriteria{TargetDays: 20, WithinDays: 30}, got.Criteria)
}

func TestStore_ParticipantStatusFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner := &model.User{Username: "o", Email: "o@example.com"}
	guest := &model.User{Username: "g", Email: "g@example.com"}
	require.NoError(t, db.Users().Create(ctx, owner))
	require.NoError(t, db.Users().Create(ctx, guest))
	habit := &model.Habit{UserID: owner.ID, Title: "Plank", RecurrenceMask: 127, Points: 10, IsActive: true, IsCompetitive: true}
	require.NoError(t, db.Habits().Create(ctx, habit))

	require.NoError(t, db.Participants().Create(ctx, &model.HabitParticipant{HabitID: habit.ID, UserID: owner.ID, Status: model.ParticipantAccepted}))
	require.NoError(t, db.Participants().Create(ctx, &model.HabitParticipant{HabitID: habit.ID, UserID: guest.ID, Status: model.ParticipantPending}))

	accepted, err := db.Participants().ListByHabit(ctx, habit.ID, model.ParticipantAccepted)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, owner.ID, accepted[0].UserID)

	all, err := db.Participants().ListByHabit(ctx, habit.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_ConcurrentXPCreditsAllLand(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Username: "busy", Email: "busy@example.com"}
	require.NoError(t, db.Users().Create(ctx, user))

	credit := func(delta int) error {
		return db.WithTx(ctx, func(tx repository.Store) error {
			u, err := tx.Users().GetByIDForUpdate(ctx, user.ID)
			if err != nil {
				return err
			}
			// Widen the window between read and write.
			time.Sleep(5 * time.Millisecond)
			return tx.Users().UpdateProgress(ctx, user.ID, u.XPPoints+delta, u.Level)
		})
	}

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- credit(10)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := db.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*10, got.XPPoints)
}

func TestStore_HabitDifficultyRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := &model.User{Username: "d", Email: "d@example.com"}
	require.NoError(t, db.Users().Create(ctx, user))
	habit := &model.Habit{UserID: user.ID, Title: "Swim", RecurrenceMask: 127, Points: 10, Difficulty: 3, IsActive: true}
	require.NoError(t, db.Habits().Create(ctx, habit))

	got, err := db.Habits().GetByID(ctx, habit.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Difficulty)
}
