package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
	"github.com/sakif/habitquest/internal/scheduler"
)

func createHabit(t *testing.T, s *services, userID string, in CreateHabitInput) *model.Habit {
	t.Helper()
	if in.Title == "" {
		in.Title = "Read"
	}
	h, _, err := s.habits.Create(context.Background(), userID, in)
	require.NoError(t, err)
	return h
}

// setStreak stores streak state on h as if earlier completions happened.
func setStreak(t *testing.T, store repository.Store, h *model.Habit, streak, longest int, last time.Time) {
	t.Helper()
	h.Streak = streak
	h.LongestStreak = longest
	h.LastCompletedAt = &last
	require.NoError(t, store.Habits().Update(context.Background(), h))
}

// ===== CREATE TESTS =====

func TestHabitCreate_Defaults(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")

	h := createHabit(t, s, user.ID, CreateHabitInput{Title: "  Meditate  "})

	assert.Equal(t, "Meditate", h.Title)
	assert.Equal(t, gamify.FullWeekMask, h.RecurrenceMask)
	assert.Equal(t, DefaultHabitPoints, h.Points)
	assert.True(t, h.IsActive)
	assert.NotEmpty(t, h.ID)
}

func TestHabitCreate_Validation(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")

	tests := []struct {
		name  string
		in    CreateHabitInput
		field string
	}{
		{"missing title", CreateHabitInput{Title: "  "}, "title"},
		{"empty mask", CreateHabitInput{Title: "x", RecurrenceMask: ptr(0)}, "recurrenceMask"},
		{"mask out of range", CreateHabitInput{Title: "x", RecurrenceMask: ptr(128)}, "recurrenceMask"},
		{"zero points", CreateHabitInput{Title: "x", Points: ptr(0)}, "points"},
		{"difficulty too high", CreateHabitInput{Title: "x", Difficulty: ptr(6)}, "difficulty"},
		{"unknown category", CreateHabitInput{Title: "x", Category: "Underwater Basketry"}, "category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.habits.Create(context.Background(), user.ID, tt.in)
			require.ErrorIs(t, err, apperror.ErrValidation)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.field, appErr.Field)
		})
	}
}

func TestHabitCreate_CategoryMatchedIgnoringCase(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	_, err := s.categories.Seed(context.Background())
	require.NoError(t, err)

	h := createHabit(t, s, user.ID, CreateHabitInput{Title: "Run", Category: "fitness"})

	assert.Equal(t, "Fitness", h.Category)
}

func TestHabitCreate_AwardsHabitCountBadge(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	addBadge(t, s.store, "First Habit", &model.HabitCountCriteria{TargetCount: 1}, 5)

	_, rewards, err := s.habits.Create(context.Background(), user.ID, CreateHabitInput{Title: "Run"})
	require.NoError(t, err)

	assert.Equal(t, RewardsApplied, rewards.Status)
	require.Len(t, rewards.Badges, 1)
	assert.Equal(t, "First Habit", rewards.Badges[0].Name)
	assert.Equal(t, 5, rewards.XPGained)
}

// ===== READ / UPDATE / DELETE TESTS =====

func TestHabitGet_OtherUsersHabitIsNotFound(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	h := createHabit(t, s, alice.ID, CreateHabitInput{})

	_, err := s.habits.Get(context.Background(), bob.ID, h.ID)

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestHabitGet_RecomputesIsActive(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	got, err := s.habits.Get(context.Background(), user.ID, h.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// The stored flag is still false, but a new day makes the habit active
	// on read even if the reactivation job was lost.
	s.clock.AddDays(1)
	got, err = s.habits.Get(context.Background(), user.ID, h.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestHabitUpdate_PartialFields(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{Title: "Read", Points: ptr(20)})

	got, err := s.habits.Update(context.Background(), user.ID, h.ID, UpdateHabitInput{
		Title:          ptr("Read more"),
		RecurrenceMask: ptr(gamify.EncodeMask(time.Monday, time.Wednesday)),
	})
	require.NoError(t, err)

	assert.Equal(t, "Read more", got.Title)
	assert.Equal(t, 20, got.Points)
	assert.Equal(t, gamify.EncodeMask(time.Monday, time.Wednesday), got.RecurrenceMask)

	_, err = s.habits.Update(context.Background(), user.ID, h.ID, UpdateHabitInput{RecurrenceMask: ptr(0)})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHabitDelete_CancelsReactivation(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)
	require.Contains(t, s.sched.jobs, scheduler.ReactivateKey(h.ID))

	require.NoError(t, s.habits.Delete(context.Background(), user.ID, h.ID))

	assert.NotContains(t, s.sched.jobs, scheduler.ReactivateKey(h.ID))
	_, err = s.store.Habits().GetByID(context.Background(), h.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

// ===== COMPLETE TESTS =====

func TestHabitComplete_ContinuesStreakFromYesterday(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})
	setStreak(t, s.store, h, 5, 8, monday.AddDate(0, 0, -1))

	res, err := s.habits.Complete(context.Background(), user.ID, h.ID, "felt good")
	require.NoError(t, err)

	assert.Equal(t, 6, res.Habit.Streak)
	assert.Equal(t, 8, res.Habit.LongestStreak)
	assert.False(t, res.Habit.IsActive)
	assert.Equal(t, "2026-03-02", res.Completion.CompletedOn)
	assert.Equal(t, "felt good", res.Completion.Notes)

	stored, err := s.store.Habits().GetByID(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Streak)
	assert.False(t, gamify.IsActive(stored.RecurrenceMask, stored.LastCompletedAt, monday))
}

func TestHabitComplete_ResetsStreakAfterGap(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})
	setStreak(t, s.store, h, 5, 5, monday.AddDate(0, 0, -2))

	res, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Habit.Streak)
	assert.Equal(t, 5, res.Habit.LongestStreak)
}

func TestHabitComplete_CreditsXPAndLevelsUp(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	setXP(t, s.store, user.ID, 95, 1)
	h := createHabit(t, s, user.ID, CreateHabitInput{Points: ptr(10)})

	res, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	assert.Equal(t, 105, res.XP.XP)
	assert.Equal(t, 2, res.XP.Level)
	assert.True(t, res.XP.LeveledUp)

	stored, err := s.store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 105, stored.XPPoints)
	assert.Equal(t, 2, stored.Level)
}

func TestHabitComplete_SameDayIsConflictAndChangesNothing(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	_, err = s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.ErrorIs(t, err, apperror.ErrConflict)

	stored, err := s.store.Habits().GetByID(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)

	u, err := s.store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultHabitPoints, u.XPPoints)

	n, err := s.store.Completions().Count(context.Background(), repository.CompletionFilter{HabitID: h.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestHabitComplete_NotScheduledToday(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{RecurrenceMask: ptr(gamify.EncodeMask(time.Tuesday))})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")

	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHabitComplete_OtherUsersHabit(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	h := createHabit(t, s, alice.ID, CreateHabitInput{})

	_, err := s.habits.Complete(context.Background(), bob.ID, h.ID, "")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestHabitComplete_StreakBadgeAwardedExactlyOnce(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	addBadge(t, s.store, "Seven Days", &model.StreakCriteria{TargetStreak: 7}, 50)
	h := createHabit(t, s, user.ID, CreateHabitInput{Points: ptr(10)})
	setStreak(t, s.store, h, 5, 5, monday.AddDate(0, 0, -1))

	// Streak 6: not yet.
	res, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)
	assert.Empty(t, res.Rewards.Badges)

	// Streak 7: awarded with its points.
	s.clock.AddDays(1)
	res, err = s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 7, res.Habit.Streak)
	require.Len(t, res.Rewards.Badges, 1)
	assert.Equal(t, "Seven Days", res.Rewards.Badges[0].Name)

	// Streak 8: already earned, nothing new.
	s.clock.AddDays(1)
	res, err = s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)
	assert.Empty(t, res.Rewards.Badges)

	earned, err := s.badges.Earned(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Len(t, earned, 1)

	u, err := s.store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 3*10+50, u.XPPoints)
}

func TestHabitComplete_RewardFailureIsSuppressed(t *testing.T) {
	store := newTestStore(t)
	s := newServices(t, brokenBadgeStore{store})
	user := createUser(t, store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	res, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	assert.True(t, res.Rewards.Suppressed())
	assert.ErrorIs(t, res.Rewards.Err, errBadgeTable)

	// The completion itself is committed.
	stored, err := store.Habits().GetByID(context.Background(), h.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Streak)
	u, err := store.Users().GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, DefaultHabitPoints, u.XPPoints)
}

// ===== REACTIVATION TESTS =====

func TestHabitComplete_SchedulesReactivationAtNextActiveDay(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	mask := gamify.EncodeMask(time.Monday, time.Thursday)
	h := createHabit(t, s, user.ID, CreateHabitInput{RecurrenceMask: &mask})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)

	key := scheduler.ReactivateKey(h.ID)
	require.Contains(t, s.sched.at, key)
	assert.Equal(t, time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), s.sched.at[key])

	// Fire the job on Thursday.
	s.clock.AddDays(3)
	require.NoError(t, s.sched.jobs[key](context.Background()))

	stored, err := s.store.Habits().GetByID(context.Background(), h.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsActive)
}

func TestHabitReactivate_EarlyRunReschedules(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	_, err := s.habits.Complete(context.Background(), user.ID, h.ID, "")
	require.NoError(t, err)
	delete(s.sched.jobs, scheduler.ReactivateKey(h.ID))

	got, err := s.habits.Reactivate(context.Background(), h.ID)
	require.NoError(t, err)

	assert.False(t, got.IsActive)
	assert.Contains(t, s.sched.jobs, scheduler.ReactivateKey(h.ID))
}

// ===== STATS TESTS =====

func TestHabitCompletionStatsAndCalendar(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	a := createHabit(t, s, user.ID, CreateHabitInput{Title: "A", Points: ptr(10)})
	b := createHabit(t, s, user.ID, CreateHabitInput{Title: "B", Points: ptr(5)})

	ctx := context.Background()
	for _, id := range []string{a.ID, b.ID} {
		_, err := s.habits.Complete(ctx, user.ID, id, "")
		require.NoError(t, err)
	}
	s.clock.AddDays(1)
	_, err := s.habits.Complete(ctx, user.ID, a.ID, "")
	require.NoError(t, err)

	stats, err := s.habits.CompletionStats(ctx, user.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalCompletions)
	assert.Equal(t, 2, stats.ActiveDays)
	assert.InDelta(t, 0.3, stats.AvgCompletionsPerDay, 0.001)

	cal, err := s.habits.Calendar(ctx, user.ID, 2026, 3)
	require.NoError(t, err)
	require.Len(t, cal.Days, 31)
	assert.Equal(t, CalendarDay{Date: "2026-03-02", Completions: 2, Points: 15}, cal.Days[1])
	assert.Equal(t, CalendarDay{Date: "2026-03-03", Completions: 1, Points: 10}, cal.Days[2])

	_, err = s.habits.Calendar(ctx, user.ID, 2026, 13)
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHabitCompletions_DateRange(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	h := createHabit(t, s, user.ID, CreateHabitInput{})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := s.habits.Complete(ctx, user.ID, h.ID, "")
		require.NoError(t, err)
		s.clock.AddDays(1)
	}

	got, err := s.habits.Completions(ctx, user.ID, h.ID, "2026-03-03", "2026-03-04")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2026-03-04", got[0].CompletedOn)

	_, err = s.habits.Completions(ctx, user.ID, h.ID, "03/03/2026", "")
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHabitTotalStreaks(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	a := createHabit(t, s, user.ID, CreateHabitInput{Title: "A"})
	b := createHabit(t, s, user.ID, CreateHabitInput{Title: "B"})
	setStreak(t, s.store, a, 3, 9, monday.AddDate(0, 0, -1))
	setStreak(t, s.store, b, 4, 4, monday.AddDate(0, 0, -1))

	totals, err := s.habits.TotalStreaks(context.Background(), user.ID)
	require.NoError(t, err)

	assert.Equal(t, 7, totals.TotalStreak)
	assert.Equal(t, 9, totals.LongestStreak)
	assert.Len(t, totals.Habits, 2)
}
