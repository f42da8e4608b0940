package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/apperror"
)

func TestStatsFriendsLeaderboard(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")
	bob := createUser(t, s.store, "bob")
	carol := createUser(t, s.store, "carol")
	dave := createUser(t, s.store, "dave")
	ctx := context.Background()

	befriend(t, s, alice.ID, bob.ID)
	// A pending request does not put dave on the board.
	_, err := s.friends.SendRequest(ctx, dave.ID, alice.ID)
	require.NoError(t, err)

	setXP(t, s.store, alice.ID, 50, 1)
	setXP(t, s.store, bob.ID, 120, 2)
	setXP(t, s.store, carol.ID, 500, 6)
	setXP(t, s.store, dave.ID, 900, 10)

	board, err := s.stats.FriendsLeaderboard(ctx, alice.ID)
	require.NoError(t, err)

	require.Len(t, board.Leaderboard, 2)
	assert.Equal(t, 1, board.TotalFriends)
	assert.Equal(t, 2, board.UserRank)

	assert.Equal(t, "bob", board.Leaderboard[0].Username)
	assert.Equal(t, 1, board.Leaderboard[0].Rank)
	assert.False(t, board.Leaderboard[0].IsCurrentUser)

	assert.Equal(t, "alice", board.Leaderboard[1].Username)
	assert.True(t, board.Leaderboard[1].IsCurrentUser)
}

func TestStatsFriendsLeaderboard_NoFriends(t *testing.T) {
	s := newServices(t, newTestStore(t))
	alice := createUser(t, s.store, "alice")

	board, err := s.stats.FriendsLeaderboard(context.Background(), alice.ID)
	require.NoError(t, err)

	require.Len(t, board.Leaderboard, 1)
	assert.Zero(t, board.TotalFriends)
	assert.Equal(t, 1, board.UserRank)
}

func TestStatsUserStats(t *testing.T) {
	s := newServices(t, newTestStore(t))
	user := createUser(t, s.store, "alice")
	a := createHabit(t, s, user.ID, CreateHabitInput{Title: "A", Points: ptr(10)})
	createHabit(t, s, user.ID, CreateHabitInput{Title: "B"})
	ctx := context.Background()

	_, err := s.habits.Complete(ctx, user.ID, a.ID, "")
	require.NoError(t, err)
	setXP(t, s.store, user.ID, 150, 2)

	stats, err := s.stats.UserStats(ctx, user.ID)
	require.NoError(t, err)

	assert.Equal(t, "alice", stats.User.Username)
	assert.Equal(t, HabitStats{
		TotalHabits:        2,
		ActiveHabits:       1,
		TotalCompletions:   1,
		CurrentTotalStreak: 1,
		LongestTotalStreak: 1,
		CompletionRate:     1.67,
	}, stats.Stats)

	assert.Equal(t, 2, stats.LevelProgress.Level)
	assert.Equal(t, 50, stats.LevelProgress.XPIntoLevel)
	assert.Equal(t, 50, stats.LevelProgress.XPToNextLevel)
	assert.InDelta(t, 50.0, stats.LevelProgress.PercentToLevel, 0.001)
}

func TestStatsLevelProgress_UnknownUser(t *testing.T) {
	s := newServices(t, newTestStore(t))

	_, err := s.stats.LevelProgress(context.Background(), "nobody")

	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
