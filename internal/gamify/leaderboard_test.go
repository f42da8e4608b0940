package gamify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// completionsEveryDay returns n completions on consecutive days ending at end.
func completionsEveryDay(end time.Time, n int) []time.Time {
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = end.AddDate(0, 0, -i)
	}
	return out
}

func TestRank(t *testing.T) {
	now := day(18)
	competitors := []Competitor{
		{UserID: "c", Completions: completionsEveryDay(now, 7)},
		{UserID: "d", Completions: completionsEveryDay(now, 3)},
		{UserID: "a", Completions: completionsEveryDay(now, 10)},
		{UserID: "b", Completions: completionsEveryDay(now, 7)},
	}

	got := Rank(competitors, now)
	require.Len(t, got, 4)

	assert.Equal(t, "a", got[0].UserID)
	assert.Equal(t, 1, got[0].Rank)
	// Tied competitors keep input order.
	assert.Equal(t, "c", got[1].UserID)
	assert.Equal(t, "b", got[2].UserID)
	assert.Equal(t, "d", got[3].UserID)

	for i, s := range got {
		assert.Equal(t, i+1, s.Rank)
	}
	assert.Equal(t, 2, RankOf(got, "c"))
	assert.Equal(t, 0, RankOf(got, "nobody"))
}

func TestRank_RecentAndStreak(t *testing.T) {
	now := day(18)
	completions := append(completionsEveryDay(now, 3), now.AddDate(0, 0, -45))

	got := Rank([]Competitor{{UserID: "a", Completions: completions}}, now)
	require.Len(t, got, 1)

	assert.Equal(t, 4, got[0].TotalCompletions)
	assert.Equal(t, 3, got[0].RecentCompletions)
	// Three daily completions have two one-day gaps before the 42-day gap.
	assert.Equal(t, 2, got[0].CurrentStreak)
}

func TestRank_Empty(t *testing.T) {
	assert.Empty(t, Rank(nil, day(18)))
}

func TestWinner(t *testing.T) {
	now := day(18)

	t.Run("strict maximum wins", func(t *testing.T) {
		id, ok := Winner([]Competitor{
			{UserID: "a", Completions: completionsEveryDay(now, 5)},
			{UserID: "b", Completions: completionsEveryDay(now, 3)},
		})
		assert.True(t, ok)
		assert.Equal(t, "a", id)
	})

	t.Run("tie for the lead has no winner", func(t *testing.T) {
		_, ok := Winner([]Competitor{
			{UserID: "a", Completions: completionsEveryDay(now, 5)},
			{UserID: "b", Completions: completionsEveryDay(now, 5)},
			{UserID: "c", Completions: completionsEveryDay(now, 1)},
		})
		assert.False(t, ok)
	})

	t.Run("tie below the lead does not matter", func(t *testing.T) {
		id, ok := Winner([]Competitor{
			{UserID: "a", Completions: completionsEveryDay(now, 2)},
			{UserID: "b", Completions: completionsEveryDay(now, 2)},
			{UserID: "c", Completions: completionsEveryDay(now, 6)},
		})
		assert.True(t, ok)
		assert.Equal(t, "c", id)
	})

	t.Run("nobody completed has no winner", func(t *testing.T) {
		_, ok := Winner([]Competitor{{UserID: "a"}, {UserID: "b"}})
		assert.False(t, ok)
	})

	t.Run("one completion against none leads", func(t *testing.T) {
		id, ok := Winner([]Competitor{
			{UserID: "a"},
			{UserID: "b", Completions: completionsEveryDay(now, 1)},
		})
		assert.True(t, ok)
		assert.Equal(t, "b", id)
	})

	t.Run("single competitor has no winner", func(t *testing.T) {
		_, ok := Winner([]Competitor{{UserID: "a", Completions: completionsEveryDay(now, 9)}})
		assert.False(t, ok)
	})
}
