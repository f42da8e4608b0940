package gamify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFor(t *testing.T) {
	cases := map[int]int{0: 1, 99: 1, 100: 2, 105: 2, 250: 3, -5: 1}
	for xp, want := range cases {
		assert.Equal(t, want, LevelFor(xp), "LevelFor(%d)", xp)
	}
}

func TestApplyXP_LevelUp(t *testing.T) {
	got := ApplyXP(95, 1, 10)

	assert.Equal(t, 105, got.XP)
	assert.Equal(t, 2, got.Level)
	assert.Equal(t, 10, got.Gained)
	assert.True(t, got.LeveledUp)
}

func TestApplyXP_NoLevelUp(t *testing.T) {
	got := ApplyXP(10, 1, 50)

	assert.Equal(t, 60, got.XP)
	assert.Equal(t, 1, got.Level)
	assert.False(t, got.LeveledUp)
}

func TestApplyXP_NegativeDeltaIgnored(t *testing.T) {
	got := ApplyXP(150, 2, -40)

	assert.Equal(t, 150, got.XP)
	assert.Equal(t, 2, got.Level)
	assert.Zero(t, got.Gained)
}

// leveledUp is true exactly when the hundreds digit of XP increases.
func TestApplyXP_Monotonic(t *testing.T) {
	for xp := 0; xp < 400; xp += 7 {
		for _, delta := range []int{0, 1, 5, 50, 100, 250} {
			level := LevelFor(xp)
			got := ApplyXP(xp, level, delta)

			if got.XP < xp || got.Level < level {
				t.Fatalf("ApplyXP(%d, %d, %d) decreased: %+v", xp, level, delta, got)
			}
			wantUp := (xp+delta)/XPPerLevel > xp/XPPerLevel
			if got.LeveledUp != wantUp {
				t.Fatalf("ApplyXP(%d, %d, %d).LeveledUp = %v, want %v", xp, level, delta, got.LeveledUp, wantUp)
			}
		}
	}
}

func TestApplyXP_NeverLowersStoredLevel(t *testing.T) {
	got := ApplyXP(40, 5, 10)

	assert.Equal(t, 5, got.Level)
	assert.False(t, got.LeveledUp)
}

func TestProgressFor(t *testing.T) {
	p := ProgressFor(250)

	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 200, p.LevelStartXP)
	assert.Equal(t, 300, p.NextLevelXP)
	assert.Equal(t, 50, p.XPIntoLevel)
	assert.Equal(t, 50, p.XPToNextLevel)
	assert.InDelta(t, 50.0, p.PercentToLevel, 0.001)
}
