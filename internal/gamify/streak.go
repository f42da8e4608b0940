package gamify

import (
	"fmt"
	"time"
)

// StreakMode chooses what "the previous day" means when deciding whether a
// completion continues a streak.
type StreakMode string

const (
	// StreakCalendar continues a streak only from the previous calendar day,
	// whatever the habit's schedule.
	StreakCalendar StreakMode = "calendar"
	// StreakCadence continues a streak from the habit's previous scheduled day,
	// so a Monday-only habit keeps its streak week over week.
	StreakCadence StreakMode = "cadence"
)

func ParseStreakMode(s string) (StreakMode, error) {
	switch StreakMode(s) {
	case "", StreakCalendar:
		return StreakCalendar, nil
	case StreakCadence:
		return StreakCadence, nil
	}
	return "", fmt.Errorf("gamify: unknown streak mode %q", s)
}

type StreakResult struct {
	Streak        int `json:"streak"`
	LongestStreak int `json:"longestStreak"`
}

// NextStreak computes a habit's streak after a completion recorded at now,
// using calendar-day adjacency. The caller must already have rejected a
// second completion on the same day.
func NextStreak(previous, longest int, lastCompletedAt *time.Time, now time.Time) StreakResult {
	return advance(previous, longest, lastCompletedAt, now, StartOfDay(now).AddDate(0, 0, -1))
}

// StreakCalculator applies NextStreak under a configured StreakMode.
type StreakCalculator struct {
	Mode StreakMode
}

func (c StreakCalculator) Next(mask, previous, longest int, lastCompletedAt *time.Time, now time.Time) StreakResult {
	if c.Mode == StreakCadence {
		if prev, ok := PreviousScheduledDay(mask, now); ok {
			return advance(previous, longest, lastCompletedAt, now, prev)
		}
	}
	return NextStreak(previous, longest, lastCompletedAt, now)
}

func advance(previous, longest int, lastCompletedAt *time.Time, now, expectedPrev time.Time) StreakResult {
	streak := 1
	if lastCompletedAt != nil {
		switch {
		case SameDay(*lastCompletedAt, expectedPrev):
			streak = previous + 1
		case SameDay(*lastCompletedAt, now):
			streak = previous
		}
	}
	if streak < 0 {
		streak = 0
	}
	return StreakResult{Streak: streak, LongestStreak: max(longest, streak)}
}
