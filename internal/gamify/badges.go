package gamify

import (
	"fmt"
	"strings"
	"time"

	"github.com/sakif/habitquest/internal/model"
)

// Trigger names the event that prompted a badge evaluation. Some rules only
// fire for particular triggers.
type Trigger string

const (
	TriggerHabitCompletion      Trigger = "habit_completion"
	TriggerLevelUp              Trigger = "level_up"
	TriggerHabitCreated         Trigger = "habit_created"
	TriggerFriendAdded          Trigger = "friend_added"
	TriggerCompetitiveCreated   Trigger = "competitive_created"
	TriggerCompetitiveJoined    Trigger = "competitive_joined"
	TriggerCompetitiveCompleted Trigger = "competitive_completed"
	TriggerChallengeWon         Trigger = "challenge_won"
)

var triggers = map[Trigger]bool{
	TriggerHabitCompletion:      true,
	TriggerLevelUp:              true,
	TriggerHabitCreated:         true,
	TriggerFriendAdded:          true,
	TriggerCompetitiveCreated:   true,
	TriggerCompetitiveJoined:    true,
	TriggerCompetitiveCompleted: true,
	TriggerChallengeWon:         true,
}

func ParseTrigger(s string) (Trigger, error) {
	t := Trigger(s)
	if !triggers[t] {
		return "", fmt.Errorf("gamify: unknown trigger %q", s)
	}
	return t, nil
}

// HabitState is the part of a habit badge rules look at.
type HabitState struct {
	Streak   int
	Category string
}

// Snapshot aggregates everything badge rules read about one user.
type Snapshot struct {
	Level       int
	Habits      []HabitState
	Completions []time.Time     // every completion by the user
	Earned      map[string]bool // badge ids already awarded
	FriendCount int             // accepted friendships
	Wins        int             // competitive habits won outright
	Now         time.Time
}

func (s Snapshot) MaxStreak() int {
	best := 0
	for _, h := range s.Habits {
		best = max(best, h.Streak)
	}
	return best
}

// CategoryCount counts habits tagged with category, ignoring case.
func (s Snapshot) CategoryCount(category string) int {
	n := 0
	for _, h := range s.Habits {
		if h.Category != "" && strings.EqualFold(h.Category, category) {
			n++
		}
	}
	return n
}

// DistinctDaysWithin counts the calendar days with at least one completion
// in the trailing window of the given number of days.
func (s Snapshot) DistinctDaysWithin(days int) int {
	cutoff := s.Now.Add(-time.Duration(days) * 24 * time.Hour)
	seen := make(map[string]struct{})
	for _, c := range s.Completions {
		if c.Before(cutoff) || c.After(s.Now) {
			continue
		}
		seen[model.DayKey(c.In(s.Now.Location()))] = struct{}{}
	}
	return len(seen)
}

// Qualifies runs the rule for b's type against s. It does not look at
// s.Earned; Eligible applies that filter.
func Qualifies(s Snapshot, b model.Badge, trigger Trigger) bool {
	switch c := b.Criteria.(type) {
	case *model.StreakCriteria:
		return s.MaxStreak() >= c.TargetStreak
	case *model.LevelCriteria:
		return s.Level >= c.TargetLevel
	case *model.HabitCountCriteria:
		return len(s.Habits) >= c.TargetCount
	case *model.CategoryCriteria:
		return s.CategoryCount(c.Category) >= c.TargetCount
	case *model.SocialCriteria:
		return c.Action == model.SocialAddFriend &&
			trigger == TriggerFriendAdded &&
			s.FriendCount >= c.TargetCount
	case *model.ConsistencyCriteria:
		return s.DistinctDaysWithin(c.WithinDays) >= c.TargetDays
	case *model.CompetitiveCriteria:
		switch c.Action {
		case model.CompetitiveFirst:
			return trigger == TriggerCompetitiveCreated || trigger == TriggerCompetitiveJoined
		case model.CompetitiveFirstWin:
			return trigger == TriggerChallengeWon
		case model.CompetitiveMultipleWins:
			return s.Wins >= c.TargetWins
		}
	}
	return false
}

// Eligible returns the badges in catalog that s has not earned yet and now
// qualifies for, in catalog order.
func Eligible(s Snapshot, catalog []model.Badge, trigger Trigger) []model.Badge {
	var out []model.Badge
	for _, b := range catalog {
		if s.Earned[b.ID] {
			continue
		}
		if Qualifies(s, b, trigger) {
			out = append(out, b)
		}
	}
	return out
}

// BadgeProgress is how close a user is to an unearned badge.
type BadgeProgress struct {
	BadgeID    string          `json:"badgeId"`
	Name       string          `json:"name"`
	Type       model.BadgeType `json:"type"`
	Current    int             `json:"currentProgress"`
	Target     int             `json:"targetProgress"`
	Percentage float64         `json:"percentage"`
}

// Progress reports (current, target) counters for b. ok is false for
// criteria with no counter: first_competitive and first_win are one-off
// events.
func Progress(s Snapshot, b model.Badge) (BadgeProgress, bool) {
	var current, target int
	switch c := b.Criteria.(type) {
	case *model.StreakCriteria:
		current, target = s.MaxStreak(), c.TargetStreak
	case *model.LevelCriteria:
		current, target = s.Level, c.TargetLevel
	case *model.HabitCountCriteria:
		current, target = len(s.Habits), c.TargetCount
	case *model.CategoryCriteria:
		current, target = s.CategoryCount(c.Category), c.TargetCount
	case *model.SocialCriteria:
		current, target = s.FriendCount, c.TargetCount
	case *model.ConsistencyCriteria:
		current, target = s.DistinctDaysWithin(c.WithinDays), c.TargetDays
	case *model.CompetitiveCriteria:
		if c.Action != model.CompetitiveMultipleWins {
			return BadgeProgress{}, false
		}
		current, target = s.Wins, c.TargetWins
	default:
		return BadgeProgress{}, false
	}

	pct := 100.0
	if target > 0 {
		pct = min(100, float64(current)*100/float64(target))
	}
	return BadgeProgress{
		BadgeID:    b.ID,
		Name:       b.Name,
		Type:       b.Type,
		Current:    current,
		Target:     target,
		Percentage: pct,
	}, true
}

// ProgressReport returns progress for every unearned badge that has a
// progress formula.
func ProgressReport(s Snapshot, catalog []model.Badge) []BadgeProgress {
	out := make([]BadgeProgress, 0, len(catalog))
	for _, b := range catalog {
		if s.Earned[b.ID] {
			continue
		}
		if p, ok := Progress(s, b); ok {
			out = append(out, p)
		}
	}
	return out
}
