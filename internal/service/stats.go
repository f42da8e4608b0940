package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// CompletionRateDays is the window of the completion rate in HabitStats.
const CompletionRateDays = 30

// StatsService builds read-only summaries across users.
type StatsService struct {
	store  repository.Store
	now    Clock
	logger *slog.Logger
}

func NewStatsService(store repository.Store, now Clock, logger *slog.Logger) *StatsService {
	return &StatsService{
		store:  store,
		now:    now,
		logger: logger,
	}
}

type HabitStats struct {
	TotalHabits        int     `json:"totalHabits"`
	ActiveHabits       int     `json:"activeHabits"`
	TotalCompletions   int     `json:"totalCompletions"`
	CurrentTotalStreak int     `json:"currentTotalStreak"`
	LongestTotalStreak int     `json:"longestTotalStreak"`
	CompletionRate     float64 `json:"completionRate"`
}

type LeaderboardUser struct {
	model.PublicUser
	HabitStats
	Rank          int  `json:"rank"`
	IsCurrentUser bool `json:"isCurrentUser"`
}

type FriendsLeaderboard struct {
	Leaderboard  []LeaderboardUser `json:"leaderboard"`
	TotalFriends int               `json:"totalFriends"`
	UserRank     int               `json:"userRank"`
}

type UserStats struct {
	User          model.PublicUser     `json:"user"`
	Stats         HabitStats           `json:"stats"`
	LevelProgress gamify.LevelProgress `json:"levelProgress"`
}

// FriendsLeaderboard ranks userID and their accepted friends by XP. Ties
// keep the order the store returns, and rank is the 1-based position.
func (s *StatsService) FriendsLeaderboard(ctx context.Context, userID string) (*FriendsLeaderboard, error) {
	friendships, err := s.store.Friendships().ListForUser(ctx, userID, model.FriendshipAccepted)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	ids := []string{userID}
	for i := range friendships {
		ids = append(ids, friendships[i].Other(userID))
	}

	users, err := s.store.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}

	board := &FriendsLeaderboard{
		Leaderboard:  make([]LeaderboardUser, 0, len(users)),
		TotalFriends: len(friendships),
	}
	for i := range users {
		stats, err := s.habitStats(ctx, users[i].ID)
		if err != nil {
			return nil, err
		}
		entry := LeaderboardUser{
			PublicUser:    users[i].Public(),
			HabitStats:    *stats,
			Rank:          i + 1,
			IsCurrentUser: users[i].ID == userID,
		}
		if entry.IsCurrentUser {
			board.UserRank = entry.Rank
		}
		board.Leaderboard = append(board.Leaderboard, entry)
	}
	return board, nil
}

// UserStats returns userID's profile, habit statistics and level progress.
func (s *StatsService) UserStats(ctx context.Context, userID string) (*UserStats, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.habitStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserStats{
		User:          user.Public(),
		Stats:         *stats,
		LevelProgress: gamify.ProgressFor(user.XPPoints),
	}, nil
}

// LevelProgress reports how far userID is through their current level.
func (s *StatsService) LevelProgress(ctx context.Context, userID string) (*gamify.LevelProgress, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	p := gamify.ProgressFor(user.XPPoints)
	return &p, nil
}

func (s *StatsService) habitStats(ctx context.Context, userID string) (*HabitStats, error) {
	habits, err := s.store.Habits().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}

	now := s.now()
	stats := &HabitStats{TotalHabits: len(habits)}
	for i := range habits {
		if gamify.IsActive(habits[i].RecurrenceMask, habits[i].LastCompletedAt, now) {
			stats.ActiveHabits++
		}
		stats.CurrentTotalStreak += habits[i].Streak
		stats.LongestTotalStreak += habits[i].LongestStreak
	}

	total, err := s.store.Completions().Count(ctx, repository.CompletionFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("counting completions: %w", err)
	}
	stats.TotalCompletions = total

	recent, err := s.store.Completions().Count(ctx, repository.CompletionFilter{
		UserID:  userID,
		FromDay: model.DayKey(now.AddDate(0, 0, -(CompletionRateDays - 1))),
		ToDay:   model.DayKey(now),
	})
	if err != nil {
		return nil, fmt.Errorf("counting recent completions: %w", err)
	}
	if len(habits) > 0 {
		stats.CompletionRate = roundTo2(float64(recent) * 100 / float64(len(habits)*CompletionRateDays))
	}
	return stats, nil
}
