package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/catalog"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
)

// BadgeService evaluates badge rules against a user's stored state and
// records the awards.
type BadgeService struct {
	store  repository.Store
	now    Clock
	logger *slog.Logger
}

func NewBadgeService(store repository.Store, now Clock, logger *slog.Logger) *BadgeService {
	return &BadgeService{
		store:  store,
		now:    now,
		logger: logger,
	}
}

// Award is what one evaluation granted.
type Award struct {
	Badges    []model.Badge `json:"badges"`
	XPGained  int           `json:"xpGained"`
	XP        int           `json:"xpPoints"`
	Level     int           `json:"level"`
	LeveledUp bool          `json:"leveledUp"`
}

// SeedResult counts catalog entries that were inserted versus already present.
type SeedResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
}

func (s *BadgeService) List(ctx context.Context) ([]model.Badge, error) {
	badges, err := s.store.Badges().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	return badges, nil
}

// Earned returns the badges userID holds, newest first.
func (s *BadgeService) Earned(ctx context.Context, userID string) ([]model.UserBadge, error) {
	earned, err := s.store.Badges().ListEarned(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing earned badges: %w", err)
	}
	return earned, nil
}

// Progress reports how close userID is to each badge not yet earned.
func (s *BadgeService) Progress(ctx context.Context, userID string) ([]gamify.BadgeProgress, error) {
	badges, err := s.store.Badges().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing badges: %w", err)
	}
	snap, _, err := buildSnapshot(ctx, s.store, userID, s.now())
	if err != nil {
		return nil, err
	}
	return gamify.ProgressReport(snap, badges), nil
}

// Check evaluates every unearned badge for userID under each trigger in
// turn, awarding the ones that qualify and crediting their points through
// the reward ledger. Awards and XP are committed in one transaction.
//
// When badge points push the user up a level, a level_up pass runs after
// the current trigger, and again for every further level-up, until no new
// badge qualifies.
func (s *BadgeService) Check(ctx context.Context, userID string, triggers ...gamify.Trigger) (*Award, error) {
	award := &Award{Badges: []model.Badge{}}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		// Lock first so the snapshot below reads XP no other credit can change.
		if _, err := tx.Users().GetByIDForUpdate(ctx, userID); err != nil {
			return err
		}

		badges, err := tx.Badges().List(ctx)
		if err != nil {
			return fmt.Errorf("listing badges: %w", err)
		}

		now := s.now()
		snap, user, err := buildSnapshot(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		award.XP, award.Level = user.XPPoints, user.Level

		queue := append([]gamify.Trigger(nil), triggers...)
		for len(queue) > 0 {
			trigger := queue[0]
			queue = queue[1:]

			leveled := false
			for _, b := range gamify.Eligible(snap, badges, trigger) {
				if _, err := tx.Badges().Award(ctx, userID, b.ID, now); err != nil {
					if errors.Is(err, apperror.ErrConflict) {
						snap.Earned[b.ID] = true
						continue
					}
					return fmt.Errorf("awarding badge %s: %w", b.Name, err)
				}

				res := gamify.ApplyXP(award.XP, award.Level, b.Points)
				if err := tx.Users().UpdateProgress(ctx, userID, res.XP, res.Level); err != nil {
					return fmt.Errorf("crediting badge xp: %w", err)
				}

				snap.Earned[b.ID] = true
				snap.Level = res.Level
				award.Badges = append(award.Badges, b)
				award.XPGained += res.Gained
				award.XP, award.Level = res.XP, res.Level
				if res.LeveledUp {
					award.LeveledUp = true
					leveled = true
				}
			}
			if leveled {
				queue = append(queue, gamify.TriggerLevelUp)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, b := range award.Badges {
		s.logger.Info("badge awarded",
			slog.String("userID", userID),
			slog.String("badge", b.Name),
			slog.Int("points", b.Points),
		)
	}
	return award, nil
}

// Evaluate is Check as a best-effort post-action step: a failure is logged
// and returned as suppressed Rewards instead of an error.
func (s *BadgeService) Evaluate(ctx context.Context, userID string, triggers ...gamify.Trigger) Rewards {
	award, err := s.Check(ctx, userID, triggers...)
	if err != nil {
		s.logger.Warn("badge evaluation suppressed",
			slog.String("userID", userID),
			slog.Any("triggers", triggers),
			slog.String("error", err.Error()),
		)
		return Rewards{Status: RewardsSuppressed, Badges: []model.Badge{}, Err: err}
	}
	return Rewards{Status: RewardsApplied, Badges: award.Badges, XPGained: award.XPGained}
}

// Seed inserts the embedded default badges that are not stored yet.
func (s *BadgeService) Seed(ctx context.Context) (SeedResult, error) {
	defaults, err := catalog.Badges()
	if err != nil {
		return SeedResult{}, fmt.Errorf("loading badge catalog: %w", err)
	}

	var res SeedResult
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		for i := range defaults {
			created, err := tx.Badges().Upsert(ctx, &defaults[i])
			if err != nil {
				return fmt.Errorf("seeding badge %s: %w", defaults[i].Name, err)
			}
			if created {
				res.Created++
			} else {
				res.Existing++
			}
		}
		return nil
	})
	if err != nil {
		return SeedResult{}, err
	}

	s.logger.Info("badges seeded",
		slog.Int("created", res.Created),
		slog.Int("existing", res.Existing),
	)
	return res, nil
}

// buildSnapshot loads everything the badge rules read about userID through st.
func buildSnapshot(ctx context.Context, st repository.Store, userID string, now time.Time) (gamify.Snapshot, *model.User, error) {
	user, err := st.Users().GetByID(ctx, userID)
	if err != nil {
		return gamify.Snapshot{}, nil, err
	}

	habits, err := st.Habits().ListByUser(ctx, userID)
	if err != nil {
		return gamify.Snapshot{}, nil, fmt.Errorf("listing habits: %w", err)
	}
	states := make([]gamify.HabitState, len(habits))
	for i, h := range habits {
		states[i] = gamify.HabitState{Streak: h.Streak, Category: h.Category}
	}

	completions, err := st.Completions().List(ctx, repository.CompletionFilter{UserID: userID})
	if err != nil {
		return gamify.Snapshot{}, nil, fmt.Errorf("listing completions: %w", err)
	}
	times := make([]time.Time, len(completions))
	for i, c := range completions {
		times[i] = c.CompletedAt
	}

	earned, err := st.Badges().ListEarned(ctx, userID)
	if err != nil {
		return gamify.Snapshot{}, nil, fmt.Errorf("listing earned badges: %w", err)
	}
	held := make(map[string]bool, len(earned))
	for _, ub := range earned {
		held[ub.BadgeID] = true
	}

	friends, err := st.Friendships().CountAccepted(ctx, userID)
	if err != nil {
		return gamify.Snapshot{}, nil, fmt.Errorf("counting friends: %w", err)
	}

	record, err := competitiveRecord(ctx, st, userID)
	if err != nil {
		return gamify.Snapshot{}, nil, err
	}

	return gamify.Snapshot{
		Level:       user.Level,
		Habits:      states,
		Completions: times,
		Earned:      held,
		FriendCount: friends,
		Wins:        record.TotalWins,
		Now:         now,
	}, user, nil
}
