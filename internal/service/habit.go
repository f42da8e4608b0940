package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/habitquest/internal/apperror"
	"github.com/sakif/habitquest/internal/gamify"
	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
	"github.com/sakif/habitquest/internal/scheduler"
)

// Validation limits for habits.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 1000
	MaxNotesLength       = 500
	MinDifficulty        = 1
	MaxDifficulty        = 5
	DefaultHabitPoints   = 10
	MaxStatsDays         = 365
	DefaultStatsDays     = 30
)

// HabitService owns the habit lifecycle: creation, completion with streak
// and XP updates, and reactivation once the next scheduled day begins.
type HabitService struct {
	store         repository.Store
	badges        *BadgeService
	scheduler     Scheduler
	streaks       gamify.StreakCalculator
	defaultPoints int
	now           Clock
	logger        *slog.Logger
}

// HabitOptions carries the configurable parts of habit behaviour.
type HabitOptions struct {
	StreakMode    gamify.StreakMode
	DefaultPoints int
}

// NewHabitService wires a HabitService. sched may be nil, in which case no
// reactivation jobs are queued and isActive is only recomputed on read.
func NewHabitService(
	store repository.Store,
	badges *BadgeService,
	sched Scheduler,
	opts HabitOptions,
	now Clock,
	logger *slog.Logger,
) *HabitService {
	if opts.DefaultPoints < 1 {
		opts.DefaultPoints = DefaultHabitPoints
	}
	return &HabitService{
		store:         store,
		badges:        badges,
		scheduler:     sched,
		streaks:       gamify.StreakCalculator{Mode: opts.StreakMode},
		defaultPoints: opts.DefaultPoints,
		now:           now,
		logger:        logger,
	}
}

type CreateHabitInput struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	RecurrenceMask *int   `json:"recurrenceMask"`
	Points         *int   `json:"points"`
	Difficulty     *int   `json:"difficulty"`
	Category       string `json:"category"`
}

// UpdateHabitInput is a partial update: nil fields are left unchanged.
type UpdateHabitInput struct {
	Title          *string `json:"title"`
	Description    *string `json:"description"`
	RecurrenceMask *int    `json:"recurrenceMask"`
	Points         *int    `json:"points"`
	Difficulty     *int    `json:"difficulty"`
	Category       *string `json:"category"`
}

type CompletionResult struct {
	Habit      *model.Habit           `json:"habit"`
	Completion *model.HabitCompletion `json:"completion"`
	XP         gamify.XPResult        `json:"xp"`
	Rewards    Rewards                `json:"rewards"`
}

type StreakInfo struct {
	HabitID         string     `json:"habitId"`
	Title           string     `json:"title"`
	Streak          int        `json:"streak"`
	LongestStreak   int        `json:"longestStreak"`
	LastCompletedAt *time.Time `json:"lastCompletedAt"`
	IsActive        bool       `json:"isActive"`
}

type StreakTotals struct {
	TotalStreak   int          `json:"totalStreak"`
	LongestStreak int          `json:"longestStreak"`
	Habits        []StreakInfo `json:"habits"`
}

type CompletionStats struct {
	Days                 int     `json:"days"`
	TotalCompletions     int     `json:"totalCompletions"`
	ActiveDays           int     `json:"activeDays"`
	AvgCompletionsPerDay float64 `json:"avgCompletionsPerDay"`
}

type CalendarDay struct {
	Date        string `json:"date"`
	Completions int    `json:"completions"`
	Points      int    `json:"points"`
}

type Calendar struct {
	Year  int           `json:"year"`
	Month int           `json:"month"`
	Days  []CalendarDay `json:"days"`
}

// =========================================================================
// CRUD
// =========================================================================

func (s *HabitService) Create(ctx context.Context, userID string, in CreateHabitInput) (*model.Habit, Rewards, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, Rewards{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, Rewards{}, err
	}

	habit := &model.Habit{
		UserID:         userID,
		Title:          title,
		Description:    strings.TrimSpace(in.Description),
		RecurrenceMask: gamify.FullWeekMask,
		Points:         s.defaultPoints,
	}
	if in.RecurrenceMask != nil {
		if err := validateMask(*in.RecurrenceMask); err != nil {
			return nil, Rewards{}, err
		}
		habit.RecurrenceMask = *in.RecurrenceMask
	}
	if in.Points != nil {
		if *in.Points < 1 {
			return nil, Rewards{}, apperror.ValidationFailed("points", "points must be at least 1")
		}
		habit.Points = *in.Points
	}
	if in.Difficulty != nil {
		if err := validateDifficulty(*in.Difficulty); err != nil {
			return nil, Rewards{}, err
		}
		habit.Difficulty = *in.Difficulty
	}
	category, err := s.resolveCategory(ctx, in.Category)
	if err != nil {
		return nil, Rewards{}, err
	}
	habit.Category = category
	habit.IsActive = gamify.IsActive(habit.RecurrenceMask, nil, s.now())

	if err := s.store.Habits().Create(ctx, habit); err != nil {
		s.logger.Error("failed to create habit",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, Rewards{}, fmt.Errorf("creating habit: %w", err)
	}

	s.logger.Info("habit created",
		slog.String("id", habit.ID),
		slog.String("userID", userID),
		slog.Int("mask", habit.RecurrenceMask),
	)

	rewards := s.badges.Evaluate(ctx, userID, gamify.TriggerHabitCreated)
	return habit, rewards, nil
}

// List returns userID's habits, oldest first, with isActive recomputed.
func (s *HabitService) List(ctx context.Context, userID string) ([]model.Habit, error) {
	habits, err := s.store.Habits().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing habits: %w", err)
	}
	now := s.now()
	for i := range habits {
		refreshActive(&habits[i], now)
	}
	return habits, nil
}

// Get returns the habit if userID owns it. Someone else's habit is
// reported as not found.
func (s *HabitService) Get(ctx context.Context, userID, habitID string) (*model.Habit, error) {
	h, err := ownedHabit(ctx, s.store, userID, habitID)
	if err != nil {
		return nil, err
	}
	refreshActive(h, s.now())
	return h, nil
}

func (s *HabitService) Update(ctx context.Context, userID, habitID string, in UpdateHabitInput) (*model.Habit, error) {
	h, err := ownedHabit(ctx, s.store, userID, habitID)
	if err != nil {
		return nil, err
	}

	if in.Title != nil {
		title, err := validateTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		h.Title = title
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
		h.Description = strings.TrimSpace(*in.Description)
	}
	if in.RecurrenceMask != nil {
		if err := validateMask(*in.RecurrenceMask); err != nil {
			return nil, err
		}
		h.RecurrenceMask = *in.RecurrenceMask
	}
	if in.Points != nil {
		if *in.Points < 1 {
			return nil, apperror.ValidationFailed("points", "points must be at least 1")
		}
		h.Points = *in.Points
	}
	if in.Difficulty != nil {
		if *in.Difficulty != 0 {
			if err := validateDifficulty(*in.Difficulty); err != nil {
				return nil, err
			}
		}
		h.Difficulty = *in.Difficulty
	}
	if in.Category != nil {
		category, err := s.resolveCategory(ctx, *in.Category)
		if err != nil {
			return nil, err
		}
		h.Category = category
	}
	refreshActive(h, s.now())

	if err := s.store.Habits().Update(ctx, h); err != nil {
		s.logger.Error("failed to update habit",
			slog.String("id", habitID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating habit: %w", err)
	}
	s.scheduleReactivation(h)

	s.logger.Info("habit updated", slog.String("id", h.ID))
	return h, nil
}

// Delete removes the habit with its completions and participants and
// cancels any pending reactivation.
func (s *HabitService) Delete(ctx context.Context, userID, habitID string) error {
	if _, err := ownedHabit(ctx, s.store, userID, habitID); err != nil {
		return err
	}
	if err := s.store.Habits().Delete(ctx, habitID); err != nil {
		return err
	}
	if s.scheduler != nil {
		s.scheduler.Cancel(scheduler.ReactivateKey(habitID))
	}

	s.logger.Info("habit deleted", slog.String("id", habitID))
	return nil
}

// =========================================================================
// COMPLETION
// =========================================================================

// Complete records today's completion of habitID by its owner.
//
// The duplicate check, the completion insert, the streak update and the XP
// credit commit together; a second completion on the same calendar day fails
// with a conflict and changes nothing. Badge evaluation runs afterwards as a
// best-effort step whose failure is reported in Rewards.
func (s *HabitService) Complete(ctx context.Context, userID, habitID, notes string) (*CompletionResult, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > MaxNotesLength {
		return nil, apperror.ValidationFailed("notes",
			fmt.Sprintf("notes must be %d characters or less", MaxNotesLength))
	}

	now := s.now()
	result := &CompletionResult{}

	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		h, err := ownedHabit(ctx, tx, userID, habitID)
		if err != nil {
			return err
		}
		if h.IsCompetitive {
			return apperror.ValidationFailed("habitId", "competitive habits are completed through the competitive endpoints")
		}

		day := model.DayKey(now)
		done, err := tx.Completions().ExistsOn(ctx, h.ID, userID, day)
		if err != nil {
			return fmt.Errorf("checking completion: %w", err)
		}
		if done {
			return apperror.ConflictMsg("habit already completed today")
		}
		if !gamify.ScheduledOn(h.RecurrenceMask, now.Weekday()) {
			return apperror.ValidationFailed("habitId", "habit is not scheduled today")
		}

		streak := s.streaks.Next(h.RecurrenceMask, h.Streak, h.LongestStreak, h.LastCompletedAt, now)

		c := &model.HabitCompletion{
			HabitID:     h.ID,
			UserID:      userID,
			CompletedAt: now,
			CompletedOn: day,
			Points:      h.Points,
			Notes:       notes,
		}
		if err := tx.Completions().Create(ctx, c); err != nil {
			return err
		}

		h.Streak = streak.Streak
		h.LongestStreak = streak.LongestStreak
		h.LastCompletedAt = &now
		h.IsActive = false
		if err := tx.Habits().Update(ctx, h); err != nil {
			return fmt.Errorf("updating habit: %w", err)
		}

		xp, err := creditXP(ctx, tx, userID, h.Points)
		if err != nil {
			return err
		}

		result.Habit = h
		result.Completion = c
		result.XP = xp
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("failed to complete habit",
				slog.String("id", habitID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("habit completed",
		slog.String("id", habitID),
		slog.String("userID", userID),
		slog.Int("streak", result.Habit.Streak),
		slog.Int("xp", result.XP.XP),
	)

	s.scheduleReactivation(result.Habit)

	triggers := []gamify.Trigger{gamify.TriggerHabitCompletion}
	if result.XP.LeveledUp {
		triggers = append(triggers, gamify.TriggerLevelUp)
	}
	result.Rewards = s.badges.Evaluate(ctx, userID, triggers...)
	return result, nil
}

// Reactivate sets the stored isActive flag from the recurrence rules. It is
// the body of the scheduled reactivation job. If the habit is still
// inactive, the next reactivation is queued.
func (s *HabitService) Reactivate(ctx context.Context, habitID string) (*model.Habit, error) {
	h, err := s.store.Habits().GetByID(ctx, habitID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active := gamify.IsActive(h.RecurrenceMask, h.LastCompletedAt, now)
	if active != h.IsActive {
		if err := s.store.Habits().SetActive(ctx, h.ID, active); err != nil {
			return nil, fmt.Errorf("reactivating habit: %w", err)
		}
		h.IsActive = active
		s.logger.Info("habit reactivated",
			slog.String("id", h.ID),
			slog.Bool("active", active),
		)
	}
	if !active {
		s.scheduleReactivation(h)
	}
	return h, nil
}

func (s *HabitService) scheduleReactivation(h *model.Habit) {
	if s.scheduler == nil || h.IsActive {
		return
	}
	next, ok := gamify.NextActiveAt(h.RecurrenceMask, h.LastCompletedAt, s.now())
	if !ok {
		return
	}
	id := h.ID
	s.scheduler.Schedule(scheduler.ReactivateKey(id), next, func(ctx context.Context) error {
		_, err := s.Reactivate(ctx, id)
		return err
	})
}

// =========================================================================
// READS
// =========================================================================

func (s *HabitService) Streak(ctx context.Context, userID, habitID string) (*StreakInfo, error) {
	h, err := s.Get(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	info := streakInfo(h)
	return &info, nil
}

// TotalStreaks sums the current streaks of userID's habits and reports the
// best longest streak among them.
func (s *HabitService) TotalStreaks(ctx context.Context, userID string) (*StreakTotals, error) {
	habits, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals := &StreakTotals{Habits: make([]StreakInfo, 0, len(habits))}
	for i := range habits {
		totals.TotalStreak += habits[i].Streak
		totals.LongestStreak = max(totals.LongestStreak, habits[i].LongestStreak)
		totals.Habits = append(totals.Habits, streakInfo(&habits[i]))
	}
	return totals, nil
}

// Completions lists the completions of one habit between start and end
// (inclusive YYYY-MM-DD days, either may be empty), newest first.
func (s *HabitService) Completions(ctx context.Context, userID, habitID, start, end string) ([]model.HabitCompletion, error) {
	if _, err := ownedHabit(ctx, s.store, userID, habitID); err != nil {
		return nil, err
	}
	for field, v := range map[string]string{"startDate": start, "endDate": end} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(model.DayKeyLayout, v); err != nil {
			return nil, apperror.ValidationFailed(field, field+" must be formatted YYYY-MM-DD")
		}
	}
	if start != "" && end != "" && start > end {
		return nil, apperror.ValidationFailed("startDate", "startDate must not be after endDate")
	}

	completions, err := s.store.Completions().List(ctx, repository.CompletionFilter{
		HabitID: habitID,
		UserID:  userID,
		FromDay: start,
		ToDay:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}
	return completions, nil
}

// CompletionStats summarises userID's completions over the trailing window
// of days, today included.
func (s *HabitService) CompletionStats(ctx context.Context, userID string, days int) (*CompletionStats, error) {
	if days == 0 {
		days = DefaultStatsDays
	}
	if days < 1 || days > MaxStatsDays {
		return nil, apperror.ValidationFailed("days",
			fmt.Sprintf("days must be between 1 and %d", MaxStatsDays))
	}

	now := s.now()
	completions, err := s.store.Completions().List(ctx, repository.CompletionFilter{
		UserID:  userID,
		FromDay: model.DayKey(now.AddDate(0, 0, -(days - 1))),
		ToDay:   model.DayKey(now),
	})
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}

	seen := make(map[string]struct{})
	for _, c := range completions {
		seen[c.CompletedOn] = struct{}{}
	}
	return &CompletionStats{
		Days:                 days,
		TotalCompletions:     len(completions),
		ActiveDays:           len(seen),
		AvgCompletionsPerDay: roundTo2(float64(len(completions)) / float64(days)),
	}, nil
}

// Calendar returns one entry per day of the month with userID's completion
// count and points earned that day.
func (s *HabitService) Calendar(ctx context.Context, userID string, year, month int) (*Calendar, error) {
	if year < 1970 || year > 9999 {
		return nil, apperror.ValidationFailed("year", "year is out of range")
	}
	if month < 1 || month > 12 {
		return nil, apperror.ValidationFailed("month", "month must be between 1 and 12")
	}

	first := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	completions, err := s.store.Completions().List(ctx, repository.CompletionFilter{
		UserID:  userID,
		FromDay: model.DayKey(first),
		ToDay:   model.DayKey(last),
	})
	if err != nil {
		return nil, fmt.Errorf("listing completions: %w", err)
	}

	byDay := make(map[string]*CalendarDay)
	cal := &Calendar{Year: year, Month: month, Days: make([]CalendarDay, 0, last.Day())}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		cal.Days = append(cal.Days, CalendarDay{Date: model.DayKey(d)})
	}
	for i := range cal.Days {
		byDay[cal.Days[i].Date] = &cal.Days[i]
	}
	for _, c := range completions {
		if day, ok := byDay[c.CompletedOn]; ok {
			day.Completions++
			day.Points += c.Points
		}
	}
	return cal, nil
}

// =========================================================================
// HELPERS
// =========================================================================

func (s *HabitService) resolveCategory(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	c, err := s.store.Categories().GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return "", apperror.ValidationFailed("category", "unknown category "+name)
		}
		return "", fmt.Errorf("looking up category: %w", err)
	}
	return c.Name, nil
}

// ownedHabit loads habitID through st and hides it from anyone but its owner.
func ownedHabit(ctx context.Context, st repository.Store, userID, habitID string) (*model.Habit, error) {
	habitID = strings.TrimSpace(habitID)
	if habitID == "" {
		return nil, apperror.ValidationFailed("id", "habit ID is required")
	}
	h, err := st.Habits().GetByID(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if h.UserID != userID {
		return nil, apperror.NotFound("habit", habitID)
	}
	return h, nil
}

// creditXP applies delta to userID through the reward ledger and saves it.
// st must be transactional so the row lock lasts until the write commits.
func creditXP(ctx context.Context, st repository.Store, userID string, delta int) (gamify.XPResult, error) {
	user, err := st.Users().GetByIDForUpdate(ctx, userID)
	if err != nil {
		return gamify.XPResult{}, err
	}
	res := gamify.ApplyXP(user.XPPoints, user.Level, delta)
	if err := st.Users().UpdateProgress(ctx, userID, res.XP, res.Level); err != nil {
		return gamify.XPResult{}, fmt.Errorf("crediting xp: %w", err)
	}
	return res, nil
}

func refreshActive(h *model.Habit, now time.Time) {
	h.IsActive = gamify.IsActive(h.RecurrenceMask, h.LastCompletedAt, now)
}

func streakInfo(h *model.Habit) StreakInfo {
	return StreakInfo{
		HabitID:         h.ID,
		Title:           h.Title,
		Streak:          h.Streak,
		LongestStreak:   h.LongestStreak,
		LastCompletedAt: h.LastCompletedAt,
		IsActive:        h.IsActive,
	}
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return "", apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return title, nil
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}

func validateMask(mask int) error {
	if !gamify.ValidMask(mask) {
		return apperror.ValidationFailed("recurrenceMask",
			"recurrenceMask must select at least one weekday (1-127)")
	}
	return nil
}

func validateDifficulty(d int) error {
	if d < MinDifficulty || d > MaxDifficulty {
		return apperror.ValidationFailed("difficulty",
			fmt.Sprintf("difficulty must be between %d and %d", MinDifficulty, MaxDifficulty))
	}
	return nil
}

// isDomainError reports whether err is one of the expected apperror kinds
// rather than an infrastructure failure.
func isDomainError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr)
}

func roundTo2(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}
