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
)

// CompetitiveService runs shared habits: invitations, participant
// completions, leaderboards and winner checks.
type CompetitiveService struct {
	store         repository.Store
	badges        *BadgeService
	defaultPoints int
	now           Clock
	logger        *slog.Logger
}

// NewCompetitiveService wires a CompetitiveService. defaultPoints is what a
// habit created without points awards; below 1 it falls back to
// DefaultHabitPoints.
func NewCompetitiveService(store repository.Store, badges *BadgeService, defaultPoints int, now Clock, logger *slog.Logger) *CompetitiveService {
	if defaultPoints < 1 {
		defaultPoints = DefaultHabitPoints
	}
	return &CompetitiveService{
		store:         store,
		badges:        badges,
		defaultPoints: defaultPoints,
		now:           now,
		logger:        logger,
	}
}

type CreateCompetitiveInput struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	RecurrenceMask  *int   `json:"recurrenceMask"`
	Points          *int   `json:"points"`
	MaxParticipants int    `json:"maxParticipants"`
}

// CompetitiveHabit is a competitive habit as seen by one participant.
type CompetitiveHabit struct {
	model.Habit
	ParticipantCount int  `json:"participantCount"`
	IsOwner          bool `json:"isOwner"`
}

type Invitation struct {
	model.HabitParticipant
	Habit *model.Habit      `json:"habit"`
	Owner *model.PublicUser `json:"owner"`
}

type LeaderboardEntry struct {
	gamify.Standing
	User          *model.PublicUser `json:"user"`
	JoinedAt      *time.Time        `json:"joinedAt"`
	IsCurrentUser bool              `json:"isCurrentUser"`
}

type Leaderboard struct {
	HabitID           string             `json:"habitId"`
	Entries           []LeaderboardEntry `json:"leaderboard"`
	TotalParticipants int                `json:"totalParticipants"`
	UserRank          int                `json:"userRank"`
}

type CompetitiveCompletion struct {
	Completion *model.HabitCompletion `json:"completion"`
	XP         gamify.XPResult        `json:"xp"`
	Rewards    Rewards                `json:"rewards"`
}

type WinnerCheck struct {
	HabitID  string  `json:"habitId"`
	WinnerID string  `json:"winnerId,omitempty"`
	IsWinner bool    `json:"isWinner"`
	Rewards  Rewards `json:"rewards"`
}

type CompetitiveProgress struct {
	TotalCompetitiveHabits int     `json:"totalCompetitiveHabits"`
	TotalWins              int     `json:"totalWins"`
	TotalCompletions       int     `json:"totalCompletions"`
	WinRate                float64 `json:"winRate"`
}

// Create makes a competitive habit owned by ownerID, who joins it as its
// first accepted participant.
func (s *CompetitiveService) Create(ctx context.Context, ownerID string, in CreateCompetitiveInput) (*CompetitiveHabit, Rewards, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, Rewards{}, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, Rewards{}, err
	}
	if in.MaxParticipants < 0 || in.MaxParticipants == 1 {
		return nil, Rewards{}, apperror.ValidationFailed("maxParticipants",
			"maxParticipants must be at least 2, or 0 for no limit")
	}

	now := s.now()
	habit := &model.Habit{
		UserID:          ownerID,
		Title:           title,
		Description:     strings.TrimSpace(in.Description),
		RecurrenceMask:  gamify.FullWeekMask,
		Points:          s.defaultPoints,
		IsCompetitive:   true,
		MaxParticipants: in.MaxParticipants,
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
	habit.IsActive = gamify.IsActive(habit.RecurrenceMask, nil, now)

	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		if err := tx.Habits().Create(ctx, habit); err != nil {
			return fmt.Errorf("creating competitive habit: %w", err)
		}
		return tx.Participants().Create(ctx, &model.HabitParticipant{
			HabitID:  habit.ID,
			UserID:   ownerID,
			Status:   model.ParticipantAccepted,
			JoinedAt: &now,
		})
	})
	if err != nil {
		return nil, Rewards{}, err
	}

	s.logger.Info("competitive habit created",
		slog.String("id", habit.ID),
		slog.String("ownerID", ownerID),
	)

	rewards := s.badges.Evaluate(ctx, ownerID, gamify.TriggerCompetitiveCreated)
	return &CompetitiveHabit{Habit: *habit, ParticipantCount: 1, IsOwner: true}, rewards, nil
}

// Invite asks inviteeID, who must be an accepted friend of the owner, to join
// habitID. A declined or removed participant can be invited again.
func (s *CompetitiveService) Invite(ctx context.Context, ownerID, habitID, inviteeID string) (*model.HabitParticipant, error) {
	inviteeID = strings.TrimSpace(inviteeID)
	if inviteeID == "" {
		return nil, apperror.ValidationFailed("userId", "invitee is required")
	}
	if inviteeID == ownerID {
		return nil, apperror.ValidationFailed("userId", "you cannot invite yourself")
	}

	var invited *model.HabitParticipant
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		h, err := competitiveHabit(ctx, tx, habitID)
		if err != nil {
			return err
		}
		if h.UserID != ownerID {
			return apperror.Forbidden("only the habit owner can invite participants")
		}
		if _, err := tx.Users().GetByID(ctx, inviteeID); err != nil {
			return err
		}

		f, err := tx.Friendships().FindBetween(ctx, ownerID, inviteeID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("looking up friendship: %w", err)
		}
		if f == nil || f.Status != model.FriendshipAccepted {
			return apperror.Forbidden("you can only invite friends to competitive habits")
		}

		if err := checkCapacity(ctx, tx, h); err != nil {
			return err
		}

		existing, err := tx.Participants().Find(ctx, h.ID, inviteeID)
		switch {
		case err == nil:
			switch existing.Status {
			case model.ParticipantPending:
				return apperror.ConflictMsg("user is already invited to this habit")
			case model.ParticipantAccepted:
				return apperror.ConflictMsg("user is already participating in this habit")
			}
			existing.Status = model.ParticipantPending
			existing.JoinedAt = nil
			if err := tx.Participants().Update(ctx, existing); err != nil {
				return fmt.Errorf("re-inviting participant: %w", err)
			}
			invited = existing
			return nil
		case errors.Is(err, apperror.ErrNotFound):
		default:
			return fmt.Errorf("looking up participant: %w", err)
		}

		invited = &model.HabitParticipant{
			HabitID: h.ID,
			UserID:  inviteeID,
			Status:  model.ParticipantPending,
		}
		return tx.Participants().Create(ctx, invited)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant invited",
		slog.String("habitID", habitID),
		slog.String("inviteeID", inviteeID),
	)
	return invited, nil
}

// Accept joins userID to the habit of a pending invitation addressed to them.
func (s *CompetitiveService) Accept(ctx context.Context, userID, participantID string) (*model.HabitParticipant, Rewards, error) {
	var p *model.HabitParticipant
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		p, err = pendingInvitation(ctx, tx, userID, participantID)
		if err != nil {
			return err
		}
		h, err := competitiveHabit(ctx, tx, p.HabitID)
		if err != nil {
			return err
		}
		if err := checkCapacity(ctx, tx, h); err != nil {
			return err
		}

		now := s.now()
		p.Status = model.ParticipantAccepted
		p.JoinedAt = &now
		return tx.Participants().Update(ctx, p)
	})
	if err != nil {
		return nil, Rewards{}, err
	}

	s.logger.Info("invitation accepted",
		slog.String("participantID", p.ID),
		slog.String("habitID", p.HabitID),
	)

	rewards := s.badges.Evaluate(ctx, userID, gamify.TriggerCompetitiveJoined)
	return p, rewards, nil
}

func (s *CompetitiveService) Decline(ctx context.Context, userID, participantID string) (*model.HabitParticipant, error) {
	var p *model.HabitParticipant
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		var err error
		p, err = pendingInvitation(ctx, tx, userID, participantID)
		if err != nil {
			return err
		}
		p.Status = model.ParticipantDeclined
		return tx.Participants().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invitation declined", slog.String("participantID", p.ID))
	return p, nil
}

// RemoveParticipant marks a participant of habitID as removed. Only the
// owner may do this, and the owner cannot remove themselves.
func (s *CompetitiveService) RemoveParticipant(ctx context.Context, ownerID, habitID, participantID string) (*model.HabitParticipant, error) {
	var p *model.HabitParticipant
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		h, err := competitiveHabit(ctx, tx, habitID)
		if err != nil {
			return err
		}
		if h.UserID != ownerID {
			return apperror.Forbidden("only the habit owner can remove participants")
		}
		p, err = tx.Participants().GetByID(ctx, participantID)
		if err != nil {
			return err
		}
		if p.HabitID != h.ID {
			return apperror.NotFound("participant", participantID)
		}
		if p.UserID == ownerID {
			return apperror.ValidationFailed("participantId", "the owner cannot be removed")
		}
		p.Status = model.ParticipantRemoved
		return tx.Participants().Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("participant removed",
		slog.String("habitID", habitID),
		slog.String("participantID", participantID),
	)
	return p, nil
}

// Leaderboard ranks the accepted participants of habitID. Only accepted
// participants may see it.
func (s *CompetitiveService) Leaderboard(ctx context.Context, userID, habitID string) (*Leaderboard, error) {
	if _, err := competitiveHabit(ctx, s.store, habitID); err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.store, habitID, userID); err != nil {
		return nil, err
	}

	competitors, participants, err := loadCompetitors(ctx, s.store, habitID)
	if err != nil {
		return nil, err
	}
	standings := gamify.Rank(competitors, s.now())

	ids := make([]string, len(participants))
	joined := make(map[string]*time.Time, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
		joined[p.UserID] = p.JoinedAt
	}
	users, err := publicUsers(ctx, s.store, ids)
	if err != nil {
		return nil, err
	}

	board := &Leaderboard{
		HabitID:           habitID,
		Entries:           make([]LeaderboardEntry, len(standings)),
		TotalParticipants: len(standings),
		UserRank:          gamify.RankOf(standings, userID),
	}
	for i, st := range standings {
		board.Entries[i] = LeaderboardEntry{
			Standing:      st,
			User:          users[st.UserID],
			JoinedAt:      joined[st.UserID],
			IsCurrentUser: st.UserID == userID,
		}
	}
	return board, nil
}

// Complete records today's completion of a competitive habit by one of its
// accepted participants and credits the habit's points.
func (s *CompetitiveService) Complete(ctx context.Context, userID, habitID, notes string) (*CompetitiveCompletion, error) {
	notes = strings.TrimSpace(notes)
	if len(notes) > MaxNotesLength {
		return nil, apperror.ValidationFailed("notes",
			fmt.Sprintf("notes must be %d characters or less", MaxNotesLength))
	}

	now := s.now()
	result := &CompetitiveCompletion{}
	err := s.store.WithTx(ctx, func(tx repository.Store) error {
		h, err := competitiveHabit(ctx, tx, habitID)
		if err != nil {
			return err
		}
		p, err := tx.Participants().Find(ctx, h.ID, userID)
		if err != nil && !errors.Is(err, apperror.ErrNotFound) {
			return fmt.Errorf("looking up participant: %w", err)
		}
		if p == nil || p.Status != model.ParticipantAccepted {
			return apperror.Forbidden("you are not a participant in this habit")
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

		c := &model.HabitCompletion{
			HabitID:       h.ID,
			UserID:        userID,
			ParticipantID: p.ID,
			CompletedAt:   now,
			CompletedOn:   day,
			Points:        h.Points,
			Notes:         notes,
		}
		if err := tx.Completions().Create(ctx, c); err != nil {
			return err
		}

		xp, err := creditXP(ctx, tx, userID, h.Points)
		if err != nil {
			return err
		}
		result.Completion = c
		result.XP = xp
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("failed to complete competitive habit",
				slog.String("id", habitID),
				slog.String("error", err.Error()),
			)
		}
		return nil, err
	}

	s.logger.Info("competitive habit completed",
		slog.String("id", habitID),
		slog.String("userID", userID),
	)

	triggers := []gamify.Trigger{gamify.TriggerCompetitiveCompleted}
	if result.XP.LeveledUp {
		triggers = append(triggers, gamify.TriggerLevelUp)
	}
	result.Rewards = s.badges.Evaluate(ctx, userID, triggers...)
	return result, nil
}

// MyHabits lists the competitive habits userID has joined, newest first.
func (s *CompetitiveService) MyHabits(ctx context.Context, userID string) ([]CompetitiveHabit, error) {
	habits, err := s.store.Habits().ListCompetitiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing competitive habits: %w", err)
	}

	now := s.now()
	out := make([]CompetitiveHabit, 0, len(habits))
	for i := range habits {
		n, err := s.store.Participants().CountByHabit(ctx, habits[i].ID, model.ParticipantAccepted)
		if err != nil {
			return nil, fmt.Errorf("counting participants: %w", err)
		}
		refreshActive(&habits[i], now)
		out = append(out, CompetitiveHabit{
			Habit:            habits[i],
			ParticipantCount: n,
			IsOwner:          habits[i].UserID == userID,
		})
	}
	return out, nil
}

// PendingInvitations lists invitations waiting for userID's answer.
func (s *CompetitiveService) PendingInvitations(ctx context.Context, userID string) ([]Invitation, error) {
	pending, err := s.store.Participants().ListByUser(ctx, userID, model.ParticipantPending)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}

	out := make([]Invitation, 0, len(pending))
	for _, p := range pending {
		h, err := s.store.Habits().GetByID(ctx, p.HabitID)
		if err != nil {
			return nil, fmt.Errorf("loading invited habit: %w", err)
		}
		owner, err := s.store.Users().GetByID(ctx, h.UserID)
		if err != nil {
			return nil, fmt.Errorf("loading habit owner: %w", err)
		}
		pub := owner.Public()
		out = append(out, Invitation{HabitParticipant: p, Habit: h, Owner: &pub})
	}
	return out, nil
}

// CheckWinner reports who currently leads habitID outright: the accepted
// participant with strictly more completions than every other one. A tie for
// the lead, or fewer than two accepted participants, means no winner. Since
// nobody can lead outright with zero completions, the leader has at least
// one. When the caller is the leader, challenge_won badges are evaluated.
func (s *CompetitiveService) CheckWinner(ctx context.Context, userID, habitID string) (*WinnerCheck, error) {
	if _, err := competitiveHabit(ctx, s.store, habitID); err != nil {
		return nil, err
	}
	if err := requireParticipant(ctx, s.store, habitID, userID); err != nil {
		return nil, err
	}

	competitors, _, err := loadCompetitors(ctx, s.store, habitID)
	if err != nil {
		return nil, err
	}

	check := &WinnerCheck{HabitID: habitID, Rewards: Rewards{Status: RewardsApplied, Badges: []model.Badge{}}}
	winner, ok := gamify.Winner(competitors)
	if !ok {
		return check, nil
	}
	check.WinnerID = winner
	check.IsWinner = winner == userID
	if check.IsWinner {
		s.logger.Info("challenge won",
			slog.String("habitID", habitID),
			slog.String("userID", userID),
		)
		check.Rewards = s.badges.Evaluate(ctx, userID, gamify.TriggerChallengeWon)
	}
	return check, nil
}

// Progress summarises userID's record across every competitive habit they
// have joined.
func (s *CompetitiveService) Progress(ctx context.Context, userID string) (*CompetitiveProgress, error) {
	record, err := competitiveRecord(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// =========================================================================
// HELPERS
// =========================================================================

// competitiveRecord counts userID's competitive habits, completions on them
// and outright wins. A win is holding strictly the most completions on a
// habit with at least two accepted participants.
func competitiveRecord(ctx context.Context, st repository.Store, userID string) (CompetitiveProgress, error) {
	habits, err := st.Habits().ListCompetitiveForUser(ctx, userID)
	if err != nil {
		return CompetitiveProgress{}, fmt.Errorf("listing competitive habits: %w", err)
	}

	var rec CompetitiveProgress
	rec.TotalCompetitiveHabits = len(habits)
	for _, h := range habits {
		competitors, _, err := loadCompetitors(ctx, st, h.ID)
		if err != nil {
			return CompetitiveProgress{}, err
		}
		for _, c := range competitors {
			if c.UserID == userID {
				rec.TotalCompletions += len(c.Completions)
			}
		}
		if winner, ok := gamify.Winner(competitors); ok && winner == userID {
			rec.TotalWins++
		}
	}
	if rec.TotalCompetitiveHabits > 0 {
		rec.WinRate = roundTo2(float64(rec.TotalWins) * 100 / float64(rec.TotalCompetitiveHabits))
	}
	return rec, nil
}

// loadCompetitors returns the accepted participants of habitID in
// invitation order, each with their completion times on the habit.
func loadCompetitors(ctx context.Context, st repository.Store, habitID string) ([]gamify.Competitor, []model.HabitParticipant, error) {
	participants, err := st.Participants().ListByHabit(ctx, habitID, model.ParticipantAccepted)
	if err != nil {
		return nil, nil, fmt.Errorf("listing participants: %w", err)
	}
	completions, err := st.Completions().List(ctx, repository.CompletionFilter{HabitID: habitID})
	if err != nil {
		return nil, nil, fmt.Errorf("listing completions: %w", err)
	}

	byUser := make(map[string][]time.Time)
	for _, c := range completions {
		byUser[c.UserID] = append(byUser[c.UserID], c.CompletedAt)
	}

	competitors := make([]gamify.Competitor, len(participants))
	for i, p := range participants {
		competitors[i] = gamify.Competitor{
			UserID:        p.UserID,
			ParticipantID: p.ID,
			Completions:   byUser[p.UserID],
		}
	}
	return competitors, participants, nil
}

func competitiveHabit(ctx context.Context, st repository.Store, habitID string) (*model.Habit, error) {
	habitID = strings.TrimSpace(habitID)
	if habitID == "" {
		return nil, apperror.ValidationFailed("id", "habit ID is required")
	}
	h, err := st.Habits().GetByID(ctx, habitID)
	if err != nil {
		return nil, err
	}
	if !h.IsCompetitive {
		return nil, apperror.NotFound("competitive habit", habitID)
	}
	return h, nil
}

func requireParticipant(ctx context.Context, st repository.Store, habitID, userID string) error {
	p, err := st.Participants().Find(ctx, habitID, userID)
	if err != nil && !errors.Is(err, apperror.ErrNotFound) {
		return fmt.Errorf("looking up participant: %w", err)
	}
	if p == nil || p.Status != model.ParticipantAccepted {
		return apperror.Forbidden("you are not a participant in this habit")
	}
	return nil
}

func pendingInvitation(ctx context.Context, st repository.Store, userID, participantID string) (*model.HabitParticipant, error) {
	p, err := st.Participants().GetByID(ctx, participantID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, apperror.NotFound("invitation", participantID)
	}
	if p.Status != model.ParticipantPending {
		return nil, apperror.ConflictMsg("invitation has already been answered")
	}
	return p, nil
}

func checkCapacity(ctx context.Context, st repository.Store, h *model.Habit) error {
	if h.MaxParticipants <= 0 {
		return nil
	}
	n, err := st.Participants().CountByHabit(ctx, h.ID, model.ParticipantAccepted)
	if err != nil {
		return fmt.Errorf("counting participants: %w", err)
	}
	if n >= h.MaxParticipants {
		return apperror.ValidationFailed("maxParticipants", "maximum participants limit reached")
	}
	return nil
}

func publicUsers(ctx context.Context, st repository.Store, ids []string) (map[string]*model.PublicUser, error) {
	users, err := st.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading users: %w", err)
	}
	out := make(map[string]*model.PublicUser, len(users))
	for i := range users {
		pub := users[i].Public()
		out[users[i].ID] = &pub
	}
	return out, nil
}
