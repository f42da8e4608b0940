// Package repository declares the persistence collaborator the services
// talk to. Backends live in the sqlite and postgres sub-packages.
//
// Lookups that find nothing return apperror.ErrNotFound; writes that break a
// uniqueness rule return apperror.ErrConflict.
package repository

import (
	"context"
	"time"

	"github.com/sakif/habitquest/internal/model"
)

// Store is a unit of work over every repository.
//
// WithTx runs fn inside one transaction: fn's Store sees and writes through
// that transaction, and everything fn wrote is committed together or rolled
// back together when fn returns an error. Calling WithTx on a Store that is
// already transactional joins the outer transaction.
type Store interface {
	Users() UserRepository
	Habits() HabitRepository
	Completions() CompletionRepository
	Badges() BadgeRepository
	Friendships() FriendshipRepository
	Participants() ParticipantRepository
	Categories() CategoryRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByIDForUpdate is GetByID that also holds the user's row until the
	// surrounding transaction ends. Read-modify-write of XP goes through it.
	GetByIDForUpdate(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	// Update saves profile fields (username, fullname, avatar, google id).
	Update(ctx context.Context, user *model.User) error
	// UpdateProgress saves XP and level.
	UpdateProgress(ctx context.Context, id string, xp, level int) error
	ListByIDs(ctx context.Context, ids []string) ([]model.User, error)
}

type HabitRepository interface {
	Create(ctx context.Context, habit *model.Habit) error
	GetByID(ctx context.Context, id string) (*model.Habit, error)
	// ListByUser returns the habits userID owns, oldest first.
	ListByUser(ctx context.Context, userID string) ([]model.Habit, error)
	// ListCompetitiveForUser returns competitive habits userID is an
	// accepted participant of, owned or not.
	ListCompetitiveForUser(ctx context.Context, userID string) ([]model.Habit, error)
	Update(ctx context.Context, habit *model.Habit) error
	SetActive(ctx context.Context, id string, active bool) error
	// Delete removes the habit with its completions and participants.
	Delete(ctx context.Context, id string) error
}

// CompletionFilter narrows completion queries. Empty fields do not filter.
// FromDay and ToDay are inclusive model.DayKey values.
type CompletionFilter struct {
	HabitID string
	UserID  string
	FromDay string
	ToDay   string
}

type CompletionRepository interface {
	// Create fails with a conflict if the (habit, user, day) slot is taken.
	Create(ctx context.Context, c *model.HabitCompletion) error
	ExistsOn(ctx context.Context, habitID, userID, day string) (bool, error)
	// List returns matching completions, newest first.
	List(ctx context.Context, f CompletionFilter) ([]model.HabitCompletion, error)
	Count(ctx context.Context, f CompletionFilter) (int, error)
}

type BadgeRepository interface {
	List(ctx context.Context) ([]model.Badge, error)
	GetByID(ctx context.Context, id string) (*model.Badge, error)
	// Upsert inserts badge if no badge has its name and reports whether it
	// did; an existing badge is left untouched and copied into badge.
	Upsert(ctx context.Context, badge *model.Badge) (bool, error)
	// ListEarned returns userID's badges with Badge populated, newest first.
	ListEarned(ctx context.Context, userID string) ([]model.UserBadge, error)
	// Award fails with a conflict if userID already holds badgeID.
	Award(ctx context.Context, userID, badgeID string, at time.Time) (*model.UserBadge, error)
}

type FriendshipRepository interface {
	Create(ctx context.Context, f *model.Friendship) error
	GetByID(ctx context.Context, id string) (*model.Friendship, error)
	// FindBetween looks up the friendship between a and b in either direction.
	FindBetween(ctx context.Context, a, b string) (*model.Friendship, error)
	Update(ctx context.Context, f *model.Friendship) error
	Delete(ctx context.Context, id string) error
	// ListForUser returns friendships on either side of userID with the given
	// status, newest first.
	ListForUser(ctx context.Context, userID string, status model.FriendshipStatus) ([]model.Friendship, error)
	CountAccepted(ctx context.Context, userID string) (int, error)
}

type ParticipantRepository interface {
	Create(ctx context.Context, p *model.HabitParticipant) error
	GetByID(ctx context.Context, id string) (*model.HabitParticipant, error)
	Find(ctx context.Context, habitID, userID string) (*model.HabitParticipant, error)
	Update(ctx context.Context, p *model.HabitParticipant) error
	// ListByHabit returns participants in invitation order. With no statuses
	// given, every status is returned.
	ListByHabit(ctx context.Context, habitID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error)
	ListByUser(ctx context.Context, userID string, statuses ...model.ParticipantStatus) ([]model.HabitParticipant, error)
	CountByHabit(ctx context.Context, habitID string, status model.ParticipantStatus) (int, error)
}

type CategoryRepository interface {
	List(ctx context.Context) ([]model.Category, error)
	// GetByName matches names case-insensitively.
	GetByName(ctx context.Context, name string) (*model.Category, error)
	Upsert(ctx context.Context, c *model.Category) (bool, error)
}
