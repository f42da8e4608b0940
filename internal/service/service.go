// Package service contains the business logic layer of habitquest.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes records
//
// The decisions themselves (is a habit active, what is the new streak, which
// badges qualify, who leads a challenge) live in internal/gamify as pure
// functions. Services load the records those functions need, call them, and
// persist the results inside a repository.Store unit of work.
//
// THE DEPENDENCY CHAIN:
//
//	server.New creates:  Store → Services → Handlers
//	At runtime:          Handler calls Service calls Store
//
// Every method takes the acting user's id as a plain string. Where that id
// came from (a JWT, a CLI flag) is not this package's concern.
package service

import (
	"context"
	"time"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/scheduler"
)

// Clock returns the current time in the server's configured time zone.
// Calendar-day decisions (same day, yesterday, weekday) are taken in that zone.
type Clock func() time.Time

// LocalClock is the production Clock for loc.
func LocalClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return func() time.Time { return time.Now().In(loc) }
}

// Scheduler delivers delayed habit reactivation. *scheduler.Scheduler
// satisfies it.
type Scheduler interface {
	Schedule(key string, at time.Time, job scheduler.Job)
	Cancel(key string) bool
}

// ObjectStore accepts uploaded files. *storage.S3Store satisfies it.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// RewardStatus says whether the best-effort reward step after a primary
// operation went through.
type RewardStatus string

const (
	RewardsApplied    RewardStatus = "applied"
	RewardsSuppressed RewardStatus = "suppressed"
)

// Rewards is the outcome of the best-effort badge evaluation that follows a
// completion, a habit creation, an accepted friendship and so on. A failure
// there is logged and reported here with Status RewardsSuppressed; it never
// fails or rolls back the operation that triggered it.
type Rewards struct {
	Status   RewardStatus  `json:"status"`
	Badges   []model.Badge `json:"badges"`
	XPGained int           `json:"xpGained"`
	Err      error         `json:"-"`
}

// Suppressed reports whether the reward step failed.
func (r Rewards) Suppressed() bool {
	return r.Status == RewardsSuppressed
}
