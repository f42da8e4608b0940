package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/habitquest/internal/model"
	"github.com/sakif/habitquest/internal/repository"
	"github.com/sakif/habitquest/internal/repository/sqlite"
	"github.com/sakif/habitquest/internal/scheduler"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================
//
// Service tests run against a real in-memory SQLite store so the unit of
// work, the unique constraints and the cascades are the production ones.
// Hand-written fakes cover the collaborators that are awkward to run for
// real (the scheduler, object storage) and the failure paths.

// monday is 2026-03-02, a Monday, mid-morning.
var monday = time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)

// testClock is a settable Clock.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{t: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDate(0, 0, n)
}

// fakeScheduler records scheduled jobs instead of running timers.
type fakeScheduler struct {
	jobs     map[string]scheduler.Job
	at       map[string]time.Time
	canceled []string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{
		jobs: make(map[string]scheduler.Job),
		at:   make(map[string]time.Time),
	}
}

func (f *fakeScheduler) Schedule(key string, at time.Time, job scheduler.Job) {
	f.jobs[key] = job
	f.at[key] = at
}

func (f *fakeScheduler) Cancel(key string) bool {
	_, ok := f.jobs[key]
	delete(f.jobs, key)
	delete(f.at, key)
	f.canceled = append(f.canceled, key)
	return ok
}

// brokenBadgeStore wraps a real store but fails every badge query, so the
// best-effort reward step fails while the primary write still succeeds.
type brokenBadgeStore struct {
	repository.Store
}

func (s brokenBadgeStore) Badges() repository.BadgeRepository { return failingBadges{} }

func (s brokenBadgeStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(brokenBadgeStore{tx})
	})
}

var errBadgeTable = errors.New("badge table unavailable")

type failingBadges struct {
	repository.BadgeRepository
}

func (failingBadges) List(context.Context) ([]model.Badge, error) { return nil, errBadgeTable }

func (failingBadges) ListEarned(context.Context, string) ([]model.UserBadge, error) {
	return nil, errBadgeTable
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *sqlite.DB {
	t.Helper()
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// services bundles every service over one store and one clock.
type services struct {
	store       repository.Store
	clock       *testClock
	sched       *fakeScheduler
	badges      *BadgeService
	habits      *HabitService
	competitive *CompetitiveService
	friends     *FriendshipService
	stats       *StatsService
	categories  *CategoryService
}

func newServices(t *testing.T, store repository.Store) *services {
	t.Helper()
	clock := newTestClock(monday)
	sched := newFakeScheduler()
	logger := testLogger()

	badges := NewBadgeService(store, clock.Now, logger)
	return &services{
		store:       store,
		clock:       clock,
		sched:       sched,
		badges:      badges,
		habits:      NewHabitService(store, badges, sched, HabitOptions{}, clock.Now, logger),
		competitive: NewCompetitiveService(store, badges, 0, clock.Now, logger),
		friends:     NewFriendshipService(store, badges, logger),
		stats:       NewStatsService(store, clock.Now, logger),
		categories:  NewCategoryService(store, logger),
	}
}

func createUser(t *testing.T, store repository.Store, username string) *model.User {
	t.Helper()
	u := &model.User{
		Username: username,
		Email:    username + "@example.com",
		FullName: username,
		Level:    1,
	}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func setXP(t *testing.T, store repository.Store, userID string, xp, level int) {
	t.Helper()
	require.NoError(t, store.Users().UpdateProgress(context.Background(), userID, xp, level))
}

func addBadge(t *testing.T, store repository.Store, name string, c model.Criteria, points int) *model.Badge {
	t.Helper()
	b := &model.Badge{
		Name:        name,
		Description: name,
		Type:        c.BadgeType(),
		Rarity:      model.RarityCommon,
		Criteria:    c,
		Points:      points,
	}
	_, err := store.Badges().Upsert(context.Background(), b)
	require.NoError(t, err)
	return b
}

func befriend(t *testing.T, s *services, a, b string) {
	t.Helper()
	ctx := context.Background()
	f, err := s.friends.SendRequest(ctx, a, b)
	require.NoError(t, err)
	_, _, err = s.friends.Accept(ctx, b, f.ID)
	require.NoError(t, err)
}

func ptr[T any](v T) *T { return &v }
