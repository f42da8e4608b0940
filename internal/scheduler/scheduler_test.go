package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start()
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for job")
		return ""
	}
}

func TestSchedule_Runs(t *testing.T) {
	s := newTestScheduler(t)
	ran := make(chan string, 1)

	s.Schedule("reactivate:h1", time.Now().Add(10*time.Millisecond), func(ctx context.Context) error {
		ran <- "h1"
		return nil
	})

	if got := waitFor(t, ran); got != "h1" {
		t.Errorf("ran %q, want h1", got)
	}
	if s.Pending("reactivate:h1") {
		t.Error("key still pending after the job ran")
	}
}

func TestSchedule_PastTimeFiresImmediately(t *testing.T) {
	s := newTestScheduler(t)
	ran := make(chan string, 1)

	s.Schedule("k", time.Now().Add(-time.Hour), func(ctx context.Context) error {
		ran <- "k"
		return nil
	})

	waitFor(t, ran)
}

func TestSchedule_ReplacesSameKey(t *testing.T) {
	s := newTestScheduler(t)
	ran := make(chan string, 2)

	s.Schedule("k", time.Now().Add(50*time.Millisecond), func(ctx context.Context) error {
		ran <- "first"
		return nil
	})
	s.Schedule("k", time.Now().Add(10*time.Millisecond), func(ctx context.Context) error {
		ran <- "second"
		return nil
	})

	if got := waitFor(t, ran); got != "second" {
		t.Errorf("ran %q, want second", got)
	}
	select {
	case got := <-ran:
		t.Errorf("replaced job ran too: %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancel(t *testing.T) {
	s := newTestScheduler(t)
	var calls atomic.Int32

	s.Schedule("k", time.Now().Add(30*time.Millisecond), func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	if !s.Pending("k") {
		t.Fatal("Pending() = false right after Schedule")
	}
	if !s.Cancel("k") {
		t.Fatal("Cancel() = false, want true")
	}
	if s.Cancel("k") {
		t.Error("second Cancel() = true, want false")
	}

	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("cancelled job ran %d times", n)
	}
}

func TestFailingJobDoesNotStopWorker(t *testing.T) {
	s := newTestScheduler(t)
	ran := make(chan string, 1)

	s.Schedule("bad", time.Now(), func(ctx context.Context) error {
		return errors.New("boom")
	})
	s.Schedule("good", time.Now().Add(20*time.Millisecond), func(ctx context.Context) error {
		ran <- "good"
		return nil
	})

	waitFor(t, ran)
}

func TestStop_DropsPendingAndIgnoresNewJobs(t *testing.T) {
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Start()
	s.Schedule("k", time.Now().Add(time.Hour), func(ctx context.Context) error { return nil })

	s.Stop()
	s.Stop()

	if s.Pending("k") {
		t.Error("Pending() after Stop = true")
	}
	s.Schedule("late", time.Now(), func(ctx context.Context) error { return nil })
	if s.Pending("late") {
		t.Error("Schedule after Stop registered a job")
	}
}

func TestReactivateKey(t *testing.T) {
	if got := ReactivateKey("abc"); got != "reactivate:abc" {
		t.Errorf("ReactivateKey() = %q", got)
	}
}
