// Package scheduler runs delayed, keyed jobs inside the server process.
//
// A job is registered under a key; scheduling the same key again replaces the
// pending job, and Cancel drops it. Timers only enqueue work: a single worker
// goroutine started by Start runs jobs one at a time, so a job never races
// another job.
//
// Pending jobs are not persisted. Callers must be able to rebuild whatever a
// lost job would have done (habits recompute isActive on read).
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is the work run when a key fires.
type Job func(ctx context.Context) error

// JobTimeout bounds a single job run.
const JobTimeout = 30 * time.Second

// ReactivateKey is the job key for bringing habitID back to active.
func ReactivateKey(habitID string) string {
	return "reactivate:" + habitID
}

type entry struct {
	timer *time.Timer
	gen   uint64
}

type run struct {
	key string
	job Job
}

type Scheduler struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]entry
	gen     uint64

	queue     chan run
	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once
}

func New(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger,
		pending: make(map[string]entry),
		queue:   make(chan run, 64),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Calling it more than once is harmless.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.logger.Info("starting job scheduler")
		s.wg.Add(1)
		go s.worker()
	})
}

// Stop cancels every pending timer and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("shutting down job scheduler")
		close(s.done)

		s.mu.Lock()
		for key, e := range s.pending {
			e.timer.Stop()
			delete(s.pending, key)
		}
		s.mu.Unlock()

		s.wg.Wait()
	})
}

// Schedule runs job at the given time, replacing any job pending under key.
// A time in the past fires immediately.
func (s *Scheduler) Schedule(key string, at time.Time, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	if old, ok := s.pending[key]; ok {
		old.timer.Stop()
	}
	s.gen++
	gen := s.gen
	delay := time.Until(at)
	if delay < 0 {
		delay = 0
	}
	s.pending[key] = entry{
		timer: time.AfterFunc(delay, func() { s.fire(key, gen, job) }),
		gen:   gen,
	}
	s.logger.Debug("job scheduled", slog.String("key", key), slog.Time("at", at))
}

// Cancel drops the job pending under key and reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	s.logger.Debug("job cancelled", slog.String("key", key))
	return true
}

// Pending reports whether a job is waiting under key.
func (s *Scheduler) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pending[key]
	return ok
}

func (s *Scheduler) fire(key string, gen uint64, job Job) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok || e.gen != gen {
		// Replaced or cancelled after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()

	select {
	case s.queue <- run{key: key, job: job}:
	case <-s.done:
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		case r := <-s.queue:
			s.execute(r)
		}
	}
}

func (s *Scheduler) execute(r run) {
	ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
	defer cancel()

	start := time.Now()
	if err := r.job(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("key", r.key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.logger.Info("job finished",
		slog.String("key", r.key),
		slog.Duration("duration", time.Since(start)),
	)
}
