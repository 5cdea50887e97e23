// Package scheduler runs a job on wall-clock aligned ticks.
//
// With an interval of 5m the job fires at :00, :05, :10 and so on, the same
// instants a "*/5 * * * *" cron entry would pick. At most one run is in
// flight: a tick or Trigger that arrives while the job is running is skipped.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-token-alert-bot/internal/observability"
)

// ErrRunning is returned by RunOnce when another run is still in flight.
var ErrRunning = errors.New("job already running")

// Job is one unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler owns the tick loop and the overlap guard.
type Scheduler struct {
	interval time.Duration
	job      Job
	log      zerolog.Logger

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	base    context.Context
	stopped bool // set once Run is returning; guards wg.Add

	// now and after are swapped in tests.
	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// New returns a Scheduler running job every interval. interval must be
// positive.
func New(interval time.Duration, job Job, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		job:      job,
		log:      logger.With().Str("component", "scheduler").Logger(),
		now:      time.Now,
		after:    time.After,
	}
}

// NextTick returns the first multiple of interval strictly after now,
// measured from the Unix epoch.
func NextTick(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}

// Run blocks, firing the job on every aligned tick until ctx ends. It waits
// for an in-flight run to return before returning ctx.Err(). Once Run is
// returning no new run starts.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.base = ctx
	s.stopped = false
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
		s.wg.Wait()
	}()
	for {
		next := NextTick(s.now(), s.interval)
		s.log.Debug().Time("next_run", next).Msg("waiting for tick")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.after(time.Until(next)):
			s.start(ctx, "tick")
		}
	}
}

// Trigger starts an out-of-band run in the background. It returns false
// when a run is already in flight or the scheduler has stopped.
func (s *Scheduler) Trigger() bool {
	s.mu.Lock()
	ctx := s.base
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	return s.start(ctx, "trigger")
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// RunOnce runs the job synchronously under the overlap guard.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer s.running.Store(false)
	return s.job(ctx)
}

func (s *Scheduler) start(ctx context.Context, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped || ctx.Err() != nil {
		s.log.Debug().Str("reason", reason).Msg("scheduler stopped, not starting run")
		return false
	}
	if !s.running.CompareAndSwap(false, true) {
		observability.RefreshCycles.WithLabelValues("skipped").Inc()
		s.log.Warn().Str("reason", reason).Msg("previous run still in flight, skipping")
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)
		s.log.Debug().Str("reason", reason).Msg("run started")
		if err := s.job(ctx); err != nil {
			s.log.Error().Err(err).Str("reason", reason).Msg("run failed")
		}
	}()
	return true
}
