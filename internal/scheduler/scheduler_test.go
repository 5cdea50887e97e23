package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-token-alert-bot/internal/observability"
)

func TestNextTick_AlignsToWallClock(t *testing.T) {
	cases := []struct {
		now      string
		interval time.Duration
		want     string
	}{
		{"2024-05-01T10:02:13Z", 5 * time.Minute, "2024-05-01T10:05:00Z"},
		{"2024-05-01T10:05:00Z", 5 * time.Minute, "2024-05-01T10:10:00Z"},
		{"2024-05-01T10:59:59Z", 15 * time.Minute, "2024-05-01T11:00:00Z"},
		{"2024-05-01T23:58:00Z", time.Minute, "2024-05-01T23:59:00Z"},
	}
	for _, c := range cases {
		now, _ := time.Parse(time.RFC3339, c.now)
		want, _ := time.Parse(time.RFC3339, c.want)
		if got := NextTick(now, c.interval); !got.Equal(want) {
			t.Fatalf("NextTick(%s, %v) = %s, want %s", c.now, c.interval, got, want)
		}
	}
}

// manualTicks replaces the timer with a channel the test fires by hand.
func manualTicks(s *Scheduler) chan time.Time {
	ch := make(chan time.Time)
	s.after = func(time.Duration) <-chan time.Time { return ch }
	return ch
}

func TestRun_FiresJobOnEachTick(t *testing.T) {
	var runs atomic.Int32
	done := make(chan struct{}, 10)
	s := New(time.Minute, func(context.Context) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	}, zerolog.Nop())
	ticks := manualTicks(s)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		ticks <- time.Now()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("job did not run for tick %d", i)
		}
	}
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if n := runs.Load(); n != 3 {
		t.Fatalf("runs = %d, want 3", n)
	}
}

func TestRun_SkipsTickWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 10)
	var runs atomic.Int32
	s := New(time.Minute, func(context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		<-release
		return nil
	}, zerolog.Nop())
	ticks := manualTicks(s)

	before := testutil.ToFloat64(observability.RefreshCycles.WithLabelValues("skipped"))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	ticks <- time.Now()
	<-started
	ticks <- time.Now() // lands while the first run is blocked
	ticks <- time.Now() // the loop has handled the previous tick once this send completes

	if n := runs.Load(); n != 1 {
		t.Fatalf("overlapping run started: runs=%d", n)
	}
	if got := testutil.ToFloat64(observability.RefreshCycles.WithLabelValues("skipped")); got < before+1 {
		t.Fatalf("skipped counter = %v, want >= %v", got, before+1)
	}
	if s.Trigger() {
		t.Fatalf("Trigger must refuse while a run is in flight")
	}

	close(release)
	cancel()
	<-errc
	if s.Running() {
		t.Fatalf("Run returned before the in-flight job finished")
	}
}

func TestTrigger_StartsRunOutOfBand(t *testing.T) {
	done := make(chan struct{})
	s := New(time.Hour, func(context.Context) error {
		close(done)
		return nil
	}, zerolog.Nop())

	if !s.Trigger() {
		t.Fatalf("Trigger should start a run when idle")
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("triggered job did not run")
	}
}

func TestRunOnce_Guarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s := New(time.Hour, func(context.Context) error {
		close(started)
		<-release
		return errors.New("boom")
	}, zerolog.Nop())

	errc := make(chan error, 1)
	go func() { errc <- s.RunOnce(context.Background()) }()
	<-started

	if err := s.RunOnce(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("expected ErrRunning, got %v", err)
	}
	close(release)
	if err := <-errc; err == nil || err.Error() != "boom" {
		t.Fatalf("RunOnce should return the job error, got %v", err)
	}
	if s.Running() {
		t.Fatalf("guard not released")
	}
}

func TestTrigger_RefusedAfterRunReturns(t *testing.T) {
	var runs atomic.Int32
	s := New(time.Hour, func(context.Context) error {
		runs.Add(1)
		return nil
	}, zerolog.Nop())
	manualTicks(s)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if s.Trigger() {
		t.Fatalf("Trigger must refuse once Run has returned")
	}
	if s.Running() || runs.Load() != 0 {
		t.Fatalf("no run may start after shutdown: running=%v runs=%d", s.Running(), runs.Load())
	}
}

func TestTrigger_RefusedOnCanceledBase(t *testing.T) {
	s := New(time.Hour, func(context.Context) error { return nil }, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if s.start(ctx, "tick") {
		t.Fatalf("start must refuse a canceled context")
	}
}
