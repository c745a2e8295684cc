// Package scheduler implements the C6 aligned scheduler: one instance per
// CheckDef, firing exactly when floor(now_ms / interval_ms) advances
// (spec.md §4.6). The state-machine and goroutine-per-loop shape mirrors
// the teacher's prober.Engine.runEndpointLoop, generalized from a fixed
// interval+jitter loop to wall-clock alignment.
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carvectf/canary/internal/metrics"
)

// Runner executes one firing. Implemented by *runner.CheckRunner in
// production; a recording fake (countingRunner) in tests.
type Runner interface {
	Run(ctx context.Context, alignedTsMs int64)
}

// Scheduler owns the aligned-tick loop for one CheckDef.
type Scheduler struct {
	CheckName string
	Interval  time.Duration
	Runner    Runner
	Metrics   *metrics.Metrics

	running int32 // atomic: 1 while a firing is in-flight
	wg      sync.WaitGroup

	mu                    sync.Mutex
	lastFiringCompletedAt time.Time
}

// New builds a Scheduler for one check.
func New(checkName string, interval time.Duration, runner Runner, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		CheckName: checkName,
		Interval:  interval,
		Runner:    runner,
		Metrics:   m,
	}
}

// Run blocks until ctx is cancelled, firing the runner at each aligned
// tick. At most one firing runs concurrently; if a prior firing is still
// running when the next tick arrives, that tick is skipped (spec.md §4.6,
// §5 — "no pile-up").
func (s *Scheduler) Run(ctx context.Context) {
	for {
		next := nextAlignedTick(time.Now(), s.Interval)
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.fire(ctx, next)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, alignedTick time.Time) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		if s.Metrics != nil {
			s.Metrics.TicksSkipped.WithLabelValues(s.CheckName).Inc()
		}
		log.Printf("tick skipped: check=%q aligned_ts_ms=%d (previous firing still running)",
			s.CheckName, alignedTick.UnixMilli())
		return
	}

	alignedTsMs := alignedTick.UnixMilli()
	log.Printf("tick fired: check=%q aligned_ts_ms=%d", s.CheckName, alignedTsMs)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer atomic.StoreInt32(&s.running, 0)
		s.Runner.Run(ctx, alignedTsMs)

		s.mu.Lock()
		s.lastFiringCompletedAt = time.Now()
		s.mu.Unlock()
	}()
}

// Drain waits for any in-flight firing to finish, up to timeout. Used by
// the supervisor during graceful shutdown (spec.md §5: "wait up to one
// probe-timeout for outstanding runners to finish; unfinished runners are
// abandoned").
func (s *Scheduler) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
	}
}

// LastFiringCompletedAt reports when the most recent firing finished,
// used by the supervisor's wedge detection (spec.md §4.7).
func (s *Scheduler) LastFiringCompletedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFiringCompletedAt
}

// nextAlignedTick computes (floor(now/interval)+1)*interval in wall-clock
// terms: the first aligned tick strictly after now. This equals
// ceil(now/interval)*interval except when now is itself aligned, in which
// case the following tick is returned. A non-positive interval is treated
// as one second.
func nextAlignedTick(now time.Time, interval time.Duration) time.Time {
	ms := now.UnixMilli()
	intervalMs := interval.Milliseconds()
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	next := ((ms / intervalMs) + 1) * intervalMs
	return time.UnixMilli(next)
}
