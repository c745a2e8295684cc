package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextAlignedTick_ComputesCeilingOfInterval(t *testing.T) {
	now := time.UnixMilli(12_345)
	next := nextAlignedTick(now, time.Second)
	assert.Equal(t, time.UnixMilli(13_000), next)
}

func TestNextAlignedTick_DefaultsZeroIntervalToOneSecond(t *testing.T) {
	now := time.UnixMilli(500)
	next := nextAlignedTick(now, 0)
	assert.Equal(t, time.UnixMilli(1_000), next)
}

// countingRunner records every alignedTsMs it was called with, optionally
// blocking until released to simulate an overlapping firing.
type countingRunner struct {
	mu      sync.Mutex
	calls   []int64
	block   chan struct{}
	useOnce int32
}

func (r *countingRunner) Run(_ context.Context, alignedTsMs int64) {
	if r.block != nil && atomic.CompareAndSwapInt32(&r.useOnce, 0, 1) {
		<-r.block
	}
	r.mu.Lock()
	r.calls = append(r.calls, alignedTsMs)
	r.mu.Unlock()
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestScheduler_FiresAtAlignedTicks(t *testing.T) {
	runner := &countingRunner{}
	s := New("http-example", 20*time.Millisecond, runner, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	assert.GreaterOrEqual(t, runner.count(), 2)
	assert.False(t, s.LastFiringCompletedAt().IsZero())
}

func TestScheduler_SkipsTickWhenPriorFiringStillRunning(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{})}
	s := New("icmp-example", 10*time.Millisecond, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	time.Sleep(35 * time.Millisecond) // several ticks should elapse while runner blocks
	close(runner.block)
	time.Sleep(25 * time.Millisecond)
	cancel()

	// exactly one firing ran to completion for the blocked tick, plus
	// whatever fired after unblocking; every tick in between was skipped
	// rather than queued.
	assert.Less(t, runner.count(), 5)
}

func TestScheduler_DrainReturnsPromptlyWhenIdle(t *testing.T) {
	s := New("shell-example", time.Second, &countingRunner{}, nil)
	start := time.Now()
	s.Drain(time.Second)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestScheduler_DrainRespectsTimeoutWhenFiringHangs(t *testing.T) {
	block := make(chan struct{})
	runner := &countingRunner{block: block}
	s := New("ssh-example", 5*time.Millisecond, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	time.Sleep(15 * time.Millisecond)
	cancel()

	start := time.Now()
	s.Drain(30 * time.Millisecond)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
	close(block)
}
