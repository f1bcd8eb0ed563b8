package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riverline/support-ingest/internal/pipeline"
	"github.com/riverline/support-ingest/internal/store"
)

type fakeRunner struct {
	runs   int
	delay  time.Duration
	err    error
	result pipeline.RunResult
}

func (f *fakeRunner) Run(ctx context.Context) (pipeline.RunResult, error) {
	f.runs++
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

type stuckLock struct{}

func (stuckLock) Acquire(ctx context.Context) (bool, error)           { return false, nil }
func (stuckLock) Release(ctx context.Context) error                   { return nil }
func (stuckLock) Extend(ctx context.Context, ttl time.Duration) error { return nil }

type countingLock struct {
	mu      sync.Mutex
	extends int
}

func (c *countingLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (c *countingLock) Release(ctx context.Context) error         { return nil }

func (c *countingLock) Extend(ctx context.Context, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extends++
	return nil
}

func (c *countingLock) extendCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.extends
}

func TestRunNow(t *testing.T) {
	runner := &fakeRunner{result: pipeline.RunResult{Inserted: 7}}
	s := New(runner, nil, time.Hour, 0, false)

	s.RunNow(context.Background())

	assert.Equal(t, 1, runner.runs)
	cycle := s.LastCycle()
	require.NotNil(t, cycle)
	assert.False(t, cycle.Skipped)
	assert.Empty(t, cycle.Err)
	require.NotNil(t, cycle.Result)
	assert.Equal(t, 7, cycle.Result.Inserted)
}

func TestRunNowRecordsError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("source gone")}
	s := New(runner, nil, time.Hour, 0, false)

	s.RunNow(context.Background())

	cycle := s.LastCycle()
	require.NotNil(t, cycle)
	assert.Equal(t, "source gone", cycle.Err)
}

func TestCycleSkippedWhenLockHeld(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, stuckLock{}, time.Hour, 0, false)

	s.RunNow(context.Background())

	assert.Equal(t, 0, runner.runs)
	cycle := s.LastCycle()
	require.NotNil(t, cycle)
	assert.True(t, cycle.Skipped)
}

func TestCycleWithRedisLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	runner := &fakeRunner{}
	lock := store.NewRunLock(client, "twitter_csv", time.Minute)
	s := New(runner, lock, time.Hour, time.Minute, false)

	s.RunNow(context.Background())
	assert.Equal(t, 1, runner.runs)

	// The lock is released after the cycle, so the next cycle runs too.
	s.RunNow(context.Background())
	assert.Equal(t, 2, runner.runs)
}

func TestLockExtendedDuringLongCycle(t *testing.T) {
	runner := &fakeRunner{delay: 120 * time.Millisecond}
	lock := &countingLock{}
	s := New(runner, lock, time.Hour, 40*time.Millisecond, false)

	s.RunNow(context.Background())

	assert.Equal(t, 1, runner.runs)
	assert.GreaterOrEqual(t, lock.extendCount(), 1,
		"a cycle outlasting the lock TTL must refresh it")
}

func TestStartRunOnStartup(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, time.Hour, 0, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return s.LastCycle() != nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, runner.runs)

	cancel()
	<-done
}

func TestStartTicks(t *testing.T) {
	runner := &fakeRunner{}
	s := New(runner, nil, 10*time.Millisecond, 0, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Start(ctx)
	}()

	require.Eventually(t, func() bool {
		return s.LastCycle() != nil
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.GreaterOrEqual(t, runner.runs, 1)
}
