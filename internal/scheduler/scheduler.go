// Package scheduler drives periodic pipeline runs. A Redis run lock keeps
// cycles from overlapping when more than one instance is deployed.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/riverline/support-ingest/internal/pipeline"
	"github.com/riverline/support-ingest/internal/pkg/logger"
)

// Lock is the slice of the run lock the scheduler needs.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Extend(ctx context.Context, ttl time.Duration) error
}

// Runner runs one pipeline cycle.
type Runner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// CycleStatus is the last cycle's outcome.
type CycleStatus struct {
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
	Skipped    bool                `json:"skipped"`
	Err        string              `json:"error,omitempty"`
	Result     *pipeline.RunResult `json:"result,omitempty"`
}

// Scheduler runs the pipeline on a fixed interval. A positive lockTTL keeps
// the run lock refreshed while a cycle is in flight, so a cycle outlasting
// the TTL does not lose the lock mid-run.
type Scheduler struct {
	runner       Runner
	lock         Lock
	interval     time.Duration
	lockTTL      time.Duration
	runOnStartup bool

	mu        sync.RWMutex
	lastCycle *CycleStatus
}

func New(runner Runner, lock Lock, interval, lockTTL time.Duration, runOnStartup bool) *Scheduler {
	return &Scheduler{
		runner:       runner,
		lock:         lock,
		interval:     interval,
		lockTTL:      lockTTL,
		runOnStartup: runOnStartup,
	}
}

// Start runs cycles until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	logger.Info("Scheduler started",
		"interval", s.interval.String(),
		"run_on_startup", s.runOnStartup)

	if s.runOnStartup {
		s.runCycle(ctx)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Scheduler stopping")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// RunNow triggers an immediate cycle outside the ticker.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runCycle(ctx)
}

// LastCycle returns the most recent cycle outcome, or nil before the first.
func (s *Scheduler) LastCycle() *CycleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastCycle
}

func (s *Scheduler) runCycle(ctx context.Context) {
	status := &CycleStatus{StartedAt: time.Now().UTC()}
	defer func() {
		status.FinishedAt = time.Now().UTC()
		s.mu.Lock()
		s.lastCycle = status
		s.mu.Unlock()
	}()

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			status.Err = err.Error()
			logger.Error("Failed to acquire run lock", "error", err.Error())
			return
		}
		if !ok {
			status.Skipped = true
			logger.Info("Cycle skipped, another instance holds the run lock")
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				logger.Warn("Failed to release run lock", "error", err.Error())
			}
		}()

		if s.lockTTL > 0 {
			stopExtend := make(chan struct{})
			defer close(stopExtend)
			go s.keepLockAlive(ctx, stopExtend)
		}
	}

	result, err := s.runner.Run(ctx)
	status.Result = &result
	if err != nil {
		status.Err = err.Error()
		return
	}
}

// keepLockAlive refreshes the run lock TTL at half its lifetime until stop
// closes.
func (s *Scheduler) keepLockAlive(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.lockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.lock.Extend(ctx, s.lockTTL); err != nil {
				logger.Warn("Failed to extend run lock", "error", err.Error())
			}
		}
	}
}
