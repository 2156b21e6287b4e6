package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

// ErrCycleInProgress is returned when a cycle is requested while another one
// is still running.
var ErrCycleInProgress = errors.New("fetch cycle already in progress")

// CycleRunner executes one polling cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context, trigger model.Trigger, creds []model.Credential) model.CycleSummary
}

// CredentialSource supplies the credentials for a cycle.
type CredentialSource interface {
	Resolve(ctx context.Context) []model.Credential
}

// Scheduler runs polling cycles on a fixed interval and on demand. At most
// one cycle is in flight at a time, whichever path started it.
type Scheduler struct {
	runner   CycleRunner
	creds    CredentialSource
	interval time.Duration

	cycleMu sync.Mutex // held for the duration of a cycle or a TryRun op
	running atomic.Bool
	wg      sync.WaitGroup

	mu   sync.RWMutex
	ctx  context.Context
	last *model.CycleSummary
}

// NewScheduler creates a Scheduler that polls every interval.
func NewScheduler(runner CycleRunner, creds CredentialSource, interval time.Duration) *Scheduler {
	return &Scheduler{
		runner:   runner,
		creds:    creds,
		interval: interval,
		ctx:      context.Background(),
	}
}

// Start runs an immediate cycle, then one per interval. A tick that lands
// while a cycle is running is skipped. Start blocks until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if _, err := s.RunNow(ctx, model.TriggerScheduled); err != nil {
		slog.Warn("initial fetch cycle skipped", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-ticker.C:
			if _, err := s.RunNow(ctx, model.TriggerScheduled); err != nil {
				slog.Warn("scheduled fetch cycle skipped", "error", err)
			}
		}
	}
}

// TryStart begins a cycle in the background under the scheduler's context.
// It returns ErrCycleInProgress without starting anything if a cycle is
// already running.
func (s *Scheduler) TryStart(trigger model.Trigger) error {
	if !s.cycleMu.TryLock() {
		return ErrCycleInProgress
	}
	s.background(func(ctx context.Context) {
		_, _ = s.execute(ctx, trigger)
	})
	return nil
}

// TryRun runs fn in the background under the same lock as a cycle, so an
// on-demand fetch never overlaps a cycle or another on-demand fetch. It
// returns ErrCycleInProgress without running fn if the lock is taken.
func (s *Scheduler) TryRun(op string, fn func(ctx context.Context)) error {
	if !s.cycleMu.TryLock() {
		return ErrCycleInProgress
	}
	s.background(func(ctx context.Context) {
		s.running.Store(true)
		defer s.running.Store(false)

		defer func() {
			if r := recover(); r != nil {
				slog.Error("on-demand fetch panicked", "op", op, "panic", r, "stack", string(debug.Stack()))
			}
		}()

		slog.Info("on-demand fetch started", "op", op)
		fn(ctx)
		slog.Info("on-demand fetch finished", "op", op)
	})
	return nil
}

// Wait blocks until every background cycle or op started by TryStart or
// TryRun has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// background runs fn in a goroutine under the scheduler's context. The caller
// holds cycleMu; it is released when fn returns.
func (s *Scheduler) background(fn func(ctx context.Context)) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.cycleMu.Unlock()
		fn(ctx)
	}()
}

// RunNow runs a cycle synchronously and returns its summary. It returns
// ErrCycleInProgress if a cycle is already running.
func (s *Scheduler) RunNow(ctx context.Context, trigger model.Trigger) (model.CycleSummary, error) {
	if !s.cycleMu.TryLock() {
		return model.CycleSummary{}, ErrCycleInProgress
	}
	defer s.cycleMu.Unlock()

	summary, err := s.execute(ctx, trigger)
	return summary, err
}

// Running reports whether a cycle is in flight.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Last returns the summary of the most recently finished cycle.
func (s *Scheduler) Last() (model.CycleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return model.CycleSummary{}, false
	}
	return *s.last, true
}

// execute runs one cycle. The caller holds cycleMu. A panic is logged and
// returned as an error so the periodic loop keeps going.
func (s *Scheduler) execute(ctx context.Context, trigger model.Trigger) (summary model.CycleSummary, err error) {
	s.running.Store(true)
	defer s.running.Store(false)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("fetch cycle panicked", "trigger", trigger, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("fetch cycle panicked: %v", r)
		}
	}()

	creds := s.creds.Resolve(ctx)
	if len(creds) == 0 {
		slog.Warn("no vendor credentials configured; cycle has nothing to fetch")
	}

	summary = s.runner.RunCycle(ctx, trigger, creds)

	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()

	return summary, nil
}
