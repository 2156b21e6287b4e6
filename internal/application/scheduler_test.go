package application_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/sungazer/internal/application"
	"github.com/ericfisherdev/sungazer/internal/domain/model"
)

type staticCreds []model.Credential

func (s staticCreds) Resolve(context.Context) []model.Credential { return s }

type stubRunner struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	panics  bool
}

func newStubRunner(blocking bool) *stubRunner {
	r := &stubRunner{started: make(chan struct{}, 10)}
	if blocking {
		r.release = make(chan struct{})
	}
	return r
}

func (r *stubRunner) RunCycle(_ context.Context, trigger model.Trigger, creds []model.Credential) model.CycleSummary {
	n := r.calls.Add(1)
	select {
	case r.started <- struct{}{}:
	default:
	}
	if r.release != nil {
		<-r.release
	}
	if r.panics {
		panic("runner exploded")
	}
	vendors := make([]model.VendorResult, 0, len(creds))
	for _, c := range creds {
		vendors = append(vendors, model.VendorResult{Vendor: c.Vendor, Status: model.FetchStatusSuccess, SitesUpdated: 1})
	}
	return model.CycleSummary{ID: string(rune('a' + n - 1)), Trigger: trigger, Vendors: vendors}
}

func TestScheduler_RunNowStoresLastSummary(t *testing.T) {
	runner := newStubRunner(false)
	s := application.NewScheduler(runner, staticCreds(credsFor(model.VendorSolarEdge, model.VendorGenerac)), time.Hour)

	_, ok := s.Last()
	assert.False(t, ok)

	summary, err := s.RunNow(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, model.TriggerManual, summary.Trigger)
	assert.Equal(t, 2, summary.SitesUpdated())

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, summary.ID, last.ID)
	assert.False(t, s.Running())
}

func TestScheduler_RejectsOverlappingCycles(t *testing.T) {
	runner := newStubRunner(true)
	s := application.NewScheduler(runner, staticCreds(credsFor(model.VendorSolarEdge)), time.Hour)

	require.NoError(t, s.TryStart(model.TriggerManual))

	select {
	case <-runner.started:
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not start")
	}
	assert.True(t, s.Running())

	_, err := s.RunNow(context.Background(), model.TriggerScheduled)
	assert.ErrorIs(t, err, application.ErrCycleInProgress)
	assert.ErrorIs(t, s.TryStart(model.TriggerManual), application.ErrCycleInProgress)

	close(runner.release)

	require.Eventually(t, func() bool {
		_, ok := s.Last()
		return ok && !s.Running()
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), runner.calls.Load())

	_, err = s.RunNow(context.Background(), model.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, int32(2), runner.calls.Load())
}

func TestScheduler_PanicIsRecovered(t *testing.T) {
	runner := newStubRunner(false)
	runner.panics = true
	s := application.NewScheduler(runner, staticCreds(nil), time.Hour)

	_, err := s.RunNow(context.Background(), model.TriggerManual)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	_, ok := s.Last()
	assert.False(t, ok)

	runner.panics = false
	_, err = s.RunNow(context.Background(), model.TriggerManual)
	require.NoError(t, err, "lock is released after a panic")
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	runner := newStubRunner(false)
	s := application.NewScheduler(runner, staticCreds(credsFor(model.VendorEnphase)), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		last, ok := s.Last()
		return ok && last.Trigger == model.TriggerScheduled
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_TickerDrivesCycles(t *testing.T) {
	runner := newStubRunner(false)
	s := application.NewScheduler(runner, staticCreds(nil), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)

	require.Eventually(t, func() bool {
		return runner.calls.Load() >= 3
	}, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_TryRunSharesCycleLock(t *testing.T) {
	runner := newStubRunner(true)
	s := application.NewScheduler(runner, staticCreds(credsFor(model.VendorSolarEdge)), time.Hour)

	require.NoError(t, s.TryStart(model.TriggerManual))
	<-runner.started

	ran := false
	err := s.TryRun("refresh se_1", func(context.Context) { ran = true })
	assert.ErrorIs(t, err, application.ErrCycleInProgress)

	close(runner.release)
	s.Wait()
	assert.False(t, ran)

	opStarted := make(chan struct{})
	opRelease := make(chan struct{})
	require.NoError(t, s.TryRun("refresh se_1", func(context.Context) {
		close(opStarted)
		<-opRelease
	}))
	<-opStarted

	assert.True(t, s.Running())
	_, err = s.RunNow(context.Background(), model.TriggerScheduled)
	assert.ErrorIs(t, err, application.ErrCycleInProgress)
	assert.ErrorIs(t, s.TryStart(model.TriggerManual), application.ErrCycleInProgress)

	close(opRelease)
	s.Wait()
	assert.False(t, s.Running())
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestScheduler_TryRunRecoversPanic(t *testing.T) {
	s := application.NewScheduler(newStubRunner(false), staticCreds(nil), time.Hour)

	require.NoError(t, s.TryRun("fetch SolarEdge", func(context.Context) { panic("boom") }))
	s.Wait()

	require.NoError(t, s.TryRun("fetch SolarEdge", func(context.Context) {}), "lock is released after a panic")
	s.Wait()
}

func TestScheduler_WaitBlocksUntilBackgroundCycleEnds(t *testing.T) {
	runner := newStubRunner(true)
	s := application.NewScheduler(runner, staticCreds(credsFor(model.VendorGenerac)), time.Hour)

	require.NoError(t, s.TryStart(model.TriggerManual))
	<-runner.started

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a cycle was running")
	case <-time.After(50 * time.Millisecond):
	}

	close(runner.release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the cycle finished")
	}
	_, ok := s.Last()
	assert.True(t, ok)
}
