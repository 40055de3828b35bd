package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmintel/internal/config"
	"pmintel/internal/refresh"
)

func testConfig() config.ScheduleConfig {
	return config.ScheduleConfig{
		RefreshInterval: config.Duration{Duration: time.Hour},
	}
}

// funcRefresher adapts a function to Refresher and counts calls.
type funcRefresher struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call int32) (*refresh.Snapshot, error)
}

func (f *funcRefresher) Refresh(ctx context.Context) (*refresh.Snapshot, error) {
	n := f.calls.Add(1)
	return f.fn(ctx, n)
}

// cachingRefresher counts invalidations alongside refreshes.
type cachingRefresher struct {
	funcRefresher
	invalidations atomic.Int32
}

func (c *cachingRefresher) Invalidate() { c.invalidations.Add(1) }

type recordingHook struct {
	mu    sync.Mutex
	snaps []*refresh.Snapshot
	err   error
}

func (h *recordingHook) Record(_ context.Context, snap *refresh.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, snap)
	return h.err
}

func (h *recordingHook) Notify(ctx context.Context, snap *refresh.Snapshot) error {
	return h.Record(ctx, snap)
}

func (h *recordingHook) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.snaps)
}

func snapshot(strategy string) *refresh.Snapshot {
	return &refresh.Snapshot{ID: uuid.New(), Strategy: strategy}
}

func TestRun_InitialCycle(t *testing.T) {
	r := &funcRefresher{fn: func(context.Context, int32) (*refresh.Snapshot, error) {
		return snapshot("first"), nil
	}}
	rec := &recordingHook{}
	notif := &recordingHook{err: errors.New("telegram down")}
	s := New(r, rec, notif, nil, testConfig())
	assert.Nil(t, s.Latest())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "first", s.Latest().Strategy)
	require.Eventually(t, func() bool { return rec.count() == 1 && notif.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestTrigger_AbandonsInFlightCycle(t *testing.T) {
	started := make(chan struct{})
	abandoned := make(chan struct{})

	r := &funcRefresher{fn: func(ctx context.Context, call int32) (*refresh.Snapshot, error) {
		if call == 1 {
			close(started)
			<-ctx.Done()
			close(abandoned)
			return nil, ctx.Err()
		}
		return snapshot("second"), nil
	}}
	rec := &recordingHook{}
	s := New(r, rec, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	<-started
	s.Trigger()

	select {
	case <-abandoned:
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight refresh was not cancelled")
	}

	require.Eventually(t, func() bool { return s.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "second", s.Latest().Strategy)
	assert.Equal(t, int32(2), r.calls.Load())
	// The abandoned cycle published and recorded nothing.
	assert.Equal(t, 1, rec.count())
}

func TestTrigger_Idle(t *testing.T) {
	r := &funcRefresher{fn: func(_ context.Context, call int32) (*refresh.Snapshot, error) {
		return snapshot("cycle"), nil
	}}
	s := New(r, nil, nil, nil, testConfig())

	// Triggers before Run are coalesced into one pending request.
	s.Trigger()
	s.Trigger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestRun_FailedCycleKeepsPrevious(t *testing.T) {
	r := &funcRefresher{fn: func(_ context.Context, call int32) (*refresh.Snapshot, error) {
		if call == 1 {
			return snapshot("good"), nil
		}
		return nil, errors.New("boom")
	}}
	s := New(r, nil, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	s.Trigger()
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "good", s.Latest().Strategy)
}

type countingReporter struct {
	calls atomic.Int32
}

func (c *countingReporter) Report(context.Context) error {
	c.calls.Add(1)
	return nil
}

func TestRun_PeriodicReport(t *testing.T) {
	r := &funcRefresher{fn: func(context.Context, int32) (*refresh.Snapshot, error) {
		return snapshot("x"), nil
	}}
	rep := &countingReporter{}
	cfg := testConfig()
	cfg.ReportInterval = config.Duration{Duration: 20 * time.Millisecond}
	s := New(r, nil, nil, rep, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return rep.calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestTrigger_InvalidatesCachedInputs(t *testing.T) {
	r := &cachingRefresher{}
	r.fn = func(_ context.Context, call int32) (*refresh.Snapshot, error) {
		return snapshot("cycle"), nil
	}
	s := New(r, nil, nil, nil, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Latest() != nil }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), r.invalidations.Load())

	s.Trigger()
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), r.invalidations.Load())
}
