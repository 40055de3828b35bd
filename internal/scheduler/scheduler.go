package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"pmintel/internal/config"
	"pmintel/internal/refresh"
)

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) (*refresh.Snapshot, error)
}

// Invalidator is optionally implemented by a Refresher holding cached
// inputs; a manual trigger clears them.
type Invalidator interface {
	Invalidate()
}

// Recorder stores completed snapshots.
type Recorder interface {
	Record(ctx context.Context, snap *refresh.Snapshot) error
}

// Notifier publishes completed snapshots to an outside channel.
type Notifier interface {
	Notify(ctx context.Context, snap *refresh.Snapshot) error
}

// Reporter summarizes stored history.
type Reporter interface {
	Report(ctx context.Context) error
}

// Scheduler runs refresh cycles on an interval or on demand and publishes
// the latest completed snapshot. Cycles never overlap.
type Scheduler struct {
	refresher Refresher
	recorder  Recorder
	notifier  Notifier
	reporter  Reporter
	cfg       config.ScheduleConfig

	latest  atomic.Pointer[refresh.Snapshot]
	trigger chan struct{}

	mu          sync.Mutex
	cancelCycle context.CancelFunc
}

// New creates a Scheduler. recorder, notifier and reporter may be nil.
func New(
	refresher Refresher,
	recorder Recorder,
	notifier Notifier,
	reporter Reporter,
	cfg config.ScheduleConfig,
) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		recorder:  recorder,
		notifier:  notifier,
		reporter:  reporter,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
	}
}

// Latest returns the most recent completed snapshot, or nil before the
// first cycle completes.
func (s *Scheduler) Latest() *refresh.Snapshot {
	return s.latest.Load()
}

// Trigger abandons the cycle in flight, if any, and schedules a new one
// that bypasses cached inputs. It never blocks.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if s.cancelCycle != nil {
		s.cancelCycle()
	}
	s.mu.Unlock()

	if inv, ok := s.refresher.(Invalidator); ok {
		inv.Invalidate()
	}

	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run performs a cycle immediately, then loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("scheduler starting",
		"refresh_interval", s.cfg.RefreshInterval.Duration,
		"report_interval", s.cfg.ReportInterval.Duration,
	)

	s.runCycle(ctx)

	refreshTicker := time.NewTicker(s.cfg.RefreshInterval.Duration)
	defer refreshTicker.Stop()

	var reportC <-chan time.Time
	if s.reporter != nil && s.cfg.ReportInterval.Duration > 0 {
		reportTicker := time.NewTicker(s.cfg.ReportInterval.Duration)
		defer reportTicker.Stop()
		reportC = reportTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler shutting down")
			return ctx.Err()
		case <-refreshTicker.C:
			s.runCycle(ctx)
		case <-s.trigger:
			slog.Info("manual refresh requested")
			s.runCycle(ctx)
			refreshTicker.Reset(s.cfg.RefreshInterval.Duration)
		case <-reportC:
			s.runReport(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelCycle = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.cancelCycle = nil
		s.mu.Unlock()
		cancel()
	}()

	snap, err := s.refresher.Refresh(cycleCtx)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			slog.Info("refresh stopped by shutdown")
		case errors.Is(err, context.Canceled):
			slog.Info("refresh abandoned for a newer one")
		default:
			slog.Error("refresh failed", "error", err)
		}
		return
	}

	s.latest.Store(snap)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, snap); err != nil {
			slog.Error("recording refresh failed", "refresh_id", snap.ID.String(), "error", err)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, snap); err != nil {
			slog.Warn("alert notification failed", "refresh_id", snap.ID.String(), "error", err)
		}
	}
}

func (s *Scheduler) runReport(ctx context.Context) {
	if err := s.reporter.Report(ctx); err != nil {
		slog.Error("history report failed", "error", err)
	}
}
