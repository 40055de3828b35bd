package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"pmintel/internal/market"
	"pmintel/internal/metrics"
	"pmintel/internal/news"
	"pmintel/internal/strategy"
)

// Snapshot is the result of one refresh cycle. It is never modified after
// Refresh returns it.
type Snapshot struct {
	ID          uuid.UUID         `json:"id"`
	Strategy    string            `json:"strategy"`
	Source      string            `json:"source"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt time.Time         `json:"completed_at"`
	Markets     []strategy.Scored `json:"markets"`
	News        []news.Item       `json:"news"`
	Alerts      []strategy.Scored `json:"alerts"`
	Warnings    []string          `json:"warnings"`
}

// SignalCounts tallies the scored markets by signal. All three signals are
// always present.
func (s *Snapshot) SignalCounts() map[strategy.Signal]int {
	counts := map[strategy.Signal]int{
		strategy.Buy:  0,
		strategy.Sell: 0,
		strategy.Hold: 0,
	}
	for _, m := range s.Markets {
		counts[m.Signal]++
	}
	return counts
}

// NewsSource supplies the headlines of a cycle. *news.Fetcher implements it.
type NewsSource interface {
	Fetch(ctx context.Context) ([]news.Item, []news.SourceError)
}

// Refresher runs the fetch, fetch, score sequence.
type Refresher struct {
	markets  market.Fetcher
	news     NewsSource
	strategy strategy.Strategy
	metrics  *metrics.Registry
	now      func() time.Time
}

// New builds a Refresher. m may be nil.
func New(markets market.Fetcher, newsSrc NewsSource, strat strategy.Strategy, m *metrics.Registry) *Refresher {
	return &Refresher{
		markets:  markets,
		news:     newsSrc,
		strategy: strat,
		metrics:  m,
		now:      time.Now,
	}
}

// Refresh runs one cycle. Fetch failures are folded into the snapshot's
// warnings; the only error returned is the context's, when the cycle was
// cancelled before it completed.
func (r *Refresher) Refresh(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		ID:        uuid.New(),
		Strategy:  r.strategy.Name(),
		Source:    r.markets.Name(),
		StartedAt: r.now(),
		Warnings:  []string{},
	}
	log := slog.With("refresh_id", snap.ID.String())
	log.Info("refresh starting", "strategy", snap.Strategy, "source", snap.Source)

	records, err := r.markets.Fetch(ctx)
	if cerr := ctx.Err(); cerr != nil {
		return r.abandon(snap, cerr)
	}
	if err != nil {
		log.Warn("market fetch failed", "source", snap.Source, "error", err)
		r.metrics.MarketFetchFailed(snap.Source)
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("market source %s unavailable: %v", snap.Source, err))
		records = []market.Record{}
	}
	if records == nil {
		records = []market.Record{}
	}

	items, failed := r.news.Fetch(ctx)
	if cerr := ctx.Err(); cerr != nil {
		return r.abandon(snap, cerr)
	}
	for _, f := range failed {
		r.metrics.FeedFailed(f.Source)
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("feed %s skipped: %v", f.Source, f.Err))
	}
	if items == nil {
		items = []news.Item{}
	}
	for _, it := range items {
		if it.Fallback != "" {
			r.metrics.TimestampFallback(it.Fallback)
		}
	}

	scored, err := r.strategy.Evaluate(ctx, strategy.Input{Markets: records, News: items})
	if err != nil {
		log.Warn("strategy evaluation failed", "strategy", snap.Strategy, "error", err)
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("strategy %s failed: %v", snap.Strategy, err))
		scored = []strategy.Scored{}
	}
	if scored == nil {
		scored = []strategy.Scored{}
	}
	if cerr := ctx.Err(); cerr != nil {
		return r.abandon(snap, cerr)
	}

	snap.Markets = scored
	snap.News = items
	snap.Alerts = strategy.Alerts(scored)
	snap.CompletedAt = r.now()

	counts := snap.SignalCounts()
	byName := make(map[string]int, len(counts))
	for sig, n := range counts {
		byName[string(sig)] = n
	}
	r.metrics.ObserveRefresh("ok", snap.CompletedAt.Sub(snap.StartedAt))
	r.metrics.SetSnapshot(byName, len(items), snap.CompletedAt)

	log.Info("refresh complete",
		"markets", len(snap.Markets),
		"news", len(snap.News),
		"alerts", len(snap.Alerts),
		"warnings", len(snap.Warnings),
		"duration", snap.CompletedAt.Sub(snap.StartedAt),
	)
	return snap, nil
}

// Invalidate drops any memoized market results so the next cycle fetches
// upstream.
func (r *Refresher) Invalidate() {
	if inv, ok := r.markets.(market.Invalidator); ok {
		inv.Invalidate()
	}
}

func (r *Refresher) abandon(snap *Snapshot, err error) (*Snapshot, error) {
	r.metrics.ObserveRefresh("cancelled", r.now().Sub(snap.StartedAt))
	slog.Info("refresh abandoned", "refresh_id", snap.ID.String(), "reason", err)
	return nil, err
}
