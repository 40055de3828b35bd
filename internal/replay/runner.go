package replay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"pmintel/internal/history"
	"pmintel/internal/strategy"
)

// Runner re-scores stored refresh inputs with a policy and reports markets
// whose signal would have been different.
type Runner struct {
	tracker  *history.Tracker
	strategy strategy.Strategy
}

func NewRunner(tracker *history.Tracker, strat strategy.Strategy) *Runner {
	return &Runner{tracker: tracker, strategy: strat}
}

// Diff is one market whose replayed signal differs from the stored one.
type Diff struct {
	RefreshID         string          `json:"refresh_id"`
	At                time.Time       `json:"at"`
	MarketID          string          `json:"market_id"`
	Name              string          `json:"name"`
	StoredStrategy    string          `json:"stored_strategy"`
	Stored            strategy.Signal `json:"stored"`
	Replayed          strategy.Signal `json:"replayed"`
	StoredEstimated   *float64        `json:"stored_estimated,omitempty"`
	ReplayedEstimated *float64        `json:"replayed_estimated,omitempty"`
}

// Result summarizes a replay.
type Result struct {
	Policy    string    `json:"policy"`
	From      time.Time `json:"from"`
	To        time.Time `json:"to"`
	Refreshes int       `json:"refreshes"`
	Markets   int       `json:"markets"`
	Diffs     []Diff    `json:"diffs"`
}

// Run replays every refresh started in [from, to).
func (r *Runner) Run(ctx context.Context, from, to time.Time) (*Result, error) {
	slog.Info("replay starting", "policy", r.strategy.Name(),
		"from", from.Format("2006-01-02"), "to", to.Format("2006-01-02"))

	stored, err := r.tracker.Load(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("loading stored refreshes: %w", err)
	}

	res := &Result{
		Policy: r.strategy.Name(),
		From:   from,
		To:     to,
		Diffs:  []Diff{},
	}

	for _, s := range stored {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		scored, err := r.strategy.Evaluate(ctx, s.Inputs())
		if err != nil {
			slog.Warn("strategy error in replay", "refresh_id", s.ID, "error", err)
			continue
		}
		if len(scored) != len(s.Scored) {
			slog.Warn("replayed market count differs", "refresh_id", s.ID,
				"stored", len(s.Scored), "replayed", len(scored))
			continue
		}

		res.Refreshes++
		res.Markets += len(scored)
		for i, now := range scored {
			was := s.Scored[i]
			if now.Signal == was.Signal {
				continue
			}
			res.Diffs = append(res.Diffs, Diff{
				RefreshID:         s.ID,
				At:                s.StartedAt,
				MarketID:          was.ID,
				Name:              was.Name,
				StoredStrategy:    s.Strategy,
				Stored:            was.Signal,
				Replayed:          now.Signal,
				StoredEstimated:   was.Estimated,
				ReplayedEstimated: now.Estimated,
			})
		}
	}

	slog.Info("=== REPLAY RESULTS ===",
		"policy", res.Policy,
		"refreshes_replayed", res.Refreshes,
		"markets_scored", res.Markets,
		"signal_changes", len(res.Diffs),
	)
	return res, nil
}

// ParseDateRange parses YYYY-MM-DD bounds. An empty from means one year
// ago; an empty to means now. A given to date is inclusive.
func ParseDateRange(fromStr, toStr string, now time.Time) (time.Time, time.Time, error) {
	var from, to time.Time

	if fromStr == "" {
		from = now.AddDate(-1, 0, 0)
	} else {
		var err error
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing from date: %w", err)
		}
	}

	if toStr == "" {
		to = now
	} else {
		var err error
		to, err = time.Parse("2006-01-02", toStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing to date: %w", err)
		}
		to = to.AddDate(0, 0, 1)
	}

	if !from.Before(to) {
		return time.Time{}, time.Time{}, fmt.Errorf("from date %s is not before to date %s",
			from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	return from, to, nil
}
