package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pmintel/internal/db"
)

// Tracker computes summaries of stored refreshes.
type Tracker struct {
	db *sql.DB
}

func NewTracker(database *sql.DB) *Tracker {
	return &Tracker{db: database}
}

// Report summarizes every stored refresh.
type Report struct {
	Refreshes         int            `json:"refreshes"`
	RefreshesWarned   int            `json:"refreshes_warned"`
	FirstRefresh      time.Time      `json:"first_refresh"`
	LastRefresh       time.Time      `json:"last_refresh"`
	SignalTotals      map[string]int `json:"signal_totals"`
	StrategyRefreshes map[string]int `json:"strategy_refreshes"`
	Markets           []MarketStats  `json:"markets"`
}

// MarketStats is the signal history of one market across refreshes.
type MarketStats struct {
	MarketID   string `json:"market_id"`
	Name       string `json:"name"`
	Buy        int    `json:"buy"`
	Sell       int    `json:"sell"`
	Hold       int    `json:"hold"`
	LastSignal string `json:"last_signal"`
	// Flips counts changes of signal between consecutive appearances.
	Flips int `json:"flips"`
}

// Generate computes the full history report.
func (t *Tracker) Generate(ctx context.Context) (*Report, error) {
	r := &Report{
		SignalTotals:      make(map[string]int),
		StrategyRefreshes: make(map[string]int),
		Markets:           []MarketStats{},
	}

	if err := t.computeOverall(ctx, r); err != nil {
		return nil, fmt.Errorf("computing overall stats: %w", err)
	}
	if err := t.computeSignalTotals(ctx, r); err != nil {
		return nil, fmt.Errorf("computing signal totals: %w", err)
	}
	if err := t.computeMarketStats(ctx, r); err != nil {
		return nil, fmt.Errorf("computing market stats: %w", err)
	}

	return r, nil
}

// Report generates and logs the history report.
func (t *Tracker) Report(ctx context.Context) error {
	r, err := t.Generate(ctx)
	if err != nil {
		return err
	}
	LogReport(r)
	return nil
}

func (t *Tracker) computeOverall(ctx context.Context, r *Report) error {
	row := t.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(MIN(started_at), ''), COALESCE(MAX(started_at), ''),
		       COALESCE(SUM(CASE WHEN warnings IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM refreshes`)
	var first, last string
	if err := row.Scan(&r.Refreshes, &first, &last, &r.RefreshesWarned); err != nil {
		return err
	}

	var err error
	if first != "" {
		if r.FirstRefresh, err = time.Parse(db.TimeLayout, first); err != nil {
			return fmt.Errorf("parsing first refresh time: %w", err)
		}
	}
	if last != "" {
		if r.LastRefresh, err = time.Parse(db.TimeLayout, last); err != nil {
			return fmt.Errorf("parsing last refresh time: %w", err)
		}
	}

	rows, err := t.db.QueryContext(ctx, `SELECT strategy, COUNT(*) FROM refreshes GROUP BY strategy`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return err
		}
		r.StrategyRefreshes[name] = n
	}
	return rows.Err()
}

func (t *Tracker) computeSignalTotals(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `SELECT signal, COUNT(*) FROM scored_markets GROUP BY signal`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sig string
		var n int
		if err := rows.Scan(&sig, &n); err != nil {
			return err
		}
		r.SignalTotals[sig] = n
	}
	return rows.Err()
}

func (t *Tracker) computeMarketStats(ctx context.Context, r *Report) error {
	rows, err := t.db.QueryContext(ctx, `
		SELECT s.market_id, s.name, s.signal
		FROM scored_markets s
		JOIN refreshes r ON r.id = s.refresh_id
		ORDER BY r.started_at ASC, s.position ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var id, name, sig string
		if err := rows.Scan(&id, &name, &sig); err != nil {
			return err
		}

		i, ok := index[id]
		if !ok {
			i = len(r.Markets)
			index[id] = i
			r.Markets = append(r.Markets, MarketStats{MarketID: id})
		}
		ms := &r.Markets[i]
		ms.Name = name

		switch sig {
		case "BUY":
			ms.Buy++
		case "SELL":
			ms.Sell++
		default:
			ms.Hold++
		}
		if ms.LastSignal != "" && ms.LastSignal != sig {
			ms.Flips++
		}
		ms.LastSignal = sig
	}
	return rows.Err()
}
