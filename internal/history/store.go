package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"pmintel/internal/db"
	"pmintel/internal/market"
	"pmintel/internal/news"
	"pmintel/internal/strategy"
)

// Stored is one refresh read back from the database: the inputs the policy
// saw and what it produced.
type Stored struct {
	ID        string
	Strategy  string
	Source    string
	StartedAt time.Time
	Scored    []strategy.Scored
	News      []news.Item
}

// Inputs returns the policy input of the stored refresh.
func (s Stored) Inputs() strategy.Input {
	records := make([]market.Record, len(s.Scored))
	for i, sc := range s.Scored {
		records[i] = sc.Record
	}
	return strategy.Input{Markets: records, News: s.News}
}

// Load reads the refreshes started in [from, to), oldest first. A zero
// bound is open.
func (t *Tracker) Load(ctx context.Context, from, to time.Time) ([]Stored, error) {
	lower, upper := "", "9999"
	if !from.IsZero() {
		lower = from.UTC().Format(db.TimeLayout)
	}
	if !to.IsZero() {
		upper = to.UTC().Format(db.TimeLayout)
	}

	rows, err := t.db.QueryContext(ctx, `
		SELECT id, strategy, source, started_at
		FROM refreshes
		WHERE started_at >= ? AND started_at < ?
		ORDER BY started_at ASC`,
		lower, upper,
	)
	if err != nil {
		return nil, fmt.Errorf("querying refreshes: %w", err)
	}

	var stored []Stored
	for rows.Next() {
		var s Stored
		var started string
		if err := rows.Scan(&s.ID, &s.Strategy, &s.Source, &started); err != nil {
			rows.Close()
			return nil, err
		}
		if s.StartedAt, err = time.Parse(db.TimeLayout, started); err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing refresh time: %w", err)
		}
		stored = append(stored, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range stored {
		if stored[i].Scored, err = t.loadScored(ctx, stored[i].ID, stored[i].Strategy); err != nil {
			return nil, fmt.Errorf("loading markets of refresh %s: %w", stored[i].ID, err)
		}
		if stored[i].News, err = t.loadNews(ctx, stored[i].ID); err != nil {
			return nil, fmt.Errorf("loading news of refresh %s: %w", stored[i].ID, err)
		}
	}
	return stored, nil
}

func (t *Tracker) loadScored(ctx context.Context, refreshID, strategyName string) ([]strategy.Scored, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT market_id, name, reference, url, change_24h, market_source, estimated, gap, signal, reason
		FROM scored_markets
		WHERE refresh_id = ?
		ORDER BY position ASC`,
		refreshID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scored := []strategy.Scored{}
	for rows.Next() {
		var sc strategy.Scored
		var change, estimated, gap sql.NullFloat64
		var signal string
		if err := rows.Scan(
			&sc.ID, &sc.Name, &sc.Reference, &sc.URL, &change, &sc.Source,
			&estimated, &gap, &signal, &sc.Reason,
		); err != nil {
			return nil, err
		}
		sc.Change24h = fromNull(change)
		sc.Estimated = fromNull(estimated)
		sc.Gap = fromNull(gap)
		sc.Signal = strategy.Signal(signal)
		sc.Strategy = strategyName
		scored = append(scored, sc)
	}
	return scored, rows.Err()
}

func (t *Tracker) loadNews(ctx context.Context, refreshID string) ([]news.Item, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT title, published, link, source, timestamp_fallback
		FROM news_items
		WHERE refresh_id = ?
		ORDER BY position ASC`,
		refreshID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []news.Item{}
	for rows.Next() {
		var it news.Item
		var published string
		if err := rows.Scan(&it.Title, &published, &it.Link, &it.Source, &it.Fallback); err != nil {
			return nil, err
		}
		if it.Published, err = time.Parse(db.TimeLayout, published); err != nil {
			return nil, fmt.Errorf("parsing published time: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
