package collector

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"pmintel/internal/db"
	"pmintel/internal/market"
	"pmintel/internal/news"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	if err := db.Migrate(database); err != nil {
		t.Fatal(err)
	}
	return database
}

func f(v float64) *float64 { return &v }

func TestRecord(t *testing.T) {
	database := openDB(t)
	c := NewCollector(database)

	started := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	buy := strategy.Scored{
		Record:    market.Record{ID: "static-2", Name: "Bitcoin > $100k", Reference: 0.33, URL: "https://example.com", Source: "static"},
		Estimated: f(0.55),
		Gap:       f(0.22),
		Signal:    strategy.Buy,
		Strategy:  "news_biased",
		Reason:    "estimated 0.55",
	}
	snap := &refresh.Snapshot{
		ID:          uuid.New(),
		Strategy:    "news_biased",
		Source:      "static",
		StartedAt:   started,
		CompletedAt: started.Add(time.Second),
		Markets: []strategy.Scored{
			{Record: market.Record{ID: "static-1", Name: "US Election 2024", Reference: 0.52}, Estimated: f(0.55), Gap: f(0.03), Signal: strategy.Hold},
			buy,
		},
		News: []news.Item{
			{Title: "Election commission sets date", Published: started.Add(-time.Hour), Link: "https://example.com/1", Source: "feed"},
		},
		Alerts:   []strategy.Scored{buy},
		Warnings: []string{"feed https://bad.example.com skipped: timeout"},
	}

	if err := c.Record(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	var markets, alerts, newsCount int
	var warnings sql.NullString
	row := database.QueryRow(`SELECT market_count, alert_count, news_count, warnings FROM refreshes WHERE id = ?`, snap.ID.String())
	if err := row.Scan(&markets, &alerts, &newsCount, &warnings); err != nil {
		t.Fatal(err)
	}
	if markets != 2 || alerts != 1 || newsCount != 1 {
		t.Errorf("expected 2 markets, 1 alert, 1 news item, got %d, %d, %d", markets, alerts, newsCount)
	}
	if !warnings.Valid {
		t.Error("expected warnings to be stored")
	}

	var signal string
	var change sql.NullFloat64
	row = database.QueryRow(`SELECT signal, change_24h FROM scored_markets WHERE refresh_id = ? AND position = 1`, snap.ID.String())
	if err := row.Scan(&signal, &change); err != nil {
		t.Fatal(err)
	}
	if signal != "BUY" {
		t.Errorf("expected BUY, got %s", signal)
	}
	if change.Valid {
		t.Error("expected NULL change_24h")
	}
}

func TestRecord_DuplicateRollsBack(t *testing.T) {
	database := openDB(t)
	c := NewCollector(database)

	snap := &refresh.Snapshot{
		ID:        uuid.New(),
		Strategy:  "probability_threshold",
		Source:    "static",
		StartedAt: time.Now(),
		Markets: []strategy.Scored{
			{Record: market.Record{ID: "a", Name: "A", Reference: 0.7}, Signal: strategy.Buy},
		},
	}

	if err := c.Record(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	if err := c.Record(context.Background(), snap); err == nil {
		t.Fatal("expected error recording the same refresh twice")
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM scored_markets`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 scored market after rollback, got %d", count)
	}
}
