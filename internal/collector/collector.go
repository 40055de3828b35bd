package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"pmintel/internal/db"
	"pmintel/internal/refresh"
)

// Collector writes completed snapshots to the history database. History is
// write-only from the refresh cycle's point of view.
type Collector struct {
	db *sql.DB
}

func NewCollector(database *sql.DB) *Collector {
	return &Collector{db: database}
}

// Record stores the refresh row, its scored markets and its news items in a
// single transaction.
func (c *Collector) Record(ctx context.Context, snap *refresh.Snapshot) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning history transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertRefresh(ctx, tx, snap); err != nil {
		return fmt.Errorf("inserting refresh: %w", err)
	}

	for i, m := range snap.Markets {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO scored_markets (refresh_id, position, market_id, name, reference, url, change_24h,
			                            market_source, estimated, gap, signal, reason)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID.String(), i, m.ID, m.Name, m.Reference, m.URL, nullFloat(m.Change24h),
			m.Source, nullFloat(m.Estimated), nullFloat(m.Gap), string(m.Signal), m.Reason,
		)
		if err != nil {
			return fmt.Errorf("inserting scored market %s: %w", m.ID, err)
		}
	}

	for i, n := range snap.News {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO news_items (refresh_id, position, title, published, link, source, timestamp_fallback)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			snap.ID.String(), i, n.Title, n.Published.UTC().Format(db.TimeLayout), n.Link, n.Source, n.Fallback,
		)
		if err != nil {
			return fmt.Errorf("inserting news item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing history: %w", err)
	}

	slog.Info("refresh recorded",
		"refresh_id", snap.ID.String(),
		"markets", len(snap.Markets),
		"news", len(snap.News),
	)
	return nil
}

func insertRefresh(ctx context.Context, tx *sql.Tx, snap *refresh.Snapshot) error {
	var warnings *string
	if len(snap.Warnings) > 0 {
		data, err := json.Marshal(snap.Warnings)
		if err == nil {
			s := string(data)
			warnings = &s
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO refreshes (id, strategy, source, started_at, completed_at, market_count, news_count, alert_count, warnings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID.String(), snap.Strategy, snap.Source,
		snap.StartedAt.UTC().Format(db.TimeLayout), snap.CompletedAt.UTC().Format(db.TimeLayout),
		len(snap.Markets), len(snap.News), len(snap.Alerts), warnings,
	)
	return err
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
