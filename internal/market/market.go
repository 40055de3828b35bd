package market

import (
	"context"
	"fmt"
	"log/slog"

	"pmintel/internal/config"
)

// Record is one market as seen by the scoring policies. Reference is a
// probability for catalog and Manifold markets and a price for CoinGecko.
type Record struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Reference float64  `json:"reference"`
	URL       string   `json:"url"`
	Change24h *float64 `json:"change_24h,omitempty"`
	Source    string   `json:"source"`
}

// Fetcher produces the market records of one source.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) ([]Record, error)
}

// New builds the fetcher selected by cfg.Source, wrapped in a TTL memo when
// cfg.CacheTTL is positive. The static catalog is never memoized.
func New(cfg config.MarketsConfig) (Fetcher, error) {
	var f Fetcher
	switch cfg.Source {
	case config.SourceStatic:
		return NewCatalog(cfg.Catalog), nil
	case config.SourceCoinGecko:
		f = NewCoinGecko(cfg.CoinGecko, nil)
	case config.SourceManifold:
		f = NewManifold(nil, cfg.Manifold)
	default:
		return nil, fmt.Errorf("unknown market source %q", cfg.Source)
	}

	slog.Debug("market fetcher configured", "source", f.Name(), "cache_ttl", cfg.CacheTTL.Duration)
	return Memoize(f, cfg.CacheTTL.Duration), nil
}

func ptr(v float64) *float64 {
	return &v
}
