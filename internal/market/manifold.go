package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonnyspicer/mango"

	"pmintel/internal/config"
)

// marketSearcher is the part of the Manifold client Manifold uses.
type marketSearcher interface {
	SearchMarkets(req mango.SearchMarketsRequest) (*[]mango.FullMarket, error)
}

// Manifold fetches open binary markets from the Manifold API.
type Manifold struct {
	client marketSearcher
	cfg    config.ManifoldConfig
}

// NewManifold wraps client. A nil client uses the default mango client.
func NewManifold(client *mango.Client, cfg config.ManifoldConfig) *Manifold {
	m := &Manifold{cfg: cfg}
	if client == nil {
		m.client = mango.DefaultClientInstance()
	} else {
		m.client = client
	}
	return m
}

func (m *Manifold) Name() string { return config.SourceManifold }

// Fetch returns open binary markets sorted by liquidity, skipping resolved
// markets and those below the minimum liquidity.
func (m *Manifold) Fetch(ctx context.Context) ([]Record, error) {
	// The mango client does not take a context.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	markets, err := m.client.SearchMarkets(mango.SearchMarketsRequest{
		Filter:       "open",
		ContractType: "BINARY",
		Sort:         "liquidity",
		Limit:        m.cfg.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching binary markets: %w", err)
	}
	if markets == nil {
		return []Record{}, nil
	}

	result := make([]Record, 0, len(*markets))
	skipped := 0
	for _, fm := range *markets {
		if fm.IsResolved || fm.TotalLiquidity < m.cfg.MinLiquidity {
			skipped++
			continue
		}
		result = append(result, fullMarketToRecord(fm))
	}
	slog.Info("scanned binary markets", "count", len(result), "skipped", skipped)
	return result, nil
}

func fullMarketToRecord(fm mango.FullMarket) Record {
	return Record{
		ID:        fm.Id,
		Name:      fm.Question,
		Reference: Clamp01(fm.Probability),
		URL:       fm.Url,
		Source:    config.SourceManifold,
	}
}

// Clamp01 bounds a probability to [0, 1].
func Clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
