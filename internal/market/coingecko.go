package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"pmintel/internal/config"
)

// CoinGecko reads current prices and 24h changes from the /coins/markets endpoint.
type CoinGecko struct {
	baseURL    string
	vsCurrency string
	ids        []string
	client     *http.Client
	limiter    *rate.Limiter
}

// NewCoinGecko builds a price fetcher. A nil client gets one with cfg.Timeout.
func NewCoinGecko(cfg config.CoinGeckoConfig, client *http.Client) *CoinGecko {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout.Duration}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}

	return &CoinGecko{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		vsCurrency: cfg.VsCurrency,
		ids:        cfg.CoinIDs,
		client:     client,
		limiter:    rate.NewLimiter(limit, 1),
	}
}

func (c *CoinGecko) Name() string { return config.SourceCoinGecko }

type coinMarket struct {
	ID                       string   `json:"id"`
	Name                     string   `json:"name"`
	CurrentPrice             float64  `json:"current_price"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
}

// Fetch issues a single request for all configured coins. Any transport,
// status or decode failure is returned as an error.
func (c *CoinGecko) Fetch(ctx context.Context) ([]Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for coingecko rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("vs_currency", c.vsCurrency)
	q.Set("ids", strings.Join(c.ids, ","))
	endpoint := c.baseURL + "/coins/markets?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building coingecko request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("requesting coingecko markets: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coingecko returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var coins []coinMarket
	if err := json.NewDecoder(resp.Body).Decode(&coins); err != nil {
		return nil, fmt.Errorf("decoding coingecko markets: %w", err)
	}

	result := make([]Record, 0, len(coins))
	for _, coin := range coins {
		r := Record{
			ID:        coin.ID,
			Name:      coin.Name,
			Reference: coin.CurrentPrice,
			URL:       "https://www.coingecko.com/en/coins/" + coin.ID,
			Source:    config.SourceCoinGecko,
		}
		if coin.PriceChangePercentage24h != nil {
			r.Change24h = ptr(*coin.PriceChangePercentage24h)
		}
		result = append(result, r)
	}

	slog.Debug("fetched coingecko markets", "count", len(result), "duration", time.Since(start))
	return result, nil
}
