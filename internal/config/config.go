package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Market sources.
const (
	SourceStatic    = "static"
	SourceCoinGecko = "coingecko"
	SourceManifold  = "manifold"
)

// Strategy policies.
const (
	PolicyNewsBiased           = "news_biased"
	PolicyProbabilityThreshold = "probability_threshold"
	PolicyChangeThreshold      = "change_threshold"
)

// News scopes for the news-biased policy.
const (
	ScopeAll     = "all"
	ScopeMatched = "matched"
)

type Config struct {
	General  GeneralConfig  `toml:"general"`
	Schedule ScheduleConfig `toml:"schedule"`
	News     NewsConfig     `toml:"news"`
	Markets  MarketsConfig  `toml:"markets"`
	Strategy StrategyConfig `toml:"strategy"`
	Server   ServerConfig   `toml:"server"`
	Telegram TelegramConfig `toml:"telegram"`
}

type GeneralConfig struct {
	DBPath    string `toml:"db_path"`
	History   bool   `toml:"history"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

type ScheduleConfig struct {
	RefreshInterval Duration `toml:"refresh_interval"`
	ReportInterval  Duration `toml:"report_interval"`
}

type NewsConfig struct {
	Sources           []string `toml:"sources"`
	LimitPerFeed      int      `toml:"limit_per_feed"`
	RecencyWindowDays int      `toml:"recency_window_days"`
	Timeout           Duration `toml:"timeout"`
	UserAgent         string   `toml:"user_agent"`
}

// RecencyWindow returns the configured window as a duration.
func (n NewsConfig) RecencyWindow() time.Duration {
	return time.Duration(n.RecencyWindowDays) * 24 * time.Hour
}

type MarketsConfig struct {
	Source    string          `toml:"source"`
	CacheTTL  Duration        `toml:"cache_ttl"`
	Catalog   []CatalogEntry  `toml:"catalog"`
	CoinGecko CoinGeckoConfig `toml:"coingecko"`
	Manifold  ManifoldConfig  `toml:"manifold"`
}

// CatalogEntry is one market of the static catalog.
type CatalogEntry struct {
	Name        string  `toml:"name"`
	Probability float64 `toml:"probability"`
	URL         string  `toml:"url"`
}

type CoinGeckoConfig struct {
	BaseURL           string   `toml:"base_url"`
	VsCurrency        string   `toml:"vs_currency"`
	CoinIDs           []string `toml:"coin_ids"`
	RequestsPerMinute int      `toml:"requests_per_minute"`
	Timeout           Duration `toml:"timeout"`
}

type ManifoldConfig struct {
	Limit        int64   `toml:"limit"`
	MinLiquidity float64 `toml:"min_liquidity"`
}

type StrategyConfig struct {
	Policy               string                     `toml:"policy"`
	NewsBiased           NewsBiasedConfig           `toml:"news_biased"`
	ProbabilityThreshold ProbabilityThresholdConfig `toml:"probability_threshold"`
	ChangeThreshold      ChangeThresholdConfig      `toml:"change_threshold"`
}

type NewsBiasedConfig struct {
	BaseProbability float64       `toml:"base_probability"`
	GapThreshold    float64       `toml:"gap_threshold"`
	Scope           string        `toml:"scope"`
	Keywords        []KeywordRule `toml:"keywords"`
}

// KeywordRule adds Delta once per title containing any of Terms.
type KeywordRule struct {
	Terms []string `toml:"terms"`
	Delta float64  `toml:"delta"`
}

type ProbabilityThresholdConfig struct {
	BuyAt  float64 `toml:"buy_at"`
	SellAt float64 `toml:"sell_at"`
}

type ChangeThresholdConfig struct {
	BuyAbove  float64 `toml:"buy_above"`
	SellBelow float64 `toml:"sell_below"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	Enabled        bool     `toml:"enabled"`
	BotToken       string   `toml:"bot_token"`
	ChatID         string   `toml:"chat_id"`
	MaxRetries     int      `toml:"max_retries"`
	RetryDelayBase Duration `toml:"retry_delay_base"`
}

// Duration wraps time.Duration for TOML unmarshaling.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load reads the TOML file at path on top of DefaultConfig. A missing file is
// not an error when allowMissing is set; defaults are returned instead.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Arrays of tables decode element-wise into an existing slice, so a
	// partial user entry would inherit fields of the default at its index.
	md, err := toml.Decode(string(data), &Config{})
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if md.IsDefined("markets", "catalog") {
		cfg.Markets.Catalog = nil
	}
	if md.IsDefined("strategy", "news_biased", "keywords") {
		cfg.Strategy.NewsBiased.Keywords = nil
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DBPath:    "./data/pmintel.db",
			History:   true,
			LogLevel:  "info",
			LogFormat: "json",
		},
		Schedule: ScheduleConfig{
			RefreshInterval: Duration{5 * time.Minute},
			ReportInterval:  Duration{time.Hour},
		},
		News: NewsConfig{
			Sources: []string{
				"https://www.reuters.com/rssFeed/worldNews",
				"https://news.google.com/rss/search?q=politics+Nigeria",
			},
			LimitPerFeed:      10,
			RecencyWindowDays: 7,
			Timeout:           Duration{15 * time.Second},
			UserAgent:         "pmintel/1.0",
		},
		Markets: MarketsConfig{
			Source:   SourceStatic,
			CacheTTL: Duration{5 * time.Minute},
			Catalog: []CatalogEntry{
				{Name: "US Election 2024", Probability: 0.52, URL: "https://example.com"},
				{Name: "Bitcoin > $100k", Probability: 0.33, URL: "https://example.com"},
				{Name: "NFL Super Bowl winner", Probability: 0.47, URL: "https://example.com"},
			},
			CoinGecko: CoinGeckoConfig{
				BaseURL:           "https://api.coingecko.com/api/v3",
				VsCurrency:        "usd",
				CoinIDs:           []string{"bitcoin", "ethereum", "solana", "ripple", "cardano"},
				RequestsPerMinute: 30,
				Timeout:           Duration{10 * time.Second},
			},
			Manifold: ManifoldConfig{
				Limit:        50,
				MinLiquidity: 100,
			},
		},
		Strategy: StrategyConfig{
			Policy: PolicyNewsBiased,
			NewsBiased: NewsBiasedConfig{
				BaseProbability: 0.50,
				GapThreshold:    0.10,
				Scope:           ScopeAll,
				Keywords:        DefaultKeywords(),
			},
			ProbabilityThreshold: ProbabilityThresholdConfig{
				BuyAt:  0.6,
				SellAt: 0.4,
			},
			ChangeThreshold: ChangeThresholdConfig{
				BuyAbove:  1.0,
				SellBelow: -1.0,
			},
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Telegram: TelegramConfig{
			MaxRetries:     3,
			RetryDelayBase: Duration{time.Second},
		},
	}
}

// DefaultKeywords is the headline keyword table of the news-biased policy.
func DefaultKeywords() []KeywordRule {
	return []KeywordRule{
		{Terms: []string{"election"}, Delta: 0.10},
		{Terms: []string{"supreme court"}, Delta: 0.10},
		{Terms: []string{"postponed", "delay"}, Delta: -0.10},
		{Terms: []string{"protest"}, Delta: -0.05},
		{Terms: []string{"approval", "agreement"}, Delta: 0.05},
	}
}

// Validate checks ranges and that the chosen policy can score the chosen source.
func (c *Config) Validate() error {
	if c.Schedule.RefreshInterval.Duration < 10*time.Second {
		return errors.New("schedule.refresh_interval must be at least 10s")
	}
	if c.Schedule.ReportInterval.Duration < 0 {
		return errors.New("schedule.report_interval must not be negative")
	}

	if c.News.LimitPerFeed < 1 {
		return errors.New("news.limit_per_feed must be at least 1")
	}
	if c.News.RecencyWindowDays < 1 {
		return errors.New("news.recency_window_days must be at least 1")
	}

	if c.Markets.CacheTTL.Duration < 0 {
		return errors.New("markets.cache_ttl must not be negative")
	}

	probabilitySource := false
	switch c.Markets.Source {
	case SourceStatic:
		probabilitySource = true
		for i, e := range c.Markets.Catalog {
			if e.Name == "" {
				return fmt.Errorf("markets.catalog[%d].name is required", i)
			}
			if e.Probability < 0 || e.Probability > 1 {
				return fmt.Errorf("markets.catalog[%d].probability must be between 0.0 and 1.0", i)
			}
		}
	case SourceManifold:
		probabilitySource = true
		if c.Markets.Manifold.Limit < 1 {
			return errors.New("markets.manifold.limit must be at least 1")
		}
	case SourceCoinGecko:
		if c.Markets.CoinGecko.BaseURL == "" {
			return errors.New("markets.coingecko.base_url is required")
		}
		if len(c.Markets.CoinGecko.CoinIDs) == 0 {
			return errors.New("markets.coingecko.coin_ids must contain at least one coin")
		}
		if c.Markets.CoinGecko.VsCurrency == "" {
			return errors.New("markets.coingecko.vs_currency is required")
		}
	default:
		return fmt.Errorf("markets.source must be one of: %s, %s, %s", SourceStatic, SourceCoinGecko, SourceManifold)
	}

	switch c.Strategy.Policy {
	case PolicyNewsBiased:
		nb := c.Strategy.NewsBiased
		if nb.BaseProbability < 0 || nb.BaseProbability > 1 {
			return errors.New("strategy.news_biased.base_probability must be between 0.0 and 1.0")
		}
		if nb.GapThreshold < 0 {
			return errors.New("strategy.news_biased.gap_threshold must not be negative")
		}
		if nb.Scope != ScopeAll && nb.Scope != ScopeMatched {
			return fmt.Errorf("strategy.news_biased.scope must be one of: %s, %s", ScopeAll, ScopeMatched)
		}
		for i, rule := range nb.Keywords {
			if len(rule.Terms) == 0 {
				return fmt.Errorf("strategy.news_biased.keywords[%d].terms must contain at least one term", i)
			}
			for _, term := range rule.Terms {
				if strings.TrimSpace(term) == "" {
					return fmt.Errorf("strategy.news_biased.keywords[%d].terms must not be blank", i)
				}
			}
		}
		if !probabilitySource {
			return fmt.Errorf("strategy %s needs a probability source, not %s", c.Strategy.Policy, c.Markets.Source)
		}
	case PolicyProbabilityThreshold:
		pt := c.Strategy.ProbabilityThreshold
		if pt.SellAt >= pt.BuyAt {
			return errors.New("strategy.probability_threshold.sell_at must be below buy_at")
		}
		if !probabilitySource {
			return fmt.Errorf("strategy %s needs a probability source, not %s", c.Strategy.Policy, c.Markets.Source)
		}
	case PolicyChangeThreshold:
		ct := c.Strategy.ChangeThreshold
		if ct.SellBelow >= ct.BuyAbove {
			return errors.New("strategy.change_threshold.sell_below must be below buy_above")
		}
		if c.Markets.Source != SourceCoinGecko {
			return fmt.Errorf("strategy %s needs the %s source", c.Strategy.Policy, SourceCoinGecko)
		}
	default:
		return fmt.Errorf("strategy.policy must be one of: %s, %s, %s",
			PolicyNewsBiased, PolicyProbabilityThreshold, PolicyChangeThreshold)
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return errors.New("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return errors.New("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.General.History && c.General.DBPath == "" {
		return errors.New("general.db_path is required when history is enabled")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.General.LogLevel] {
		return errors.New("general.log_level must be one of: debug, info, warn, error")
	}
	if c.General.LogFormat != "json" && c.General.LogFormat != "text" {
		return errors.New("general.log_format must be one of: json, text")
	}

	return nil
}
