package main

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pmintel/internal/config"
	"pmintel/internal/db"
	"pmintel/internal/market"
	"pmintel/internal/metrics"
	"pmintel/internal/news"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

const (
	configEnv     = "PMINTEL_CONFIG_PATH"
	defaultConfig = "config.toml"
)

// app carries the state shared by every subcommand.
type app struct {
	configPath string
	cfg        *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pmintel",
		Short:         "Prediction market intelligence dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "",
		fmt.Sprintf("config file (default $%s or ./%s)", configEnv, defaultConfig))

	root.AddCommand(a.serveCmd(), a.showCmd(), a.historyCmd(), a.replayCmd())
	return root
}

// load resolves the config path, reads and validates the file, and installs
// the logger. Only the implicit default path may be missing.
func (a *app) load(logOut io.Writer) error {
	path, allowMissing := a.configPath, false
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		path, allowMissing = defaultConfig, true
	}

	cfg, err := config.Load(path, allowMissing)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", path, err)
	}
	a.cfg = cfg

	slog.SetDefault(newLogger(cfg.General, logOut))
	slog.Debug("config loaded", "path", path)
	return nil
}

func newLogger(cfg config.GeneralConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// buildRefresher wires the configured market source, the news feeds and
// the policy. reg may be nil.
func buildRefresher(cfg *config.Config, reg *metrics.Registry) (*refresh.Refresher, error) {
	markets, err := market.New(cfg.Markets)
	if err != nil {
		return nil, fmt.Errorf("building market source: %w", err)
	}
	strat, err := strategy.New(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return refresh.New(markets, news.NewFetcher(cfg.News), strat, reg), nil
}

func openHistory(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	slog.Debug("history database ready", "path", path)
	return database, nil
}

func checkFormat(format string) error {
	switch format {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table or json)", format)
	}
}
