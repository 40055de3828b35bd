package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"pmintel/internal/collector"
	"pmintel/internal/history"
	"pmintel/internal/metrics"
	"pmintel/internal/notify"
	"pmintel/internal/scheduler"
	"pmintel/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Refresh on a schedule and serve the dashboard over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("pmintel starting",
		"strategy", cfg.Strategy.Policy,
		"source", cfg.Markets.Source,
		"feeds", len(cfg.News.Sources),
	)

	reg := metrics.New()
	refresher, err := buildRefresher(cfg, reg)
	if err != nil {
		return err
	}

	var (
		recorder scheduler.Recorder
		reporter scheduler.Reporter
		notifier scheduler.Notifier
		hist     server.HistorySource
	)

	if cfg.General.History {
		database, err := openHistory(cfg.General.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		tracker := history.NewTracker(database)
		recorder = collector.NewCollector(database)
		reporter = tracker
		hist = tracker
		slog.Info("history enabled", "path", cfg.General.DBPath)
	}

	if cfg.Telegram.Enabled {
		client, err := notify.NewClient(cfg.Telegram)
		if err != nil {
			return err
		}
		notifier = client
		slog.Info("telegram alerts enabled")
	}

	sched := scheduler.New(refresher, recorder, notifier, reporter, cfg.Schedule)
	srv := server.New(cfg.Server, sched, hist, reg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() { errCh <- sched.Run(ctx) }()
	go func() { errCh <- srv.Run(ctx) }()

	// Whichever stops first takes the other down with it.
	first := <-errCh
	cancel()
	second := <-errCh

	for _, err := range []error{first, second} {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	slog.Info("pmintel stopped")
	return nil
}
