package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"pmintel/internal/collector"
	"pmintel/internal/dashboard"
)

func (a *app) showCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Run one refresh and print the dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			return a.show(cmd.Context(), cmd.OutOrStdout(), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func (a *app) show(ctx context.Context, out io.Writer, format string) error {
	refresher, err := buildRefresher(a.cfg, nil)
	if err != nil {
		return err
	}

	snap, err := refresher.Refresh(ctx)
	if err != nil {
		return err
	}

	if a.cfg.General.History {
		database, err := openHistory(a.cfg.General.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		if err := collector.NewCollector(database).Record(ctx, snap); err != nil {
			slog.Error("failed to record refresh", "error", err)
		}
	}

	if format == "json" {
		return dashboard.WriteJSON(out, snap)
	}
	return dashboard.Render(out, snap)
}
