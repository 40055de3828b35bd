package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"pmintel/internal/config"
	"pmintel/internal/dashboard"
	"pmintel/internal/history"
	"pmintel/internal/replay"
	"pmintel/internal/strategy"
)

func (a *app) historyCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Summarize stored refreshes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			database, err := openHistory(a.cfg.General.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			r, err := history.NewTracker(database).Generate(cmd.Context())
			if err != nil {
				return err
			}
			if format == "json" {
				return dashboard.WriteJSON(cmd.OutOrStdout(), r)
			}
			return dashboard.RenderReport(cmd.OutOrStdout(), r)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}

func (a *app) replayCmd() *cobra.Command {
	var policy, from, to, format string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-score stored refreshes under another policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			start, end, err := replay.ParseDateRange(from, to, time.Now())
			if err != nil {
				return err
			}

			stratCfg := a.cfg.Strategy
			if policy != "" {
				stratCfg.Policy = policy
			}
			strat, err := strategy.New(stratCfg)
			if err != nil {
				return err
			}

			database, err := openHistory(a.cfg.General.DBPath)
			if err != nil {
				return err
			}
			defer database.Close()

			res, err := replay.NewRunner(history.NewTracker(database), strat).Run(cmd.Context(), start, end)
			if err != nil {
				return err
			}
			if format == "json" {
				return dashboard.WriteJSON(cmd.OutOrStdout(), res)
			}
			return dashboard.RenderReplay(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&policy, "policy", "",
		fmt.Sprintf("policy to replay with: %s, %s or %s (default from config)",
			config.PolicyNewsBiased, config.PolicyProbabilityThreshold, config.PolicyChangeThreshold))
	cmd.Flags().StringVar(&from, "from", "", "start date YYYY-MM-DD (default one year ago)")
	cmd.Flags().StringVar(&to, "to", "", "end date YYYY-MM-DD, inclusive (default now)")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table or json")
	return cmd
}
