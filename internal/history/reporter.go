package history

import (
	"log/slog"
)

// LogReport logs the history report as structured JSON.
func LogReport(r *Report) {
	slog.Info("=== HISTORY REPORT ===",
		"refreshes", r.Refreshes,
		"refreshes_with_warnings", r.RefreshesWarned,
		"first_refresh", r.FirstRefresh,
		"last_refresh", r.LastRefresh,
		"buy", r.SignalTotals["BUY"],
		"sell", r.SignalTotals["SELL"],
		"hold", r.SignalTotals["HOLD"],
	)

	for name, n := range r.StrategyRefreshes {
		slog.Info("strategy refreshes", "strategy", name, "refreshes", n)
	}

	for _, m := range r.Markets {
		slog.Info("market history",
			"market", m.MarketID,
			"name", m.Name,
			"buy", m.Buy,
			"sell", m.Sell,
			"hold", m.Hold,
			"last_signal", m.LastSignal,
			"flips", m.Flips,
		)
	}
}
