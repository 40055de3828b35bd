package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pmintel/internal/history"
	"pmintel/internal/replay"
	"pmintel/internal/strategy"
)

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// RenderReport writes the signal history summary.
func RenderReport(w io.Writer, r *history.Report) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Signal History"))
	b.WriteString("\n")
	if r.Refreshes == 0 {
		b.WriteString(mutedStyle.Render("No refreshes recorded yet."))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	fmt.Fprintf(&b, "%d refreshes (%d with warnings) from %s to %s\n",
		r.Refreshes, r.RefreshesWarned,
		r.FirstRefresh.Format("2006-01-02 15:04"), r.LastRefresh.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "signals: %s %s %s\n",
		buyStyle.Render(fmt.Sprintf("BUY %d", r.SignalTotals[string(strategy.Buy)])),
		sellStyle.Render(fmt.Sprintf("SELL %d", r.SignalTotals[string(strategy.Sell)])),
		holdStyle.Render(fmt.Sprintf("HOLD %d", r.SignalTotals[string(strategy.Hold)])))

	if len(r.Markets) > 0 {
		nameWidth := len("Market")
		for _, m := range r.Markets {
			if n := len([]rune(m.Name)); n > nameWidth {
				nameWidth = n
			}
		}
		if nameWidth > maxNameWidth {
			nameWidth = maxNameWidth
		}
		row := func(name, buy, sell, hold, flips, last string) string {
			return fmt.Sprintf("%-*s  %5s  %5s  %5s  %5s  %s", nameWidth, name, buy, sell, hold, flips, last)
		}
		lines := []string{headerStyle.Render(row("Market", "BUY", "SELL", "HOLD", "Flips", "Last"))}
		for _, m := range r.Markets {
			line := row(truncate(m.Name, nameWidth),
				fmt.Sprint(m.Buy), fmt.Sprint(m.Sell), fmt.Sprint(m.Hold), fmt.Sprint(m.Flips), "")
			lines = append(lines, line+signalStyle(strategy.Signal(m.LastSignal)).Render(m.LastSignal))
		}
		b.WriteString(panelStyle.Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// RenderReplay writes the markets whose signal would change under another
// policy.
func RenderReplay(w io.Writer, res *replay.Result) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Replay: " + res.Policy))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%d refreshes, %d scored markets, %d changed signals\n",
		res.Refreshes, res.Markets, len(res.Diffs))

	for _, d := range res.Diffs {
		fmt.Fprintf(&b, "%s  %s: %s → %s\n",
			d.At.Format("2006-01-02 15:04"), d.Name,
			signalStyle(d.Stored).Render(string(d.Stored)),
			signalStyle(d.Replayed).Render(string(d.Replayed)))
	}
	if len(res.Diffs) == 0 && res.Markets > 0 {
		b.WriteString(okStyle.Render("Every stored signal is unchanged."))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}
