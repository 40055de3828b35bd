package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"pmintel/internal/news"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

const (
	Title    = "Prediction Market Intelligence Dashboard"
	NoAlerts = "No strong opportunities right now."

	maxNameWidth = 40
)

// FormatNumber prints v with the fewest digits that round-trip.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return FormatNumber(*v)
}

// FormatPublished renders a news timestamp as YYYY-MM-DD HH:MM.
func FormatPublished(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

// AlertLine renders one alert:
// "{name} → {signal} | Market: {reference} | Estimated: {estimated} | Gap: {gap}".
func AlertLine(s strategy.Scored) string {
	gap := "n/a"
	if s.Gap != nil {
		gap = FormatNumber(strategy.Round2(*s.Gap))
	}
	line := fmt.Sprintf("%s → %s | Market: %s | Estimated: %s | Gap: %s",
		s.Name, s.Signal, FormatNumber(s.Reference), formatOptional(s.Estimated), gap)
	if s.Change24h != nil {
		line += fmt.Sprintf(" | 24h: %+.2f%%", *s.Change24h)
	}
	return line
}

// NewsLine renders "title (YYYY-MM-DD HH:MM)".
func NewsLine(item news.Item) string {
	return fmt.Sprintf("%s (%s)", item.Title, FormatPublished(item.Published))
}

func signalStyle(sig strategy.Signal) lipgloss.Style {
	switch sig {
	case strategy.Buy:
		return buyStyle
	case strategy.Sell:
		return sellStyle
	default:
		return holdStyle
	}
}

// Render writes the three dashboard sections for snap.
func Render(w io.Writer, snap *refresh.Snapshot) error {
	var b strings.Builder

	b.WriteString(titleStyle.Render(Title))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("strategy %s · source %s · refreshed %s",
		snap.Strategy, snap.Source, snap.CompletedAt.Format("2006-01-02 15:04:05"))))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Market Opportunities"))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(marketTable(snap.Markets)))
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Alerts"))
	b.WriteString("\n")
	if len(snap.Alerts) == 0 {
		b.WriteString(okStyle.Render(NoAlerts))
		b.WriteString("\n")
	}
	for _, a := range snap.Alerts {
		b.WriteString(signalStyle(a.Signal).Render(AlertLine(a)))
		b.WriteString("\n")
	}

	b.WriteString(sectionStyle.Render("Latest News Signals"))
	b.WriteString("\n")
	if len(snap.News) == 0 {
		b.WriteString(mutedStyle.Render("No recent headlines."))
		b.WriteString("\n")
	}
	for _, item := range snap.News {
		b.WriteString("- " + NewsLine(item))
		b.WriteString("\n")
		if item.Link != "" {
			b.WriteString("  " + mutedStyle.Render(item.Link))
			b.WriteString("\n")
		}
	}

	if len(snap.Warnings) > 0 {
		b.WriteString(sectionStyle.Render("Warnings"))
		b.WriteString("\n")
		for _, warn := range snap.Warnings {
			b.WriteString(warnStyle.Render("! " + warn))
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func marketTable(markets []strategy.Scored) string {
	if len(markets) == 0 {
		return mutedStyle.Render("No markets available.")
	}

	nameWidth := len("Market")
	for _, m := range markets {
		if n := len([]rune(m.Name)); n > nameWidth {
			nameWidth = n
		}
	}
	if nameWidth > maxNameWidth {
		nameWidth = maxNameWidth
	}

	row := func(name, ref, est, gap, change, sig string) string {
		return fmt.Sprintf("%-*s  %12s  %9s  %7s  %8s  %s", nameWidth, name, ref, est, gap, change, sig)
	}

	lines := []string{headerStyle.Render(row("Market", "Reference", "Estimated", "Gap", "24h %", "Signal"))}
	for _, m := range markets {
		gap := "n/a"
		if m.Gap != nil {
			gap = fmt.Sprintf("%+.2f", *m.Gap)
		}
		change := "n/a"
		if m.Change24h != nil {
			change = fmt.Sprintf("%+.2f", *m.Change24h)
		}
		line := row(truncate(m.Name, nameWidth), FormatNumber(m.Reference), formatOptional(m.Estimated), gap, change, "")
		lines = append(lines, line+signalStyle(m.Signal).Render(string(m.Signal)))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
