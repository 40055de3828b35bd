package dashboard

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	buyColor       = lipgloss.Color("#10B981")
	sellColor      = lipgloss.Color("#EF4444")
	neutralColor   = lipgloss.Color("#6B7280")
	warnColor      = lipgloss.Color("#F59E0B")
	borderColor    = lipgloss.Color("#374151")
	textColor      = lipgloss.Color("#F9FAFB")
	secondaryColor = lipgloss.Color("#9CA3AF")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor).
			MarginTop(1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(secondaryColor)

	buyStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(buyColor)

	sellStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(sellColor)

	holdStyle = lipgloss.NewStyle().
			Foreground(neutralColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	okStyle = lipgloss.NewStyle().
		Foreground(buyColor)

	mutedStyle = lipgloss.NewStyle().
			Foreground(neutralColor)
)
