package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/rankgrid/internal/model"
)

var (
	// Colors
	Primary   = lipgloss.Color("#7C3AED") // violet
	Secondary = lipgloss.Color("#06B6D4") // cyan
	Success   = lipgloss.Color("#22C55E") // green
	Warning   = lipgloss.Color("#F59E0B") // amber
	Error     = lipgloss.Color("#EF4444") // red
	Muted     = lipgloss.Color("#6B7280") // gray
	Text      = lipgloss.Color("#E5E7EB") // light gray
	BgDark    = lipgloss.Color("#111827") // dark bg

	// Heat map, best to worst
	HeatExcellent = lipgloss.Color("#16A34A")
	HeatGood      = lipgloss.Color("#84CC16")
	HeatFair      = lipgloss.Color("#EAB308")
	HeatPoor      = lipgloss.Color("#F97316")
	HeatCritical  = lipgloss.Color("#DC2626")
	HeatUnranked  = lipgloss.Color("#374151")

	// Component styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Secondary)

	Label = lipgloss.NewStyle().
		Foreground(Muted).
		Width(14)

	Value = lipgloss.NewStyle().
		Foreground(Text)

	ActiveItem = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true)

	InactiveItem = lipgloss.NewStyle().
			Foreground(Muted)

	StatusBar = lipgloss.NewStyle().
			Foreground(Muted).
			MarginTop(1)

	Border = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Muted).
		Padding(1, 2)

	FocusedBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	ErrorText = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)
)

// HeatColor maps a severity bucket to its heat map color.
func HeatColor(s model.Severity) lipgloss.Color {
	switch s {
	case model.SeverityExcellent:
		return HeatExcellent
	case model.SeverityGood:
		return HeatGood
	case model.SeverityFair:
		return HeatFair
	case model.SeverityPoor:
		return HeatPoor
	case model.SeverityCritical:
		return HeatCritical
	}
	return HeatUnranked
}

// HeatCell is the style of one heat map square.
func HeatCell(s model.Severity) lipgloss.Style {
	fg := lipgloss.Color("#0B0B0B")
	if s == model.SeverityUnranked || s == model.SeverityCritical {
		fg = Text
	}
	return lipgloss.NewStyle().
		Background(HeatColor(s)).
		Foreground(fg).
		Bold(true).
		Width(5).
		Align(lipgloss.Center)
}
