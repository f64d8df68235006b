package display

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Color Palette
// Shared by every style below so console output stays consistent.
var (
	salmonPink  = lipgloss.Color("#FFB3BA") // Soft pastel salmon pink - primary accent
	coralPink   = lipgloss.Color("#FFCCCB") // Lighter coral accent - secondary
	mintGreen   = lipgloss.Color("#A8E6CF") // Soft mint green - success/accept states
	amber       = lipgloss.Color("#FDE68A") // Warnings and pending input
	errorRed    = lipgloss.Color("#F87171") // Errors
	mutedGray   = lipgloss.Color("#6B7280") // Muted gray - secondary text
	brightWhite = lipgloss.Color("#F9FAFB") // Bright white - primary text
)

// styles holds the styles of one output stream. They are bound to a renderer
// for that stream so color is only emitted to terminals.
type styles struct {
	header  lipgloss.Style
	section lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
	source  lipgloss.Style
	text    lipgloss.Style
	plan    lipgloss.Style
	user    lipgloss.Style
	answer  lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		header: r.NewStyle().
			Foreground(salmonPink).
			Bold(true),
		section: r.NewStyle().
			Foreground(coralPink),
		info: r.NewStyle().
			Foreground(salmonPink),
		success: r.NewStyle().
			Foreground(mintGreen).
			Bold(true),
		warning: r.NewStyle().
			Foreground(amber),
		err: r.NewStyle().
			Foreground(errorRed).
			Bold(true),
		muted: r.NewStyle().
			Foreground(mutedGray),
		source: r.NewStyle().
			Foreground(coralPink).
			Bold(true),
		text: r.NewStyle().
			Foreground(brightWhite),
		plan: r.NewStyle().
			Foreground(mintGreen),
		user: r.NewStyle().
			Foreground(coralPink).
			Bold(true),
		answer: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(salmonPink).
			Padding(0, 1),
	}
}
