// Package ui holds the lipgloss styles of the orasim terminal console.
// The default is a dark terminal palette; a light one is picked from the
// environment.
package ui

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Dark mode colors
	DarkBackground = lipgloss.Color("#101418")
	DarkForeground = lipgloss.Color("#d7dadc")
	DarkPrompt     = lipgloss.Color("#7fd35a")
	DarkMuted      = lipgloss.Color("#5c6670")
	DarkBar        = lipgloss.Color("#1d2730")

	// Light mode colors
	LightBackground = lipgloss.Color("#f6f6f4")
	LightForeground = lipgloss.Color("#1b2330")
	LightPrompt     = lipgloss.Color("#2e7d32")
	LightMuted      = lipgloss.Color("#8a939c")
	LightBar        = lipgloss.Color("#dfe3e6")

	// Oracle red, used for the progress gauge in both modes.
	OracleRed = lipgloss.Color("#c74634")
	Done      = lipgloss.Color("#7fd35a")
)

// Theme is a console color scheme.
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Prompt     lipgloss.Color
	Muted      lipgloss.Color
	Bar        lipgloss.Color
	IsDark     bool
}

// DarkTheme returns the dark palette.
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Prompt:     DarkPrompt,
		Muted:      DarkMuted,
		Bar:        DarkBar,
		IsDark:     true,
	}
}

// LightTheme returns the light palette.
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Prompt:     LightPrompt,
		Muted:      LightMuted,
		Bar:        LightBar,
	}
}

// DetectTheme honours ORASIM_LIGHT_MODE=1, then COLORFGBG, and otherwise
// assumes a dark terminal.
func DetectTheme() Theme {
	if os.Getenv("ORASIM_LIGHT_MODE") == "1" {
		return LightTheme()
	}
	// COLORFGBG is "foreground;background"; 7 and 15 are light backgrounds.
	if parts := strings.Split(os.Getenv("COLORFGBG"), ";"); len(parts) == 2 {
		if bg, err := strconv.Atoi(parts[1]); err == nil && (bg == 7 || bg == 15) {
			return LightTheme()
		}
	}
	return DarkTheme()
}

// Styles holds the rendered components of the console.
type Styles struct {
	Theme Theme

	Output    lipgloss.Style
	Prompt    lipgloss.Style
	Muted     lipgloss.Style
	StatusBar lipgloss.Style
	Gauge     lipgloss.Style
	GaugeDone lipgloss.Style
	Divider   lipgloss.Style
}

// NewStyles builds the styles for theme.
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Output: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Prompt).
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		StatusBar: lipgloss.NewStyle().
			Background(theme.Bar).
			Foreground(theme.Foreground).
			Padding(0, 1),

		Gauge: lipgloss.NewStyle().
			Foreground(OracleRed),

		GaugeDone: lipgloss.NewStyle().
			Foreground(Done).
			Bold(true),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Muted),
	}
}

// DefaultStyles returns styles for the detected theme.
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderGauge renders a width-cell bar for pct percent.
func (s Styles) RenderGauge(pct, width int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct * width / 100
	style := s.Gauge
	if pct == 100 {
		style = s.GaugeDone
	}
	return style.Render(strings.Repeat("█", filled)) + s.Muted.Render(strings.Repeat("░", width-filled))
}

// RenderStatus renders the one-line status bar shown under the terminal.
func (s Styles) RenderStatus(host string, completed, total, pct, width int) string {
	left := fmt.Sprintf("%s  Oracle 19c install %d/%d ", host, completed, total)
	line := left + s.RenderGauge(pct, 20) + fmt.Sprintf(" %3d%%", pct)
	return s.StatusBar.Width(width).Render(line)
}

// RenderDivider returns a horizontal rule.
func (s Styles) RenderDivider(width int) string {
	return s.Divider.Render(strings.Repeat("─", width))
}
