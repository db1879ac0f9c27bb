package ui

import (
	"barnacle/deploy"

	"github.com/charmbracelet/lipgloss"
)

// ANSI palette indexes shared by the command line and the GUI.
const (
	ColorAccent  = "12" // Blue
	ColorMuted   = "8"  // Gray
	ColorGood    = "10" // Green
	ColorWarn    = "11" // Yellow
	ColorBad     = "9"  // Red
	ColorDefault = "7"  // White
)

// Colorize applies the given palette color to the text using lipgloss.
func Colorize(text, color string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

// StateColor is the color a deploy state is shown in.
func StateColor(s deploy.State) string {
	switch s {
	case deploy.Mounted:
		return ColorGood
	case deploy.Mounting, deploy.Unmounting:
		return ColorWarn
	default:
		return ColorMuted
	}
}

// State renders a deploy state in its color.
func State(s deploy.State) string {
	return Colorize(s.String(), StateColor(s))
}

// EnabledMark is the checkbox shown beside a load-order entry.
func EnabledMark(enabled bool) string {
	if enabled {
		return Colorize("✓", ColorGood)
	}
	return Colorize("-", ColorBad)
}
