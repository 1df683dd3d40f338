package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
	ColorDebug     lipgloss.Color = "5" // Magenta
)

// runlevelColors matches each tor runlevel to a color. nyx's own NYX_*
// events use the color of their level.
var runlevelColors = map[string]lipgloss.Color{
	"DEBUG":  ColorDebug,
	"INFO":   ColorSecondary,
	"NOTICE": ColorSuccess,
	"WARN":   ColorWarning,
	"ERR":    ColorError,
}

// RunlevelColor returns the color for an event type. Types that aren't a
// runlevel are drawn in the primary color.
func RunlevelColor(eventType string) lipgloss.Color {
	if len(eventType) > 4 && eventType[:4] == "NYX_" {
		eventType = eventType[4:]
	}
	if c, ok := runlevelColors[eventType]; ok {
		return c
	}
	return ColorPrimary
}

// SuccessStyle returns a style for success messages.
func SuccessStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorSuccess)
}

// ErrorStyle returns a style for error messages.
func ErrorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorError)
}

// WarningStyle returns a style for warnings.
func WarningStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorWarning)
}

// MutedStyle returns a style for secondary text.
func MutedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorMuted)
}

// LabelStyle returns a style for field labels in status lines.
func LabelStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(ColorInfo).Bold(true)
}

// Color modes accepted by SetColorMode.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// isTerminal reports whether w is a terminal. Replaced in tests.
var isTerminal = func(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetColorMode sets the color profile for output written to w. "auto" uses
// colors only when w is a terminal and NO_COLOR isn't set.
func SetColorMode(mode string, w io.Writer) {
	switch mode {
	case ColorNever:
		DisableColors()
	case ColorAlways:
		lipgloss.SetColorProfile(termenv.ANSI)
	default:
		if os.Getenv("NO_COLOR") != "" || !isTerminal(w) {
			DisableColors()
			return
		}
		lipgloss.SetColorProfile(termenv.NewOutput(w).EnvColorProfile())
	}
}

// DisableColors switches to plain text output.
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}
