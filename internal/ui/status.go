package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// TrackerState summarizes a background tracker for display.
type TrackerState struct {
	Name    string
	Started bool
	Paused  bool
	Halted  bool
	Runs    int
}

// Symbol picks the status symbol for the tracker's state.
func (s TrackerState) Symbol() string {
	switch {
	case s.Halted:
		return ErrorStyle().Render(SymbolFail)
	case s.Paused:
		return WarningStyle().Render(SymbolPaused)
	case !s.Started:
		return MutedStyle().Render(SymbolPending)
	default:
		return SuccessStyle().Render(SymbolSuccess)
	}
}

// Field renders "label value" with a styled label.
func Field(label, value string) string {
	return LabelStyle().Render(label) + " " + value
}

// StatusLine joins fields with a muted separator.
func StatusLine(fields ...string) string {
	sep := MutedStyle().Render(" │ ")
	var nonEmpty []string
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, sep)
}

// Width returns the printed width of s, ignoring color codes.
func Width(s string) int {
	return lipgloss.Width(s)
}
