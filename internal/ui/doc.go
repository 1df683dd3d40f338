// Package ui styles nyx's terminal output: event log lines colored by
// runlevel, tracker status lines, and sparklines of cpu history.
//
// Colors come from lipgloss. SetColorMode picks the color profile from the
// output.color setting, falling back to plain text when stdout isn't a
// terminal.
package ui
