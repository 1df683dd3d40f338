package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/rileyhilliard/nyx/internal/eventlog"
)

// RenderEntry renders an event log entry as "HH:MM:SS [TYPE] message",
// colored by runlevel. When hiddenDuplicates is positive a muted
// "[N duplicates hidden]" note is appended.
func RenderEntry(entry *eventlog.Entry, hiddenDuplicates int) string {
	style := lipgloss.NewStyle().Foreground(RunlevelColor(entry.Type))
	line := style.Render(entry.DisplayMessage())

	switch {
	case hiddenDuplicates == 1:
		line += MutedStyle().Render(" [1 duplicate hidden]")
	case hiddenDuplicates > 1:
		line += MutedStyle().Render(fmt.Sprintf(" [%d duplicates hidden]", hiddenDuplicates))
	}
	return line
}

// RenderEntries renders entries newest first. With dedup set, entries that
// have a newer duplicate are left out and the newest of each set notes how
// many were hidden.
func RenderEntries(entries []*eventlog.Entry, dedup bool) []string {
	lines := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !dedup {
			lines = append(lines, RenderEntry(entry, 0))
			continue
		}
		if entry.IsDuplicate() {
			continue
		}

		hidden := 0
		if dups := entry.Duplicates(); len(dups) > 1 {
			hidden = len(dups) - 1
		}
		lines = append(lines, RenderEntry(entry, hidden))
	}
	return lines
}
