package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess = "✓" // Tracker running
	SymbolFail    = "✗" // Tracker stopped
	SymbolPending = "○" // Tracker not started
	SymbolPaused  = "◐" // Tracker paused
	SymbolWarning = "⚠"
)
