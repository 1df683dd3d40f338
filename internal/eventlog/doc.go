// Package eventlog holds the relay's event log: entries observed from tor
// (live or replayed from a log file) and from the monitor itself, collected
// into a capped, deduplicating Group.
//
// # Deduplication
//
// Relay logs are extremely repetitive. Bootstrap progress, heartbeats and
// per-circuit churn would otherwise drown everything else within minutes.
// Two entries are duplicates when they have the same type and either:
//
//   - identical messages
//   - both messages match the same DedupRules pattern for that type
//   - both are NYX_DEBUG messages that only differ in their runtime
//
// A Group keeps every entry but links duplicates into a shared set. The
// newest member is the set's head and the rest report IsDuplicate, so a
// reader can show one line with a count.
//
// # Day Grouping
//
// With day grouping enabled, entries are only compared against entries from
// the same local calendar day. The search stops at the first entry from a
// different day.
//
// # Key Components
//
//	Entry      - A single timestamped event
//	Group      - Thread-safe ring of entries, newest first
//	DedupRules - Per-type message patterns considered equivalent
//	Filter     - Regex filter with a bounded selection history
//	Follow     - Tails a tor log file into a Group
package eventlog
