package eventlog

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Entry is a single event. Timestamp, Type and Message are immutable once the
// entry is added to a Group. Duplicate linkage is maintained by the Group.
type Entry struct {
	Timestamp time.Time
	Type      string
	Message   string

	duplicate  atomic.Bool
	duplicates atomic.Pointer[duplicateSet]
}

// duplicateSet is the membership list shared by every entry of one dedup
// identity, newest first.
type duplicateSet struct {
	mu      sync.Mutex
	entries []*Entry
}

func (s *duplicateSet) pushFront(e *Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append([]*Entry{e}, s.entries...)
}

func (s *duplicateSet) popBack() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 {
		s.entries[len(s.entries)-1] = nil
		s.entries = s.entries[:len(s.entries)-1]
	}
}

func (s *duplicateSet) snapshot() []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Entry(nil), s.entries...)
}

// NewEntry creates an entry.
func NewEntry(timestamp time.Time, eventType, message string) *Entry {
	return &Entry{
		Timestamp: timestamp,
		Type:      eventType,
		Message:   message,
	}
}

// DisplayMessage renders the entry as "HH:MM:SS [TYPE] message" in local time.
func (e *Entry) DisplayMessage() string {
	return fmt.Sprintf("%s [%s] %s", e.Timestamp.Local().Format("15:04:05"), e.Type, e.Message)
}

// IsDuplicate reports whether a newer entry with the same dedup identity
// exists in the entry's group.
func (e *Entry) IsDuplicate() bool {
	return e.duplicate.Load()
}

// Duplicates lists every entry sharing this entry's dedup identity, newest
// first and including the entry itself. Nil if the entry never had a
// duplicate.
func (e *Entry) Duplicates() []*Entry {
	set := e.duplicates.Load()
	if set == nil {
		return nil
	}
	return set.snapshot()
}

// DaysSince returns the number of local calendar days between the epoch and
// the entry.
func (e *Entry) DaysSince() int64 {
	return DayCount(e.Timestamp)
}

// IsDuplicateOf reports whether two entries share a dedup identity.
func (e *Entry) IsDuplicateOf(other *Entry, rules DedupRules) bool {
	if e.Type != other.Type {
		return false
	}
	if e.Message == other.Message {
		return true
	}

	if e.Type == TypeNyxDebug && sameUpToRuntime(e.Message, other.Message) {
		return true
	}

	return rules.Match(e.Type, e.Message, other.Message)
}

// sameUpToRuntime matches our own debug messages, which mostly end with how
// long the request took.
func sameUpToRuntime(a, b string) bool {
	i, j := strings.Index(a, "runtime:"), strings.Index(b, "runtime:")
	if i < 0 || j < 0 {
		return false
	}
	return a[:i] == b[:j]
}

// DayCount returns the number of days between the epoch and t, counted in
// local time so the boundary is local midnight.
func DayCount(t time.Time) int64 {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}
