package eventlog

import (
	"fmt"
	"sync"
	"time"
)

// Group is a fixed capacity collection of entries, newest first, that links
// duplicates together as they're added. It's safe for concurrent use.
type Group struct {
	mu         sync.Mutex
	ring       *entryRing
	groupByDay bool
	rules      DedupRules
}

// NewGroup creates a group holding at most maxSize entries.
func NewGroup(maxSize int, groupByDay bool, rules DedupRules) (*Group, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("log group size must be positive, got %d", maxSize)
	}

	return &Group{
		ring:       newEntryRing(maxSize),
		groupByDay: groupByDay,
		rules:      rules.Clone(),
	}, nil
}

// Add records a new event and returns its entry.
func (g *Group) Add(timestamp time.Time, eventType, message string) *Entry {
	entry := NewEntry(timestamp, eventType, message)
	g.AddEntry(entry)
	return entry
}

// AddEntry inserts an entry as the newest, linking it with the most recent
// entry it duplicates and evicting the oldest entries beyond capacity.
func (g *Group) AddEntry(entry *Entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if match := g.findDuplicate(entry); match != nil {
		set := match.duplicates.Load()
		if set == nil {
			set = &duplicateSet{entries: []*Entry{match}}
			match.duplicates.Store(set)
		}
		match.duplicate.Store(true)

		set.pushFront(entry)
		entry.duplicates.Store(set)
	}

	if g.ring.count == g.ring.size {
		g.popLocked()
	}
	g.ring.push(entry)
}

// findDuplicate scans newest to oldest. Must be called with g.mu held.
func (g *Group) findDuplicate(entry *Entry) *Entry {
	day := entry.DaysSince()

	var match *Entry
	g.ring.each(func(existing *Entry) bool {
		if g.groupByDay && existing.DaysSince() != day {
			return false
		}
		if entry.IsDuplicateOf(existing, g.rules) {
			match = existing
			return false
		}
		return true
	})
	return match
}

// Pop removes and returns the oldest entry, or nil if the group is empty.
func (g *Group) Pop() *Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.popLocked()
}

// popLocked must be called with g.mu held.
func (g *Group) popLocked() *Entry {
	oldest := g.ring.popOldest()
	if oldest == nil {
		return nil
	}

	// the oldest member of a duplicate set is always last in its list
	if oldest.IsDuplicate() {
		if set := oldest.duplicates.Load(); set != nil {
			set.popBack()
		}
	}
	return oldest
}

// Clone returns a detached deep copy, including its duplicate linkage.
// Entries in the copy are new values, so adds and pops on either group don't
// affect the other.
func (g *Group) Clone() *Group {
	g.mu.Lock()
	defer g.mu.Unlock()

	clone := &Group{
		ring:       newEntryRing(g.ring.size),
		groupByDay: g.groupByDay,
		rules:      g.rules.Clone(),
	}

	copies := make(map[*Entry]*Entry, g.ring.count)
	sets := make(map[*duplicateSet]*duplicateSet)

	for _, e := range g.ring.oldestFirst() {
		c := NewEntry(e.Timestamp, e.Type, e.Message)
		c.duplicate.Store(e.IsDuplicate())
		copies[e] = c
		clone.ring.push(c)
	}

	for orig, c := range copies {
		set := orig.duplicates.Load()
		if set == nil {
			continue
		}

		cloned, ok := sets[set]
		if !ok {
			cloned = &duplicateSet{}
			for _, member := range set.snapshot() {
				if mc, ok := copies[member]; ok {
					cloned.entries = append(cloned.entries, mc)
				}
			}
			sets[set] = cloned
		}
		c.duplicates.Store(cloned)
	}

	return clone
}

// Entries returns the entries, newest first.
func (g *Group) Entries() []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	entries := make([]*Entry, 0, g.ring.count)
	g.ring.each(func(e *Entry) bool {
		entries = append(entries, e)
		return true
	})
	return entries
}

// Each calls fn for every entry, newest first, until fn returns false. It
// iterates over a snapshot so fn may call back into the group.
func (g *Group) Each(fn func(*Entry) bool) {
	for _, e := range g.Entries() {
		if !fn(e) {
			return
		}
	}
}

// Len returns the number of entries.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ring.count
}

// MaxSize returns the group's capacity.
func (g *Group) MaxSize() int {
	return g.ring.size
}

// entryRing is a fixed-size circular buffer of entries.
type entryRing struct {
	data  []*Entry
	head  int // next write position
	count int
	size  int
}

func newEntryRing(size int) *entryRing {
	return &entryRing{
		data: make([]*Entry, size),
		size: size,
	}
}

// push adds an entry as the newest. Callers make room first.
func (r *entryRing) push(e *Entry) {
	r.data[r.head] = e
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

func (r *entryRing) popOldest() *Entry {
	if r.count == 0 {
		return nil
	}

	idx := (r.head - r.count + r.size) % r.size
	e := r.data[idx]
	r.data[idx] = nil
	r.count--
	return e
}

// each visits entries newest first until fn returns false.
func (r *entryRing) each(fn func(*Entry) bool) {
	for i := 1; i <= r.count; i++ {
		idx := (r.head - i + r.size) % r.size
		if !fn(r.data[idx]) {
			return
		}
	}
}

func (r *entryRing) oldestFirst() []*Entry {
	result := make([]*Entry, r.count)
	start := (r.head - r.count + r.size) % r.size
	for i := 0; i < r.count; i++ {
		result[i] = r.data[(start+i)%r.size]
	}
	return result
}
