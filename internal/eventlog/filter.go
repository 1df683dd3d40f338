package eventlog

import (
	"fmt"
	"regexp"
	"sync"
)

// Filter narrows entries down to those matching a regular expression, and
// remembers recently used expressions so they can be offered again.
type Filter struct {
	mu       sync.Mutex
	selected *regexp.Regexp
	past     []string
	maxSize  int
}

// NewFilter creates a filter remembering up to maxHistory expressions.
func NewFilter(initial []string, maxHistory int) *Filter {
	f := &Filter{maxSize: maxHistory}
	for _, rule := range initial {
		if _, err := regexp.Compile(rule); err == nil {
			f.remember(rule)
		}
	}
	return f
}

// Select makes rule the active filter. An empty rule clears it.
func (f *Filter) Select(rule string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if rule == "" {
		f.selected = nil
		return nil
	}

	re, err := regexp.Compile(rule)
	if err != nil {
		return fmt.Errorf("invalid log filter %q: %w", rule, err)
	}

	f.selected = re
	f.remember(rule)
	return nil
}

// remember moves rule to the front of the history. Must be called with f.mu
// held or before f is shared.
func (f *Filter) remember(rule string) {
	for i, past := range f.past {
		if past == rule {
			f.past = append(f.past[:i], f.past[i+1:]...)
			break
		}
	}

	f.past = append([]string{rule}, f.past...)
	if f.maxSize > 0 && len(f.past) > f.maxSize {
		f.past = f.past[:f.maxSize]
	}
}

// Selection returns the active expression, or "" if none.
func (f *Filter) Selection() string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.selected == nil {
		return ""
	}
	return f.selected.String()
}

// LatestSelections returns past expressions, most recent first.
func (f *Filter) LatestSelections() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.past...)
}

// Match reports whether an entry passes the active filter. Everything passes
// when no filter is selected.
func (f *Filter) Match(e *Entry) bool {
	f.mu.Lock()
	re := f.selected
	f.mu.Unlock()

	return re == nil || re.MatchString(e.DisplayMessage())
}

// Apply returns the entries passing the filter, preserving order.
func (f *Filter) Apply(entries []*Entry) []*Entry {
	var out []*Entry
	for _, e := range entries {
		if f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}
