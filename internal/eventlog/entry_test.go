package eventlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntry_DisplayMessage(t *testing.T) {
	e := NewEntry(time.Date(2024, time.January, 1, 13, 5, 9, 0, time.Local), "NOTICE", "Bootstrapped 100%: Done")
	assert.Equal(t, "13:05:09 [NOTICE] Bootstrapped 100%: Done", e.DisplayMessage())
}

func TestEntry_IsDuplicateOf(t *testing.T) {
	rules := DedupRules{
		"NOTICE": {"Bootstrapped ", "*Your Guard "},
		"WARN":   {""},
	}

	tests := []struct {
		name  string
		a, b  *Entry
		match bool
	}{
		{
			name:  "identical",
			a:     NewEntry(at(1), "INFO", "hello"),
			b:     NewEntry(at(2), "INFO", "hello"),
			match: true,
		},
		{
			name: "different types",
			a:    NewEntry(at(1), "INFO", "hello"),
			b:    NewEntry(at(2), "NOTICE", "hello"),
		},
		{
			name:  "shared prefix",
			a:     NewEntry(at(1), "NOTICE", "Bootstrapped 5%"),
			b:     NewEntry(at(2), "NOTICE", "Bootstrapped 10%"),
			match: true,
		},
		{
			name: "prefix only on one",
			a:    NewEntry(at(1), "NOTICE", "Bootstrapped 5%"),
			b:    NewEntry(at(2), "NOTICE", "Not Bootstrapped 10%"),
		},
		{
			name:  "wildcard anywhere",
			a:     NewEntry(at(1), "NOTICE", "Circuit build: Your Guard A is failing"),
			b:     NewEntry(at(2), "NOTICE", "Sadly Your Guard B is failing too"),
			match: true,
		},
		{
			name: "rules of another type",
			a:    NewEntry(at(1), "INFO", "Bootstrapped 5%"),
			b:    NewEntry(at(2), "INFO", "Bootstrapped 10%"),
		},
		{
			name: "empty patterns are ignored",
			a:    NewEntry(at(1), "WARN", "a"),
			b:    NewEntry(at(2), "WARN", "b"),
		},
		{
			name:  "debug runtimes",
			a:     NewEntry(at(1), TypeNyxDebug, "GETINFO traffic/read (runtime: 0.0004)"),
			b:     NewEntry(at(2), TypeNyxDebug, "GETINFO traffic/read (runtime: 0.0012)"),
			match: true,
		},
		{
			name: "debug runtimes with different requests",
			a:    NewEntry(at(1), TypeNyxDebug, "GETINFO traffic/read (runtime: 0.0004)"),
			b:    NewEntry(at(2), TypeNyxDebug, "GETINFO traffic/written (runtime: 0.0004)"),
		},
		{
			name: "debug messages mentioning runtime before the timing",
			a:    NewEntry(at(1), TypeNyxDebug, "GETINFO runtime-a (runtime: 0.1)"),
			b:    NewEntry(at(2), TypeNyxDebug, "GETINFO runtime-b (runtime: 0.2)"),
		},
		{
			name: "runtimes only apply to debug",
			a:    NewEntry(at(1), TypeNyxInfo, "GETINFO traffic/read (runtime: 0.0004)"),
			b:    NewEntry(at(2), TypeNyxInfo, "GETINFO traffic/read (runtime: 0.0012)"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.a.IsDuplicateOf(tt.b, rules))
			assert.Equal(t, tt.match, tt.b.IsDuplicateOf(tt.a, rules))
		})
	}
}

func TestDayCount(t *testing.T) {
	day := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.Local)

	assert.Equal(t, DayCount(day), DayCount(day.Add(23*time.Hour+59*time.Minute)))
	assert.Equal(t, DayCount(day)+1, DayCount(day.AddDate(0, 0, 1)))
	assert.Equal(t, DayCount(day)-1, DayCount(day.Add(-time.Second)))
	assert.Equal(t, int64(0), DayCount(time.Date(1970, time.January, 1, 12, 0, 0, 0, time.Local)))
}

func TestDedupRules_Clone(t *testing.T) {
	rules := DefaultDedupRules()
	clone := rules.Clone()

	clone["NOTICE"][0] = "changed"
	assert.Equal(t, "Bootstrapped ", rules["NOTICE"][0])

	assert.Nil(t, DedupRules(nil).Clone())
}
