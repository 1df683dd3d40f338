package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCondenseRunlevels(t *testing.T) {
	tests := []struct {
		name   string
		events []string
		want   []string
	}{
		{name: "empty", events: nil, want: nil},
		{name: "single", events: []string{"NOTICE"}, want: []string{"NOTICE"}},
		{
			name:   "full tor range",
			events: []string{"DEBUG", "INFO", "NOTICE", "WARN", "ERR"},
			want:   []string{"DEBUG-ERR"},
		},
		{
			name:   "order doesn't matter",
			events: []string{"ERR", "NOTICE", "WARN"},
			want:   []string{"NOTICE-ERR"},
		},
		{
			name:   "gaps split ranges",
			events: []string{"DEBUG", "INFO", "WARN", "ERR"},
			want:   []string{"DEBUG-INFO", "WARN-ERR"},
		},
		{
			name:   "matching tor and nyx",
			events: []string{"NOTICE", "WARN", "ERR", "NYX_NOTICE", "NYX_WARN", "NYX_ERR"},
			want:   []string{"TOR/NYX NOTICE-ERR"},
		},
		{
			name:   "differing tor and nyx",
			events: []string{"NOTICE", "WARN", "ERR", "NYX_WARN", "NYX_ERR"},
			want:   []string{"NOTICE-ERR", "NYX WARN-ERR"},
		},
		{
			name:   "other events kept in order",
			events: []string{"BW", "NOTICE", "CIRC", "WARN", "BW"},
			want:   []string{"NOTICE-WARN", "BW", "CIRC"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CondenseRunlevels(tt.events...))
		})
	}
}
