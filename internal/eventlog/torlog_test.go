package eventlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTorLogLine(t *testing.T) {
	now := time.Date(2024, time.August, 1, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name     string
		line     string
		wantTime time.Time
		wantType string
		wantMsg  string
		wantErr  bool
	}{
		{
			name:     "notice",
			line:     "Jul 15 18:29:48.806 [notice] Bootstrapped 100%: Done",
			wantTime: time.Date(2024, time.July, 15, 18, 29, 48, 806_000_000, time.Local),
			wantType: "NOTICE",
			wantMsg:  "Bootstrapped 100%: Done",
		},
		{
			name:     "single digit day",
			line:     "Jul  5 03:00:01.000 [warn] Could not resolve address",
			wantTime: time.Date(2024, time.July, 5, 3, 0, 1, 0, time.Local),
			wantType: "WARN",
			wantMsg:  "Could not resolve address",
		},
		{
			name:     "no fraction",
			line:     "Jul 31 23:59:59 [err] Could not bind to 0.0.0.0:9001",
			wantTime: time.Date(2024, time.July, 31, 23, 59, 59, 0, time.Local),
			wantType: "ERR",
			wantMsg:  "Could not bind to 0.0.0.0:9001",
		},
		{
			name:     "future dates are last year",
			line:     "Dec 31 23:00:00.000 [notice] Heartbeat: Tor's uptime is 10 days",
			wantTime: time.Date(2023, time.December, 31, 23, 0, 0, 0, time.Local),
			wantType: "NOTICE",
			wantMsg:  "Heartbeat: Tor's uptime is 10 days",
		},
		{name: "garbage", line: "this isn't a log line", wantErr: true},
		{name: "missing runlevel", line: "Jul 15 18:29:48.806 Bootstrapped 100%", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ParseTorLogLine(tt.line, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, tt.wantTime.Equal(entry.Timestamp), "got %v", entry.Timestamp)
			assert.Equal(t, tt.wantType, entry.Type)
			assert.Equal(t, tt.wantMsg, entry.Message)
		})
	}
}

func writeLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tor.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestReadTorLog(t *testing.T) {
	path := writeLog(t,
		"Jan 01 00:00:01.000 [notice] Tor 0.4.7.1 opening log file.",
		"Jan 01 00:00:02.000 [notice] old run",
		"Jan 01 00:00:03.000 [notice] Tor 0.4.8.9 opening log file.",
		"Jan 01 00:00:04.000 [notice] Bootstrapped 0%: Starting",
		"not a log line",
		"Jan 01 00:00:05.000 [notice] Bootstrapped 5%: Connecting to a relay",
	)

	entries, err := ReadTorLog(path, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Bootstrapped 5%: Connecting to a relay",
		"Bootstrapped 0%: Starting",
		"Tor 0.4.8.9 opening log file.",
	}, messages(entries))
}

func TestReadTorLog_Limit(t *testing.T) {
	path := writeLog(t,
		"Jan 01 00:00:04.000 [notice] a",
		"Jan 01 00:00:05.000 [notice] b",
		"Jan 01 00:00:06.000 [notice] c",
	)

	entries, err := ReadTorLog(path, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, messages(entries))
}

func TestReadTorLog_Missing(t *testing.T) {
	_, err := ReadTorLog(filepath.Join(t.TempDir(), "nope.log"), 0)
	assert.Error(t, err)
}

func TestReplay(t *testing.T) {
	path := writeLog(t,
		"Jan 01 00:00:04.000 [notice] Bootstrapped 0%: Starting",
		"Jan 01 00:00:05.000 [info] unrelated",
		"Jan 01 00:00:06.000 [notice] Bootstrapped 5%: Connecting to a relay",
	)

	entries, err := ReadTorLog(path, 0)
	require.NoError(t, err)

	g := newTestGroup(t, 10, true)
	Replay(g, entries)

	got := g.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, "Bootstrapped 5%: Connecting to a relay", got[0].Message)
	assert.False(t, got[0].IsDuplicate())
	assert.True(t, got[2].IsDuplicate())
}
