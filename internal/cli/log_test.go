package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/errors"
)

func writeTorLog(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notices.log")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

var bootstrapLog = []string{
	"Jan 01 00:00:01.000 [notice] Tor 0.4.8.9 opening log file.",
	"Jan 01 00:00:02.000 [notice] Bootstrapped 0% (starting): Starting",
	"Jan 01 00:00:03.000 [info] circuit_build_times_set_timeout(): Set buildtimeout to low value",
	"Jan 01 00:00:04.000 [notice] Bootstrapped 5% (conn): Connecting to a relay",
	"Jan 01 00:00:05.000 [notice] Bootstrapped 10% (conn_done): Connected to a relay",
}

func outputLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
}

func TestPrintLog(t *testing.T) {
	path := writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, config.DefaultConfig(), path, logOptions{}))

	lines := outputLines(&buf)
	require.Len(t, lines, 4)
	assert.Equal(t, path+" (INFO-NOTICE)", lines[0])
	assert.Contains(t, lines[1], "[NOTICE] Bootstrapped 10% (conn_done): Connected to a relay [2 duplicates hidden]")
	assert.Contains(t, lines[2], "[INFO] circuit_build_times_set_timeout()")
	assert.Contains(t, lines[3], "[NOTICE] Tor 0.4.8.9 opening log file.")
}

func TestPrintLog_NoDedup(t *testing.T) {
	path := writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, config.DefaultConfig(), path, logOptions{NoDedup: true}))

	lines := outputLines(&buf)
	require.Len(t, lines, 6)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, lines[1], "Bootstrapped 10%")
	assert.Contains(t, lines[2], "Bootstrapped 5%")
}

func TestPrintLog_Limit(t *testing.T) {
	path := writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, config.DefaultConfig(), path, logOptions{Limit: 2}))

	lines := outputLines(&buf)
	require.Len(t, lines, 2)
	assert.Equal(t, path+" (NOTICE)", lines[0])
	assert.Contains(t, lines[1], "Bootstrapped 10% (conn_done): Connected to a relay [1 duplicate hidden]")
}

func TestPrintLog_Filter(t *testing.T) {
	path := writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, config.DefaultConfig(), path, logOptions{Filter: `\[INFO\]`}))

	lines := outputLines(&buf)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "circuit_build_times_set_timeout()")
}

func TestPrintLog_FilterMatchesNothing(t *testing.T) {
	path := writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, config.DefaultConfig(), path, logOptions{Filter: "no such event"}))
	assert.Equal(t, "No events in "+path+"\n", buf.String())
}

func TestPrintLog_DefaultsToConfiguredPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Log.Path = writeTorLog(t, bootstrapLog...)

	var buf bytes.Buffer
	require.NoError(t, printLog(&buf, cfg, "", logOptions{}))
	assert.Contains(t, buf.String(), "Bootstrapped 10%")
}

func TestPrintLog_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		opts logOptions
		code string
	}{
		{
			name: "no path",
			path: "",
			code: errors.ErrLog,
		},
		{
			name: "missing file",
			path: filepath.Join(t.TempDir(), "missing.log"),
			code: errors.ErrLog,
		},
		{
			name: "bad filter",
			path: "unused.log",
			opts: logOptions{Filter: "Bootstrapped ("},
			code: errors.ErrConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			err := printLog(&buf, config.DefaultConfig(), tt.path, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
			assert.Empty(t, buf.String())
		})
	}
}
