package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
)

// tor log lines look like...
//
//	Jul 15 18:29:48.806 [notice] Bootstrapped 100%: Done
var torLogLine = regexp.MustCompile(`^([A-Za-z]{3} +[0-9]{1,2} [0-9]{2}:[0-9]{2}:[0-9]{2})(\.[0-9]+)? \[([a-z]+)\] (.*)$`)

// startMarker is logged when tor opens its log, so anything before it is
// from a previous run.
const startMarker = " opening log file"

// ParseTorLogLine parses a single tor log line. Tor omits the year, so the
// line is placed in the year of now, or the prior year if that would put it
// in the future.
func ParseTorLogLine(line string, now time.Time) (*Entry, error) {
	m := torLogLine.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return nil, fmt.Errorf("not a tor log line: %q", line)
	}

	stamp := strings.Join(strings.Fields(m[1]), " ")
	ts, err := time.ParseInLocation("2006 Jan 2 15:04:05", fmt.Sprintf("%d %s", now.Year(), stamp), time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad timestamp in tor log line %q: %w", line, err)
	}

	if m[2] != "" {
		if frac, err := time.ParseDuration("0" + m[2] + "s"); err == nil {
			ts = ts.Add(frac)
		}
	}

	if ts.After(now) {
		ts = ts.AddDate(-1, 0, 0)
	}

	return NewEntry(ts, strings.ToUpper(m[3]), m[4]), nil
}

// ReadTorLog reads entries from a tor log file, newest first, stopping at the
// start of tor's current run. A positive limit caps how many are returned.
// Lines that aren't log entries are skipped.
func ReadTorLog(path string, limit int) ([]*Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read tor log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("unable to read tor log: %w", err)
	}

	now := time.Now()
	var entries []*Entry

	for i := len(lines) - 1; i >= 0; i-- {
		entry, err := ParseTorLogLine(lines[i], now)
		if err != nil {
			continue
		}

		entries = append(entries, entry)
		if limit > 0 && len(entries) >= limit {
			break
		}
		if strings.Contains(entry.Message, startMarker) {
			break
		}
	}

	return entries, nil
}

// Replay adds entries to a group oldest first, the order they were logged.
func Replay(group *Group, newestFirst []*Entry) {
	for i := len(newestFirst) - 1; i >= 0; i-- {
		group.AddEntry(newestFirst[i])
	}
}
