package eventlog

import "strings"

// CondenseRunlevels collapses runlevel event types into ranges for display.
// For instance DEBUG, INFO, NOTICE, WARN and ERR condense to "DEBUG-ERR", and
// matching tor and nyx ranges merge into "TOR/NYX NOTICE-ERR". Ranges only
// cover adjacent runlevels. Other event types are returned after the
// runlevels in their original order.
func CondenseRunlevels(events ...string) []string {
	seen := make(map[string]bool, len(events))
	var other []string
	for _, e := range events {
		if seen[e] {
			continue
		}
		seen[e] = true
		if !isRunlevel(e) {
			other = append(other, e)
		}
	}

	torRanges := runlevelRanges(TorRunlevels, seen, func(s string) string { return s })
	nyxRanges := runlevelRanges(NyxRunlevels, seen, func(s string) string {
		return strings.TrimPrefix(s, "NYX_")
	})

	var result []string
	if len(torRanges) == 1 && len(nyxRanges) == 1 && torRanges[0] == nyxRanges[0] {
		result = append(result, "TOR/NYX "+torRanges[0])
	} else {
		result = append(result, torRanges...)
		for _, r := range nyxRanges {
			result = append(result, "NYX "+r)
		}
	}

	return append(result, other...)
}

// runlevelRanges groups the present runlevels into runs of adjacent levels.
func runlevelRanges(levels []string, present map[string]bool, label func(string) string) []string {
	var ranges []string
	start := -1

	flush := func(end int) {
		if start < 0 {
			return
		}
		if start == end {
			ranges = append(ranges, label(levels[start]))
		} else {
			ranges = append(ranges, label(levels[start])+"-"+label(levels[end]))
		}
		start = -1
	}

	for i, level := range levels {
		if present[level] {
			if start < 0 {
				start = i
			}
		} else {
			flush(i - 1)
		}
	}
	flush(len(levels) - 1)

	return ranges
}

func isRunlevel(event string) bool {
	for _, level := range TorRunlevels {
		if event == level {
			return true
		}
	}
	for _, level := range NyxRunlevels {
		if event == level {
			return true
		}
	}
	return false
}
