package eventlog

import "strings"

// Tor runlevels, lowest first.
var TorRunlevels = []string{"DEBUG", "INFO", "NOTICE", "WARN", "ERR"}

// Our own runlevels mirror tor's with a NYX_ prefix.
const (
	TypeNyxDebug  = "NYX_DEBUG"
	TypeNyxInfo   = "NYX_INFO"
	TypeNyxNotice = "NYX_NOTICE"
	TypeNyxWarn   = "NYX_WARN"
	TypeNyxErr    = "NYX_ERR"
)

// NyxRunlevels lists our runlevels, lowest first.
var NyxRunlevels = []string{TypeNyxDebug, TypeNyxInfo, TypeNyxNotice, TypeNyxWarn, TypeNyxErr}

// DedupRules maps an event type to messages considered equivalent. A
// pattern matches two messages that both start with it. A pattern with a
// leading '*' matches two messages that both contain the rest of it.
type DedupRules map[string][]string

// Match reports whether both messages match one of the type's patterns.
func (r DedupRules) Match(eventType, a, b string) bool {
	for _, pattern := range r[eventType] {
		if pattern == "" {
			continue
		}

		if substr, ok := strings.CutPrefix(pattern, "*"); ok {
			if strings.Contains(a, substr) && strings.Contains(b, substr) {
				return true
			}
		} else if strings.HasPrefix(a, pattern) && strings.HasPrefix(b, pattern) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (r DedupRules) Clone() DedupRules {
	if r == nil {
		return nil
	}
	out := make(DedupRules, len(r))
	for k, v := range r {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// DefaultDedupRules returns the messages tor and nyx repeat the most.
func DefaultDedupRules() DedupRules {
	return DedupRules{
		"DEBUG": {
			"connection_handle_write(): After TLS write of",
			"flush_chunk_tls(): flushed",
			"conn_read_callback(): socket",
			"conn_write_callback(): socket",
			"connection_buf_read_from_socket(): ",
			"connection_or_process_cells_from_inbuf(): ",
			"connection_edge_package_raw_inbuf(): ",
			"circuit_consider_stop_edge_reading(): ",
			"*pending to -1.",
			"*with 0 ops and 0 outstanding",
		},
		"INFO": {
			"circuit_package_relay_cell(): ",
			"circuit_mark_for_close_(): ",
			"connection_edge_process_relay_cell_not_open(): ",
			"connection_or_set_identity_digest(): ",
			"*No more channels",
			"*rep_hist_note_router_unreachable",
			"Our directory information is no longer up-to-date enough to build circuits",
		},
		"NOTICE": {
			"Bootstrapped ",
			"I learned some more directory information, but not enough to build a circuit",
			"Attempt by ",
			"*Loading relay descriptors.",
			"*Your Guard ",
			"Our circuit 0 ",
			"New control connection opened",
			"Heartbeat: ",
		},
		"WARN": {
			"You specified a server ",
			"I have no descriptor for the router named",
			"Controller gave us config lines that didn't validate",
			"Problem bootstrapping. Just saw: ",
			"*Could not resolve",
			"*You have asked to exclude certain relays from all positions in your circuits.",
		},
		"ERR": {
			"Could not bind to ",
		},
		TypeNyxDebug: {
			"GETINFO accounting/",
			"GETINFO address",
			"GETCONF",
			"system call: ",
			"redrawing ",
		},
	}
}
