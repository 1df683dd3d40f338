package tracker

import "fmt"

// State is a lifecycle change of the control connection.
type State int

const (
	// StateInit is sent when the connection is first established.
	StateInit State = iota
	// StateReset is sent when tor reloads its configuration (SIGHUP).
	StateReset
	// StateClosed is sent when the connection is lost.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReset:
		return "RESET"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Listener is a kind of port tor listens on.
type Listener string

const (
	ListenerOR      Listener = "OR"
	ListenerDir     Listener = "DIR"
	ListenerControl Listener = "CONTROL"
)

// Controller is what the trackers need from the connection to tor.
type Controller interface {
	// PID returns tor's process id.
	PID() (int, error)
	// GetInfo answers a GETINFO query such as "fingerprint", "address" or "ns/all".
	GetInfo(key string) (string, error)
	// GetConf returns a configuration value such as "Nickname".
	GetConf(key string) (string, error)
	// Ports lists the local ports tor has open for a listener type.
	Ports(listener Listener) []int
	// NetworkStatus returns our own router status entry.
	NetworkStatus() (*RouterStatus, error)
	// AddStatusListener registers for connection lifecycle changes.
	AddStatusListener(fn func(State))
	// AddConsensusListener registers for new consensus documents.
	AddConsensusListener(fn func([]RouterStatus))
}
