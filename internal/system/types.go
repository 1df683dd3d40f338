package system

import (
	"fmt"
	"net"
	"strconv"
)

// Protocols reported for a Connection.
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// Connection is a single established socket owned by the monitored process.
// It is comparable, so it can be used directly as a map key; every field is
// part of the identity since the same address/port pairs can appear under
// both tcp and udp.
type Connection struct {
	LocalAddress  string
	LocalPort     int
	RemoteAddress string
	RemotePort    int
	Protocol      string
	IsIPv6        bool
}

// String renders the connection as "local:port -> remote:port (proto)".
func (c Connection) String() string {
	return fmt.Sprintf("%s -> %s (%s)",
		net.JoinHostPort(c.LocalAddress, strconv.Itoa(c.LocalPort)),
		net.JoinHostPort(c.RemoteAddress, strconv.Itoa(c.RemotePort)),
		c.Protocol)
}

// Process identifies an OS process.
type Process struct {
	PID  int
	Name string
}

// ProcessStats is the raw usage data a ResourceStrategy reports for a pid.
type ProcessStats struct {
	// CPUTotal is cumulative user+system CPU time in seconds.
	CPUTotal float64
	// Uptime is how long the process has been running, in seconds.
	Uptime float64
	// MemoryBytes is resident memory.
	MemoryBytes int64
	// MemoryPercent is resident memory as a fraction (0..1) of physical memory.
	MemoryPercent float64
}

// IsValidPort reports whether port is in 1..65535.
func IsValidPort(port int) bool {
	return port > 0 && port <= 65535
}
