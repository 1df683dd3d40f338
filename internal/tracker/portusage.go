package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

var (
	// ErrUnresolved means the port hasn't been looked up yet.
	ErrUnresolved = errors.New("port hasn't been resolved yet")
	// ErrUnknownApplication means the port was looked up but no process
	// was found using it.
	ErrUnknownApplication = errors.New("no application is using the port")
)

// PortLookup finds the processes using local and remote ports. Ports without
// one map to nil.
type PortLookup func(ctx context.Context, localPorts, remotePorts []int) (map[int]*system.Process, error)

// PortUsageTracker resolves which processes are using ports, such as the
// applications on the other end of tor's control and socks connections.
// Lookups are asynchronous. Query registers interest in ports, and the
// results show up in later calls to Query or Fetch.
type PortUsageTracker struct {
	*Daemon

	lookup PortLookup

	mu           sync.Mutex
	processes    map[int]*system.Process
	localPorts   []int
	remotePorts  []int
	failureCount int
}

// NewPortUsageTracker creates a tracker. A nil lookup uses lsof. It isn't
// started.
func NewPortUsageTracker(controller Controller, rate time.Duration, lookup PortLookup, log logger.Logger) (*PortUsageTracker, error) {
	if lookup == nil {
		lookup = system.ProcessesForPorts
	}

	t := &PortUsageTracker{
		lookup:    lookup,
		processes: make(map[int]*system.Process),
	}

	d, err := NewDaemon("port usage tracker", rate, controller, t.task, log)
	if err != nil {
		return nil, err
	}
	t.Daemon = d
	return t, nil
}

// Query asks for the ports to be resolved on the next run and returns what
// has been resolved so far. Ports resolved to no process map to nil.
func (t *PortUsageTracker) Query(localPorts, remotePorts []int) map[int]*system.Process {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.localPorts = append([]int(nil), localPorts...)
	t.remotePorts = append([]int(nil), remotePorts...)

	results := make(map[int]*system.Process, len(t.processes))
	for port, proc := range t.processes {
		results[port] = proc
	}
	return results
}

// Fetch returns the process using a port. It returns ErrUnresolved if the
// port hasn't been looked up, and ErrUnknownApplication if it was but no
// process was found.
func (t *PortUsageTracker) Fetch(port int) (*system.Process, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	proc, ok := t.processes[port]
	switch {
	case !ok:
		return nil, ErrUnresolved
	case proc == nil:
		return nil, ErrUnknownApplication
	default:
		return proc, nil
	}
}

func (t *PortUsageTracker) task(ctx context.Context, _ int, _ string) bool {
	t.mu.Lock()
	if len(t.localPorts) == 0 && len(t.remotePorts) == 0 {
		t.mu.Unlock()
		return true
	}

	results := make(map[int]*system.Process)
	var localPorts, remotePorts []int

	// ports we already know about are reused rather than looked up again
	for _, port := range t.localPorts {
		if proc, ok := t.processes[port]; ok {
			results[port] = proc
		} else {
			localPorts = append(localPorts, port)
		}
	}
	for _, port := range t.remotePorts {
		if proc, ok := t.processes[port]; ok {
			results[port] = proc
		} else {
			remotePorts = append(remotePorts, port)
		}
	}
	t.mu.Unlock()

	if len(localPorts) > 0 || len(remotePorts) > 0 {
		found, err := t.lookup(ctx, localPorts, remotePorts)
		if err != nil {
			t.lookupFailed(err)
			return false
		}
		for port, proc := range found {
			results[port] = proc
		}

		// a completed lookup that didn't find a port is an answer too
		for _, port := range append(localPorts, remotePorts...) {
			if _, ok := results[port]; !ok {
				results[port] = nil
			}
		}
	}

	t.mu.Lock()
	t.processes = results
	t.failureCount = 0
	t.mu.Unlock()
	return true
}

func (t *PortUsageTracker) lookupFailed(err error) {
	t.mu.Lock()
	t.failureCount++
	failures := t.failureCount
	t.mu.Unlock()

	if failures < maxFailures {
		t.log.Debug("Unable to query the processes using ports: %v", err)
		return
	}

	t.log.Notice("Failed three attempts to determine the process using active ports (%v)", err)
	t.Stop()
}
