package tracker

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

const (
	// maxFailures is how many consecutive failures a strategy gets before
	// a tracker moves on.
	maxFailures = 3

	// lookupCostFactor is how many times longer than a lookup takes the
	// rate should be, so resolution doesn't hog the cpu on busy relays.
	lookupCostFactor = 100
)

// allConnections lists every established connection. Replaced in tests.
var allConnections = system.AllConnections

// isRoot reports whether we can inspect other users' processes. Replaced in tests.
var isRoot = func() bool { return os.Geteuid() == 0 }

// Connection is a connection of tor's along with when we first saw it.
type Connection struct {
	system.Connection

	// StartTime is when the connection was first observed.
	StartTime time.Time
	// IsLegacy is true if the connection predates our first lookup, so
	// StartTime is only an upper bound.
	IsLegacy bool
}

type startInfo struct {
	time   time.Time
	legacy bool
}

// ConnectionTracker periodically resolves tor's connections. Resolvers are
// tried in order, moving on to the next after repeated failures.
type ConnectionTracker struct {
	*Daemon

	mu             sync.RWMutex
	connections    []Connection
	startTimes     map[system.Connection]startInfo
	isFirstRun     bool
	resolvers      []system.Resolver
	customResolver system.Resolver
	failureCount   int
	rateTooLow     int
	exhausted      bool
}

// NewConnectionTracker creates a tracker that uses the given resolvers, best
// first. It isn't started.
func NewConnectionTracker(controller Controller, rate time.Duration, resolvers []system.Resolver, log logger.Logger) (*ConnectionTracker, error) {
	t := &ConnectionTracker{
		startTimes: make(map[system.Connection]startInfo),
		isFirstRun: true,
		resolvers:  append([]system.Resolver(nil), resolvers...),
	}

	d, err := NewDaemon("connection tracker", rate, controller, t.task, log)
	if err != nil {
		return nil, err
	}
	t.Daemon = d

	if len(t.resolvers) == 0 {
		d.log.Notice("Unable to query connections: no resolvers are available on this system")
		t.exhausted = true
	}
	return t, nil
}

// DefaultConnectionResolvers lists the resolvers available on this system.
// When tor's DisableDebuggerAttachment prevents us from inspecting it, only
// inference can work.
func DefaultConnectionResolvers(controller Controller, consensus *ConsensusTracker) []system.Resolver {
	if controller != nil && !isRoot() {
		if value, err := controller.GetConf("DisableDebuggerAttachment"); err == nil && value == "1" {
			return []system.Resolver{NewInferenceResolver(controller, consensus)}
		}
	}
	return system.DefaultResolvers()
}

// ResolverByName returns a resolver, including inference. Unknown names are
// an error.
func ResolverByName(name string, controller Controller, consensus *ConsensusTracker) (system.Resolver, error) {
	if name == system.ResolverInference {
		return NewInferenceResolver(controller, consensus), nil
	}
	return system.NewResolver(name)
}

func (t *ConnectionTracker) task(ctx context.Context, pid int, name string) bool {
	t.mu.Lock()
	resolver, isDefault := t.activeResolver()
	if resolver == nil {
		notify := !t.exhausted
		t.exhausted = true
		t.mu.Unlock()
		if notify {
			t.log.Notice("Unable to query connections: no resolvers are available")
		}
		return false
	}
	t.mu.Unlock()

	start := time.Now()
	conns, err := resolver.Resolve(ctx, pid, name)
	lookupTime := time.Since(start)

	if err != nil {
		t.resolverFailed(resolver, isDefault, err)
		return false
	}

	now := t.now()

	t.mu.Lock()
	current := make([]Connection, 0, len(conns))
	startTimes := make(map[system.Connection]startInfo, len(conns))
	for _, conn := range conns {
		info, ok := t.startTimes[conn]
		if !ok {
			info = startInfo{time: now, legacy: t.isFirstRun}
		}
		startTimes[conn] = info
		current = append(current, Connection{Connection: conn, StartTime: info.time, IsLegacy: info.legacy})
	}

	t.connections = current
	t.startTimes = startTimes
	t.isFirstRun = false
	t.failureCount = 0
	t.mu.Unlock()

	t.adjustRate(lookupTime)
	return true
}

// activeResolver must be called with t.mu held.
func (t *ConnectionTracker) activeResolver() (system.Resolver, bool) {
	if t.customResolver != nil {
		return t.customResolver, false
	}
	if len(t.resolvers) > 0 {
		return t.resolvers[0], true
	}
	return nil, false
}

func (t *ConnectionTracker) resolverFailed(resolver system.Resolver, isDefault bool, err error) {
	if !isDefault {
		t.log.Debug("Unable to query connections with %s: %v", resolver.Name(), err)
		return
	}

	t.mu.Lock()
	t.failureCount++
	if t.failureCount < maxFailures || len(t.resolvers) == 0 || t.resolvers[0] != resolver {
		t.mu.Unlock()
		t.log.Debug("Unable to query connections with %s: %v", resolver.Name(), err)
		return
	}

	t.resolvers = t.resolvers[1:]
	t.failureCount = 0
	var next string
	if len(t.resolvers) > 0 {
		next = t.resolvers[0].Name()
	} else {
		t.exhausted = true
	}
	t.mu.Unlock()

	if next != "" {
		t.log.Notice("Unable to query connections with %s, trying %s", resolver.Name(), next)
	} else {
		t.log.Notice("We were unable to use any of your system's resolvers to get tor's connections. This is fine, but means that the connections page will be empty. This is usually permissions related so if you would like to fix this then run nyx with the same user as tor (ie, \"sudo -u <tor user> nyx\").")
	}
}

// adjustRate slows polling when lookups are expensive relative to the rate.
func (t *ConnectionTracker) adjustRate(lookupTime time.Duration) {
	minRate := lookupCostFactor * lookupTime

	t.mu.Lock()
	if t.Rate() >= minRate {
		t.rateTooLow = 0
		t.mu.Unlock()
		return
	}

	t.rateTooLow++
	if t.rateTooLow < maxFailures {
		t.mu.Unlock()
		return
	}
	t.rateTooLow = 0
	t.mu.Unlock()

	// a little padding so we don't need to adjust again right away
	newRate := minRate + time.Second
	t.SetRate(newRate)
	t.log.Debug("connection lookup time increasing to %0.1f seconds per call", newRate.Seconds())
}

// Value returns tor's connections as of the last successful lookup, or nil
// once stopped.
func (t *ConnectionTracker) Value() []Connection {
	if t.Halted() {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Connection(nil), t.connections...)
}

// CustomResolver returns the pinned resolver, or nil if resolvers are
// picked automatically.
func (t *ConnectionTracker) CustomResolver() system.Resolver {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.customResolver
}

// SetCustomResolver pins a resolver, bypassing failover. Nil returns to
// automatic selection.
func (t *ConnectionTracker) SetCustomResolver(resolver system.Resolver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.customResolver = resolver
}

// Resolvers lists the resolvers still in rotation, best first.
func (t *ConnectionTracker) Resolvers() []system.Resolver {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]system.Resolver(nil), t.resolvers...)
}

// inferenceResolver guesses which of the system's connections belong to tor
// when it can't be inspected directly. A connection is tor's if it's on one
// of tor's listening ports or goes to a relay in the consensus. It's a
// heuristic, so other processes' connections to relays are included too.
type inferenceResolver struct {
	controller Controller
	consensus  *ConsensusTracker
}

// NewInferenceResolver creates the inference resolver.
func NewInferenceResolver(controller Controller, consensus *ConsensusTracker) system.Resolver {
	return &inferenceResolver{controller: controller, consensus: consensus}
}

func (r *inferenceResolver) Name() string { return system.ResolverInference }

func (r *inferenceResolver) Resolve(ctx context.Context, _ int, _ string) ([]system.Connection, error) {
	if r.controller == nil {
		return nil, fmt.Errorf("inference: no controller")
	}

	ourPorts := make(map[int]bool)
	for _, listener := range []Listener{ListenerOR, ListenerDir, ListenerControl} {
		for _, port := range r.controller.Ports(listener) {
			ourPorts[port] = true
		}
	}

	conns, err := allConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("inference: %w", err)
	}

	var ours []system.Connection
	for _, conn := range conns {
		if ourPorts[conn.LocalPort] {
			ours = append(ours, conn)
		} else if r.consensus != nil && len(r.consensus.RelayFingerprints(conn.RemoteAddress)) > 0 {
			ours = append(ours, conn)
		}
	}
	return ours, nil
}
