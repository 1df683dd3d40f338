package tracker

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/nyx/internal/system"
)

// fakeController is an in-memory tor.
type fakeController struct {
	mu         sync.Mutex
	pid        int
	pidErr     error
	info       map[string]string
	conf       map[string]string
	ports      map[Listener][]int
	status     *RouterStatus
	statusErr  error
	statusHits int

	statusListeners    []func(State)
	consensusListeners []func([]RouterStatus)
}

func newFakeController(pid int) *fakeController {
	return &fakeController{
		pid:   pid,
		info:  make(map[string]string),
		conf:  make(map[string]string),
		ports: make(map[Listener][]int),
	}
}

func (c *fakeController) PID() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid, c.pidErr
}

func (c *fakeController) GetInfo(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.info[key]
	if !ok {
		return "", errors.New("unrecognized key")
	}
	return value, nil
}

func (c *fakeController) GetConf(key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conf[key], nil
}

func (c *fakeController) Ports(listener Listener) []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[listener]
}

func (c *fakeController) NetworkStatus() (*RouterStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusHits++
	return c.status, c.statusErr
}

func (c *fakeController) AddStatusListener(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

func (c *fakeController) AddConsensusListener(fn func([]RouterStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consensusListeners = append(c.consensusListeners, fn)
}

func (c *fakeController) setState(state State) {
	c.mu.Lock()
	listeners := slices.Clone(c.statusListeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(state)
	}
}

func (c *fakeController) publish(entries []RouterStatus) {
	c.mu.Lock()
	listeners := slices.Clone(c.consensusListeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(entries)
	}
}

// fakeResolver returns canned results, one per call, repeating the last.
type fakeResolver struct {
	name string

	mu      sync.Mutex
	results [][]system.Connection
	err     error
	calls   int
}

func (r *fakeResolver) Name() string { return r.name }

func (r *fakeResolver) Resolve(_ context.Context, _ int, _ string) ([]system.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	if len(r.results) == 0 {
		return nil, nil
	}
	result := r.results[0]
	if len(r.results) > 1 {
		r.results = r.results[1:]
	}
	return result, nil
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// fakeStrategy returns canned resource stats.
type fakeStrategy struct {
	name string

	mu    sync.Mutex
	stats system.ProcessStats
	err   error
	calls int
}

func (s *fakeStrategy) Name() string { return s.name }

func (s *fakeStrategy) Query(_ context.Context, _ int) (system.ProcessStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.stats, s.err
}

func (s *fakeStrategy) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubProcessName keeps status listeners from looking at real processes.
func stubProcessName(t *testing.T, name string) {
	t.Helper()
	orig := processName
	processName = func(context.Context, int) (string, error) { return name, nil }
	t.Cleanup(func() { processName = orig })
}

func stubRoot(t *testing.T, root bool) {
	t.Helper()
	orig := isRoot
	isRoot = func() bool { return root }
	t.Cleanup(func() { isRoot = orig })
}

func stubAllConnections(t *testing.T, conns []system.Connection, err error) {
	t.Helper()
	orig := allConnections
	allConnections = func(context.Context) ([]system.Connection, error) { return conns, err }
	t.Cleanup(func() { allConnections = orig })
}

// fastRate keeps tests quick without spinning.
const fastRate = 10 * time.Millisecond

const waitFor = 2 * time.Second
