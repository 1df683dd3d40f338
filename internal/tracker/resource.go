package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

// Resources is a snapshot of tor's resource usage.
type Resources struct {
	// CPUSample is cpu utilization since the previous sample, as a fraction
	// of one core. Zero until there are two samples.
	CPUSample float64
	// CPUAverage is cpu utilization over the process' lifetime.
	CPUAverage float64
	// CPUTotal is cumulative cpu time in seconds.
	CPUTotal float64
	// MemoryBytes is resident memory.
	MemoryBytes int64
	// MemoryPercent is resident memory as a fraction of physical memory.
	MemoryPercent float64
	// Timestamp is when the sample was taken. Zero if there isn't one yet.
	Timestamp time.Time
}

// ResourceTracker periodically samples tor's cpu and memory usage. It starts
// with the first strategy and permanently falls back to the next after
// repeated failures, stopping once none are left.
type ResourceTracker struct {
	*Daemon

	mu           sync.RWMutex
	resources    Resources
	hasSample    bool
	strategies   []system.ResourceStrategy
	failureCount int
}

// DefaultResourceStrategies reads /proc when it's available, with ps as the
// fallback.
func DefaultResourceStrategies() []system.ResourceStrategy {
	if system.IsProcAvailable() {
		return []system.ResourceStrategy{system.ProcStrategy{}, system.PsStrategy{}}
	}
	return []system.ResourceStrategy{system.PsStrategy{}}
}

// NewResourceTracker creates a tracker using the given strategies in order.
// It isn't started.
func NewResourceTracker(controller Controller, rate time.Duration, strategies []system.ResourceStrategy, log logger.Logger) (*ResourceTracker, error) {
	t := &ResourceTracker{
		strategies: append([]system.ResourceStrategy(nil), strategies...),
	}

	d, err := NewDaemon("resource tracker", rate, controller, t.task, log)
	if err != nil {
		return nil, err
	}
	t.Daemon = d
	return t, nil
}

func (t *ResourceTracker) task(ctx context.Context, pid int, _ string) bool {
	t.mu.RLock()
	if len(t.strategies) == 0 {
		t.mu.RUnlock()
		t.Stop()
		return false
	}
	strategy := t.strategies[0]
	t.mu.RUnlock()

	stats, err := strategy.Query(ctx, pid)
	if err != nil {
		t.strategyFailed(strategy, err)
		return false
	}

	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	var sample float64
	if t.hasSample {
		elapsed := now.Sub(t.resources.Timestamp).Seconds()
		if elapsed > 0 {
			sample = (stats.CPUTotal - t.resources.CPUTotal) / elapsed
		}
		if sample < 0 {
			// pid was reused by a new process
			sample = 0
		}
	}

	var average float64
	if stats.Uptime > 0 {
		average = stats.CPUTotal / stats.Uptime
	}

	t.resources = Resources{
		CPUSample:     sample,
		CPUAverage:    average,
		CPUTotal:      stats.CPUTotal,
		MemoryBytes:   stats.MemoryBytes,
		MemoryPercent: stats.MemoryPercent,
		Timestamp:     now,
	}
	t.hasSample = true
	t.failureCount = 0
	return true
}

func (t *ResourceTracker) strategyFailed(strategy system.ResourceStrategy, err error) {
	t.mu.Lock()
	t.failureCount++
	if t.failureCount < maxFailures {
		t.mu.Unlock()
		t.log.Debug("Unable to query process resource usage using %s: %v", strategy.Name(), err)
		return
	}

	t.failureCount = 0
	t.strategies = t.strategies[1:]
	remaining := len(t.strategies)
	var next string
	if remaining > 0 {
		next = t.strategies[0].Name()
	}
	t.mu.Unlock()

	if remaining > 0 {
		t.log.Notice("Failed three attempts to get process resource usage from %s, falling back to %s (%v)", strategy.Name(), next, err)
		return
	}

	t.log.Notice("Failed three attempts to get process resource usage from %s, giving up on getting resource usage information (%v)", strategy.Name(), err)
	t.Stop()
}

// Value returns the latest sample, zero valued before the first.
func (t *ResourceTracker) Value() Resources {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resources
}

// Strategy returns the name of the strategy in use, or "" once all failed.
func (t *ResourceTracker) Strategy() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.strategies) == 0 {
		return ""
	}
	return t.strategies[0].Name()
}
