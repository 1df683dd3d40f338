package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

func newTestResourceTracker(t *testing.T, strategies []system.ResourceStrategy, log logger.Logger) (*ResourceTracker, *fakeClock) {
	t.Helper()
	stubProcessName(t, "tor")

	rt, err := NewResourceTracker(newFakeController(1234), time.Second, strategies, log)
	require.NoError(t, err)

	clock := &fakeClock{current: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	rt.now = clock.now
	return rt, clock
}

func TestResourceTracker_Samples(t *testing.T) {
	strategy := &fakeStrategy{name: "proc", stats: system.ProcessStats{
		CPUTotal:      10,
		Uptime:        100,
		MemoryBytes:   64 * 1024 * 1024,
		MemoryPercent: 0.02,
	}}
	rt, clock := newTestResourceTracker(t, []system.ResourceStrategy{strategy}, logger.Noop())

	assert.Equal(t, Resources{}, rt.Value())

	require.True(t, rt.task(context.Background(), 1234, "tor"))
	first := rt.Value()
	assert.Equal(t, 0.0, first.CPUSample, "no sample until there are two readings")
	assert.InDelta(t, 0.1, first.CPUAverage, 1e-9)
	assert.Equal(t, 10.0, first.CPUTotal)
	assert.Equal(t, int64(64*1024*1024), first.MemoryBytes)
	assert.Equal(t, 0.02, first.MemoryPercent)
	assert.Equal(t, clock.current, first.Timestamp)

	clock.advance(5 * time.Second)
	strategy.stats.CPUTotal = 12
	strategy.stats.Uptime = 105

	require.True(t, rt.task(context.Background(), 1234, "tor"))
	second := rt.Value()
	assert.InDelta(t, 0.4, second.CPUSample, 1e-9)
	assert.InDelta(t, 12.0/105.0, second.CPUAverage, 1e-9)
}

func TestResourceTracker_NegativeSampleClamped(t *testing.T) {
	strategy := &fakeStrategy{name: "proc", stats: system.ProcessStats{CPUTotal: 50, Uptime: 500}}
	rt, clock := newTestResourceTracker(t, []system.ResourceStrategy{strategy}, logger.Noop())

	require.True(t, rt.task(context.Background(), 1234, "tor"))

	clock.advance(time.Second)
	strategy.stats.CPUTotal = 1
	strategy.stats.Uptime = 1

	require.True(t, rt.task(context.Background(), 1234, "tor"))
	assert.Equal(t, 0.0, rt.Value().CPUSample)
}

func TestResourceTracker_FallsBackThenStops(t *testing.T) {
	log := logger.NewBufferLogger()
	proc := &fakeStrategy{name: "proc", err: errors.New("/proc unavailable")}
	ps := &fakeStrategy{name: "ps", err: errors.New("ps not found")}
	rt, _ := newTestResourceTracker(t, []system.ResourceStrategy{proc, ps}, log)

	assert.Equal(t, "proc", rt.Strategy())

	for i := 0; i < 3; i++ {
		assert.False(t, rt.task(context.Background(), 1234, "tor"))
	}
	assert.Equal(t, "ps", rt.Strategy())
	assert.Equal(t, 1, log.Count("notice"))
	assert.False(t, rt.Halted())

	for i := 0; i < 3; i++ {
		assert.False(t, rt.task(context.Background(), 1234, "tor"))
	}
	assert.Equal(t, "", rt.Strategy())
	assert.Equal(t, 2, log.Count("notice"))
	assert.True(t, rt.Halted())

	assert.Equal(t, 3, proc.Calls())
	assert.Equal(t, 3, ps.Calls())
}

func TestResourceTracker_FallbackKeepsWorking(t *testing.T) {
	proc := &fakeStrategy{name: "proc", err: errors.New("/proc unavailable")}
	ps := &fakeStrategy{name: "ps", stats: system.ProcessStats{CPUTotal: 3, Uptime: 30, MemoryBytes: 1024}}
	rt, _ := newTestResourceTracker(t, []system.ResourceStrategy{proc, ps}, logger.Noop())

	for i := 0; i < 3; i++ {
		rt.task(context.Background(), 1234, "tor")
	}
	require.True(t, rt.task(context.Background(), 1234, "tor"))
	assert.Equal(t, int64(1024), rt.Value().MemoryBytes)
}

func TestResourceTracker_NoStrategiesStops(t *testing.T) {
	rt, _ := newTestResourceTracker(t, nil, logger.Noop())

	assert.False(t, rt.task(context.Background(), 1234, "tor"))
	assert.True(t, rt.Halted())
}

func TestResourceTracker_RunsInBackground(t *testing.T) {
	strategy := &fakeStrategy{name: "proc", stats: system.ProcessStats{CPUTotal: 1, Uptime: 10}}
	rt, _ := newTestResourceTracker(t, []system.ResourceStrategy{strategy}, logger.Noop())
	rt.now = time.Now
	rt.SetRate(fastRate)

	rt.Start()
	defer func() {
		rt.Stop()
		rt.Join()
	}()

	require.Eventually(t, func() bool { return rt.RunCounter() >= 2 }, waitFor, 5*time.Millisecond)
	assert.False(t, rt.Value().Timestamp.IsZero())
}
