package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

func newTestRegistry(t *testing.T, opts Options) *Registry {
	t.Helper()
	stubProcessName(t, "tor")

	r, err := NewRegistry(newFakeController(1234), opts, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = r.StopAll().Wait(ctx)
	})
	return r
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(nil, Options{ResourceRate: -time.Second}, nil)
	assert.Error(t, err)

	_, err = NewRegistry(nil, Options{Resolver: "sockstat"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrResolver))
	assert.Contains(t, err.Error(), "sockstat")

	r, err := NewRegistry(nil, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConnectionRate, r.opts.ConnectionRate)
	assert.Equal(t, DefaultResourceRate, r.opts.ResourceRate)
	assert.Equal(t, DefaultPortUsageRate, r.opts.PortUsageRate)
}

func TestRegistry_LazyTrackers(t *testing.T) {
	r := newTestRegistry(t, Options{
		ConnectionRate:      fastRate,
		ResourceRate:        fastRate,
		PortUsageRate:       fastRate,
		ConnectionResolvers: []system.Resolver{&fakeResolver{name: "ss", results: [][]system.Connection{{connA}}}},
		ResourceStrategies:  []system.ResourceStrategy{&fakeStrategy{name: "proc", stats: system.ProcessStats{CPUTotal: 1, Uptime: 2}}},
		PortLookup:          (&fakeLookup{}).lookup,
	})

	assert.Empty(t, r.daemons())

	conns := r.ConnectionTracker()
	assert.Same(t, conns, r.ConnectionTracker())
	require.Eventually(t, func() bool { return len(conns.Value()) == 1 }, waitFor, 5*time.Millisecond)

	resources := r.ResourceTracker()
	assert.Same(t, resources, r.ResourceTracker())
	require.Eventually(t, func() bool { return resources.RunCounter() > 0 }, waitFor, 5*time.Millisecond)

	ports := r.PortUsageTracker()
	assert.Same(t, ports, r.PortUsageTracker())
	require.Eventually(t, func() bool { return ports.RunCounter() > 0 }, waitFor, 5*time.Millisecond)

	assert.Same(t, r.ConsensusTracker(), r.ConsensusTracker())
	assert.Len(t, r.daemons(), 3)
}

func TestRegistry_PinnedResolver(t *testing.T) {
	stubAllConnections(t, nil, nil)
	r := newTestRegistry(t, Options{
		Resolver:            "inference",
		ConnectionResolvers: []system.Resolver{&fakeResolver{name: "ss"}},
	})

	custom := r.ConnectionTracker().CustomResolver()
	require.NotNil(t, custom)
	assert.Equal(t, system.ResolverInference, custom.Name())
}

func TestRegistry_StopAll(t *testing.T) {
	r := newTestRegistry(t, Options{
		ConnectionRate:      fastRate,
		ResourceRate:        fastRate,
		ConnectionResolvers: []system.Resolver{&fakeResolver{name: "ss", results: [][]system.Connection{{connA}}}},
		ResourceStrategies:  []system.ResourceStrategy{&fakeStrategy{name: "proc"}},
	})

	conns := r.ConnectionTracker()
	resources := r.ResourceTracker()
	require.Eventually(t, func() bool { return conns.Alive() && resources.Alive() }, waitFor, 5*time.Millisecond)

	handle := r.StopAll()
	assert.True(t, conns.Halted())
	assert.True(t, resources.Halted())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, handle.Wait(ctx))

	<-handle.Done()
	assert.False(t, conns.Alive())
	assert.False(t, resources.Alive())
}

func TestRegistry_StopAllWithNothingRunning(t *testing.T) {
	r := newTestRegistry(t, Options{})

	handle := r.StopAll()
	select {
	case <-handle.Done():
	case <-time.After(waitFor):
		t.Fatal("stop handle never finished")
	}
}

func TestStopHandle_WaitTimesOut(t *testing.T) {
	handle := &StopHandle{done: make(chan struct{}), daemons: 2}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := handle.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "2 trackers")
}
