package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

// Default polling rates.
const (
	DefaultConnectionRate = 5 * time.Second
	DefaultResourceRate   = 5 * time.Second
	DefaultPortUsageRate  = 5 * time.Second
)

// Options configures the trackers a Registry creates. Zero values use the
// defaults.
type Options struct {
	ConnectionRate time.Duration
	ResourceRate   time.Duration
	PortUsageRate  time.Duration

	// Resolver pins the connection tracker to one resolver by name.
	Resolver string

	// Overrides for what the trackers query. Nil uses the system's.
	ConnectionResolvers []system.Resolver
	ResourceStrategies  []system.ResourceStrategy
	PortLookup          PortLookup
}

func (o Options) withDefaults() Options {
	if o.ConnectionRate == 0 {
		o.ConnectionRate = DefaultConnectionRate
	}
	if o.ResourceRate == 0 {
		o.ResourceRate = DefaultResourceRate
	}
	if o.PortUsageRate == 0 {
		o.PortUsageRate = DefaultPortUsageRate
	}
	return o
}

// Validate checks the rates.
func (o Options) Validate() error {
	for name, rate := range map[string]time.Duration{
		"connection": o.ConnectionRate,
		"resource":   o.ResourceRate,
		"port usage": o.PortUsageRate,
	} {
		if rate < 0 {
			return fmt.Errorf("%s rate must be positive, got %s", name, rate)
		}
	}
	return nil
}

// Registry owns the trackers for one tor instance. Each tracker is created
// and started the first time it's asked for.
type Registry struct {
	controller Controller
	opts       Options
	log        logger.Logger

	mu         sync.Mutex
	connection *ConnectionTracker
	resource   *ResourceTracker
	portUsage  *PortUsageTracker
	consensus  *ConsensusTracker
}

// NewRegistry creates a registry for the trackers of the tor instance behind
// controller.
func NewRegistry(controller Controller, opts Options, log logger.Logger) (*Registry, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Default()
	}

	r := &Registry{
		controller: controller,
		opts:       opts.withDefaults(),
		log:        log,
	}

	// an unknown resolver name is a configuration mistake, so fail now
	// rather than on first use
	if r.opts.Resolver != "" {
		if _, err := ResolverByName(r.opts.Resolver, nil, nil); err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("Can't pin the connection resolver to '%s'", r.opts.Resolver))
		}
	}
	return r, nil
}

// ConnectionTracker returns the running connection tracker.
func (r *Registry) ConnectionTracker() *ConnectionTracker {
	consensus := r.ConsensusTracker()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.connection == nil {
		resolvers := r.opts.ConnectionResolvers
		if resolvers == nil {
			resolvers = DefaultConnectionResolvers(r.controller, consensus)
		}

		// rates were validated by NewRegistry
		t, err := NewConnectionTracker(r.controller, r.opts.ConnectionRate, resolvers, r.log)
		if err != nil {
			panic(err)
		}

		if r.opts.Resolver != "" {
			custom, err := ResolverByName(r.opts.Resolver, r.controller, consensus)
			if err != nil {
				panic(err)
			}
			t.SetCustomResolver(custom)
		}

		t.Start()
		r.connection = t
	}
	return r.connection
}

// ResourceTracker returns the running resource tracker.
func (r *Registry) ResourceTracker() *ResourceTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resource == nil {
		strategies := r.opts.ResourceStrategies
		if strategies == nil {
			strategies = DefaultResourceStrategies()
		}

		t, err := NewResourceTracker(r.controller, r.opts.ResourceRate, strategies, r.log)
		if err != nil {
			panic(err)
		}
		t.Start()
		r.resource = t
	}
	return r.resource
}

// PortUsageTracker returns the running port usage tracker.
func (r *Registry) PortUsageTracker() *PortUsageTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.portUsage == nil {
		t, err := NewPortUsageTracker(r.controller, r.opts.PortUsageRate, r.opts.PortLookup, r.log)
		if err != nil {
			panic(err)
		}
		t.Start()
		r.portUsage = t
	}
	return r.portUsage
}

// ConsensusTracker returns the consensus cache.
func (r *Registry) ConsensusTracker() *ConsensusTracker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consensus == nil {
		r.consensus = NewConsensusTracker(r.controller, r.log)
	}
	return r.consensus
}

// daemons returns the trackers that have been created.
func (r *Registry) daemons() []*Daemon {
	r.mu.Lock()
	defer r.mu.Unlock()

	var daemons []*Daemon
	if r.resource != nil {
		daemons = append(daemons, r.resource.Daemon)
	}
	if r.connection != nil {
		daemons = append(daemons, r.connection.Daemon)
	}
	if r.portUsage != nil {
		daemons = append(daemons, r.portUsage.Daemon)
	}
	return daemons
}

// StopAll halts every running tracker. It returns right away; the handle
// waits for them to finish.
func (r *Registry) StopAll() *StopHandle {
	daemons := r.daemons()
	for _, d := range daemons {
		d.Stop()
	}

	g := new(errgroup.Group)
	for _, d := range daemons {
		g.Go(func() error {
			d.Join()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	return &StopHandle{done: done, daemons: len(daemons)}
}

// StopHandle tracks trackers that are shutting down.
type StopHandle struct {
	done    chan struct{}
	daemons int
}

// Wait blocks until every tracker has finished, or ctx is done.
func (h *StopHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d trackers to stop: %w", h.daemons, ctx.Err())
	}
}

// Done is closed once every tracker has finished.
func (h *StopHandle) Done() <-chan struct{} {
	return h.done
}
