package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/control"
	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/eventlog"
	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/tracker"
	"github.com/rileyhilliard/nyx/internal/ui"
)

const (
	// cpuHistoryWidth is how many cpu samples the sparkline shows.
	cpuHistoryWidth = 20

	// stopTimeout bounds how long we wait for the trackers on exit.
	stopTimeout = 5 * time.Second
)

type watchOptions struct {
	PID      int
	Interval time.Duration
	Count    int
	NoLog    bool
}

// watchCommand runs the trackers until interrupted.
func watchCommand(cmd *cobra.Command, opts watchOptions) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.PID > 0 {
		cfg.Control.PID = opts.PID
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runWatch(ctx, cmd.OutOrStdout(), cfg, opts, trackerOptions(cfg.Trackers))
}

// trackerOptions maps the trackers config section onto registry options.
func trackerOptions(c config.TrackersConfig) tracker.Options {
	return tracker.Options{
		ConnectionRate: c.ConnectionRate,
		ResourceRate:   c.ResourceRate,
		PortUsageRate:  c.PortUsageRate,
		Resolver:       c.Resolver,
	}
}

func runWatch(ctx context.Context, w io.Writer, cfg *config.Config, opts watchOptions, trackerOpts tracker.Options) error {
	if opts.Interval <= 0 {
		opts.Interval = cfg.Trackers.ResourceRate
	}

	group, err := eventlog.NewGroup(cfg.Log.MaxSize, cfg.Log.GroupByDay, cfg.Log.DedupRules())
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, "Invalid log settings", "Check log.max_size in your nyx.yaml.")
	}
	log := eventlog.NewLogger(group, logger.NewEnvLogger("[nyx]"))

	ctl := control.NewStatic(cfg.Control, log)
	defer ctl.Close()

	if _, err := ctl.PID(); err != nil {
		return err
	}

	registry, err := tracker.NewRegistry(ctl, trackerOpts, log)
	if errors.IsCode(err, errors.ErrResolver) {
		return err
	}
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrTracker,
			"Can't start the trackers",
			"Check the 'trackers' section in your nyx.yaml.")
	}

	registry.ConnectionTracker()
	registry.ResourceTracker()
	registry.PortUsageTracker()

	followLog := cfg.Log.Path != "" && !opts.NoLog
	if followLog {
		if read, err := eventlog.ReadTorLog(cfg.Log.Path, cfg.Log.MaxSize); err != nil {
			log.Notice("unable to read tor's log: %v", err)
		} else {
			eventlog.Replay(group, read)
		}
	}

	wt := &watcher{
		out:      w,
		cfg:      cfg,
		registry: registry,
		group:    group,
		cpu:      make([]float64, 0, cpuHistoryWidth),
	}
	if entries := group.Entries(); len(entries) > 0 {
		wt.lastSeen = entries[0]
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if followLog {
		g.Go(func() error {
			if err := eventlog.Follow(gctx, cfg.Log.Path, group, log); err != nil {
				log.Warn("stopped following tor's log: %v", err)
			}
			return nil
		})
	}

	if cfg.Control.ConsensusFile != "" {
		g.Go(func() error {
			if err := ctl.WatchConsensus(gctx); err != nil {
				log.Warn("stopped watching the consensus: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		return wt.run(gctx, opts.Interval, opts.Count)
	})

	runErr := g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := registry.StopAll().Wait(stopCtx); err != nil {
		return errors.WrapWithCode(err, errors.ErrTracker,
			"Trackers didn't stop in time",
			"A system command may be hung. Check for stuck ss, netstat or lsof processes.")
	}

	return runErr
}

// watcher prints a status line and any new log events on each tick.
type watcher struct {
	out      io.Writer
	cfg      *config.Config
	registry *tracker.Registry
	group    *eventlog.Group

	cpu      []float64
	lastCPU  time.Time
	lastSeen *eventlog.Entry
}

func (w *watcher) run(ctx context.Context, interval time.Duration, count int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for printed := 0; count <= 0 || printed < count; printed++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		for _, entry := range w.newEvents() {
			fmt.Fprintln(w.out, ui.RenderEntry(entry, 0))
		}
		fmt.Fprintln(w.out, w.statusLine())
	}
	return nil
}

// newEvents returns entries added since the last call, oldest first.
func (w *watcher) newEvents() []*eventlog.Entry {
	var fresh []*eventlog.Entry
	w.group.Each(func(e *eventlog.Entry) bool {
		if e == w.lastSeen {
			return false
		}
		fresh = append(fresh, e)
		return true
	})

	if len(fresh) == 0 {
		return nil
	}
	w.lastSeen = fresh[0]

	for i, j := 0, len(fresh)-1; i < j; i, j = i+1, j-1 {
		fresh[i], fresh[j] = fresh[j], fresh[i]
	}
	return fresh
}

func (w *watcher) statusLine() string {
	conns := w.registry.ConnectionTracker()
	resources := w.registry.ResourceTracker()
	ports := w.registry.PortUsageTracker()

	usage := resources.Value()
	if !usage.Timestamp.IsZero() && usage.Timestamp != w.lastCPU {
		w.lastCPU = usage.Timestamp
		w.cpu = append(w.cpu, usage.CPUSample)
		if len(w.cpu) > cpuHistoryWidth {
			w.cpu = w.cpu[len(w.cpu)-cpuHistoryWidth:]
		}
	}

	connections := conns.Value()
	state := trackerStates(conns.Daemon, resources.Daemon, ports.Daemon)

	fields := []string{
		state,
		ui.Field("conns", fmt.Sprintf("%d", len(connections))),
	}

	if usage.Timestamp.IsZero() {
		fields = append(fields, ui.Field("cpu", ui.MutedStyle().Render("-")))
	} else {
		fields = append(fields,
			ui.Field("cpu", fmt.Sprintf("%.1f%% %s", usage.CPUSample*100, ui.RenderSparkline(w.cpu, cpuHistoryWidth))),
			ui.Field("mem", fmt.Sprintf("%s (%.1f%%)", humanize.IBytes(uint64(usage.MemoryBytes)), usage.MemoryPercent*100)),
		)
	}

	if clients := controlClients(w.cfg.Control.ControlPorts, connections, ports); clients != "" {
		fields = append(fields, ui.Field("controllers", clients))
	}

	if entry := w.registry.ConsensusTracker().MyRouterStatusEntry(); entry != nil && len(entry.Flags) > 0 {
		fields = append(fields, ui.Field("flags", strings.Join(entry.Flags, " ")))
	}

	if n := w.group.Len(); n > 0 {
		fields = append(fields, ui.Field("events", fmt.Sprintf("%d", n)))
	}

	return ui.StatusLine(fields...)
}

// trackerStates renders a symbol per tracker.
func trackerStates(daemons ...*tracker.Daemon) string {
	symbols := make([]string, 0, len(daemons))
	for _, d := range daemons {
		s := ui.TrackerState{
			Name:    d.Name(),
			Started: d.Alive() || d.RunCounter() > 0,
			Paused:  d.Paused(),
			Halted:  d.Halted(),
			Runs:    d.RunCounter(),
		}
		symbols = append(symbols, s.Symbol())
	}
	return strings.Join(symbols, "")
}

// controlClients names the processes connected to tor's control ports. The
// client end of each connection is looked up by the port usage tracker, so
// names show up a tick after the connection does.
func controlClients(controlPorts []int, connections []tracker.Connection, ports *tracker.PortUsageTracker) string {
	if len(controlPorts) == 0 {
		return ""
	}

	isControl := make(map[int]bool, len(controlPorts))
	for _, p := range controlPorts {
		isControl[p] = true
	}

	var clientPorts []int
	for _, c := range connections {
		if isControl[c.LocalPort] {
			clientPorts = append(clientPorts, c.RemotePort)
		}
	}
	if len(clientPorts) == 0 {
		return ""
	}

	resolved := ports.Query(clientPorts, nil)

	var names []string
	for _, port := range clientPorts {
		if proc := resolved[port]; proc != nil {
			names = append(names, fmt.Sprintf("%s (%d)", proc.Name, proc.PID))
		}
	}
	sort.Strings(names)

	if len(names) == 0 {
		return fmt.Sprintf("%d", len(clientPorts))
	}
	return strings.Join(names, ", ")
}
