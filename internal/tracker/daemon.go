package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
)

// minSleep bounds how often an idle daemon re-checks whether it's due.
const minSleep = 20 * time.Millisecond

// defaultProcessName is assumed when tor's command name can't be looked up.
const defaultProcessName = "tor"

// processName looks up a pid's command. Replaced in tests.
var processName = system.NameByPID

// Task is one unit of a daemon's work. It reports whether it succeeded. The
// context is cancelled when the daemon stops.
type Task func(ctx context.Context, pid int, name string) bool

// Daemon runs a task at a target rate in its own goroutine, tracking tor's
// pid through the controller's lifecycle notifications.
//
// A daemon starts in the created state, runs until Stop, and can be paused
// in between. Stopping is permanent.
type Daemon struct {
	name       string
	task       Task
	controller Controller
	log        logger.Logger
	now        func() time.Time

	mu          sync.Mutex
	rate        time.Duration
	lastRan     time.Time
	runCounter  int
	paused      bool
	halted      bool
	pid         int
	processName string

	ctx     context.Context
	cancel  context.CancelFunc
	halt    chan struct{} // closed by Stop
	poke    chan struct{} // re-evaluate sleep after a rate or pause change
	done    chan struct{} // closed when Run returns
	started chan struct{} // closed when Run begins

	runOnce  sync.Once
	stopOnce sync.Once
}

// NewDaemon creates a daemon that will run task every rate once started.
func NewDaemon(name string, rate time.Duration, controller Controller, task Task, log logger.Logger) (*Daemon, error) {
	if rate <= 0 {
		return nil, fmt.Errorf("%s rate must be positive, got %s", name, rate)
	}
	if task == nil {
		return nil, fmt.Errorf("%s has no task", name)
	}
	if log == nil {
		log = logger.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		name:       name,
		task:       task,
		controller: controller,
		log:        log,
		now:        time.Now,
		rate:       rate,
		ctx:        ctx,
		cancel:     cancel,
		halt:       make(chan struct{}),
		poke:       make(chan struct{}, 1),
		done:       make(chan struct{}),
		started:    make(chan struct{}),
	}

	if controller != nil {
		controller.AddStatusListener(d.statusListener)
		d.statusListener(StateInit)
	}

	return d, nil
}

// Name identifies the daemon in log messages.
func (d *Daemon) Name() string { return d.name }

// Start runs the daemon in a new goroutine.
func (d *Daemon) Start() {
	go d.Run()
}

// Run executes the task loop until Stop is called. Only the first call does
// anything.
func (d *Daemon) Run() {
	d.runOnce.Do(d.loop)
}

func (d *Daemon) loop() {
	close(d.started)
	defer close(d.done)

	for {
		d.mu.Lock()
		if d.halted {
			d.mu.Unlock()
			return
		}

		sinceLastRan := d.now().Sub(d.lastRan)
		if d.paused || sinceLastRan < d.rate {
			sleep := d.rate - sinceLastRan
			if sleep < minSleep {
				sleep = minSleep
			}
			d.mu.Unlock()
			d.wait(sleep)
			continue
		}

		pid, name := d.pid, d.processName
		d.mu.Unlock()

		succeeded := false
		if pid > 0 {
			succeeded = d.task(d.ctx, pid, name)
		}

		d.mu.Lock()
		if succeeded {
			d.runCounter++
		}
		d.lastRan = d.now()
		d.mu.Unlock()
	}
}

// wait sleeps for up to duration, waking early on Stop or a state change.
func (d *Daemon) wait(duration time.Duration) {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-d.halt:
	case <-d.poke:
	}
}

func (d *Daemon) wake() {
	select {
	case d.poke <- struct{}{}:
	default:
	}
}

// Rate returns how often the task runs.
func (d *Daemon) Rate() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// SetRate changes how often the task runs. Panics on a non-positive rate.
func (d *Daemon) SetRate(rate time.Duration) {
	if rate <= 0 {
		panic(fmt.Sprintf("%s rate must be positive, got %s", d.name, rate))
	}

	d.mu.Lock()
	d.rate = rate
	d.mu.Unlock()
	d.wake()
}

// Paused reports whether the task is suspended.
func (d *Daemon) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// SetPaused suspends or resumes the task. Cached results and the run counter
// are kept.
func (d *Daemon) SetPaused(paused bool) {
	d.mu.Lock()
	d.paused = paused
	d.mu.Unlock()
	d.wake()
}

// RunCounter returns how many times the task has succeeded. Callers compare
// it against a value they saw before to check for new results.
func (d *Daemon) RunCounter() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runCounter
}

// LastRan returns when the task last finished, successful or not.
func (d *Daemon) LastRan() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRan
}

// PID returns the pid the task is run against, or zero if tor isn't
// connected.
func (d *Daemon) PID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pid
}

// Stop halts the daemon. An in-flight task sees its context cancelled and is
// allowed to finish. Safe to call more than once and from any goroutine,
// including the task itself.
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.halted = true
		d.mu.Unlock()

		d.cancel()
		close(d.halt)
	})
}

// Join blocks until Run returns. It returns immediately for a daemon that was
// never started.
func (d *Daemon) Join() {
	select {
	case <-d.started:
		<-d.done
	default:
	}
}

// Alive reports whether Run is executing.
func (d *Daemon) Alive() bool {
	select {
	case <-d.started:
	default:
		return false
	}

	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Halted reports whether Stop was called.
func (d *Daemon) Halted() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.halted
}

// statusListener follows tor's pid as the control connection comes and goes.
func (d *Daemon) statusListener(state State) {
	switch state {
	case StateInit, StateReset:
		pid, err := d.controller.PID()
		if err != nil || pid <= 0 {
			d.log.Debug("%s: unable to determine tor's pid: %v", d.name, err)
			pid = 0
		}

		name := defaultProcessName
		if pid > 0 {
			if n, err := processName(context.Background(), pid); err == nil && n != "" {
				name = n
			}
		}

		d.mu.Lock()
		if !d.halted {
			d.pid = pid
			d.processName = name
		}
		d.mu.Unlock()

	case StateClosed:
		d.mu.Lock()
		d.pid = 0
		d.processName = ""
		d.mu.Unlock()
	}
}
