// Package control stands in for tor's control connection. Static answers the
// trackers' questions from configuration and tor's cached consensus file
// rather than the control protocol.
package control

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/rileyhilliard/nyx/internal/config"
	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/logger"
	"github.com/rileyhilliard/nyx/internal/system"
	"github.com/rileyhilliard/nyx/internal/tracker"
)

// pidByName finds tor when no pid is configured. Replaced in tests.
var pidByName = system.PIDByName

// lookupTimeout bounds process table scans.
const lookupTimeout = 5 * time.Second

// Static is a tracker.Controller backed by configuration.
type Static struct {
	log logger.Logger

	mu  sync.RWMutex
	cfg config.ControlConfig

	listenersMu        sync.Mutex
	statusListeners    []func(tracker.State)
	consensusListeners []func([]tracker.RouterStatus)
}

// NewStatic creates a controller for the tor instance described by cfg.
func NewStatic(cfg config.ControlConfig, log logger.Logger) *Static {
	if log == nil {
		log = logger.Default()
	}
	return &Static{cfg: cfg, log: log}
}

// PID returns the configured pid, or looks tor up by process name.
func (s *Static) PID() (int, error) {
	s.mu.RLock()
	pid, name := s.cfg.PID, s.cfg.ProcessName
	s.mu.RUnlock()

	if pid > 0 {
		return pid, nil
	}
	if name == "" {
		return 0, errors.New(errors.ErrControl,
			"Don't know how to find tor",
			"Set control.pid or control.name in your nyx.yaml")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()

	pid, err := pidByName(ctx, name)
	if err != nil {
		return 0, errors.WrapWithCode(err, errors.ErrControl,
			fmt.Sprintf("Unable to find a '%s' process", name),
			"Check tor is running, or set control.pid")
	}
	return pid, nil
}

// GetInfo answers the GETINFO keys the trackers use: "fingerprint",
// "address", "ns/all" and "process/pid".
func (s *Static) GetInfo(key string) (string, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	switch key {
	case "fingerprint":
		return nonEmpty(key, cfg.Fingerprint)
	case "address":
		return nonEmpty(key, cfg.Address)
	case "ns/all":
		if cfg.ConsensusFile == "" {
			return "", fmt.Errorf("%s: no consensus file configured", key)
		}
		data, err := os.ReadFile(cfg.ConsensusFile)
		if err != nil {
			return "", fmt.Errorf("%s: %w", key, err)
		}
		return string(data), nil
	case "process/pid":
		pid, err := s.PID()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(pid), nil
	default:
		return "", fmt.Errorf("unrecognized key \"%s\"", key)
	}
}

// GetConf returns the tor options nyx cares about.
func (s *Static) GetConf(key string) (string, error) {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	switch key {
	case "Nickname":
		return cfg.Nickname, nil
	case "DisableDebuggerAttachment":
		if cfg.DisableDebuggerAttachment {
			return "1", nil
		}
		return "0", nil
	case "ORPort":
		return firstPort(cfg.ORPorts), nil
	case "DirPort":
		return firstPort(cfg.DirPorts), nil
	case "ControlPort":
		return firstPort(cfg.ControlPorts), nil
	default:
		return "", fmt.Errorf("unrecognized configuration key \"%s\"", key)
	}
}

// Ports lists the ports tor listens on for a listener type.
func (s *Static) Ports(listener tracker.Listener) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ports []int
	switch listener {
	case tracker.ListenerOR:
		ports = s.cfg.ORPorts
	case tracker.ListenerDir:
		ports = s.cfg.DirPorts
	case tracker.ListenerControl:
		ports = s.cfg.ControlPorts
	}
	return append([]int(nil), ports...)
}

// NetworkStatus finds our own entry in the consensus file.
func (s *Static) NetworkStatus() (*tracker.RouterStatus, error) {
	fingerprint, err := s.GetInfo("fingerprint")
	if err != nil {
		return nil, err
	}

	entries, err := s.Consensus()
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].Fingerprint == fingerprint {
			return &entries[i], nil
		}
	}
	return nil, fmt.Errorf("%s isn't in the consensus", fingerprint)
}

// Consensus parses the consensus file. Malformed entries are logged and
// skipped.
func (s *Static) Consensus() ([]tracker.RouterStatus, error) {
	content, err := s.GetInfo("ns/all")
	if err != nil {
		return nil, err
	}

	entries, err := tracker.ParseRouterStatusLines(content)
	if err != nil && len(entries) == 0 {
		return nil, errors.WrapWithCode(err, errors.ErrControl,
			"Unable to read the consensus",
			"Check control.consensus_file points at tor's cached-consensus")
	}
	if err != nil {
		s.log.Debug("consensus: %v", err)
	}
	return entries, nil
}

// AddStatusListener registers fn for control connection state changes.
func (s *Static) AddStatusListener(fn func(tracker.State)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.statusListeners = append(s.statusListeners, fn)
}

// AddConsensusListener registers fn for new consensus documents.
func (s *Static) AddConsensusListener(fn func([]tracker.RouterStatus)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.consensusListeners = append(s.consensusListeners, fn)
}

// Reset applies new configuration, as tor does on SIGHUP, and notifies
// listeners so they re-resolve tor's pid.
func (s *Static) Reset(cfg config.ControlConfig) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.fireStatus(tracker.StateReset)
}

// Close notifies listeners that tor went away.
func (s *Static) Close() {
	s.fireStatus(tracker.StateClosed)
}

// PublishConsensus hands a new consensus to the listeners.
func (s *Static) PublishConsensus(entries []tracker.RouterStatus) {
	s.listenersMu.Lock()
	listeners := slices.Clone(s.consensusListeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(entries)
	}
}

// ReloadConsensus re-reads the consensus file and publishes it.
func (s *Static) ReloadConsensus() error {
	entries, err := s.Consensus()
	if err != nil {
		return err
	}
	s.PublishConsensus(entries)
	return nil
}

func (s *Static) fireStatus(state tracker.State) {
	s.listenersMu.Lock()
	listeners := slices.Clone(s.statusListeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

func nonEmpty(key, value string) (string, error) {
	if value == "" {
		return "", fmt.Errorf("%s: not a relay", key)
	}
	return value, nil
}

func firstPort(ports []int) string {
	if len(ports) == 0 {
		return ""
	}
	return strconv.Itoa(ports[0])
}
