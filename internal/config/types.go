package config

import (
	"time"

	"github.com/rileyhilliard/nyx/internal/eventlog"
)

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Config represents the complete nyx.yaml configuration file.
type Config struct {
	Version  int            `yaml:"version" mapstructure:"version"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Trackers TrackersConfig `yaml:"trackers" mapstructure:"trackers"`
	Control  ControlConfig  `yaml:"control" mapstructure:"control"`
	Output   OutputConfig   `yaml:"output" mapstructure:"output"`
}

// LogConfig controls the event log.
type LogConfig struct {
	// MaxSize is how many entries the event log keeps.
	MaxSize int `yaml:"max_size" mapstructure:"max_size"`

	// GroupByDay keeps duplicates from being linked across days.
	GroupByDay bool `yaml:"group_by_day" mapstructure:"group_by_day"`

	// Path is tor's log file. Supports ~ and ${HOME}.
	Path string `yaml:"path" mapstructure:"path"`

	// Dedup maps an event type to message prefixes that make two entries
	// duplicates. A leading '*' matches anywhere in the message.
	Dedup map[string][]string `yaml:"dedup" mapstructure:"dedup"`

	// Filters are regular expressions offered for filtering the log, most
	// recent first.
	Filters []string `yaml:"filters" mapstructure:"filters"`

	// FilterHistory is how many filters are remembered.
	FilterHistory int `yaml:"filter_history" mapstructure:"filter_history"`
}

// TrackersConfig controls the background trackers.
type TrackersConfig struct {
	ConnectionRate time.Duration `yaml:"connection_rate" mapstructure:"connection_rate"`
	ResourceRate   time.Duration `yaml:"resource_rate" mapstructure:"resource_rate"`
	PortUsageRate  time.Duration `yaml:"port_usage_rate" mapstructure:"port_usage_rate"`

	// Resolver pins connection lookups to one of: proc, netstat, ss, lsof,
	// inference. Empty picks automatically.
	Resolver string `yaml:"resolver" mapstructure:"resolver"`
}

// ControlConfig describes the tor instance being monitored.
type ControlConfig struct {
	// PID of tor. Zero looks it up by ProcessName.
	PID         int    `yaml:"pid" mapstructure:"pid"`
	ProcessName string `yaml:"name" mapstructure:"name"`

	// Relay identity. Only set for relays.
	Address     string `yaml:"address" mapstructure:"address"`
	Fingerprint string `yaml:"fingerprint" mapstructure:"fingerprint"`
	Nickname    string `yaml:"nickname" mapstructure:"nickname"`

	ORPorts      []int `yaml:"or_ports" mapstructure:"or_ports"`
	DirPorts     []int `yaml:"dir_ports" mapstructure:"dir_ports"`
	ControlPorts []int `yaml:"control_ports" mapstructure:"control_ports"`

	// ConsensusFile is a cached-consensus (or cached-microdesc-consensus)
	// from tor's data directory. Supports ~ and ${HOME}.
	ConsensusFile string `yaml:"consensus_file" mapstructure:"consensus_file"`

	// DisableDebuggerAttachment mirrors tor's option of the same name.
	DisableDebuggerAttachment bool `yaml:"disable_debugger_attachment" mapstructure:"disable_debugger_attachment"`
}

// OutputConfig controls terminal output.
type OutputConfig struct {
	// Color mode: "auto", "always", or "never".
	Color string `yaml:"color" mapstructure:"color"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version: CurrentConfigVersion,
		Log: LogConfig{
			MaxSize:       1000,
			GroupByDay:    true,
			Dedup:         eventlog.DefaultDedupRules(),
			Filters:       []string{},
			FilterHistory: 5,
		},
		Trackers: TrackersConfig{
			ConnectionRate: 5 * time.Second,
			ResourceRate:   5 * time.Second,
			PortUsageRate:  5 * time.Second,
		},
		Control: ControlConfig{
			ProcessName:  "tor",
			Nickname:     "Unnamed",
			ORPorts:      []int{},
			DirPorts:     []int{},
			ControlPorts: []int{},
		},
		Output: OutputConfig{
			Color: "auto",
		},
	}
}

// DedupRules returns the configured dedup rules.
func (c LogConfig) DedupRules() eventlog.DedupRules {
	return eventlog.DedupRules(c.Dedup).Clone()
}
