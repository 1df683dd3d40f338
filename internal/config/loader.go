package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/eventlog"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "nyx.yaml"
	// GlobalConfigDir is the directory for global config.
	GlobalConfigDir = ".config/nyx"
	// GlobalConfigFile is the global config file name.
	GlobalConfigFile = "config.yaml"
	// EnvPrefix prefixes environment overrides, e.g. NYX_CONTROL_PID.
	EnvPrefix = "NYX"
)

// Load reads config from the specified path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Config file not found",
				"Run 'nyx config init' to create a config file, or specify one with --config")
		}
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return parseConfig(v, path)
}

// Find locates the config file using the search order:
// 1. Explicit path (from --config flag)
// 2. nyx.yaml in current directory
// 3. ~/.config/nyx/config.yaml (global defaults)
//
// Returns the path to the config file, or empty string if not found.
func Find(explicit string) (string, error) {
	if explicit != "" {
		explicit = ExpandTilde(explicit)
		if _, err := os.Stat(explicit); err != nil {
			if os.IsNotExist(err) {
				return "", errors.WrapWithCode(err, errors.ErrConfig,
					"Specified config file not found: "+explicit,
					"Check the path is correct")
			}
			return "", errors.WrapWithCode(err, errors.ErrConfig,
				"Cannot access config file: "+explicit,
				"Check file permissions")
		}
		return explicit, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig,
			"Cannot determine current directory",
			"Check directory permissions")
	}

	localConfig := filepath.Join(cwd, ConfigFileName)
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	if globalConfig := GlobalConfigPath(); globalConfig != "" {
		if _, err := os.Stat(globalConfig); err == nil {
			return globalConfig, nil
		}
	}

	return "", nil
}

// GlobalConfigPath returns ~/.config/nyx/config.yaml, or "" if there's no
// home directory.
func GlobalConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, GlobalConfigDir, GlobalConfigFile)
}

// LoadOrDefault loads config from the found path, or returns defaults if not
// found. An explicit path that doesn't exist is an error.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Find(explicit)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return parseConfig(newViper(), "")
	}

	return Load(path)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// parseConfig converts viper config to our Config struct with defaults merged in.
func parseConfig(v *viper.Viper, path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid config format",
			"Check the YAML syntax in "+path)
	}

	// A configured event type replaces its default patterns. Viper lowercases
	// map keys, but event types are upper case.
	dedup := eventlog.DefaultDedupRules()
	for eventType, patterns := range v.GetStringMapStringSlice("log.dedup") {
		dedup[strings.ToUpper(eventType)] = patterns
	}
	cfg.Log.Dedup = dedup

	cfg.Log.Path = Expand(cfg.Log.Path)
	cfg.Control.ConsensusFile = Expand(cfg.Control.ConsensusFile)

	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("version", d.Version)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.group_by_day", d.Log.GroupByDay)
	v.SetDefault("log.path", d.Log.Path)
	v.SetDefault("log.filter_history", d.Log.FilterHistory)
	v.SetDefault("trackers.connection_rate", d.Trackers.ConnectionRate.String())
	v.SetDefault("trackers.resource_rate", d.Trackers.ResourceRate.String())
	v.SetDefault("trackers.port_usage_rate", d.Trackers.PortUsageRate.String())
	v.SetDefault("trackers.resolver", d.Trackers.Resolver)
	v.SetDefault("control.pid", d.Control.PID)
	v.SetDefault("control.name", d.Control.ProcessName)
	v.SetDefault("control.address", d.Control.Address)
	v.SetDefault("control.fingerprint", d.Control.Fingerprint)
	v.SetDefault("control.nickname", d.Control.Nickname)
	v.SetDefault("control.consensus_file", d.Control.ConsensusFile)
	v.SetDefault("control.disable_debugger_attachment", d.Control.DisableDebuggerAttachment)
	v.SetDefault("output.color", d.Output.Color)
}
