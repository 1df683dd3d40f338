package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rileyhilliard/nyx/internal/errors"
	"github.com/rileyhilliard/nyx/internal/system"
)

// ValidResolvers are the names accepted for trackers.resolver.
var ValidResolvers = []string{
	system.ResolverProc,
	system.ResolverNetstat,
	system.ResolverSS,
	system.ResolverLsof,
	system.ResolverInference,
}

var fingerprintPattern = regexp.MustCompile(`^[0-9A-Fa-f]{40}$`)

// Validate checks the config for errors and returns structured error messages.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but nyx only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade nyx, or regenerate the config with 'nyx config init --force'.")
	}

	if err := validateLog(cfg.Log); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'log' section in your nyx.yaml.")
	}

	if err := validateTrackers(cfg.Trackers); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'trackers' section in your nyx.yaml.")
	}

	if err := validateControl(cfg.Control); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'control' section in your nyx.yaml.")
	}

	if err := validateOutput(cfg.Output); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig, err.Error(), "Check the 'output' section in your nyx.yaml.")
	}

	return nil
}

func validateLog(log LogConfig) error {
	if log.MaxSize <= 0 {
		return fmt.Errorf("log.max_size must be at least 1, got %d", log.MaxSize)
	}
	if log.FilterHistory < 0 {
		return fmt.Errorf("log.filter_history can't be negative")
	}

	for eventType, patterns := range log.Dedup {
		if strings.TrimSpace(eventType) == "" {
			return fmt.Errorf("log.dedup has an entry without an event type")
		}
		for _, pattern := range patterns {
			if pattern == "" || pattern == "*" {
				return fmt.Errorf("log.dedup.%s has an empty pattern, which would match every message", eventType)
			}
		}
	}

	for _, filter := range log.Filters {
		if _, err := regexp.Compile(filter); err != nil {
			return fmt.Errorf("log.filters has an invalid regular expression '%s': %v", filter, err)
		}
	}

	return nil
}

func validateTrackers(trackers TrackersConfig) error {
	rates := []struct {
		name string
		rate time.Duration
	}{
		{"trackers.connection_rate", trackers.ConnectionRate},
		{"trackers.resource_rate", trackers.ResourceRate},
		{"trackers.port_usage_rate", trackers.PortUsageRate},
	}
	for _, r := range rates {
		if r.rate <= 0 {
			return fmt.Errorf("%s must be positive, got %v", r.name, r.rate)
		}
	}

	if trackers.Resolver != "" && !isValidResolver(trackers.Resolver) {
		return fmt.Errorf("trackers.resolver '%s' isn't a resolver nyx knows - use one of: %s",
			trackers.Resolver, strings.Join(ValidResolvers, ", "))
	}

	return nil
}

func isValidResolver(name string) bool {
	for _, r := range ValidResolvers {
		if r == name {
			return true
		}
	}
	return false
}

func validateControl(control ControlConfig) error {
	if control.PID < 0 {
		return fmt.Errorf("control.pid can't be negative")
	}
	if control.PID == 0 && control.ProcessName == "" {
		return fmt.Errorf("control needs either a pid or a process name to find tor")
	}

	if control.Fingerprint != "" && !fingerprintPattern.MatchString(control.Fingerprint) {
		return fmt.Errorf("control.fingerprint '%s' should be 40 hex characters", control.Fingerprint)
	}

	ports := []struct {
		name  string
		ports []int
	}{
		{"control.or_ports", control.ORPorts},
		{"control.dir_ports", control.DirPorts},
		{"control.control_ports", control.ControlPorts},
	}
	for _, p := range ports {
		for _, port := range p.ports {
			if !system.IsValidPort(port) {
				return fmt.Errorf("%s has %d, which isn't a valid port", p.name, port)
			}
		}
	}

	return nil
}

func validateOutput(out OutputConfig) error {
	validColors := map[string]bool{"auto": true, "always": true, "never": true, "": true}
	if !validColors[out.Color] {
		return fmt.Errorf("output.color '%s' isn't valid - use 'auto', 'always', or 'never'", out.Color)
	}
	return nil
}
