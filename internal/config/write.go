package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rileyhilliard/nyx/internal/errors"
)

const fileHeader = `nyx configuration. Generated by 'nyx config init'.
Event types under log.dedup replace the built in patterns for that type.`

// WriteDefault writes the default config to path. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.New(errors.ErrConfig,
				"Config file already exists: "+path,
				"Use --force to overwrite it")
		}
	}

	data, err := Marshal(DefaultConfig())
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't create the config directory",
			"Check permissions on "+filepath.Dir(path))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			"Can't write the config file",
			"Check permissions on "+path)
	}
	return nil
}

// Marshal renders a config as YAML with durations written as strings like
// "5s", so the file reads the way people write it.
func Marshal(cfg *Config) ([]byte, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	doc.HeadComment = fileHeader

	if trackers := findMapValue(&doc, "trackers"); trackers != nil {
		setDuration(trackers, "connection_rate", cfg.Trackers.ConnectionRate)
		setDuration(trackers, "resource_rate", cfg.Trackers.ResourceRate)
		setDuration(trackers, "port_usage_rate", cfg.Trackers.PortUsageRate)
	}

	var buf strings.Builder
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}

	return []byte(buf.String()), nil
}

func setDuration(node *yaml.Node, key string, d time.Duration) {
	if value := findMapValue(node, key); value != nil {
		value.Kind = yaml.ScalarNode
		value.Tag = "!!str"
		value.Value = d.String()
	}
}

// findMapValue finds a value in a mapping node by key name.
func findMapValue(node *yaml.Node, key string) *yaml.Node {
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i < len(node.Content)-1; i += 2 {
		keyNode := node.Content[i]
		valueNode := node.Content[i+1]

		if keyNode.Kind == yaml.ScalarNode && keyNode.Value == key {
			return valueNode
		}
	}

	return nil
}
