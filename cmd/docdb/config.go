// CLI configuration loaded from an optional YAML file.

package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// defaultConfigPath is consulted when --config is not given.
const defaultConfigPath = ".docdb.yaml"

// config mirrors the persistent flags; flags set on the command line take
// precedence over file values.
type config struct {
	Name         string `yaml:"name"`
	Path         string `yaml:"path"`
	LogLevel     string `yaml:"log_level"`
	History      bool   `yaml:"history"`
	EnforceTypes bool   `yaml:"enforce_types"`
}

// loadConfig reads the YAML config at path, or the default location when
// path is empty. A missing default file is not an error; a missing explicit
// file is.
func loadConfig(path string) (*config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &config{}, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}
