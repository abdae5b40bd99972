package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig is the optional --config file format. Flags always take
// precedence over config values; the config file only supplies defaults.
type fileConfig struct {
	FHIRVersion  string `yaml:"fhirVersion"`
	OutputFormat string `yaml:"outputFormat"`
	MaxDepth     int    `yaml:"maxDepth"`
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}
