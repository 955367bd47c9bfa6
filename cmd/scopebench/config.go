package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk shape of --config. Missing sections keep their defaults.
type Config struct {
	Digest DigestConfig `yaml:"digest"`
	Events EventsConfig `yaml:"events"`
}

type DigestConfig struct {
	Widths     []int `yaml:"widths"`
	Depths     []int `yaml:"depths"`
	Iterations int   `yaml:"iterations"`
	// Async drives the trees through ApplyAsync on a loop.Loop.
	Async bool `yaml:"async"`
}

type EventsConfig struct {
	Widths     []int `yaml:"widths"`
	Depths     []int `yaml:"depths"`
	Iterations int   `yaml:"iterations"`
}

func defaultConfig() Config {
	return Config{
		Digest: DigestConfig{
			Widths:     []int{1, 10, 100},
			Depths:     []int{1, 10, 100},
			Iterations: 100,
		},
		Events: EventsConfig{
			Widths:     []int{1, 10, 100},
			Depths:     []int{1, 10},
			Iterations: 1_000,
		},
	}
}

var errInvalidConfig = errors.New("invalid config")

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if err := validateSizes("digest", c.Digest.Widths, c.Digest.Depths, c.Digest.Iterations); err != nil {
		return err
	}
	return validateSizes("events", c.Events.Widths, c.Events.Depths, c.Events.Iterations)
}

func validateSizes(section string, widths, depths []int, iterations int) error {
	if len(widths) == 0 || len(depths) == 0 {
		return fmt.Errorf("%w: %s needs widths and depths", errInvalidConfig, section)
	}
	for _, n := range append(append([]int{}, widths...), depths...) {
		if n <= 0 {
			return fmt.Errorf("%w: %s sizes must be positive, got %d", errInvalidConfig, section, n)
		}
	}
	if iterations <= 0 {
		return fmt.Errorf("%w: %s iterations must be positive", errInvalidConfig, section)
	}
	return nil
}
