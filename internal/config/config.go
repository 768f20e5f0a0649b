// Package config loads an optional YAML tuning file. Absent a -config
// flag, every value here defaults to the supervisor's fixed constants.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults, matching the fixed respawn-governor and fork-retry constants.
const (
	DefaultRespawnFloor = time.Second
	DefaultForkBackoff  = 9 * time.Second
)

// Config holds the tunable knobs. Zero value equals the fixed
// defaults above.
type Config struct {
	// RespawnFloorSeconds overrides the minimum interval between
	// successive START executions of the same slot.
	RespawnFloorSeconds float64 `yaml:"respawn_floor_seconds"`
	// ForkBackoffSeconds overrides the retry delay after a transient
	// fork failure.
	ForkBackoffSeconds float64 `yaml:"fork_backoff_seconds"`
	// Verbose enables debug/trace-level log lines.
	Verbose bool `yaml:"verbose"`
}

// RespawnFloor returns the configured respawn floor, or
// DefaultRespawnFloor if unset.
func (c *Config) RespawnFloor() time.Duration {
	if c == nil || c.RespawnFloorSeconds <= 0 {
		return DefaultRespawnFloor
	}
	return time.Duration(c.RespawnFloorSeconds * float64(time.Second))
}

// ForkBackoff returns the configured fork-retry backoff, or
// DefaultForkBackoff if unset.
func (c *Config) ForkBackoff() time.Duration {
	if c == nil || c.ForkBackoffSeconds <= 0 {
		return DefaultForkBackoff
	}
	return time.Duration(c.ForkBackoffSeconds * float64(time.Second))
}

// Load reads and parses a YAML tuning file. A missing path is not an
// error at the call site — callers pass "" to mean "use defaults" and
// should not call Load in that case.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &c, nil
}
