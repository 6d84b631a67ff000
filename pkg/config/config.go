// Package config defines the on-disk shape of a Pool's options and the
// Store abstraction used to load, persist, and validate it.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PoolConfig is the on-disk shape of pool.Options: everything a
// deployment would want to tune without a recompile.
type PoolConfig struct {
	LazyLoad     bool   `yaml:"lazy_load"`
	MaxThreads   int    `yaml:"max_threads"`
	MaxTasks     int    `yaml:"max_tasks"`
	TaskRetry    int    `yaml:"task_retry"`
	TaskLoopTime string `yaml:"task_loop_time"`
	Type         string `yaml:"type"`
}

// ParseConfig parses a PoolConfig from YAML data.
func ParseConfig(data []byte) (*PoolConfig, error) {
	cfg := &PoolConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Marshal converts the configuration to YAML.
func (c *PoolConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate reports whether Type, if set, names a known runtime.Kind.
// Numeric bounds are enforced by pool.Options' own validation once the
// values are merged in; Store.Validate exists for callers that want to
// fail fast on a malformed file before ever constructing a Pool.
func (c *PoolConfig) Validate() error {
	switch c.Type {
	case "", "EXEC", "EVAL":
		return nil
	default:
		return fmt.Errorf("%w: type must be EXEC or EVAL, got %q", ErrInvalidValue, c.Type)
	}
}
