package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/butter-bot-machines/taskmill/pkg/config/env"
)

// Manager loads and persists a PoolConfig file, the YAML counterpart
// of pool.Options. It is intentionally independent of pkg/pool and
// pkg/runtime so this package stays a leaf; pkg/configwatch does the
// translation into live Pool calls.
type Manager struct {
	mu     sync.RWMutex
	config *PoolConfig
	path   string
}

// NewManager creates a Manager bound to the given config file path.
func NewManager(path string) *Manager {
	return &Manager{
		config: &PoolConfig{},
		path:   path,
	}
}

// Load reads and parses the config file. A missing file is not an
// error: the Manager keeps its current (zero-value) config, mirroring
// pool.Options' own all-defaults-usable zero value.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.config = cfg
	return nil
}

// GetConfig returns the current configuration.
func (m *Manager) GetConfig() *PoolConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.config
	return &cfg
}

// SetConfig replaces the current configuration.
func (m *Manager) SetConfig(cfg *PoolConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = cfg
}

// Save writes the current configuration to the config file path.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := m.config.Marshal()
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(m.path, data, 0644)
}

// Reset clears the configuration back to its zero value.
func (m *Manager) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = &PoolConfig{}
	return nil
}

// Validate validates the current configuration.
func (m *Manager) Validate() error {
	return m.GetConfig().Validate()
}

// Path returns the path this Manager reads and writes.
func (m *Manager) Path() string { return m.path }

// ApplyEnvOverrides layers TASKMILL_MAX_THREADS, TASKMILL_MAX_TASKS,
// TASKMILL_TASK_RETRY, TASKMILL_TASK_LOOP_TIME, TASKMILL_TYPE, and
// TASKMILL_LAZY_LOAD on top of the currently loaded config, letting a
// deployment tune the pool without editing the YAML file. A variable
// that isn't set leaves the existing value untouched.
func (m *Manager) ApplyEnvOverrides(e *env.Environment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Has("TASKMILL_MAX_THREADS") {
		m.config.MaxThreads = e.GetIntWithDefault("TASKMILL_MAX_THREADS", m.config.MaxThreads)
	}
	if e.Has("TASKMILL_MAX_TASKS") {
		m.config.MaxTasks = e.GetIntWithDefault("TASKMILL_MAX_TASKS", m.config.MaxTasks)
	}
	if e.Has("TASKMILL_TASK_RETRY") {
		m.config.TaskRetry = e.GetIntWithDefault("TASKMILL_TASK_RETRY", m.config.TaskRetry)
	}
	if e.Has("TASKMILL_TASK_LOOP_TIME") {
		m.config.TaskLoopTime = e.GetStringWithDefault("TASKMILL_TASK_LOOP_TIME", m.config.TaskLoopTime)
	}
	if e.Has("TASKMILL_TYPE") {
		m.config.Type = e.GetStringWithDefault("TASKMILL_TYPE", m.config.Type)
	}
	if e.Has("TASKMILL_LAZY_LOAD") {
		m.config.LazyLoad = e.GetBoolWithDefault("TASKMILL_LAZY_LOAD", m.config.LazyLoad)
	}
}
