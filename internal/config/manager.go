package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wayfocus/wayfocus/internal/logger"
)

// Manager loads and persists the configuration file.
type Manager struct {
	mu   sync.RWMutex
	path string
	cfg  *Config
}

// NewManager loads the configuration from path, or from the default location
// under $HOME/.config/wayfocus when path is empty. A missing file yields the
// defaults without error.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".config", "wayfocus", "config.yaml")
	}

	m := &Manager{path: path, cfg: Default()}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithComponent("config").Debug().Str("path", m.path).Msg("no config file, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", m.path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", m.path, err)
	}
	m.cfg = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Update applies fn to the configuration under the lock.
func (m *Manager) Update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.cfg)
}

// Save writes the configuration back to disk, creating the directory when
// needed.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.cfg)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config %s: %w", m.path, err)
	}
	return nil
}

// Path returns the configuration file location.
func (m *Manager) Path() string {
	return m.path
}
