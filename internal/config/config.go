// Package config holds the daemon configuration and its on-disk YAML form.
package config

// Config is the daemon configuration.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`

	// PrettyLogs switches from JSON to human-readable console output.
	PrettyLogs bool `json:"pretty_logs" yaml:"pretty_logs" mapstructure:"pretty_logs"`

	// Backend selects the focus backend: auto, wayland, or x11.
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	// Socket overrides $WAYLAND_DISPLAY for the Wayland backend.
	Socket string `json:"socket,omitempty" yaml:"socket,omitempty" mapstructure:"socket"`

	// ServerPort is the HTTP API port used by serve.
	ServerPort int `json:"server_port" yaml:"server_port" mapstructure:"server_port"`

	// PostgresDSN enables the focus history store when non-empty.
	PostgresDSN string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty" mapstructure:"postgres_dsn"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:   "info",
		PrettyLogs: true,
		Backend:    "auto",
		ServerPort: 8080,
	}
}
