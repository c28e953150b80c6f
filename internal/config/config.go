// Package config handles configuration management for cpilot.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Agent     AgentConfig     `mapstructure:"agent" yaml:"agent"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	Detector  DetectorConfig  `mapstructure:"detector" yaml:"detector"`
	Workspace WorkspaceConfig `mapstructure:"workspace" yaml:"workspace"`
	Tasks     TasksConfig     `mapstructure:"tasks" yaml:"tasks"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Pairing   PairingConfig   `mapstructure:"pairing" yaml:"pairing"`
}

// ServerConfig holds the HTTP/WebSocket server configuration.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host"`
	Port            int    `mapstructure:"port" yaml:"port"`
	ExternalWSURL   string `mapstructure:"external_ws_url" yaml:"external_ws_url"`     // Optional: public URL for WebSocket (e.g., wss://tunnel.devtunnels.ms)
	ExternalHTTPURL string `mapstructure:"external_http_url" yaml:"external_http_url"` // Optional: public URL for HTTP API
	HeartbeatSecs   int    `mapstructure:"heartbeat_secs" yaml:"heartbeat_secs"`
}

// AgentConfig holds the child CLI configuration.
type AgentConfig struct {
	Command         string   `mapstructure:"command" yaml:"command"`
	Args            []string `mapstructure:"args" yaml:"args"`
	SkipPermissions bool     `mapstructure:"skip_permissions" yaml:"skip_permissions"`
	RestartDelayMS  int      `mapstructure:"restart_delay_ms" yaml:"restart_delay_ms"`
}

// QueueConfig holds message queue configuration.
type QueueConfig struct {
	Dir              string `mapstructure:"dir" yaml:"dir"`
	MaxMessageLength int    `mapstructure:"max_message_length" yaml:"max_message_length"`
}

// DetectorConfig holds readiness detection configuration. The pattern lists
// are injectable so a CLI banner change is a config edit, not a rebuild.
type DetectorConfig struct {
	ReadyPatterns      []string `mapstructure:"ready_patterns" yaml:"ready_patterns"`
	BusyPatterns       []string `mapstructure:"busy_patterns" yaml:"busy_patterns"`
	PermissionPatterns []string `mapstructure:"permission_patterns" yaml:"permission_patterns"`
	DebounceMS         int      `mapstructure:"debounce_ms" yaml:"debounce_ms"`
	IdleFallbackMS     int      `mapstructure:"idle_fallback_ms" yaml:"idle_fallback_ms"`
	MinScreenBytes     int      `mapstructure:"min_screen_bytes" yaml:"min_screen_bytes"`
	ReadyTimeoutSecs   int      `mapstructure:"ready_timeout_secs" yaml:"ready_timeout_secs"`
	OutputDebounceMS   int      `mapstructure:"output_debounce_ms" yaml:"output_debounce_ms"`
}

// WorkspaceConfig holds workspace settings configuration.
type WorkspaceConfig struct {
	SettingsPath string `mapstructure:"settings_path" yaml:"settings_path"`
	Default      string `mapstructure:"default" yaml:"default"`
}

// TasksConfig holds the task store configuration.
type TasksConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// PairingConfig holds pairing/QR code configuration.
type PairingConfig struct {
	ShowQRInTerminal bool `mapstructure:"show_qr_in_terminal" yaml:"show_qr_in_terminal"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default search paths
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.cpilot")
		v.AddConfigPath("/etc/cpilot")
	}

	// Environment variable prefix
	v.SetEnvPrefix("CPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file (optional - not an error if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	// Post-process configuration
	if err := postProcess(&cfg); err != nil {
		return nil, err
	}

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// postProcess resolves home-relative paths and fills derived defaults.
func postProcess(cfg *Config) error {
	dir, err := GetConfigDir()
	if err != nil {
		return fmt.Errorf("failed to resolve config dir: %w", err)
	}

	if cfg.Queue.Dir == "" {
		cfg.Queue.Dir = filepath.Join(dir, "queues")
	}
	if cfg.Workspace.SettingsPath == "" {
		cfg.Workspace.SettingsPath = filepath.Join(dir, "settings.json")
	}
	if cfg.Tasks.DBPath == "" {
		cfg.Tasks.DBPath = filepath.Join(dir, "tasks.db")
	}

	if cfg.Workspace.Default == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		cfg.Workspace.Default = cwd
	}
	abs, err := filepath.Abs(cfg.Workspace.Default)
	if err != nil {
		return fmt.Errorf("failed to resolve workspace path: %w", err)
	}
	cfg.Workspace.Default = abs

	return nil
}

// GetConfigDir returns the user config directory for cpilot.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".cpilot"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}
