package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cpilot-dev/cpilot/internal/config"
)

var (
	configInitLocal bool
	configInitForce bool
)

// configCmd displays or manages configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Display and manage configuration",
	Long: `Display and manage cpilot configuration.

Without subcommands, shows the current effective configuration.

Examples:
  cpilot config         # Show current config
  cpilot config init    # Create config file with defaults
  cpilot config path    # Show config file location`,
	RunE: runConfigShow,
}

// configInitCmd creates a config file with defaults.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file with default settings",
	Long: `Create a config file with default settings and documentation.

By default, creates ~/.cpilot/config.yaml.
Use --local to create ./config.yaml in the current directory.

Examples:
  cpilot config init          # Create ~/.cpilot/config.yaml
  cpilot config init --local  # Create ./config.yaml
  cpilot config init --force  # Overwrite existing file`,
	RunE: runConfigInit,
}

// configPathCmd shows config file location.
var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show config file location",
	Run:   runConfigPath,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVar(&configInitLocal, "local", false, "create config in current directory instead of ~/.cpilot/")
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The effective config, rendered the same way the file is written.
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var configPath string

	if configInitLocal {
		configPath = "config.yaml"
	} else {
		configDir, err := config.EnsureConfigDir()
		if err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		configPath = filepath.Join(configDir, "config.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		if !configInitForce {
			return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
		}
	}

	if err := writeDefaultConfig(configPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println("Edit this file to customize cpilot behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) {
	configDir, err := config.GetConfigDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting config dir: %v\n", err)
		os.Exit(1)
	}

	locations := []string{
		"./config.yaml",
		filepath.Join(configDir, "config.yaml"),
		"/etc/cpilot/config.yaml",
	}

	fmt.Println("Config search paths (in order):")
	for i, loc := range locations {
		exists := "not found"
		if _, err := os.Stat(loc); err == nil {
			exists = "exists"
		}
		fmt.Printf("  %d. %s (%s)\n", i+1, loc, exists)
	}

	fmt.Printf("\nConfig directory: %s\n", configDir)
}

func writeDefaultConfig(path string) error {
	content := `# cpilot Configuration
# Copy this file to ~/.cpilot/config.yaml and modify as needed

# Server settings
server:
  # Bind address (use 0.0.0.0 to allow LAN connections)
  host: "127.0.0.1"

  # Single port for the HTTP API and the WebSocket event stream
  port: 8787

  # Application heartbeat interval sent to WebSocket clients
  heartbeat_secs: 30

  # Public base URL when reached through a tunnel or forwarded port
  # external_http_url: "https://your-tunnel.devtunnels.ms"

# Agent CLI settings
agent:
  # The interactive CLI to supervise (or an absolute path to it)
  command: "claude"

  # Extra arguments passed to the CLI
  args: []

  # Append --dangerously-skip-permissions to the CLI invocation
  skip_permissions: false

  # Delay before automatically restarting an unhealthy session
  restart_delay_ms: 2000

# Message queue
queue:
  # Queue files live here, one JSON file per workspace
  # (default: <config dir>/queues)
  # dir: ""

  # Longest accepted message, in bytes
  max_message_length: 10000

# Readiness detection
detector:
  # Regexp lists matched against the reconstructed terminal screen.
  # Defaults track the Claude Code prompt; override for other CLIs.
  # ready_patterns: []
  # busy_patterns: []
  # permission_patterns: []

  # A ready verdict holds only after this much output silence
  debounce_ms: 2000

  # With enough screen content, this much silence counts as ready anyway
  idle_fallback_ms: 4000
  min_screen_bytes: 64

  # Give up waiting for readiness after this long
  ready_timeout_secs: 180

  # How long output must settle before the detector re-evaluates
  output_debounce_ms: 250

# Workspace settings
workspace:
  # Settings file holding the active workspace and the recent list
  # (default: <config dir>/settings.json)
  # settings_path: ""

# Task list
tasks:
  # SQLite database for per-workspace task lists
  # (default: <config dir>/tasks.db)
  # db_path: ""

# Logging settings
logging:
  # Log level: trace, debug, info, warn, error
  level: "info"

  # Log format: console (human-readable) or json
  format: "console"

# Mobile pairing
pairing:
  # Print a QR code with the connection URLs on start
  show_qr_in_terminal: true
`

	return os.WriteFile(path, []byte(content), 0o644)
}
