// Package config provides centralized default configuration values.
package config

import (
	"github.com/spf13/viper"

	"github.com/cpilot-dev/cpilot/internal/agent"
)

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.heartbeat_secs", 30)

	// Agent defaults
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.skip_permissions", false)
	v.SetDefault("agent.restart_delay_ms", 2000)

	// Queue defaults (dir derived from the config dir in postProcess)
	v.SetDefault("queue.dir", "")
	v.SetDefault("queue.max_message_length", 10000)

	// Detector defaults: the built-in signature lists track the Claude CLI
	// prompt; the canonical timing policy is 2s debounce / 4s idle fallback.
	v.SetDefault("detector.ready_patterns", agent.DefaultReadyPatterns)
	v.SetDefault("detector.busy_patterns", agent.DefaultBusyPatterns)
	v.SetDefault("detector.permission_patterns", agent.DefaultPermissionPatterns)
	v.SetDefault("detector.debounce_ms", 2000)
	v.SetDefault("detector.idle_fallback_ms", 4000)
	v.SetDefault("detector.min_screen_bytes", 64)
	v.SetDefault("detector.ready_timeout_secs", 180)
	v.SetDefault("detector.output_debounce_ms", 250)

	// Workspace defaults (paths derived in postProcess)
	v.SetDefault("workspace.settings_path", "")
	v.SetDefault("workspace.default", "")

	// Tasks defaults
	v.SetDefault("tasks.db_path", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	// Pairing defaults
	v.SetDefault("pairing.show_qr_in_terminal", true)
}
