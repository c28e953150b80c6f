package config

import (
	"fmt"
	"time"

	"github.com/cpilot-dev/cpilot/internal/agent"
)

// validLogLevels are the accepted logging levels.
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats are the accepted logging formats.
var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

// Validate checks the configuration for errors. It is called by Load after
// unmarshalling and post-processing.
func Validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}
	if cfg.Server.HeartbeatSecs < 1 {
		return fmt.Errorf("server.heartbeat_secs must be positive, got %d", cfg.Server.HeartbeatSecs)
	}

	if cfg.Agent.Command == "" {
		return fmt.Errorf("agent.command must not be empty")
	}
	if cfg.Agent.RestartDelayMS < 0 {
		return fmt.Errorf("agent.restart_delay_ms must not be negative, got %d", cfg.Agent.RestartDelayMS)
	}

	if cfg.Queue.MaxMessageLength < 0 {
		return fmt.Errorf("queue.max_message_length must not be negative, got %d", cfg.Queue.MaxMessageLength)
	}

	if err := validateDetector(&cfg.Detector); err != nil {
		return err
	}

	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be one of trace/debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if !validLogFormats[cfg.Logging.Format] {
		return fmt.Errorf("logging.format must be console or json, got %q", cfg.Logging.Format)
	}

	return nil
}

// validateDetector compiles the signature lists so configuration mistakes
// surface at startup rather than at detection time.
func validateDetector(d *DetectorConfig) error {
	if _, err := agent.CompileSignatures(d.ReadyPatterns, d.BusyPatterns, d.PermissionPatterns); err != nil {
		return fmt.Errorf("detector patterns invalid: %w", err)
	}
	if d.DebounceMS < 1 {
		return fmt.Errorf("detector.debounce_ms must be positive, got %d", d.DebounceMS)
	}
	if d.IdleFallbackMS < d.DebounceMS {
		return fmt.Errorf("detector.idle_fallback_ms (%d) must be >= detector.debounce_ms (%d)",
			d.IdleFallbackMS, d.DebounceMS)
	}
	if d.MinScreenBytes < 0 {
		return fmt.Errorf("detector.min_screen_bytes must not be negative, got %d", d.MinScreenBytes)
	}
	if d.ReadyTimeoutSecs < 1 {
		return fmt.Errorf("detector.ready_timeout_secs must be positive, got %d", d.ReadyTimeoutSecs)
	}
	if d.OutputDebounceMS < 1 {
		return fmt.Errorf("detector.output_debounce_ms must be positive, got %d", d.OutputDebounceMS)
	}
	return nil
}

// Signatures compiles the configured pattern lists.
func (d *DetectorConfig) Signatures() (*agent.SignatureSet, error) {
	return agent.CompileSignatures(d.ReadyPatterns, d.BusyPatterns, d.PermissionPatterns)
}

// Policy returns the configured detector timing policy.
func (d *DetectorConfig) Policy() agent.DetectorPolicy {
	return agent.DetectorPolicy{
		Debounce:       time.Duration(d.DebounceMS) * time.Millisecond,
		IdleFallback:   time.Duration(d.IdleFallbackMS) * time.Millisecond,
		MinScreenBytes: d.MinScreenBytes,
	}
}

// ReadyTimeout returns the configured overall ready-wait ceiling.
func (d *DetectorConfig) ReadyTimeout() time.Duration {
	return time.Duration(d.ReadyTimeoutSecs) * time.Second
}

// OutputDebounce returns the output-settle debounce interval.
func (d *DetectorConfig) OutputDebounce() time.Duration {
	return time.Duration(d.OutputDebounceMS) * time.Millisecond
}
