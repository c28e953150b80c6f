package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:          "127.0.0.1",
			Port:          8787,
			HeartbeatSecs: 30,
		},
		Agent: AgentConfig{
			Command:        "claude",
			RestartDelayMS: 2000,
		},
		Queue: QueueConfig{
			Dir:              "/tmp/queues",
			MaxMessageLength: 10000,
		},
		Detector: DetectorConfig{
			ReadyPatterns:    []string{`> $`},
			BusyPatterns:     []string{`working`},
			DebounceMS:       2000,
			IdleFallbackMS:   4000,
			MinScreenBytes:   64,
			ReadyTimeoutSecs: 180,
			OutputDebounceMS: 250,
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{"port too low", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"empty host", func(c *Config) { c.Server.Host = "" }, "server.host"},
		{"empty command", func(c *Config) { c.Agent.Command = "" }, "agent.command"},
		{"negative restart delay", func(c *Config) { c.Agent.RestartDelayMS = -1 }, "restart_delay_ms"},
		{"negative message length", func(c *Config) { c.Queue.MaxMessageLength = -1 }, "max_message_length"},
		{"bad ready pattern", func(c *Config) { c.Detector.ReadyPatterns = []string{`[`} }, "detector patterns"},
		{"bad busy pattern", func(c *Config) { c.Detector.BusyPatterns = []string{`(`} }, "detector patterns"},
		{"zero debounce", func(c *Config) { c.Detector.DebounceMS = 0 }, "debounce_ms"},
		{"fallback below debounce", func(c *Config) { c.Detector.IdleFallbackMS = 100 }, "idle_fallback_ms"},
		{"zero ready timeout", func(c *Config) { c.Detector.ReadyTimeoutSecs = 0 }, "ready_timeout_secs"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err, tt.wantSub)
			}
		})
	}
}

func TestDetectorHelpers(t *testing.T) {
	d := validConfig().Detector

	sigs, err := d.Signatures()
	if err != nil {
		t.Fatalf("Signatures failed: %v", err)
	}
	if len(sigs.Ready) != 1 || len(sigs.Busy) != 1 {
		t.Errorf("unexpected signature counts: %d ready, %d busy", len(sigs.Ready), len(sigs.Busy))
	}

	p := d.Policy()
	if p.Debounce != 2*time.Second || p.IdleFallback != 4*time.Second || p.MinScreenBytes != 64 {
		t.Errorf("policy = %+v", p)
	}
	if d.ReadyTimeout() != 3*time.Minute {
		t.Errorf("ready timeout = %v, want 3m", d.ReadyTimeout())
	}
	if d.OutputDebounce() != 250*time.Millisecond {
		t.Errorf("output debounce = %v", d.OutputDebounce())
	}
}
