package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cpilot-dev/cpilot/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Server: config.ServerConfig{
			Host:          "127.0.0.1",
			Port:          0,
			HeartbeatSecs: 30,
		},
		Agent: config.AgentConfig{
			Command:        "sh",
			RestartDelayMS: 2000,
		},
		Queue: config.QueueConfig{
			Dir:              filepath.Join(dir, "queues"),
			MaxMessageLength: 10000,
		},
		Detector: config.DetectorConfig{
			ReadyPatterns:    []string{`\$ $`},
			DebounceMS:       2000,
			IdleFallbackMS:   4000,
			MinScreenBytes:   64,
			ReadyTimeoutSecs: 180,
			OutputDebounceMS: 250,
		},
		Workspace: config.WorkspaceConfig{
			SettingsPath: filepath.Join(dir, "settings.json"),
			Default:      dir,
		},
		Tasks: config.TasksConfig{
			DBPath: filepath.Join(dir, "tasks.db"),
		},
		Logging: config.LoggingConfig{Level: "info", Format: "console"},
	}
}

func TestNewBuildsAllComponents(t *testing.T) {
	a, err := New(testConfig(t), "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a.orch == nil || a.settings == nil || a.tasks == nil || a.httpServer == nil || a.wsServer == nil {
		t.Error("component missing after New")
	}
	if a.UptimeSeconds() != 0 {
		t.Errorf("uptime before start = %d, want 0", a.UptimeSeconds())
	}
	_ = a.tasks.Close()
}

func TestStartAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	// Let startup settle, then confirm the active workspace got a session.
	deadline := time.Now().Add(5 * time.Second)
	for a.orch.Count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no session registered for the default workspace")
		}
		time.Sleep(20 * time.Millisecond)
	}
	if a.settings.Active() != cfg.Workspace.Default {
		t.Errorf("active workspace = %q, want %q", a.settings.Active(), cfg.Workspace.Default)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("shutdown did not complete")
	}
}

func TestStartTwiceFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Pairing.ShowQRInTerminal = false
	a, err := New(cfg, "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Start(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for !a.hub.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if err := a.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want error")
	}

	cancel()
	<-done
}
