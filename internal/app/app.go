// Package app wires all components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/config"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/hub"
	"github.com/cpilot-dev/cpilot/internal/orchestrator"
	"github.com/cpilot-dev/cpilot/internal/pairing"
	"github.com/cpilot-dev/cpilot/internal/queue"
	httpserver "github.com/cpilot-dev/cpilot/internal/server/http"
	"github.com/cpilot-dev/cpilot/internal/server/websocket"
	"github.com/cpilot-dev/cpilot/internal/session"
	"github.com/cpilot-dev/cpilot/internal/taskstore"
	"github.com/cpilot-dev/cpilot/internal/workspace"
)

// App composes the hub, orchestrator, settings, task store and servers.
type App struct {
	cfg     *config.Config
	version string

	hub          *hub.Hub
	orch         *orchestrator.Orchestrator
	settings     *workspace.SettingsManager
	watcher      *workspace.Watcher
	tasks        *taskstore.Store
	httpServer   *httpserver.Server
	wsServer     *websocket.Server
	startTime    time.Time

	mu      sync.Mutex
	running bool
}

// New builds the application from configuration. Nothing is started yet.
func New(cfg *config.Config, version string) (*App, error) {
	a := &App{
		cfg:     cfg,
		version: version,
		hub:     hub.New(),
	}

	signatures, err := cfg.Detector.Signatures()
	if err != nil {
		return nil, fmt.Errorf("compile detector signatures: %w", err)
	}

	procCfg := queue.DefaultProcessorConfig()
	procCfg.ReadyTimeout = cfg.Detector.ReadyTimeout()

	a.orch = orchestrator.New(session.Config{
		Command:          cfg.Agent.Command,
		Args:             cfg.Agent.Args,
		SkipPermissions:  cfg.Agent.SkipPermissions,
		QueueDir:         cfg.Queue.Dir,
		MaxMessageLength: cfg.Queue.MaxMessageLength,
		Signatures:       signatures,
		Policy:           cfg.Detector.Policy(),
		Processor:        procCfg,
		Hub:              a.hub,
		RestartDelay:     time.Duration(cfg.Agent.RestartDelayMS) * time.Millisecond,
		Debounce:         cfg.Detector.OutputDebounce(),
	})

	a.settings, err = workspace.NewSettingsManager(cfg.Workspace.SettingsPath, a.hub)
	if err != nil {
		return nil, fmt.Errorf("load workspace settings: %w", err)
	}

	a.tasks, err = taskstore.Open(cfg.Tasks.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}

	a.wsServer = websocket.NewServer(a.hub)
	a.wsServer.SetStatusProvider(a)
	a.wsServer.SetHeartbeatInterval(time.Duration(cfg.Server.HeartbeatSecs) * time.Second)

	a.httpServer = httpserver.New(cfg.Server.Host, cfg.Server.Port, a.orch, a.settings, a.tasks, version)
	a.httpServer.SetWebSocketHandler(a.wsServer.HandleUpgrade)

	return a, nil
}

// Start brings everything up and blocks until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("application is already running")
	}
	a.running = true
	a.startTime = time.Now()
	a.mu.Unlock()

	if err := a.hub.Start(); err != nil {
		return fmt.Errorf("start event hub: %w", err)
	}

	a.hub.Subscribe(hub.NewLogSubscriber("internal-logger", func(event events.Event) {
		log.Trace().
			Str("event_type", string(event.Type())).
			Time("timestamp", event.Timestamp()).
			Msg("event broadcast")
	}))

	watcher, err := workspace.NewWatcher(a.settings)
	if err != nil {
		log.Warn().Err(err).Msg("settings watcher unavailable, external edits will not be picked up")
	} else {
		a.watcher = watcher
	}

	// Seed the active workspace so the default session is ready to go.
	if a.settings.Active() == "" && a.cfg.Workspace.Default != "" {
		if err := a.settings.SetActive(a.cfg.Workspace.Default); err != nil {
			log.Warn().Err(err).Str("path", a.cfg.Workspace.Default).Msg("could not set default workspace")
		}
	}
	if active := a.settings.Active(); active != "" {
		if _, err := a.orch.CreateSession(active); err != nil {
			log.Warn().Err(err).Str("workspace", active).Msg("could not register session for active workspace")
		}
	}

	if err := a.wsServer.Start(); err != nil {
		return fmt.Errorf("start websocket server: %w", err)
	}
	if err := a.httpServer.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	if a.cfg.Pairing.ShowQRInTerminal {
		a.printConnectQR()
	}

	log.Info().
		Str("version", a.version).
		Str("addr", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)).
		Msg("cpilot running")

	<-ctx.Done()
	return a.shutdown()
}

// shutdown tears components down in reverse order of startup.
func (a *App) shutdown() error {
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown error")
	}
	if err := a.wsServer.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("websocket server shutdown error")
	}

	a.orch.Shutdown(shutdownCtx)

	if a.watcher != nil {
		if err := a.watcher.Close(); err != nil {
			log.Warn().Err(err).Msg("settings watcher close error")
		}
	}
	if err := a.tasks.Close(); err != nil {
		log.Warn().Err(err).Msg("task store close error")
	}
	if err := a.hub.Stop(); err != nil {
		log.Warn().Err(err).Msg("event hub stop error")
	}

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()

	log.Info().Msg("shutdown complete")
	return nil
}

// ActiveSessions implements websocket.StatusProvider.
func (a *App) ActiveSessions() int {
	return a.orch.ActiveCount()
}

// UptimeSeconds implements websocket.StatusProvider.
func (a *App) UptimeSeconds() int64 {
	a.mu.Lock()
	start := a.startTime
	a.mu.Unlock()
	if start.IsZero() {
		return 0
	}
	return int64(time.Since(start).Seconds())
}

// Orchestrator exposes the session registry (for CLI diagnostics).
func (a *App) Orchestrator() *orchestrator.Orchestrator {
	return a.orch
}

// printConnectQR renders the connection QR code on the terminal.
func (a *App) printConnectQR() {
	host := a.cfg.Server.Host
	if host == "0.0.0.0" || host == "::" {
		if h, err := os.Hostname(); err == nil {
			host = h
		}
	}

	gen := pairing.NewQRGenerator(host, a.cfg.Server.Port, a.settings.Active())
	if a.cfg.Server.ExternalHTTPURL != "" {
		gen.SetExternalURL(a.cfg.Server.ExternalHTTPURL)
	}
	gen.PrintToTerminal()
}
