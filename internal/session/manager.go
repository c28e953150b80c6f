// Package session composes the process supervisor, screen aggregator,
// readiness detector and message queue into one managed session bound to a
// single workspace.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bep/debounce"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/agent"
	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	"github.com/cpilot-dev/cpilot/internal/queue"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

const (
	// defaultDebounce batches bursts of PTY output into one readiness
	// evaluation.
	defaultDebounce = 250 * time.Millisecond

	// evaluateInterval drives the periodic re-evaluation needed by the
	// idle-fallback heuristic, which must fire without new output.
	evaluateInterval = 1 * time.Second

	// stopWait bounds how long Stop blocks for the child to exit after
	// graceful termination (the supervisor escalates to a kill within it).
	stopWait = 8 * time.Second

	// defaultRestartDelay is the pause before the automatic restart that
	// follows an unhealthy verdict.
	defaultRestartDelay = 2 * time.Second

	// cooldownRetryInterval paces Restart's retry while the supervisor's
	// post-stop cool-down elapses.
	cooldownRetryInterval = 250 * time.Millisecond
)

// Config configures a session manager.
type Config struct {
	SessionID     string
	WorkspacePath string

	// Command and Args define the child CLI. SkipPermissions appends the
	// CLI's confirmation-bypass flag.
	Command         string
	Args            []string
	SkipPermissions bool

	// QueueDir is where queue files live; MaxMessageLength bounds enqueued
	// text (0 means unlimited).
	QueueDir         string
	MaxMessageLength int

	// Signatures and Policy configure the detector; nil/zero select the
	// built-in defaults.
	Signatures *agent.SignatureSet
	Policy     agent.DetectorPolicy

	// Processor holds the send/retry tuning; zero selects defaults.
	Processor queue.ProcessorConfig

	Hub ports.EventHub

	// RestartDelay is the pause before restarting an unhealthy session.
	RestartDelay time.Duration

	// Debounce overrides the output-settle debounce interval.
	Debounce time.Duration
}

// Status is a point-in-time session snapshot.
type Status struct {
	SessionID     string         `json:"session_id"`
	WorkspacePath string         `json:"workspace_path"`
	Alive         bool           `json:"alive"`
	Ready         bool           `json:"ready"`
	Starting      bool           `json:"starting"`
	Stopping      bool           `json:"stopping"`
	PID           int            `json:"pid,omitempty"`
	State         string         `json:"state"`
	Pending       int            `json:"pending"`
	Processing    *queue.Message `json:"processing,omitempty"`
	Halted        bool           `json:"processing_halted"`
	LastActivity  time.Time      `json:"last_activity"`
}

// Manager owns one session: one child process, one queue file, one screen
// buffer. All lifecycle transitions and queue operations for the workspace
// go through it.
type Manager struct {
	id            string
	workspacePath string
	hub           ports.EventHub
	restartDelay  time.Duration

	supervisor *agent.Supervisor
	screen     *agent.ScreenBuffer
	detector   *agent.Detector
	queue      *queue.Queue
	processor  *queue.Processor
	timers     *timerOwner
	debounced  func(func())

	mu            cpsync.Mutex
	ready         bool
	starting      bool
	stopping      bool
	lastOutput    time.Time
	lastState     agent.State
	lastScreenLen int
	procCtx       context.Context
	procCancel    context.CancelFunc
	exitCh        chan struct{}
	readyWaiters  []chan struct{}
}

// NewManager builds a manager and loads the workspace's persisted queue.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.SessionID == "" || cfg.WorkspacePath == "" {
		return nil, fmt.Errorf("session id and workspace path are required")
	}
	if cfg.Command == "" {
		cfg.Command = "claude"
	}
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = defaultRestartDelay
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = defaultDebounce
	}

	store, err := queue.NewStore(cfg.QueueDir, cfg.WorkspacePath)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		id:            cfg.SessionID,
		workspacePath: cfg.WorkspacePath,
		hub:           cfg.Hub,
		restartDelay:  cfg.RestartDelay,
		screen:        agent.NewScreenBuffer(0),
		detector:      agent.NewDetector(cfg.Signatures, cfg.Policy),
		timers:        newTimerOwner(),
		debounced:     debounce.New(cfg.Debounce),
		lastState:     agent.StateBusy,
	}

	m.queue = queue.NewQueue(store, cfg.Hub, cfg.WorkspacePath, cfg.SessionID, cfg.MaxMessageLength)
	if err := m.queue.Load(); err != nil {
		return nil, err
	}

	m.supervisor = agent.NewSupervisor(agent.Options{
		Command:         cfg.Command,
		Args:            cfg.Args,
		WorkDir:         cfg.WorkspacePath,
		SkipPermissions: cfg.SkipPermissions,
		OnOutput:        m.handleOutput,
		OnExit:          m.handleExit,
		OnUnhealthy:     m.handleUnhealthy,
	})
	m.processor = queue.NewProcessor(m.queue, m, cfg.Processor, cfg.Hub, cfg.WorkspacePath, cfg.SessionID)

	return m, nil
}

// ID returns the session identifier.
func (m *Manager) ID() string { return m.id }

// WorkspacePath returns the workspace this session is bound to.
func (m *Manager) WorkspacePath() string { return m.workspacePath }

// Start spawns the child process. Starting an already-running session is a
// no-op returning success; starting during a stop fails.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return domain.ErrSessionStopping
	}
	if m.starting {
		m.mu.Unlock()
		return nil
	}
	if m.supervisor.IsAlive() {
		m.mu.Unlock()
		return nil
	}
	m.starting = true
	m.exitCh = make(chan struct{})
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.starting = false
		m.mu.Unlock()
	}()

	if err := m.supervisor.Spawn(); err != nil {
		m.mu.Lock()
		m.exitCh = nil
		m.mu.Unlock()
		return err
	}

	procCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.procCtx = procCtx
	m.procCancel = cancel
	m.lastOutput = time.Now()
	m.lastState = agent.StateBusy
	m.lastScreenLen = 0
	m.ready = false
	m.mu.Unlock()

	m.screen.Reset()
	m.processor.Resume()
	m.timers.Every("evaluate", evaluateInterval, m.evaluate)

	log.Info().
		Str("session_id", m.id).
		Str("workspace", m.workspacePath).
		Int("pid", m.supervisor.PID()).
		Msg("session started")
	m.publish(events.NewSessionStartedEvent(m.id, m.workspacePath, m.supervisor.PID()))
	return nil
}

// Stop terminates the session: it flips stopping, resets any in-flight
// message to pending before the process is touched, cancels all timers,
// terminates the child (gracefully, then forced), and only then clears
// stopping.
func (m *Manager) Stop(reason string) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return domain.ErrSessionStopping
	}
	if !m.supervisor.IsAlive() {
		m.mu.Unlock()
		return domain.ErrSessionNotRunning
	}
	m.stopping = true
	m.ready = false
	cancel := m.procCancel
	exitCh := m.exitCh
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// State must be correct even if termination below fails.
	m.queue.ResetInFlight()
	m.timers.CancelAll()

	m.supervisor.Terminate()
	if exitCh != nil {
		select {
		case <-exitCh:
		case <-time.After(stopWait):
			log.Warn().Str("session_id", m.id).Msg("child did not exit in time, cleaning up")
			m.supervisor.Cleanup()
		}
	}

	m.mu.Lock()
	m.stopping = false
	m.mu.Unlock()

	log.Info().Str("session_id", m.id).Str("reason", reason).Msg("session stopped")
	m.publish(events.NewSessionStoppedEvent(m.id, m.workspacePath, reason))
	return nil
}

// Restart stops (if running) and starts again, riding out the supervisor's
// post-stop cool-down.
func (m *Manager) Restart(ctx context.Context) error {
	if m.supervisor.IsAlive() {
		if err := m.Stop("restart"); err != nil && !errors.Is(err, domain.ErrSessionNotRunning) {
			return err
		}
	}
	for {
		err := m.Start(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrSessionCoolingDown) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cooldownRetryInterval):
		}
	}
}

// SendKey writes a named keypress directly to the child's input.
func (m *Manager) SendKey(name string) error {
	seq, err := KeySequence(name)
	if err != nil {
		return err
	}
	return m.supervisor.Write(seq)
}

// Enqueue adds a message and nudges the processor.
func (m *Manager) Enqueue(text string) (*queue.Message, error) {
	msg, err := m.queue.Enqueue(text)
	if err != nil {
		return nil, err
	}
	m.tryAutoStart()
	return msg, nil
}

// UpdateMessage edits a pending message.
func (m *Manager) UpdateMessage(id, text string) (*queue.Message, error) {
	return m.queue.Update(id, text)
}

// RemoveMessage deletes a message that is not in flight.
func (m *Manager) RemoveMessage(id string) (*queue.Message, error) {
	return m.queue.Remove(id)
}

// ClearQueue removes all messages; refused while one is processing.
func (m *Manager) ClearQueue() error {
	return m.queue.Clear()
}

// Messages returns all queued messages in order.
func (m *Manager) Messages() []*queue.Message {
	return m.queue.ListAll()
}

// Screen returns the current reconstructed terminal screen.
func (m *Manager) Screen() string {
	return m.screen.Current()
}

// Resize adjusts the child's PTY dimensions.
func (m *Manager) Resize(rows, cols uint16) error {
	return m.supervisor.Resize(rows, cols)
}

// Status snapshots the session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		SessionID:     m.id,
		WorkspacePath: m.workspacePath,
		Ready:         m.ready,
		Starting:      m.starting,
		Stopping:      m.stopping,
		State:         string(m.lastState),
		LastActivity:  m.lastOutput,
	}
	m.mu.Unlock()

	st.Alive = m.supervisor.IsAlive()
	st.PID = m.supervisor.PID()
	st.Pending = m.queue.PendingCount()
	st.Processing = m.queue.CurrentlyProcessing()
	st.Halted = m.processor.Halted()
	return st
}

// Ready reports whether the session is idle and awaiting input.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// Alive reports whether the child process is running.
func (m *Manager) Alive() bool {
	return m.supervisor.IsAlive()
}

// Write sends raw bytes to the child's input stream.
func (m *Manager) Write(data []byte) error {
	return m.supervisor.Write(data)
}

// AwaitReady blocks until the session becomes ready, the timeout elapses,
// ctx is cancelled, or the process dies.
func (m *Manager) AwaitReady(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		if m.stopping {
			m.mu.Unlock()
			return domain.ErrSessionStopping
		}
		if m.ready {
			m.mu.Unlock()
			return nil
		}
		if !m.supervisor.IsAlive() {
			m.mu.Unlock()
			return domain.ErrSessionNotRunning
		}
		ch := make(chan struct{})
		m.readyWaiters = append(m.readyWaiters, ch)
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return domain.ErrReadinessTimeout
		case <-ch:
			// State changed; re-check.
		}
	}
}

// ScreenLooksReady evaluates the current screen directly, bypassing the
// cached verdict. Used as the recovery check after a ready-wait timeout.
func (m *Manager) ScreenLooksReady() bool {
	m.mu.Lock()
	since := time.Since(m.lastOutput)
	m.mu.Unlock()
	return m.detector.Evaluate(m.screen.Current(), since) == agent.StateReady
}

// StatusString is the compact session summary recorded in error contexts.
func (m *Manager) StatusString() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("ready=%t stopping=%t state=%s", m.ready, m.stopping, m.lastState)
}

// Processor exposes the queue processor (for orchestrator statistics).
func (m *Manager) Processor() *queue.Processor { return m.processor }

// Queue exposes the underlying queue.
func (m *Manager) Queue() *queue.Queue { return m.queue }

// handleOutput runs on the supervisor's read goroutine for every PTY chunk.
func (m *Manager) handleOutput(chunk []byte) {
	m.screen.Ingest(chunk)
	m.mu.Lock()
	m.lastOutput = time.Now()
	// New output invalidates any ready verdict until re-evaluated.
	m.ready = false
	m.mu.Unlock()
	m.debounced(m.evaluate)
}

// evaluate runs the detector against the current screen and publishes the
// verdict. Triggered by debounced output and by the periodic ticker (the
// idle fallback needs evaluations without new output).
func (m *Manager) evaluate() {
	if !m.supervisor.IsAlive() {
		return
	}

	m.mu.Lock()
	since := time.Since(m.lastOutput)
	m.mu.Unlock()

	screen := m.screen.Current()
	state := m.detector.Evaluate(screen, since)

	m.mu.Lock()
	changed := state != m.lastState || len(screen) != m.lastScreenLen
	m.lastState = state
	m.lastScreenLen = len(screen)
	m.ready = state == agent.StateReady && !m.stopping
	var waiters []chan struct{}
	if m.ready {
		waiters = m.readyWaiters
		m.readyWaiters = nil
	}
	m.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	if changed {
		m.publish(events.NewScreenUpdatedEvent(m.id, m.workspacePath, screen, string(state)))
	}
	m.tryAutoStart()
}

// handleExit runs once per spawn when the child ends, for any reason. It
// resets in-flight work before reporting so no message is lost.
func (m *Manager) handleExit(info agent.ExitInfo) {
	reset := m.queue.ResetInFlight()
	m.timers.CancelAll()

	m.mu.Lock()
	m.ready = false
	m.lastState = agent.StateBusy
	if m.procCancel != nil {
		m.procCancel()
		m.procCancel = nil
		m.procCtx = nil
	}
	exitCh := m.exitCh
	m.exitCh = nil
	waiters := m.readyWaiters
	m.readyWaiters = nil
	m.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	if exitCh != nil {
		close(exitCh)
	}

	payload := events.SessionEndedPayload{
		ExitCode:             info.Code,
		Signal:               info.Signal,
		ResetMessageCount:    len(reset),
		RemainingQueueLength: m.queue.PendingCount(),
	}
	if len(reset) > 0 {
		payload.InterruptedMessage = reset[0].ID
	}
	log.Info().
		Str("session_id", m.id).
		Int("exit_code", info.Code).
		Int("reset_messages", len(reset)).
		Msg("session ended")
	m.publish(events.NewSessionEndedEvent(m.id, m.workspacePath, payload))
}

// handleUnhealthy runs from the supervisor's liveness ticker. The session is
// stopped and restarted after a delay.
func (m *Manager) handleUnhealthy(reason string) {
	log.Warn().Str("session_id", m.id).Str("reason", reason).Msg("session unhealthy")
	m.publish(events.NewSessionUnhealthyEvent(m.id, m.workspacePath, reason, m.supervisor.PID()))

	go func() {
		if err := m.Stop("unhealthy: " + reason); err != nil && !errors.Is(err, domain.ErrSessionNotRunning) {
			log.Error().Err(err).Str("session_id", m.id).Msg("failed to stop unhealthy session")
			return
		}
		m.timers.After("restart", m.restartDelay, func() {
			if err := m.Restart(context.Background()); err != nil {
				log.Error().Err(err).Str("session_id", m.id).Msg("automatic restart failed")
			}
		})
	}()
}

func (m *Manager) tryAutoStart() {
	m.mu.Lock()
	ctx := m.procCtx
	m.mu.Unlock()
	if ctx != nil {
		m.processor.TryAutoStart(ctx)
	}
}

func (m *Manager) publish(event *events.BaseEvent) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(event)
}
