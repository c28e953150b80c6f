//go:build !windows

package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cpilot-dev/cpilot/internal/agent"
	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/queue"
	"github.com/cpilot-dev/cpilot/internal/testutil"
)

// fastPolicy shrinks the detector timing for tests.
var fastPolicy = agent.DetectorPolicy{
	Debounce:       50 * time.Millisecond,
	IdleFallback:   time.Hour, // signature matches only
	MinScreenBytes: 1 << 20,
}

// neverReadySignatures never match anything the test children print.
func neverReadySignatures(t *testing.T) *agent.SignatureSet {
	t.Helper()
	sigs, err := agent.CompileSignatures(
		[]string{`\x00never\x00`}, []string{`\x00never\x00`}, []string{`\x00never\x00`})
	if err != nil {
		t.Fatalf("CompileSignatures failed: %v", err)
	}
	return sigs
}

func fastProcessorConfig() queue.ProcessorConfig {
	return queue.ProcessorConfig{
		LargePayloadThreshold: 2048,
		SmallChunkSize:        256,
		SmallChunkDelay:       2 * time.Millisecond,
		LargeChunkSize:        1024,
		LargeChunkDelay:       2 * time.Millisecond,
		SubmitDelay:           20 * time.Millisecond,
		InterMessageDelay:     10 * time.Millisecond,
		ReadyTimeout:          10 * time.Second,
		WriteRetry: queue.RetryPolicy{
			MaxAttempts: 2,
			Backoff:     func(int) time.Duration { return 10 * time.Millisecond },
		},
	}
}

func newTestManager(t *testing.T, hub *testutil.MockEventHub, script string, sigs *agent.SignatureSet) *Manager {
	t.Helper()
	cfg := Config{
		SessionID:     "test-session",
		WorkspacePath: t.TempDir(),
		Command:       "sh",
		Args:          []string{"-c", script},
		QueueDir:      t.TempDir(),
		Signatures:    sigs,
		Policy:        fastPolicy,
		Processor:     fastProcessorConfig(),
		RestartDelay:  50 * time.Millisecond,
		Debounce:      20 * time.Millisecond,
	}
	if hub != nil {
		cfg.Hub = hub
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() {
		_ = m.Stop("test cleanup")
	})
	return m
}

func pollUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestManagerStartBecomesReady(t *testing.T) {
	hub := testutil.NewMockEventHub()
	m := newTestManager(t, hub, `printf '? for shortcuts\n'; sleep 30`, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pollUntil(t, "session ready", m.Ready)

	st := m.Status()
	if !st.Alive || st.PID == 0 {
		t.Errorf("status not alive: %+v", st)
	}
	if st.State != string(agent.StateReady) {
		t.Errorf("state = %s, want ready", st.State)
	}

	var started bool
	for _, e := range hub.PublishedEvents() {
		if e.Type() == events.EventTypeSessionStarted {
			started = true
		}
	}
	if !started {
		t.Error("no session_started event published")
	}
}

func TestManagerStartIdempotent(t *testing.T) {
	m := newTestManager(t, nil, `sleep 30`, neverReadySignatures(t))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	pid := m.Status().PID
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}
	if got := m.Status().PID; got != pid {
		t.Errorf("second Start spawned a new process: pid %d -> %d", pid, got)
	}
}

func TestManagerStopResetsInFlight(t *testing.T) {
	hub := testutil.NewMockEventHub()
	m := newTestManager(t, hub, `sleep 30`, neverReadySignatures(t))

	msg, err := m.Enqueue("interrupted work")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Queue().MarkProcessing(msg.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	if err := m.Stop("operator request"); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if m.Alive() {
		t.Error("process still alive after Stop")
	}

	got, err := m.Queue().Get(msg.ID)
	if err != nil {
		t.Fatalf("message gone after stop: %v", err)
	}
	if got.Status != queue.StatusPending {
		t.Errorf("message status = %s, want pending", got.Status)
	}

	var stopped bool
	for _, e := range hub.PublishedEvents() {
		if e.Type() == events.EventTypeSessionStopped {
			stopped = true
		}
	}
	if !stopped {
		t.Error("no session_stopped event published")
	}

	if err := m.Stop("again"); !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Errorf("second Stop: got %v, want ErrSessionNotRunning", err)
	}
}

func TestManagerExitEmitsSessionEnded(t *testing.T) {
	hub := testutil.NewMockEventHub()
	m := newTestManager(t, hub, `sleep 0.3`, neverReadySignatures(t))

	msg, err := m.Enqueue("dies with the process")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.Queue().MarkProcessing(msg.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}

	pollUntil(t, "process exit", func() bool { return !m.Alive() })

	var ended *events.SessionEndedPayload
	pollUntil(t, "session_ended event", func() bool {
		for _, e := range hub.PublishedEvents() {
			if e.Type() == events.EventTypeSessionEnded {
				if p, ok := e.(*events.BaseEvent).Payload.(events.SessionEndedPayload); ok {
					ended = &p
					return true
				}
			}
		}
		return false
	})

	if ended.InterruptedMessage != msg.ID {
		t.Errorf("interrupted message = %q, want %q", ended.InterruptedMessage, msg.ID)
	}
	if ended.ResetMessageCount != 1 {
		t.Errorf("reset count = %d, want 1", ended.ResetMessageCount)
	}
	if ended.RemainingQueueLength != 1 {
		t.Errorf("remaining queue length = %d, want 1", ended.RemainingQueueLength)
	}

	got, _ := m.Queue().Get(msg.ID)
	if got.Status != queue.StatusPending {
		t.Errorf("message status after exit = %s, want pending", got.Status)
	}
}

func TestManagerProcessesQueueEndToEnd(t *testing.T) {
	script := `printf '? for shortcuts\n'; while IFS= read -r line; do printf 'got:%s\n? for shortcuts\n' "$line"; done`
	m := newTestManager(t, nil, script, nil)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	pollUntil(t, "session ready", m.Ready)

	msg, err := m.Enqueue("hello there")
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pollUntil(t, "message completion", func() bool {
		got, getErr := m.Queue().Get(msg.ID)
		return getErr == nil && got.Status == queue.StatusCompleted
	})

	got, _ := m.Queue().Get(msg.ID)
	if got.ProcessingTimeMS < 1 {
		t.Errorf("processing time = %d, want >= 1", got.ProcessingTimeMS)
	}
}

func TestManagerSendKey(t *testing.T) {
	m := newTestManager(t, nil, `cat > /dev/null`, neverReadySignatures(t))

	if err := m.SendKey("enter"); !errors.Is(err, domain.ErrStdinUnavailable) {
		t.Errorf("SendKey before start: got %v, want ErrStdinUnavailable", err)
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.SendKey("enter"); err != nil {
		t.Errorf("SendKey failed: %v", err)
	}
	if err := m.SendKey("bogus"); !errors.Is(err, domain.ErrUnknownKey) {
		t.Errorf("unknown key: got %v, want ErrUnknownKey", err)
	}
}

func TestManagerAwaitReadyTimeout(t *testing.T) {
	m := newTestManager(t, nil, `sleep 30`, neverReadySignatures(t))
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	err := m.AwaitReady(context.Background(), 150*time.Millisecond)
	if !errors.Is(err, domain.ErrReadinessTimeout) {
		t.Errorf("AwaitReady = %v, want ErrReadinessTimeout", err)
	}
}

func TestManagerAwaitReadyOnDeadSession(t *testing.T) {
	m := newTestManager(t, nil, `sleep 30`, neverReadySignatures(t))
	err := m.AwaitReady(context.Background(), time.Second)
	if !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Errorf("AwaitReady on dead session = %v, want ErrSessionNotRunning", err)
	}
}
