package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/queue"
	"github.com/cpilot-dev/cpilot/internal/session"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	return New(session.Config{
		Command:  "sh",
		Args:     []string{"-c", "sleep 30"},
		QueueDir: t.TempDir(),
	})
}

func TestCreateSessionIdempotentPerWorkspace(t *testing.T) {
	o := newTestOrchestrator(t)
	ws := t.TempDir()

	a, err := o.CreateSession(ws)
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	b, err := o.CreateSession(ws)
	if err != nil {
		t.Fatalf("second CreateSession failed: %v", err)
	}
	if a != b {
		t.Error("same workspace produced two sessions")
	}
	if o.Count() != 1 {
		t.Errorf("registry count = %d, want 1", o.Count())
	}

	other, err := o.CreateSession(t.TempDir())
	if err != nil {
		t.Fatalf("CreateSession for second workspace failed: %v", err)
	}
	if other == a {
		t.Error("different workspaces shared a session")
	}
	if a.ID() == other.ID() {
		t.Error("session IDs collided")
	}
}

func TestGetAndDetails(t *testing.T) {
	o := newTestOrchestrator(t)
	ws := t.TempDir()
	mgr, _ := o.CreateSession(ws)

	got, err := o.Get(mgr.ID())
	if err != nil || got != mgr {
		t.Errorf("Get(%s) = %v, %v", mgr.ID(), got, err)
	}
	if _, err := o.Get("nope"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("Get unknown: got %v, want ErrSessionNotFound", err)
	}

	byWS, err := o.GetByWorkspace(ws)
	if err != nil || byWS != mgr {
		t.Errorf("GetByWorkspace = %v, %v", byWS, err)
	}

	details, err := o.GetSessionDetails(mgr.ID())
	if err != nil {
		t.Fatalf("GetSessionDetails failed: %v", err)
	}
	if details.SessionID != mgr.ID() || details.Alive {
		t.Errorf("unexpected details: %+v", details)
	}
}

func TestTerminateSessionRemovesRegistration(t *testing.T) {
	o := newTestOrchestrator(t)
	ws := t.TempDir()
	mgr, _ := o.CreateSession(ws)

	if err := o.TerminateSession(mgr.ID()); err != nil {
		t.Fatalf("TerminateSession failed: %v", err)
	}
	if _, err := o.Get(mgr.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("terminated session still registered")
	}
	if _, err := o.GetByWorkspace(ws); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Error("terminated session still registered by workspace")
	}

	if err := o.TerminateSession(mgr.ID()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("double terminate: got %v, want ErrSessionNotFound", err)
	}

	// The workspace can host a fresh session afterwards.
	again, err := o.CreateSession(ws)
	if err != nil {
		t.Fatalf("CreateSession after terminate failed: %v", err)
	}
	if again == mgr {
		t.Error("terminated session was reused")
	}
}

func TestGetStats(t *testing.T) {
	o := newTestOrchestrator(t)
	a, _ := o.CreateSession(t.TempDir())
	b, _ := o.CreateSession(t.TempDir())

	if _, err := a.Enqueue("one"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if _, err := b.Enqueue("two"); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	msg, _ := b.Enqueue("three")
	if _, err := b.Queue().MarkProcessing(msg.ID); err != nil {
		t.Fatalf("MarkProcessing failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := b.Queue().MarkCompleted(msg.ID, queue.StatusCompleted, "", nil); err != nil {
		t.Fatalf("MarkCompleted failed: %v", err)
	}

	stats := o.GetStats()
	if stats.ActiveSessions != 0 {
		t.Errorf("active sessions = %d, want 0 (nothing spawned)", stats.ActiveSessions)
	}
	if stats.TotalMessages != 3 {
		t.Errorf("total messages = %d, want 3", stats.TotalMessages)
	}
	if stats.CompletedCount != 1 {
		t.Errorf("completed = %d, want 1", stats.CompletedCount)
	}
	if stats.AvgProcessingMS < 1 {
		t.Errorf("avg processing ms = %d, want >= 1", stats.AvgProcessingMS)
	}
}

func TestListActiveSessions(t *testing.T) {
	o := newTestOrchestrator(t)
	o.CreateSession(t.TempDir())
	o.CreateSession(t.TempDir())

	list := o.ListActiveSessions()
	if len(list) != 2 {
		t.Fatalf("listed %d sessions, want 2", len(list))
	}
	if list[0].SessionID == list[1].SessionID {
		t.Error("duplicate session IDs in listing")
	}
}
