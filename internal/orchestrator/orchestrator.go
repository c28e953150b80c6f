// Package orchestrator maintains the registry of session managers, one per
// workspace, and aggregates statistics across them.
package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/queue"
	"github.com/cpilot-dev/cpilot/internal/session"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// Stats aggregates the state of all registered sessions.
type Stats struct {
	ActiveSessions  int   `json:"active_sessions"`
	HealthySessions int   `json:"healthy_sessions"`
	TotalMessages   int   `json:"total_messages"`
	CompletedCount  int   `json:"completed_messages"`
	AvgProcessingMS int64 `json:"avg_processing_ms"`
}

// Orchestrator is the session registry. Each session is fully independent
// (own process, queue file, screen buffer); the registry itself is the only
// shared state.
type Orchestrator struct {
	base session.Config

	mu          cpsync.RWMutex
	byWorkspace map[string]*session.Manager
	byID        map[string]*session.Manager
}

// New creates an orchestrator. base carries the per-session configuration
// template (command, queue dir, detector signatures, hub); SessionID and
// WorkspacePath are filled per session.
func New(base session.Config) *Orchestrator {
	return &Orchestrator{
		base:        base,
		byWorkspace: make(map[string]*session.Manager),
		byID:        make(map[string]*session.Manager),
	}
}

// CreateSession registers a session for the workspace and returns it. A
// workspace already holding a session returns the existing one.
func (o *Orchestrator) CreateSession(workspacePath string) (*session.Manager, error) {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if existing, ok := o.byWorkspace[abs]; ok {
		return existing, nil
	}

	cfg := o.base
	cfg.SessionID = uuid.New().String()
	cfg.WorkspacePath = abs

	mgr, err := session.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	o.byWorkspace[abs] = mgr
	o.byID[cfg.SessionID] = mgr

	log.Info().
		Str("session_id", cfg.SessionID).
		Str("workspace", abs).
		Msg("session registered")
	return mgr, nil
}

// Get returns a session by ID.
func (o *Orchestrator) Get(id string) (*session.Manager, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mgr, ok := o.byID[id]; ok {
		return mgr, nil
	}
	return nil, domain.ErrSessionNotFound
}

// GetByWorkspace returns the session bound to a workspace path.
func (o *Orchestrator) GetByWorkspace(workspacePath string) (*session.Manager, error) {
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, err
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	if mgr, ok := o.byWorkspace[abs]; ok {
		return mgr, nil
	}
	return nil, domain.ErrSessionNotFound
}

// TerminateSession stops a session's process (if running) and removes it
// from the registry.
func (o *Orchestrator) TerminateSession(id string) error {
	o.mu.Lock()
	mgr, ok := o.byID[id]
	if !ok {
		o.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	delete(o.byID, id)
	delete(o.byWorkspace, mgr.WorkspacePath())
	o.mu.Unlock()

	if mgr.Alive() {
		if err := mgr.Stop("terminated"); err != nil {
			return err
		}
	}
	log.Info().Str("session_id", id).Msg("session terminated")
	return nil
}

// ListActiveSessions snapshots every registered session.
func (o *Orchestrator) ListActiveSessions() []session.Status {
	o.mu.RLock()
	managers := make([]*session.Manager, 0, len(o.byID))
	for _, mgr := range o.byID {
		managers = append(managers, mgr)
	}
	o.mu.RUnlock()

	out := make([]session.Status, 0, len(managers))
	for _, mgr := range managers {
		out = append(out, mgr.Status())
	}
	return out
}

// GetSessionDetails returns the status of one session.
func (o *Orchestrator) GetSessionDetails(id string) (session.Status, error) {
	mgr, err := o.Get(id)
	if err != nil {
		return session.Status{}, err
	}
	return mgr.Status(), nil
}

// Count returns the number of registered sessions.
func (o *Orchestrator) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.byID)
}

// ActiveCount returns the number of sessions with a live process.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	managers := make([]*session.Manager, 0, len(o.byID))
	for _, mgr := range o.byID {
		managers = append(managers, mgr)
	}
	o.mu.RUnlock()

	active := 0
	for _, mgr := range managers {
		if mgr.Alive() {
			active++
		}
	}
	return active
}

// GetStats aggregates queue and processing statistics across sessions.
func (o *Orchestrator) GetStats() Stats {
	o.mu.RLock()
	managers := make([]*session.Manager, 0, len(o.byID))
	for _, mgr := range o.byID {
		managers = append(managers, mgr)
	}
	o.mu.RUnlock()

	var stats Stats
	var totalMS int64
	for _, mgr := range managers {
		if mgr.Alive() {
			stats.ActiveSessions++
			if !mgr.Processor().Halted() {
				stats.HealthySessions++
			}
		}
		for _, msg := range mgr.Messages() {
			stats.TotalMessages++
			if msg.Status == queue.StatusCompleted {
				stats.CompletedCount++
				totalMS += msg.ProcessingTimeMS
			}
		}
	}
	if stats.CompletedCount > 0 {
		stats.AvgProcessingMS = totalMS / int64(stats.CompletedCount)
	}
	return stats
}

// Shutdown stops every running session. Registry entries are kept so a
// follow-up inspection can still see final state.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	for _, st := range o.ListActiveSessions() {
		mgr, err := o.Get(st.SessionID)
		if err != nil {
			continue
		}
		if mgr.Alive() {
			if err := mgr.Stop("shutdown"); err != nil {
				log.Warn().Err(err).Str("session_id", st.SessionID).Msg("failed to stop session on shutdown")
			}
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}
