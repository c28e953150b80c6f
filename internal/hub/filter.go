package hub

import (
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// FilteredSubscriber narrows a subscriber to a set of workspaces. An empty
// set means no filter: everything is forwarded. Events without a workspace
// ID (heartbeats, global errors) always pass.
type FilteredSubscriber struct {
	inner ports.Subscriber

	mu         cpsync.RWMutex
	workspaces map[string]struct{}
}

// NewFilteredSubscriber wraps inner with an initially empty filter.
func NewFilteredSubscriber(inner ports.Subscriber) *FilteredSubscriber {
	return &FilteredSubscriber{
		inner:      inner,
		workspaces: make(map[string]struct{}),
	}
}

func (f *FilteredSubscriber) ID() string {
	return f.inner.ID()
}

// Send forwards the event when it passes the workspace filter.
func (f *FilteredSubscriber) Send(event events.Event) error {
	f.mu.RLock()
	pass := len(f.workspaces) == 0
	if !pass {
		if id := event.GetWorkspaceID(); id == "" {
			pass = true
		} else {
			_, pass = f.workspaces[id]
		}
	}
	f.mu.RUnlock()

	if !pass {
		return nil
	}
	return f.inner.Send(event)
}

func (f *FilteredSubscriber) Close() error {
	return f.inner.Close()
}

func (f *FilteredSubscriber) Done() <-chan struct{} {
	return f.inner.Done()
}

// SubscribeWorkspace adds a workspace to the filter.
func (f *FilteredSubscriber) SubscribeWorkspace(workspaceID string) {
	f.mu.Lock()
	f.workspaces[workspaceID] = struct{}{}
	f.mu.Unlock()
}

// UnsubscribeWorkspace removes one workspace from the filter.
func (f *FilteredSubscriber) UnsubscribeWorkspace(workspaceID string) {
	f.mu.Lock()
	delete(f.workspaces, workspaceID)
	f.mu.Unlock()
}

// SubscribeAll clears the filter so every event is forwarded again.
func (f *FilteredSubscriber) SubscribeAll() {
	f.mu.Lock()
	f.workspaces = make(map[string]struct{})
	f.mu.Unlock()
}

// IsFiltering reports whether a workspace filter is active.
func (f *FilteredSubscriber) IsFiltering() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.workspaces) > 0
}

// Workspaces returns the filtered workspace IDs, unordered.
func (f *FilteredSubscriber) Workspaces() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.workspaces))
	for id := range f.workspaces {
		out = append(out, id)
	}
	return out
}
