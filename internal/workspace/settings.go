// Package workspace manages the active-workspace settings file and its
// change notifications.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// maxRecent bounds the recent-workspaces list.
const maxRecent = 5

// Settings is the persisted settings document.
type Settings struct {
	ActiveWorkspace  string   `json:"active_workspace"`
	RecentWorkspaces []string `json:"recent_workspaces"`
}

// SettingsManager owns the settings file: the active workspace path plus a
// bounded most-recent-first list. Every change is saved immediately.
type SettingsManager struct {
	path string
	hub  ports.EventHub

	mu       cpsync.Mutex
	settings Settings
}

// NewSettingsManager loads (or initializes) the settings file at path.
func NewSettingsManager(path string, hub ports.EventHub) (*SettingsManager, error) {
	m := &SettingsManager{path: path, hub: hub}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Path returns the settings file location.
func (m *SettingsManager) Path() string {
	return m.path
}

// Active returns the current active workspace path (may be empty).
func (m *SettingsManager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings.ActiveWorkspace
}

// Snapshot returns a copy of the full settings document.
func (m *SettingsManager) Snapshot() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.settings
	out.RecentWorkspaces = append([]string(nil), m.settings.RecentWorkspaces...)
	return out
}

// SetActive switches the active workspace, updates the MRU list, persists,
// and emits working_directory_changed when the path actually changed.
func (m *SettingsManager) SetActive(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve workspace path: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return fmt.Errorf("workspace path %q is not a directory: %w", abs, domain.ErrWorkspaceNotFound)
	}

	m.mu.Lock()
	previous := m.settings.ActiveWorkspace
	if previous == abs {
		m.mu.Unlock()
		return nil
	}
	m.settings.ActiveWorkspace = abs
	m.settings.RecentWorkspaces = pushRecent(m.settings.RecentWorkspaces, abs)
	err = m.saveLocked()
	m.mu.Unlock()

	if err != nil {
		return err
	}
	log.Info().Str("workspace", abs).Str("previous", previous).Msg("active workspace changed")
	m.publish(events.NewWorkingDirectoryChangedEvent(abs, previous))
	return nil
}

// Reload re-reads the settings file (after an external edit) and emits
// working_directory_changed if the active workspace moved.
func (m *SettingsManager) Reload() error {
	m.mu.Lock()
	previous := m.settings.ActiveWorkspace
	if err := m.loadLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	current := m.settings.ActiveWorkspace
	m.mu.Unlock()

	if current != previous {
		log.Info().Str("workspace", current).Msg("active workspace changed externally")
		m.publish(events.NewWorkingDirectoryChangedEvent(current, previous))
	}
	return nil
}

func (m *SettingsManager) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadLocked()
}

func (m *SettingsManager) loadLocked() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			m.settings = Settings{}
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("parse settings: %w", err)
	}
	if len(s.RecentWorkspaces) > maxRecent {
		s.RecentWorkspaces = s.RecentWorkspaces[:maxRecent]
	}
	m.settings = s
	return nil
}

func (m *SettingsManager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(&m.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace settings: %w", err)
	}
	return nil
}

func (m *SettingsManager) publish(event *events.BaseEvent) {
	if m.hub == nil {
		return
	}
	m.hub.Publish(event)
}

// pushRecent prepends path to the MRU list, de-duplicated and bounded.
func pushRecent(recent []string, path string) []string {
	out := make([]string, 0, maxRecent)
	out = append(out, path)
	for _, p := range recent {
		if p == path {
			continue
		}
		out = append(out, p)
		if len(out) == maxRecent {
			break
		}
	}
	return out
}
