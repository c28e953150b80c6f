package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/pathutil"
)

// queueFile is the on-disk document: one per workspace, addressed by a
// stable hash of the absolute workspace path.
type queueFile struct {
	WorkspacePath string     `json:"workspace_path"`
	SavedAt       time.Time  `json:"saved_at"`
	Messages      []*Message `json:"messages"`
}

// Store persists a queue to a JSON file. Every mutation is flushed
// immediately; a given file is only ever written by the single session
// manager owning its workspace.
type Store struct {
	path          string
	workspacePath string
}

// NewStore creates a store for the given workspace under dir.
func NewStore(dir, workspacePath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create queue dir: %w", err)
	}
	abs, err := filepath.Abs(workspacePath)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace path: %w", err)
	}
	return &Store{
		path:          filepath.Join(dir, pathutil.Hash(abs)+".json"),
		workspacePath: abs,
	}, nil
}

// Path returns the queue file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted queue. Messages found in processing state are
// orphans (their process died mid-work) and are reset to pending; the
// second return value counts them. A missing file is an empty queue.
func (s *Store) Load() ([]*Message, int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read queue file: %w", err)
	}

	var file queueFile
	if err := json.Unmarshal(data, &file); err != nil {
		// A corrupt queue file should not brick the session; keep it
		// aside for inspection and start fresh.
		backup := s.path + ".corrupt"
		if renameErr := os.Rename(s.path, backup); renameErr == nil {
			log.Warn().Str("backup", backup).Err(err).Msg("queue file corrupt, moved aside")
		}
		return nil, 0, nil
	}

	reset := 0
	for _, m := range file.Messages {
		if m.Status == StatusProcessing {
			m.Status = StatusPending
			m.ProcessingStartedAt = nil
			reset++
		}
	}

	if reset > 0 {
		log.Info().
			Int("reset", reset).
			Str("path", s.path).
			Msg("reset orphaned processing messages on load")
	}

	return file.Messages, reset, nil
}

// Save writes the queue atomically (temp file + rename) so a crash mid-write
// never leaves a truncated document behind.
func (s *Store) Save(messages []*Message) error {
	file := queueFile{
		WorkspacePath: s.workspacePath,
		SavedAt:       time.Now().UTC(),
		Messages:      messages,
	}

	data, err := json.MarshalIndent(&file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal queue: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write queue file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
