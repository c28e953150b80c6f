// Package taskstore persists per-workspace task lists in SQLite. It is the
// parallel data store swapped alongside the queue file when the active
// workspace changes.
package taskstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrTaskNotFound is returned when a task ID does not exist.
var ErrTaskNotFound = errors.New("task not found")

// Task is one tracked work item.
type Task struct {
	ID            int64     `json:"id"`
	WorkspacePath string    `json:"workspace_path"`
	Title         string    `json:"title"`
	Done          bool      `json:"done"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	workspace_path TEXT NOT NULL,
	title          TEXT NOT NULL,
	done           INTEGER NOT NULL DEFAULT 0,
	created_at     TIMESTAMP NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_workspace ON tasks(workspace_path);
`

// Open opens (creating if needed) the task database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create task db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open task db: %w", err)
	}
	// The driver is in-process; a single connection avoids write contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init task schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a task for the workspace.
func (s *Store) Create(ctx context.Context, workspacePath, title string) (*Task, error) {
	if title == "" {
		return nil, errors.New("task title is required")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (workspace_path, title, done, created_at, updated_at) VALUES (?, ?, 0, ?, ?)`,
		workspacePath, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Task{
		ID:            id,
		WorkspacePath: workspacePath,
		Title:         title,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Get returns one task.
func (s *Store) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workspace_path, title, done, created_at, updated_at FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// List returns the workspace's tasks, oldest first.
func (s *Store) List(ctx context.Context, workspacePath string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workspace_path, title, done, created_at, updated_at FROM tasks WHERE workspace_path = ? ORDER BY id`,
		workspacePath)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update modifies a task's title and/or done flag; nil leaves a field as is.
func (s *Store) Update(ctx context.Context, id int64, title *string, done *bool) (*Task, error) {
	task, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if title != nil {
		task.Title = *title
	}
	if done != nil {
		task.Done = *done
	}
	task.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, done = ?, updated_at = ? WHERE id = ?`,
		task.Title, task.Done, task.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// Delete removes a task.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var done int
	err := row.Scan(&t.ID, &t.WorkspacePath, &t.Title, &done, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	t.Done = done != 0
	return &t, nil
}
