// Package domain contains domain errors used throughout the application.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	ErrSessionAlreadyRunning = errors.New("session process is already running")
	ErrSessionNotRunning     = errors.New("session process is not running")
	ErrSessionStopping       = errors.New("session is stopping")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionCoolingDown    = errors.New("session is in post-stop cool-down")
	ErrMessageNotFound       = errors.New("message not found")
	ErrMessageNotEditable    = errors.New("only pending messages can be edited")
	ErrMessageNotRemovable   = errors.New("message is currently processing")
	ErrQueueProcessing       = errors.New("queue has a message in flight")
	ErrEmptyMessage          = errors.New("message text cannot be empty")
	ErrMessageTooLong        = errors.New("message exceeds maximum length")
	ErrStdinUnavailable      = errors.New("process input stream is not writable")
	ErrReadinessTimeout      = errors.New("timed out waiting for agent to become ready")
	ErrWorkspaceNotFound     = errors.New("workspace path does not exist")
	ErrHubNotRunning         = errors.New("event hub is not running")
	ErrSubscriberClosed      = errors.New("subscriber is closed")
	ErrUnknownKey            = errors.New("unknown key name")
)

// Error codes for client responses.
const (
	ErrCodeSessionAlreadyRunning = "SESSION_ALREADY_RUNNING"
	ErrCodeSessionNotRunning     = "SESSION_NOT_RUNNING"
	ErrCodeSessionNotFound       = "SESSION_NOT_FOUND"
	ErrCodeMessageNotFound       = "MESSAGE_NOT_FOUND"
	ErrCodeMessageNotEditable    = "MESSAGE_NOT_EDITABLE"
	ErrCodeInvalidPayload        = "INVALID_PAYLOAD"
	ErrCodeWorkspaceNotFound     = "WORKSPACE_NOT_FOUND"
	ErrCodeTaskNotFound          = "TASK_NOT_FOUND"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// SessionError represents an error from session/process operations.
type SessionError struct {
	Op       string // Operation that failed
	Err      error  // Underlying error
	ExitCode int    // Exit code if the process exited
}

func (e *SessionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("session %s: exit code %d: %v", e.Op, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// NewSessionError creates a new SessionError.
func NewSessionError(op string, err error, exitCode int) *SessionError {
	return &SessionError{
		Op:       op,
		Err:      err,
		ExitCode: exitCode,
	}
}

// QueueError represents an error from queue operations, carrying the
// message ID it relates to so failures are diagnosable without logs.
type QueueError struct {
	Op        string // Operation that failed
	MessageID string // Message the operation targeted, if any
	Err       error  // Underlying error
}

func (e *QueueError) Error() string {
	if e.MessageID != "" {
		return fmt.Sprintf("queue %s: message %s: %v", e.Op, e.MessageID, e.Err)
	}
	return fmt.Sprintf("queue %s: %v", e.Op, e.Err)
}

func (e *QueueError) Unwrap() error {
	return e.Err
}

// NewQueueError creates a new QueueError.
func NewQueueError(op, messageID string, err error) *QueueError {
	return &QueueError{
		Op:        op,
		MessageID: messageID,
		Err:       err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
