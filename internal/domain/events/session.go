package events

// SessionStartedPayload is the payload for session_started events.
type SessionStartedPayload struct {
	SessionID     string `json:"session_id"`
	WorkspacePath string `json:"workspace_path"`
	PID           int    `json:"pid"`
}

// SessionEndedPayload is the payload for session_ended events.
// InterruptedMessage carries the ID of the message that was processing when
// the process died, after it has been reset to pending.
type SessionEndedPayload struct {
	SessionID            string `json:"session_id"`
	ExitCode             int    `json:"exit_code"`
	Signal               string `json:"signal,omitempty"`
	InterruptedMessage   string `json:"interrupted_message,omitempty"`
	ResetMessageCount    int    `json:"reset_message_count"`
	RemainingQueueLength int    `json:"remaining_queue_length"`
}

// SessionStoppedPayload is the payload for session_stopped events (manual stop).
type SessionStoppedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason,omitempty"`
}

// SessionUnhealthyPayload is the payload for session_unhealthy events.
type SessionUnhealthyPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	PID       int    `json:"pid,omitempty"`
}

// ScreenUpdatedPayload is the payload for screen_updated events.
// Screen carries the reconstructed current terminal screen; State is the
// detector's latest verdict for it.
type ScreenUpdatedPayload struct {
	SessionID string `json:"session_id"`
	Screen    string `json:"screen"`
	State     string `json:"state"`
}

// WorkingDirectoryChangedPayload is the payload for working_directory_changed events.
type WorkingDirectoryChangedPayload struct {
	Path     string `json:"path"`
	Previous string `json:"previous,omitempty"`
}

// NewSessionStartedEvent creates a new session_started event.
func NewSessionStartedEvent(sessionID, workspacePath string, pid int) *BaseEvent {
	return NewEventWithContext(EventTypeSessionStarted, SessionStartedPayload{
		SessionID:     sessionID,
		WorkspacePath: workspacePath,
		PID:           pid,
	}, workspacePath, sessionID)
}

// NewSessionEndedEvent creates a new session_ended event.
func NewSessionEndedEvent(sessionID, workspacePath string, payload SessionEndedPayload) *BaseEvent {
	payload.SessionID = sessionID
	return NewEventWithContext(EventTypeSessionEnded, payload, workspacePath, sessionID)
}

// NewSessionStoppedEvent creates a new session_stopped event.
func NewSessionStoppedEvent(sessionID, workspacePath, reason string) *BaseEvent {
	return NewEventWithContext(EventTypeSessionStopped, SessionStoppedPayload{
		SessionID: sessionID,
		Reason:    reason,
	}, workspacePath, sessionID)
}

// NewSessionUnhealthyEvent creates a new session_unhealthy event.
func NewSessionUnhealthyEvent(sessionID, workspacePath, reason string, pid int) *BaseEvent {
	return NewEventWithContext(EventTypeSessionUnhealthy, SessionUnhealthyPayload{
		SessionID: sessionID,
		Reason:    reason,
		PID:       pid,
	}, workspacePath, sessionID)
}

// NewScreenUpdatedEvent creates a new screen_updated event.
func NewScreenUpdatedEvent(sessionID, workspacePath, screen, state string) *BaseEvent {
	return NewEventWithContext(EventTypeScreenUpdated, ScreenUpdatedPayload{
		SessionID: sessionID,
		Screen:    screen,
		State:     state,
	}, workspacePath, sessionID)
}

// NewWorkingDirectoryChangedEvent creates a new working_directory_changed event.
func NewWorkingDirectoryChangedEvent(path, previous string) *BaseEvent {
	return NewEventWithContext(EventTypeWorkingDirectoryChanged, WorkingDirectoryChangedPayload{
		Path:     path,
		Previous: previous,
	}, path, "")
}
