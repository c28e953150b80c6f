// Package events defines all event types used in cpilot.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event.
type EventType string

const (
	// Session lifecycle events
	EventTypeSessionStarted   EventType = "session_started"
	EventTypeSessionEnded     EventType = "session_ended"
	EventTypeSessionStopped   EventType = "session_stopped" // manual stop
	EventTypeSessionUnhealthy EventType = "session_unhealthy"

	// Screen / detector events
	EventTypeScreenUpdated EventType = "screen_updated"

	// Queue events
	EventTypeQueueUpdated           EventType = "queue_updated"
	EventTypeMessageStarted         EventType = "message_started"
	EventTypeMessageCompleted       EventType = "message_completed"
	EventTypeProcessingStopped      EventType = "processing_stopped"
	EventTypeQueueIntegrityRestored EventType = "queue_integrity_restored"

	// Workspace events
	EventTypeWorkingDirectoryChanged EventType = "working_directory_changed"

	// Response events
	EventTypeError EventType = "error"

	// Connection events
	EventTypeHeartbeat EventType = "heartbeat"
)

// Event is the base interface for all events.
type Event interface {
	// Type returns the event type.
	Type() EventType

	// Timestamp returns when the event occurred.
	Timestamp() time.Time

	// ToJSON serializes the event to JSON.
	ToJSON() ([]byte, error)

	// GetWorkspaceID returns the workspace ID (may be empty).
	GetWorkspaceID() string

	// GetSessionID returns the session ID (may be empty).
	GetSessionID() string
}

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventType   EventType   `json:"event"`
	EventTime   time.Time   `json:"timestamp"`
	WorkspaceID string      `json:"workspace_id,omitempty"`
	SessionID   string      `json:"session_id,omitempty"`
	Payload     interface{} `json:"payload"`
	RequestID   string      `json:"request_id,omitempty"`
}

// SetContext sets the workspace and session context for an event.
func (e *BaseEvent) SetContext(workspaceID, sessionID string) {
	e.WorkspaceID = workspaceID
	e.SessionID = sessionID
}

// GetWorkspaceID returns the workspace ID.
func (e *BaseEvent) GetWorkspaceID() string {
	return e.WorkspaceID
}

// GetSessionID returns the session ID.
func (e *BaseEvent) GetSessionID() string {
	return e.SessionID
}

// Type returns the event type.
func (e *BaseEvent) Type() EventType {
	return e.EventType
}

// Timestamp returns when the event occurred.
func (e *BaseEvent) Timestamp() time.Time {
	return e.EventTime
}

// ToJSON serializes the event to JSON.
func (e *BaseEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// NewEvent creates a new base event with the given type and payload.
func NewEvent(eventType EventType, payload interface{}) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
	}
}

// NewEventWithRequestID creates a new event with a request ID for correlation.
func NewEventWithRequestID(eventType EventType, payload interface{}, requestID string) *BaseEvent {
	return &BaseEvent{
		EventType: eventType,
		EventTime: time.Now().UTC(),
		Payload:   payload,
		RequestID: requestID,
	}
}

// NewEventWithContext creates a new event with workspace and session context.
func NewEventWithContext(eventType EventType, payload interface{}, workspaceID, sessionID string) *BaseEvent {
	return &BaseEvent{
		EventType:   eventType,
		EventTime:   time.Now().UTC(),
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		Payload:     payload,
	}
}

// ErrorPayload is the payload for error events.
type ErrorPayload struct {
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	RequestID string                 `json:"request_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// NewErrorEvent creates a new error event.
func NewErrorEvent(code, message string, requestID string, details map[string]interface{}) *BaseEvent {
	return NewEventWithRequestID(EventTypeError, ErrorPayload{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Details:   details,
	}, requestID)
}

// HeartbeatPayload is the payload for heartbeat events.
// Heartbeats are sent periodically so clients can detect connection issues
// at the application level (beyond WebSocket ping/pong frames).
type HeartbeatPayload struct {
	ServerTime    string `json:"server_time"`
	Sequence      int64  `json:"sequence"`
	ActiveCount   int    `json:"active_sessions"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// NewHeartbeatEvent creates a new heartbeat event.
func NewHeartbeatEvent(sequence int64, activeSessions int, uptimeSeconds int64) *BaseEvent {
	return NewEvent(EventTypeHeartbeat, HeartbeatPayload{
		ServerTime:    time.Now().UTC().Format(time.RFC3339),
		Sequence:      sequence,
		ActiveCount:   activeSessions,
		UptimeSeconds: uptimeSeconds,
	})
}
