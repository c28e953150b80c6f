// Package queue implements the persisted per-workspace message queue and
// the processor that feeds queued messages to the agent.
package queue

import (
	"strconv"
	"time"

	"github.com/cpilot-dev/cpilot/internal/domain/events"
)

// Status is a message's position in its state machine.
type Status string

const (
	// StatusPending means the message is waiting its turn.
	StatusPending Status = "pending"
	// StatusProcessing means the message has been sent and the agent is
	// working on it. At most one message per queue holds this status.
	StatusProcessing Status = "processing"
	// StatusCompleted means the agent finished responding.
	StatusCompleted Status = "completed"
	// StatusError means processing failed; Error holds the reason.
	StatusError Status = "error"
)

// ErrorContext is the structured diagnostic record attached to failed
// messages so failures are explainable without server logs.
type ErrorContext struct {
	MessageID        string    `json:"message_id"`
	Kind             string    `json:"kind"`
	Timestamp        time.Time `json:"timestamp"`
	ProcessingTimeMS int64     `json:"processing_time_ms"`
	SessionStatus    string    `json:"session_status"`
}

// Message is one unit of work in the queue.
type Message struct {
	ID                  string        `json:"id"`
	Text                string        `json:"text"`
	Status              Status        `json:"status"`
	CreatedAt           time.Time     `json:"created_at"`
	ProcessingStartedAt *time.Time    `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time    `json:"completed_at,omitempty"`
	ProcessingTimeMS    int64         `json:"processing_time_ms,omitempty"`
	Error               string        `json:"error,omitempty"`
	ErrorContext        *ErrorContext `json:"error_context,omitempty"`
}

// Snapshot converts the message to its event wire form.
func (m *Message) Snapshot() events.MessageSnapshot {
	snap := events.MessageSnapshot{
		ID:               m.ID,
		Text:             m.Text,
		Status:           string(m.Status),
		CreatedAt:        m.CreatedAt.UTC().Format(time.RFC3339Nano),
		ProcessingTimeMS: m.ProcessingTimeMS,
		Error:            m.Error,
	}
	if m.CompletedAt != nil {
		snap.CompletedAt = m.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return snap
}

// newMessageID derives an opaque time-based ID. Uniqueness within a queue is
// enforced by the caller, which bumps the sequence on collision.
func newMessageID(now time.Time, seq int) string {
	id := strconv.FormatInt(now.UnixNano(), 36)
	if seq > 0 {
		id += "-" + strconv.Itoa(seq)
	}
	return id
}
