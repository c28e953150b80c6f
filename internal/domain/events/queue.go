package events

// MessageSnapshot is the wire representation of a queued message carried in
// queue event payloads. It mirrors queue.Message without importing it.
type MessageSnapshot struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
	CompletedAt      string `json:"completed_at,omitempty"`
	ProcessingTimeMS int64  `json:"processing_time_ms,omitempty"`
	Error            string `json:"error,omitempty"`
}

// QueueUpdatedPayload is the payload for queue_updated events.
type QueueUpdatedPayload struct {
	SessionID string            `json:"session_id"`
	Messages  []MessageSnapshot `json:"messages"`
	Pending   int               `json:"pending"`
}

// MessageStartedPayload is the payload for message_started events.
type MessageStartedPayload struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
	Text      string `json:"text"`
}

// MessageCompletedPayload is the payload for message_completed events.
type MessageCompletedPayload struct {
	SessionID        string `json:"session_id"`
	MessageID        string `json:"message_id"`
	Status           string `json:"status"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	Error            string `json:"error,omitempty"`
}

// ProcessingStoppedPayload is the payload for processing_stopped events.
type ProcessingStoppedPayload struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
	MessageID string `json:"message_id,omitempty"`
}

// QueueIntegrityRestoredPayload is the payload for queue_integrity_restored events.
type QueueIntegrityRestoredPayload struct {
	SessionID     string   `json:"session_id"`
	RepairedCount int      `json:"repaired_count"`
	RepairedIDs   []string `json:"repaired_ids,omitempty"`
	Reason        string   `json:"reason"`
}

// NewQueueUpdatedEvent creates a new queue_updated event.
func NewQueueUpdatedEvent(sessionID, workspacePath string, messages []MessageSnapshot, pending int) *BaseEvent {
	return NewEventWithContext(EventTypeQueueUpdated, QueueUpdatedPayload{
		SessionID: sessionID,
		Messages:  messages,
		Pending:   pending,
	}, workspacePath, sessionID)
}

// NewMessageStartedEvent creates a new message_started event.
func NewMessageStartedEvent(sessionID, workspacePath, messageID, text string) *BaseEvent {
	return NewEventWithContext(EventTypeMessageStarted, MessageStartedPayload{
		SessionID: sessionID,
		MessageID: messageID,
		Text:      text,
	}, workspacePath, sessionID)
}

// NewMessageCompletedEvent creates a new message_completed event.
func NewMessageCompletedEvent(sessionID, workspacePath, messageID, status string, processingTimeMS int64, errMsg string) *BaseEvent {
	return NewEventWithContext(EventTypeMessageCompleted, MessageCompletedPayload{
		SessionID:        sessionID,
		MessageID:        messageID,
		Status:           status,
		ProcessingTimeMS: processingTimeMS,
		Error:            errMsg,
	}, workspacePath, sessionID)
}

// NewProcessingStoppedEvent creates a new processing_stopped event.
func NewProcessingStoppedEvent(sessionID, workspacePath, reason, messageID string) *BaseEvent {
	return NewEventWithContext(EventTypeProcessingStopped, ProcessingStoppedPayload{
		SessionID: sessionID,
		Reason:    reason,
		MessageID: messageID,
	}, workspacePath, sessionID)
}

// NewQueueIntegrityRestoredEvent creates a new queue_integrity_restored event.
func NewQueueIntegrityRestoredEvent(sessionID, workspacePath string, repairedIDs []string, reason string) *BaseEvent {
	return NewEventWithContext(EventTypeQueueIntegrityRestored, QueueIntegrityRestoredPayload{
		SessionID:     sessionID,
		RepairedCount: len(repairedIDs),
		RepairedIDs:   repairedIDs,
		Reason:        reason,
	}, workspacePath, sessionID)
}
