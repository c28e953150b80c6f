package queue

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// Queue is the persisted, ordered message collection for one workspace.
// All mutations flush to the store before returning; the in-memory and
// on-disk views converge after every operation.
type Queue struct {
	mu    cpsync.Mutex
	store *Store
	msgs  []*Message

	hub           ports.EventHub
	workspacePath string
	sessionID     string

	maxTextLen int
}

// NewQueue creates a queue backed by the given store. hub may be nil in
// tests; events are then dropped.
func NewQueue(store *Store, hub ports.EventHub, workspacePath, sessionID string, maxTextLen int) *Queue {
	return &Queue{
		store:         store,
		hub:           hub,
		workspacePath: workspacePath,
		sessionID:     sessionID,
		maxTextLen:    maxTextLen,
	}
}

// Load restores the queue from disk. Orphaned processing messages are reset
// to pending and surfaced as an integrity repair.
func (q *Queue) Load() error {
	q.mu.Lock()
	msgs, reset, err := q.store.Load()
	if err != nil {
		q.mu.Unlock()
		return err
	}
	q.msgs = msgs
	var saveErr error
	if reset > 0 {
		saveErr = q.store.Save(q.msgs)
	}
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if saveErr != nil {
		return saveErr
	}
	if reset > 0 {
		q.publish(events.NewQueueIntegrityRestoredEvent(q.sessionID, q.workspacePath, nil, "orphaned processing messages reset on load"))
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return nil
}

// Enqueue appends a new pending message and persists the queue.
func (q *Queue) Enqueue(text string) (*Message, error) {
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if q.maxTextLen > 0 && len(text) > q.maxTextLen {
		return nil, domain.ErrMessageTooLong
	}

	q.mu.Lock()
	now := time.Now().UTC()
	id := newMessageID(now, 0)
	for seq := 1; q.findLocked(id) != nil; seq++ {
		id = newMessageID(now, seq)
	}

	msg := &Message{
		ID:        id,
		Text:      text,
		Status:    StatusPending,
		CreatedAt: now,
	}
	q.msgs = append(q.msgs, msg)
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return nil, err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return copyMessage(msg), nil
}

// Update edits the text of a pending message. Messages in any other state
// are immutable.
func (q *Queue) Update(id, text string) (*Message, error) {
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	if q.maxTextLen > 0 && len(text) > q.maxTextLen {
		return nil, domain.ErrMessageTooLong
	}

	q.mu.Lock()
	msg := q.findLocked(id)
	if msg == nil {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if msg.Status != StatusPending {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotEditable
	}
	msg.Text = text
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return nil, err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return copyMessage(msg), nil
}

// Remove deletes a message. A processing message cannot be removed.
func (q *Queue) Remove(id string) (*Message, error) {
	q.mu.Lock()
	idx := -1
	for i, m := range q.msgs {
		if m.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if q.msgs[idx].Status == StatusProcessing {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotRemovable
	}
	removed := q.msgs[idx]
	q.msgs = append(q.msgs[:idx], q.msgs[idx+1:]...)
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return nil, err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return copyMessage(removed), nil
}

// Clear removes all messages. It fails while a message is processing.
func (q *Queue) Clear() error {
	q.mu.Lock()
	for _, m := range q.msgs {
		if m.Status == StatusProcessing {
			q.mu.Unlock()
			return domain.ErrQueueProcessing
		}
	}
	q.msgs = nil
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return nil
}

// ListAll returns copies of all messages in insertion order.
func (q *Queue) ListAll() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.msgs))
	for i, m := range q.msgs {
		out[i] = copyMessage(m)
	}
	return out
}

// Get returns a copy of one message.
func (q *Queue) Get(id string) (*Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if msg := q.findLocked(id); msg != nil {
		return copyMessage(msg), nil
	}
	return nil, domain.ErrMessageNotFound
}

// NextPending returns a copy of the oldest pending message, or nil.
func (q *Queue) NextPending() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.msgs {
		if m.Status == StatusPending {
			return copyMessage(m)
		}
	}
	return nil
}

// PendingCount returns the number of pending messages.
func (q *Queue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, m := range q.msgs {
		if m.Status == StatusPending {
			count++
		}
	}
	return count
}

// Len returns the total number of messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// CurrentlyProcessing returns a copy of the in-flight message, or nil.
func (q *Queue) CurrentlyProcessing() *Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.msgs {
		if m.Status == StatusProcessing {
			return copyMessage(m)
		}
	}
	return nil
}

// MarkProcessing transitions a pending message to processing. It first runs
// the integrity check: if any other message is already processing, the
// transition is refused.
func (q *Queue) MarkProcessing(id string) (*Message, error) {
	repaired := q.VerifyIntegrity()
	_ = repaired // already surfaced as an event inside VerifyIntegrity

	q.mu.Lock()
	msg := q.findLocked(id)
	if msg == nil {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	for _, m := range q.msgs {
		if m.Status == StatusProcessing {
			q.mu.Unlock()
			return nil, domain.ErrQueueProcessing
		}
	}
	if msg.Status != StatusPending {
		q.mu.Unlock()
		return nil, domain.NewQueueError("mark_processing", id, domain.ErrMessageNotEditable)
	}
	now := time.Now().UTC()
	msg.Status = StatusProcessing
	msg.ProcessingStartedAt = &now
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return nil, err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return copyMessage(msg), nil
}

// MarkCompleted finalizes the in-flight message with the given terminal
// status, recording elapsed processing time.
func (q *Queue) MarkCompleted(id string, status Status, errMsg string, errCtx *ErrorContext) (*Message, error) {
	if status != StatusCompleted && status != StatusError {
		return nil, domain.NewQueueError("mark_completed", id, domain.ErrMessageNotEditable)
	}

	q.mu.Lock()
	msg := q.findLocked(id)
	if msg == nil {
		q.mu.Unlock()
		return nil, domain.ErrMessageNotFound
	}
	if msg.Status != StatusProcessing {
		// ResetInFlight demoted it back to pending; a late finalize must
		// not clobber the requeued message.
		q.mu.Unlock()
		return nil, domain.NewQueueError("mark_completed", id, domain.ErrMessageNotEditable)
	}
	now := time.Now().UTC()
	msg.Status = status
	msg.CompletedAt = &now
	msg.Error = errMsg
	msg.ErrorContext = errCtx
	if msg.ProcessingStartedAt != nil {
		msg.ProcessingTimeMS = now.Sub(*msg.ProcessingStartedAt).Milliseconds()
		if msg.ProcessingTimeMS <= 0 {
			msg.ProcessingTimeMS = 1
		}
	}
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	if err != nil {
		return nil, err
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return copyMessage(msg), nil
}

// ResetInFlight is the recovery transition processing→pending, taken when
// the process behind the message is gone (exit, manual stop). It returns
// copies of the messages that were reset.
func (q *Queue) ResetInFlight() []*Message {
	q.mu.Lock()
	var reset []*Message
	for _, m := range q.msgs {
		if m.Status == StatusProcessing {
			m.Status = StatusPending
			m.ProcessingStartedAt = nil
			reset = append(reset, copyMessage(m))
		}
	}
	var err error
	var snapshot []events.MessageSnapshot
	var pending int
	if len(reset) > 0 {
		err = q.store.Save(q.msgs)
		snapshot, pending = q.snapshotLocked()
	}
	q.mu.Unlock()

	if len(reset) == 0 {
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("failed to persist in-flight reset")
	}
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return reset
}

// VerifyIntegrity enforces the single-flight invariant defensively. If more
// than one message is processing (which no reachable code path should
// produce), all but the most recently started are demoted to pending and
// the repair is surfaced as an event, never an error.
func (q *Queue) VerifyIntegrity() []string {
	q.mu.Lock()
	var processing []*Message
	for _, m := range q.msgs {
		if m.Status == StatusProcessing {
			processing = append(processing, m)
		}
	}
	if len(processing) <= 1 {
		q.mu.Unlock()
		return nil
	}

	// Keep the most recently started; demote the rest.
	keep := processing[0]
	for _, m := range processing[1:] {
		if m.ProcessingStartedAt != nil &&
			(keep.ProcessingStartedAt == nil || m.ProcessingStartedAt.After(*keep.ProcessingStartedAt)) {
			keep = m
		}
	}
	var repaired []string
	for _, m := range processing {
		if m != keep {
			m.Status = StatusPending
			m.ProcessingStartedAt = nil
			repaired = append(repaired, m.ID)
		}
	}
	err := q.store.Save(q.msgs)
	snapshot, pending := q.snapshotLocked()
	q.mu.Unlock()

	log.Warn().
		Strs("repaired", repaired).
		Msg("queue integrity violation repaired: multiple processing messages")
	if err != nil {
		log.Error().Err(err).Msg("failed to persist integrity repair")
	}
	q.publish(events.NewQueueIntegrityRestoredEvent(q.sessionID, q.workspacePath, repaired, "multiple processing messages demoted"))
	q.publish(events.NewQueueUpdatedEvent(q.sessionID, q.workspacePath, snapshot, pending))
	return repaired
}

func (q *Queue) findLocked(id string) *Message {
	for _, m := range q.msgs {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (q *Queue) snapshotLocked() ([]events.MessageSnapshot, int) {
	snaps := make([]events.MessageSnapshot, len(q.msgs))
	pending := 0
	for i, m := range q.msgs {
		snaps[i] = m.Snapshot()
		if m.Status == StatusPending {
			pending++
		}
	}
	return snaps, pending
}

func (q *Queue) publish(event *events.BaseEvent) {
	if q.hub == nil {
		return
	}
	q.hub.Publish(event)
}

func copyMessage(m *Message) *Message {
	cp := *m
	if m.ProcessingStartedAt != nil {
		t := *m.ProcessingStartedAt
		cp.ProcessingStartedAt = &t
	}
	if m.CompletedAt != nil {
		t := *m.CompletedAt
		cp.CompletedAt = &t
	}
	if m.ErrorContext != nil {
		ctx := *m.ErrorContext
		cp.ErrorContext = &ctx
	}
	return &cp
}
