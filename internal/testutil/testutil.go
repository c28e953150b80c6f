// Package testutil holds the hub and subscriber fakes shared across tests.
package testutil

import (
	"sync"

	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
)

// MockSubscriber records every event it receives and can be told to fail
// sends, which is how hub eviction paths are exercised.
type MockSubscriber struct {
	id string

	mu      sync.Mutex
	events  []events.Event
	sendErr error
	closed  bool
	done    chan struct{}
}

// NewMockSubscriber creates a recording subscriber with the given ID.
func NewMockSubscriber(id string) *MockSubscriber {
	return &MockSubscriber{id: id, done: make(chan struct{})}
}

func (m *MockSubscriber) ID() string {
	return m.id
}

// Send records the event, or fails with the configured error without
// recording anything.
func (m *MockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *MockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MockSubscriber) Done() <-chan struct{} {
	return m.done
}

// SetSendError makes every subsequent Send fail with err.
func (m *MockSubscriber) SetSendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
}

// Events returns a copy of the recorded events.
func (m *MockSubscriber) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventCount returns how many events were recorded.
func (m *MockSubscriber) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// IsClosed reports whether Close was called.
func (m *MockSubscriber) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

var _ ports.Subscriber = (*MockSubscriber)(nil)

// MockEventHub records published events instead of dispatching them, so a
// test can assert on what a component emitted without running a real hub.
type MockEventHub struct {
	mu          sync.Mutex
	published   []events.Event
	subscribers map[string]ports.Subscriber
	running     bool
}

// NewMockEventHub creates an empty recording hub.
func NewMockEventHub() *MockEventHub {
	return &MockEventHub{subscribers: make(map[string]ports.Subscriber)}
}

func (m *MockEventHub) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = true
	return nil
}

func (m *MockEventHub) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	return nil
}

// Publish records the event; nothing is delivered.
func (m *MockEventHub) Publish(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, e)
}

func (m *MockEventHub) Subscribe(sub ports.Subscriber) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers[sub.ID()] = sub
}

func (m *MockEventHub) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscribers, id)
}

func (m *MockEventHub) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subscribers)
}

// IsRunning reports whether Start was called without a later Stop.
func (m *MockEventHub) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// PublishedEvents returns a copy of everything published so far.
func (m *MockEventHub) PublishedEvents() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.Event, len(m.published))
	copy(out, m.published)
	return out
}

var _ ports.EventHub = (*MockEventHub)(nil)
