// Package hub fans events out from the session components to every
// registered subscriber (websocket clients, internal loggers).
package hub

import (
	"github.com/rs/zerolog/log"

	"github.com/cpilot-dev/cpilot/internal/domain/events"
	"github.com/cpilot-dev/cpilot/internal/domain/ports"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// broadcastBuffer bounds how far publishers may run ahead of delivery.
const broadcastBuffer = 256

// Hub is the process-wide event dispatcher. Registration is synchronous;
// delivery runs on a single dispatch goroutine so every subscriber sees
// events in publish order.
type Hub struct {
	mu          cpsync.RWMutex
	subscribers map[string]ports.Subscriber
	running     bool

	broadcast chan events.Event
	done      chan struct{}
}

// New creates a stopped hub.
func New() *Hub {
	return &Hub{
		subscribers: make(map[string]ports.Subscriber),
		broadcast:   make(chan events.Event, broadcastBuffer),
		done:        make(chan struct{}),
	}
}

// Start launches the dispatch loop. Starting a running hub is a no-op.
func (h *Hub) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return nil
	}
	h.running = true
	go h.dispatch()
	log.Debug().Msg("event hub started")
	return nil
}

// Stop ends the dispatch loop and closes every subscriber.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false
	subs := h.subscribers
	h.subscribers = make(map[string]ports.Subscriber)
	h.mu.Unlock()

	close(h.done)
	for _, sub := range subs {
		_ = sub.Close()
	}
	log.Debug().Msg("event hub stopped")
	return nil
}

// Publish queues an event for delivery. It never blocks; when the dispatch
// loop falls behind the event is dropped with a warning.
func (h *Hub) Publish(event events.Event) {
	select {
	case h.broadcast <- event:
	default:
		log.Warn().
			Str("event_type", string(event.Type())).
			Msg("broadcast buffer full, event dropped")
	}
}

// Subscribe registers sub; it receives events from the next Publish onward.
// A subscriber with a duplicate ID replaces the previous one.
func (h *Hub) Subscribe(sub ports.Subscriber) {
	h.mu.Lock()
	h.subscribers[sub.ID()] = sub
	h.mu.Unlock()
	log.Debug().Str("subscriber_id", sub.ID()).Msg("subscriber registered")
}

// Unsubscribe closes and removes the subscriber with the given ID.
// Unknown IDs are ignored.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()
	if ok {
		_ = sub.Close()
		log.Debug().Str("subscriber_id", id).Msg("subscriber unregistered")
	}
}

// SubscriberCount returns the number of registered subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// IsRunning reports whether the dispatch loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

func (h *Hub) dispatch() {
	for {
		select {
		case <-h.done:
			return
		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// deliver sends to every subscriber, then drops the ones whose Send failed.
func (h *Hub) deliver(event events.Event) {
	h.mu.RLock()
	var failed []string
	for id, sub := range h.subscribers {
		if err := sub.Send(event); err != nil {
			log.Warn().
				Str("subscriber_id", id).
				Err(err).
				Msg("subscriber send failed, dropping it")
			failed = append(failed, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range failed {
		h.Unsubscribe(id)
	}
}
