// Package ports declares the interfaces between the session core and its
// consumers.
package ports

import "github.com/cpilot-dev/cpilot/internal/domain/events"

// Subscriber receives events from the hub. Send returns an error when the
// subscriber can no longer accept events; the hub drops it in response.
type Subscriber interface {
	ID() string
	Send(event events.Event) error
	Close() error

	// Done is closed once the subscriber is finished.
	Done() <-chan struct{}
}

// EventHub distributes events from the session components to subscribers.
type EventHub interface {
	Start() error
	Stop() error
	Publish(event events.Event)
	Subscribe(sub Subscriber)
	Unsubscribe(id string)
	SubscriberCount() int
}
