package websocket

import (
	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
)

// ClientSubscriber adapts a Client to the hub's subscriber contract: events
// are serialized once and queued on the client's send channel.
type ClientSubscriber struct {
	client *Client
}

// NewClientSubscriber wraps an upgraded client.
func NewClientSubscriber(client *Client) *ClientSubscriber {
	return &ClientSubscriber{client: client}
}

func (s *ClientSubscriber) ID() string {
	return s.client.ID()
}

// Send serializes the event and queues it for the write pump. A closed
// client reports domain.ErrSubscriberClosed so the hub unregisters it.
func (s *ClientSubscriber) Send(event events.Event) error {
	if s.client.isClosed() {
		return domain.ErrSubscriberClosed
	}
	data, err := event.ToJSON()
	if err != nil {
		return err
	}
	s.client.Send(data)
	return nil
}

func (s *ClientSubscriber) Close() error {
	s.client.Close()
	return nil
}

func (s *ClientSubscriber) Done() <-chan struct{} {
	return s.client.done
}
