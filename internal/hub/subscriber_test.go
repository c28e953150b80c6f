package hub

import (
	"errors"
	"testing"

	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
)

func TestLogSubscriberInvokesCallback(t *testing.T) {
	var got []events.Event
	sub := NewLogSubscriber("log-1", func(e events.Event) { got = append(got, e) })

	if sub.ID() != "log-1" {
		t.Errorf("ID = %q, want log-1", sub.ID())
	}
	if err := sub.Send(events.NewEventWithContext(events.EventTypeQueueUpdated, nil, "ws-1", "")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if len(got) != 1 || got[0].Type() != events.EventTypeQueueUpdated {
		t.Errorf("callback saw %v, want one queue_updated event", got)
	}
}

func TestLogSubscriberNilCallback(t *testing.T) {
	sub := NewLogSubscriber("log-1", nil)
	if err := sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); err != nil {
		t.Fatalf("Send with nil callback failed: %v", err)
	}
}

func TestLogSubscriberClose(t *testing.T) {
	sub := NewLogSubscriber("log-1", func(events.Event) {})

	if err := sub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}

	select {
	case <-sub.Done():
	default:
		t.Error("Done not closed after Close")
	}

	if err := sub.Send(events.NewEvent(events.EventTypeHeartbeat, nil)); !errors.Is(err, domain.ErrSubscriberClosed) {
		t.Errorf("Send after close: got %v, want ErrSubscriberClosed", err)
	}
}
