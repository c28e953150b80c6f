package hub

import (
	"github.com/cpilot-dev/cpilot/internal/domain"
	"github.com/cpilot-dev/cpilot/internal/domain/events"
	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// LogSubscriber feeds every event to a logging callback. The app registers
// one so broadcast traffic shows up in trace logs.
type LogSubscriber struct {
	id    string
	logFn func(events.Event)

	mu     cpsync.Mutex
	closed bool
	done   chan struct{}
}

// NewLogSubscriber creates a subscriber that invokes logFn for each event.
// A nil logFn is allowed; events are then discarded.
func NewLogSubscriber(id string, logFn func(events.Event)) *LogSubscriber {
	return &LogSubscriber{
		id:    id,
		logFn: logFn,
		done:  make(chan struct{}),
	}
}

func (s *LogSubscriber) ID() string {
	return s.id
}

func (s *LogSubscriber) Send(event events.Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return domain.ErrSubscriberClosed
	}
	if s.logFn != nil {
		s.logFn(event)
	}
	return nil
}

func (s *LogSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	return nil
}

func (s *LogSubscriber) Done() <-chan struct{} {
	return s.done
}
