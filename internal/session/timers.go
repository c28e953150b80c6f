package session

import (
	"time"

	cpsync "github.com/cpilot-dev/cpilot/internal/sync"
)

// timerOwner consolidates a session's timers (health restarts, periodic
// evaluation, delayed restart) behind one cancellation point. Scheduling a
// name that is already pending replaces it.
type timerOwner struct {
	mu      cpsync.Mutex
	timers  map[string]*time.Timer
	tickers map[string]chan struct{}
}

func newTimerOwner() *timerOwner {
	return &timerOwner{
		timers:  make(map[string]*time.Timer),
		tickers: make(map[string]chan struct{}),
	}
}

// After schedules fn once after d, replacing any pending timer of the same
// name.
func (o *timerOwner) After(name string, d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelLocked(name)
	o.timers[name] = time.AfterFunc(d, func() {
		o.mu.Lock()
		delete(o.timers, name)
		o.mu.Unlock()
		fn()
	})
}

// Every runs fn on a ticker until the name is cancelled.
func (o *timerOwner) Every(name string, d time.Duration, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelLocked(name)
	done := make(chan struct{})
	o.tickers[name] = done
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
}

// Cancel stops one named timer or ticker.
func (o *timerOwner) Cancel(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancelLocked(name)
}

// CancelAll stops everything. The owner stays usable for the next start.
func (o *timerOwner) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	for name := range o.timers {
		o.cancelLocked(name)
	}
	for name := range o.tickers {
		o.cancelLocked(name)
	}
}

func (o *timerOwner) cancelLocked(name string) {
	if t, ok := o.timers[name]; ok {
		t.Stop()
		delete(o.timers, name)
	}
	if done, ok := o.tickers[name]; ok {
		close(done)
		delete(o.tickers, name)
	}
}
