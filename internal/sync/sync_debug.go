//go:build deadlock

// Deadlock-instrumented mutexes, enabled with -tags deadlock. Set
// CPILOT_NO_DEADLOCK_DETECT to silence detection in an instrumented build.
package sync

import (
	"os"
	"time"

	"github.com/sasha-s/go-deadlock"
)

type Mutex = deadlock.Mutex

type RWMutex = deadlock.RWMutex

func init() {
	deadlock.Opts.DeadlockTimeout = 30 * time.Second
	deadlock.Opts.PrintAllCurrentGoroutines = true
	if os.Getenv("CPILOT_NO_DEADLOCK_DETECT") != "" {
		deadlock.Opts.Disable = true
	}
}
