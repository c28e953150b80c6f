//go:build !deadlock

// Package sync exposes the mutex types used across the codebase. The
// default build aliases the standard library; building with -tags deadlock
// swaps in go-deadlock instrumented mutexes.
package sync

import "sync"

type Mutex = sync.Mutex

type RWMutex = sync.RWMutex
