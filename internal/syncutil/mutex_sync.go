//go:build !deadlock

// Package syncutil provides the mutexes used by the catalog. Build with
// -tags=deadlock to swap in a lock-order and timeout detector.
package syncutil

import "sync"

// DeadlockEnabled reports whether the detector build is active.
const DeadlockEnabled = false

// Mutex is a mutual exclusion lock.
type Mutex struct {
	sync.Mutex
}

// RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	sync.RWMutex
}
