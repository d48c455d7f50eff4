//go:build deadlock

// Package syncutil provides the mutexes used by the catalog. Build with
// -tags=deadlock to swap in a lock-order and timeout detector.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockEnabled reports whether the detector build is active.
const DeadlockEnabled = true

func init() {
	// A full rescan holds the collection lock while the store batch commits.
	deadlock.Opts.DeadlockTimeout = 60 * time.Second
}

// Mutex is a mutual exclusion lock.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a reader/writer mutual exclusion lock.
type RWMutex struct {
	deadlock.RWMutex
}
