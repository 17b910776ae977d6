//go:build !tinygo

// Package xsync holds the locks used across wifista: deadlock-reporting
// locks on host builds, plain sync locks on boards.
package xsync

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

type Mutex struct {
	deadlock.Mutex
}

type RWMutex struct {
	deadlock.RWMutex
}

// SetDeadlockTimeout sets how long a lock may be waited on before the
// waiters and holder are dumped.  Zero turns detection off.
func SetDeadlockTimeout(d time.Duration) {
	deadlock.Opts.Disable = d <= 0
	deadlock.Opts.DeadlockTimeout = d
}
