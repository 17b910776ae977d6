//go:build tinygo

package xsync

import (
	"sync"
	"time"
)

type Mutex struct {
	sync.Mutex
}

type RWMutex struct {
	sync.RWMutex
}

// SetDeadlockTimeout does nothing; boards use plain sync locks
func SetDeadlockTimeout(time.Duration) {}
