package wifista

import (
	"time"

	"github.com/merliot/wifista/internal/xsync"
)

type mutex struct {
	xsync.Mutex
}

type rwMutex struct {
	xsync.RWMutex
}

// SetDeadlockTimeout sets how long any wifista lock may be waited on before
// it is reported as a deadlock.  Zero turns detection off.  Boards ignore it.
func SetDeadlockTimeout(d time.Duration) {
	xsync.SetDeadlockTimeout(d)
}
