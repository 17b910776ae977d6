//go:build !tinygo

package xsync

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sasha-s/go-deadlock"
)

func TestSetDeadlockTimeout(t *testing.T) {
	c := qt.New(t)
	was := deadlock.Opts.DeadlockTimeout
	c.Cleanup(func() { SetDeadlockTimeout(was) })

	SetDeadlockTimeout(0)
	c.Assert(deadlock.Opts.Disable, qt.IsTrue)
	SetDeadlockTimeout(time.Minute)
	c.Assert(deadlock.Opts.Disable, qt.IsFalse)
	c.Assert(deadlock.Opts.DeadlockTimeout, qt.Equals, time.Minute)
}
