package wifista

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestShutdownReverseOrder(t *testing.T) {
	c := qt.New(t)
	var s Shutdown
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		_, err := s.Register(func() { order = append(order, i) })
		c.Assert(err, qt.IsNil)
	}
	s.Run()
	c.Assert(order, qt.DeepEquals, []int{2, 1, 0})
}

func TestShutdownFull(t *testing.T) {
	c := qt.New(t)
	var s Shutdown
	var handles []*ShutdownHandle
	for i := 0; i < MaxShutdownHandlers; i++ {
		h, err := s.Register(func() {})
		c.Assert(err, qt.IsNil)
		handles = append(handles, h)
	}
	_, err := s.Register(func() {})
	c.Assert(err, qt.ErrorIs, ErrNoMem)

	c.Assert(s.Unregister(handles[0]), qt.IsNil)
	c.Assert(s.Unregister(handles[0]), qt.ErrorIs, ErrInvalidState)
	_, err = s.Register(func() {})
	c.Assert(err, qt.IsNil)
}

func TestShutdownNil(t *testing.T) {
	c := qt.New(t)
	var s Shutdown
	_, err := s.Register(nil)
	c.Assert(err, qt.IsNotNil)
}
