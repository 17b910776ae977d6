package wifista

import "errors"

// MaxShutdownHandlers is the number of handlers a Shutdown registry holds
const MaxShutdownHandlers = 5

var (
	ErrNoMem        = errors.New("no free shutdown handler slots")
	ErrInvalidState = errors.New("invalid state")
)

// ShutdownHandle is returned by Register and used to Unregister
type ShutdownHandle struct {
	fn func()
}

// Shutdown holds the handlers to run before the firmware restarts
type Shutdown struct {
	mu       mutex
	handlers []*ShutdownHandle
}

// Register fn to run on shutdown
func (s *Shutdown) Register(fn func()) (*ShutdownHandle, error) {
	if fn == nil {
		return nil, errors.New("shutdown handler is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.handlers) >= MaxShutdownHandlers {
		return nil, ErrNoMem
	}
	h := &ShutdownHandle{fn: fn}
	s.handlers = append(s.handlers, h)
	return h, nil
}

// Unregister a handler made by Register
func (s *Shutdown) Unregister(h *ShutdownHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.handlers {
		if r == h {
			s.handlers = append(s.handlers[:i], s.handlers[i+1:]...)
			return nil
		}
	}
	return ErrInvalidState
}

// Run the handlers, most recently registered first.  Handlers stay
// registered.
func (s *Shutdown) Run() {
	s.mu.Lock()
	handlers := append([]*ShutdownHandle(nil), s.handlers...)
	s.mu.Unlock()
	for i := len(handlers) - 1; i >= 0; i-- {
		handlers[i].fn()
	}
}
