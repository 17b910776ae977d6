package wifista

import "context"

// Semaphore is a counting semaphore.  The count starts at initial and never
// exceeds max.
type Semaphore struct {
	units chan struct{}
}

// NewCountingSemaphore returns a semaphore holding initial of at most max
// units
func NewCountingSemaphore(max, initial int) *Semaphore {
	if max < 1 {
		max = 1
	}
	if initial > max {
		initial = max
	}
	s := &Semaphore{units: make(chan struct{}, max)}
	for i := 0; i < initial; i++ {
		s.units <- struct{}{}
	}
	return s
}

// Give releases one unit.  Give never blocks; it returns false if the
// semaphore is already at its max count.
func (s *Semaphore) Give() bool {
	select {
	case s.units <- struct{}{}:
		return true
	default:
		return false
	}
}

// Take blocks until a unit is available or ctx is done
func (s *Semaphore) Take(ctx context.Context) error {
	select {
	case <-s.units:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Count returns the units currently available
func (s *Semaphore) Count() int {
	return len(s.units)
}
