package wifista

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// EventBase groups related event ids, like WIFI_EVENT or IP_EVENT
type EventBase string

const (
	WifiEvent EventBase = "WIFI_EVENT"
	IPEvent   EventBase = "IP_EVENT"
)

// EventID identifies an event within its base
type EventID int32

// AnyID registers a handler for every event id on a base
const AnyID EventID = -1

const (
	WifiEventStaStart EventID = iota + 2
	WifiEventStaStop
	WifiEventStaConnected
	WifiEventStaDisconnected
)

const (
	IPEventStaGotIP EventID = iota
	IPEventStaLostIP
	_
	_
	_
	_
	IPEventGotIP6
)

// Event is posted to an EventLoop and handed to each matching handler
type Event struct {
	Base EventBase
	ID   EventID
	Data any
}

func (e *Event) String() string {
	return fmt.Sprintf("%s:%d", e.Base, e.ID)
}

// GotIPEvent is the payload of IPEventStaGotIP
type GotIPEvent struct {
	Netif   *Netif
	IPInfo  IPInfo
	Changed bool
}

// GotIP6Event is the payload of IPEventGotIP6
type GotIP6Event struct {
	Netif *Netif
	IP    net.IP
	Index int
}

// ConnectedEvent is the payload of WifiEventStaConnected
type ConnectedEvent struct {
	SSID     string
	Channel  uint8
	AuthMode AuthMode
}

// DisconnectedEvent is the payload of WifiEventStaDisconnected
type DisconnectedEvent struct {
	SSID   string
	Reason Reason
	RSSI   int8
}

var (
	ErrHandlerNotFound = errors.New("event handler not registered")
	ErrLoopStopped     = errors.New("event loop stopped")
)

// HandlerFunc is called on the loop goroutine for each matching event
type HandlerFunc func(*Event)

// Handler is a registration returned by Register, used to Unregister
type Handler struct {
	base EventBase
	id   EventID
	fn   HandlerFunc
}

type eventKey struct {
	base EventBase
	id   EventID
}

// EventLoop dispatches posted events to registered handlers.  Events are
// queued and handled one at a time on the loop's own goroutine, in the order
// posted, whether by Post or PostAsync.  Handlers for an event are called in
// registration order.
type EventLoop struct {
	name       string
	handlersMu rwMutex
	handlers   map[eventKey][]*Handler
	depth      int
	queueMu    mutex
	queue      []*Event
	// space is closed, and replaced, each time an event leaves the queue
	space   chan struct{}
	wake    chan struct{}
	stateMu mutex
	running bool
	done    chan struct{}
	stopped chan struct{}
}

var defaultLoopDepth = 32

// NewEventLoop returns a new event loop.  Depth is the number of events that
// can be queued before Post blocks.
func NewEventLoop(name string, depth int) *EventLoop {
	if depth <= 0 {
		depth = defaultLoopDepth
	}
	return &EventLoop{
		name:     name,
		handlers: make(map[eventKey][]*Handler),
		depth:    depth,
		space:    make(chan struct{}),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

func (l *EventLoop) Name() string {
	return l.name
}

// Start the dispatch goroutine.  Starting a running loop does nothing.
func (l *EventLoop) Start() {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.done = make(chan struct{})
	l.stopped = make(chan struct{})
	go l.run(l.done, l.stopped)
}

// Stop the dispatch goroutine and wait for it to exit.  Events still queued
// are dropped.  Stop must not be called from a handler.
func (l *EventLoop) Stop() {
	l.stateMu.Lock()
	if !l.running {
		l.stateMu.Unlock()
		return
	}
	l.running = false
	close(l.done)
	stopped := l.stopped
	l.stateMu.Unlock()
	<-stopped
	l.queueMu.Lock()
	l.queue = nil
	l.queueMu.Unlock()
}

func (l *EventLoop) run(done, stopped chan struct{}) {
	defer close(stopped)
	for {
		select {
		case <-l.wake:
		case <-done:
			return
		}
		for ev := l.next(); ev != nil; ev = l.next() {
			l.dispatch(ev)
			select {
			case <-done:
				return
			default:
			}
		}
	}
}

// next takes the oldest queued event, or nil
func (l *EventLoop) next() *Event {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	ev := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	close(l.space)
	l.space = make(chan struct{})
	return ev
}

// queued returns the number of events waiting
func (l *EventLoop) queued() int {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	return len(l.queue)
}

// enqueue appends ev.  Unless force, a full queue returns the channel closed
// when room frees up, and ev is not queued.
func (l *EventLoop) enqueue(ev *Event, force bool) chan struct{} {
	l.queueMu.Lock()
	if !force && len(l.queue) >= l.depth {
		space := l.space
		l.queueMu.Unlock()
		return space
	}
	l.queue = append(l.queue, ev)
	l.queueMu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

func (l *EventLoop) state() (bool, chan struct{}) {
	l.stateMu.Lock()
	defer l.stateMu.Unlock()
	return l.running, l.done
}

// Post queues an event.  Post blocks while the queue is full, until ctx is
// done.
func (l *EventLoop) Post(ctx context.Context, base EventBase, id EventID, data any) error {
	running, done := l.state()
	if !running {
		return ErrLoopStopped
	}
	ev := &Event{Base: base, ID: id, Data: data}
	for {
		space := l.enqueue(ev, false)
		if space == nil {
			return nil
		}
		select {
		case <-space:
		case <-done:
			return ErrLoopStopped
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PostAsync queues an event without blocking, past the queue depth if need
// be, for use from inside handlers where a full queue would otherwise
// deadlock the loop.  The event keeps its place in posting order.  Events
// posted to a stopped loop are dropped.
func (l *EventLoop) PostAsync(base EventBase, id EventID, data any) {
	if running, _ := l.state(); !running {
		return
	}
	l.enqueue(&Event{Base: base, ID: id, Data: data}, true)
}

// Register a handler for an event.  Use AnyID to receive every event on
// base.  The same function may be registered more than once; each
// registration is called.
func (l *EventLoop) Register(base EventBase, id EventID, fn HandlerFunc) (*Handler, error) {
	if fn == nil {
		return nil, errors.New("handler is nil")
	}
	h := &Handler{base: base, id: id, fn: fn}
	key := eventKey{base, id}
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers[key] = append(l.handlers[key], h)
	return h, nil
}

// Unregister removes a registration made by Register
func (l *EventLoop) Unregister(h *Handler) error {
	if h == nil {
		return ErrHandlerNotFound
	}
	key := eventKey{h.base, h.id}
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	hs := l.handlers[key]
	for i, r := range hs {
		if r == h {
			// copy so a dispatch in progress keeps its snapshot intact
			next := make([]*Handler, 0, len(hs)-1)
			next = append(next, hs[:i]...)
			next = append(next, hs[i+1:]...)
			if len(next) == 0 {
				delete(l.handlers, key)
			} else {
				l.handlers[key] = next
			}
			return nil
		}
	}
	return ErrHandlerNotFound
}

// dispatch calls the handlers for ev outside the lock, so handlers are free
// to register and unregister
func (l *EventLoop) dispatch(ev *Event) {
	l.handlersMu.RLock()
	exact := l.handlers[eventKey{ev.Base, ev.ID}]
	wild := l.handlers[eventKey{ev.Base, AnyID}]
	l.handlersMu.RUnlock()
	for _, h := range exact {
		h.fn(ev)
	}
	for _, h := range wild {
		h.fn(ev)
	}
}
