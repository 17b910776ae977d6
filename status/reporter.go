package status

import (
	"context"
	"sync"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/internal/xsync"
)

const (
	reporterTag   = "status"
	reporterDepth = 8
	publishWait   = 5 * time.Second
)

// Reporter turns station events into Reports and hands them to sinks.
// Sinks are called from one worker goroutine, never from the event loop; when
// the worker falls behind, new reports are dropped.
type Reporter struct {
	loop   *wifista.EventLoop
	netif  func() *wifista.Netif
	sinks  []Sink
	log    wifista.Logger
	mu     xsync.Mutex
	regs   []*wifista.Handler
	queue  chan Report
	done   chan struct{}
	last   Report
	dirty  bool
	worker sync.WaitGroup
}

// NewReporter reports on the netif returned by netif, usually
// (*wifista.Manager).Netif.
func NewReporter(loop *wifista.EventLoop, netif func() *wifista.Netif,
	log wifista.Logger, sinks ...Sink) *Reporter {
	if log == nil {
		log = wifista.NopLogger
	}
	return &Reporter{loop: loop, netif: netif, sinks: sinks, log: log}
}

// Start registers the event handlers and starts the worker
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.queue != nil {
		return wifista.ErrInvalidState
	}
	regs := []struct {
		base wifista.EventBase
		id   wifista.EventID
	}{
		{wifista.WifiEvent, wifista.WifiEventStaConnected},
		{wifista.WifiEvent, wifista.WifiEventStaDisconnected},
		{wifista.IPEvent, wifista.IPEventStaGotIP},
		{wifista.IPEvent, wifista.IPEventGotIP6},
	}
	for _, reg := range regs {
		h, err := r.loop.Register(reg.base, reg.id, r.onEvent)
		if err != nil {
			r.unregister()
			return err
		}
		r.regs = append(r.regs, h)
	}
	r.queue = make(chan Report, reporterDepth)
	r.done = make(chan struct{})
	r.worker.Add(1)
	go r.run(r.queue, r.done)
	return nil
}

// Stop unregisters the handlers and waits for the worker to finish the
// report in hand
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.queue == nil {
		r.mu.Unlock()
		return
	}
	r.unregister()
	close(r.done)
	r.queue = nil
	r.mu.Unlock()
	r.worker.Wait()
}

func (r *Reporter) unregister() {
	for _, h := range r.regs {
		r.loop.Unregister(h)
	}
	r.regs = nil
}

// Last returns the most recent report
func (r *Reporter) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.dirty
}

func eventName(ev *wifista.Event) string {
	switch {
	case ev.Base == wifista.WifiEvent && ev.ID == wifista.WifiEventStaConnected:
		return "connected"
	case ev.Base == wifista.WifiEvent && ev.ID == wifista.WifiEventStaDisconnected:
		return "disconnected"
	case ev.Base == wifista.IPEvent && ev.ID == wifista.IPEventStaGotIP:
		return "got_ip"
	case ev.Base == wifista.IPEvent && ev.ID == wifista.IPEventGotIP6:
		return "got_ip6"
	}
	return ev.String()
}

// report builds the report for ev.  Handlers run in registration order, so
// the netif may not have caught up with ev yet; the payload wins.
func (r *Reporter) report(ev *wifista.Event) (Report, bool) {
	ours := r.netif()
	switch data := ev.Data.(type) {
	case *wifista.GotIPEvent:
		if data.Netif != ours {
			return Report{}, false
		}
		rep := NewReport(ours, eventName(ev))
		rep.setIPInfo(data.IPInfo)
		return rep, true
	case *wifista.GotIP6Event:
		if data.Netif != ours {
			return Report{}, false
		}
		rep := NewReport(ours, eventName(ev))
		rep.addIP6(data.IP)
		return rep, true
	}
	if ours == nil {
		return Report{}, false
	}
	rep := NewReport(ours, eventName(ev))
	switch ev.ID {
	case wifista.WifiEventStaConnected:
		rep.Up = true
	case wifista.WifiEventStaDisconnected:
		rep.Up = false
		rep.clearAddrs()
	}
	return rep, true
}

func (r *Reporter) onEvent(ev *wifista.Event) {
	rep, ok := r.report(ev)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last, r.dirty = rep, true
	if r.queue == nil {
		return
	}
	select {
	case r.queue <- rep:
	default:
		r.log.Logf(wifista.LevelWarn, reporterTag, "Queue full, dropping %s report", rep.Event)
	}
}

func (r *Reporter) run(queue chan Report, done chan struct{}) {
	defer r.worker.Done()
	for {
		select {
		case rep := <-queue:
			r.publish(rep)
		case <-done:
			return
		}
	}
}

func (r *Reporter) publish(rep Report) {
	for _, sink := range r.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), publishWait)
		if err := sink.Publish(ctx, rep); err != nil {
			r.log.Logf(wifista.LevelWarn, reporterTag, "Publish %s report: %s", rep.Event, err)
		}
		cancel()
	}
}
