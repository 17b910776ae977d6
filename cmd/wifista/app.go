package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/espat"
	"github.com/merliot/wifista/drivers/sim"
	"github.com/merliot/wifista/status"
)

// app is the wired station: driver, manager and status publishing
type app struct {
	cfg      *Config
	log      *slog.Logger
	loop     *wifista.EventLoop
	stack    *wifista.Stack
	radio    *sim.Driver // nil unless driver is sim
	mgr      *wifista.Manager
	shutdown *wifista.Shutdown
	reporter *status.Reporter
	server   *status.Server
	closers  []io.Closer
}

func newApp(cfg *Config, log *slog.Logger) (*app, error) {
	mc, err := cfg.managerConfig()
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:      cfg,
		log:      log,
		loop:     wifista.NewEventLoop("default", 0),
		shutdown: &wifista.Shutdown{},
	}
	a.stack = wifista.NewStack(a.loop)
	wlog := slogLogger{log}

	driver, err := a.newDriver(wlog)
	if err != nil {
		a.close()
		return nil, err
	}
	a.mgr = wifista.New(mc, a.stack, a.loop, driver,
		wifista.WithLogger(wlog),
		wifista.WithShutdown(a.shutdown),
		wifista.WithAbort(func(err error) {
			log.Error("Aborting", "err", err)
			a.shutdown.Run()
			panic(err)
		}))

	sinks, err := a.newSinks(wlog)
	if err != nil {
		a.close()
		return nil, err
	}
	a.reporter = status.NewReporter(a.loop, a.mgr.Netif, wlog, sinks...)
	return a, nil
}

func (a *app) newDriver(wlog wifista.Logger) (wifista.Driver, error) {
	switch a.cfg.Driver {
	case "sim":
		cfg, err := a.cfg.Sim.simConfig()
		if err != nil {
			return nil, err
		}
		a.radio = sim.New(cfg)
		return a.radio, nil
	case "espat":
		port, err := espat.OpenSerial(a.cfg.ESPAT.Port, a.cfg.ESPAT.Baud)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", a.cfg.ESPAT.Port, err)
		}
		dev := espat.NewDevice(port, espat.Config{Logger: wlog})
		a.closers = append(a.closers, dev)
		return dev, nil
	}
	return nil, fmt.Errorf("unknown driver %q", a.cfg.Driver)
}

func (a *app) newSinks(wlog wifista.Logger) ([]status.Sink, error) {
	var sinks []status.Sink
	if a.cfg.Status.Listen != "" || a.cfg.Status.TLSHost != "" {
		a.server = status.NewServer(a.cfg.Status.Listen, wlog)
		a.server.BasicAuth(a.cfg.Status.User, a.cfg.Status.Passwd)
		a.closers = append(a.closers, a.server)
		sinks = append(sinks, a.server)
	}
	mq := a.cfg.MQTT
	switch mq.Client {
	case "", "none":
	case "paho":
		sink, err := status.NewPahoSink(mq.Broker, mq.ClientID, mq.Topic)
		if err != nil {
			return nil, fmt.Errorf("mqtt %s: %w", mq.Broker, err)
		}
		a.closers = append(a.closers, sink)
		sinks = append(sinks, sink)
	case "natiu":
		sink := status.NewNatiuSink(status.TCPDialer(mq.Broker), mq.ClientID, mq.Topic)
		a.closers = append(a.closers, sink)
		sinks = append(sinks, sink)
	default:
		return nil, fmt.Errorf("unknown mqtt client %q", mq.Client)
	}
	return sinks, nil
}

// start the stack, event loop, reporter and status server
func (a *app) start() error {
	if err := a.stack.Init(); err != nil {
		return fmt.Errorf("netif init: %w", err)
	}
	a.loop.Start()
	if err := a.reporter.Start(); err != nil {
		return err
	}
	if a.server != nil {
		go a.serve()
	}
	return nil
}

func (a *app) serve() {
	var err error
	if host := a.cfg.Status.TLSHost; host != "" {
		a.log.Info("Serving status", "host", host)
		err = a.server.ServeTLS(host)
	} else {
		a.log.Info("Serving status", "addr", a.cfg.Status.Listen)
		err = a.server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.log.Error("Status server stopped", "err", err)
	}
}

// close runs the shutdown handlers, stopping the station if still up, then
// releases everything else
func (a *app) close() {
	a.shutdown.Run()
	if a.reporter != nil {
		a.reporter.Stop()
	}
	a.loop.Stop()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.log.Warn("Close", "err", err)
		}
	}
}

// run connects and holds the connection until ctx is done
func (a *app) run(ctx context.Context) error {
	if err := a.start(); err != nil {
		return err
	}
	defer a.close()

	if err := a.mgr.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	<-ctx.Done()
	a.log.Info("Shutting down...")
	return nil
}
