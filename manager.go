package wifista

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Tag prefixes the description of every netif the manager creates, and tags
// its log lines
const Tag = "wifimanager"

// staRoutePrio ranks our station netif above the stack's default
const staRoutePrio = 128

// Config is the station the manager connects to
type Config struct {
	SSID     string
	Password string
	// ConnectIPv6 also waits for an IPv6 address of PreferredIP6Type
	ConnectIPv6      bool
	PreferredIP6Type IP6AddrType
	ScanMethod       ScanMethod
	SortMethod       SortMethod
	RSSIThreshold    int8
	AuthThreshold    AuthMode
}

// DefaultConfig returns the fixed credentials the firmware ships with
func DefaultConfig() Config {
	return Config{
		SSID:             "SSID",
		Password:         "Password",
		PreferredIP6Type: IP6AddrLinkLocal,
		ScanMethod:       FastScan,
		SortMethod:       ConnectAPBySignal,
		AuthThreshold:    AuthWPAPSK,
	}
}

func (c Config) staConfig() StaConfig {
	return StaConfig{
		SSID:       c.SSID,
		Password:   c.Password,
		ScanMethod: c.ScanMethod,
		SortMethod: c.SortMethod,
		Threshold:  Threshold{RSSI: c.RSSIThreshold, AuthMode: c.AuthThreshold},
	}
}

// DefaultShutdown is the shutdown registry used unless WithShutdown is given
var DefaultShutdown = &Shutdown{}

// Manager brings up the station interface, waits for its address(es), and
// hands out the resulting netif
type Manager struct {
	cfg      Config
	stack    *Stack
	loop     *EventLoop
	wifi     Driver
	log      Logger
	shutdown *Shutdown
	abort    func(error)

	mu          mutex
	active      int
	sem         *Semaphore
	netif       *Netif
	staHandlers *StaHandlers
	regs        []*Handler
	stopHandle  *ShutdownHandle
	ip4         net.IP
	ip6         net.IP
}

// Option configures a Manager
type Option func(*Manager)

func WithLogger(l Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithShutdown(s *Shutdown) Option {
	return func(m *Manager) { m.shutdown = s }
}

// WithAbort sets the function called with errors raised inside event
// handlers, where there is no caller to return them to.  The default logs
// the error and panics.
func WithAbort(fn func(error)) Option {
	return func(m *Manager) { m.abort = fn }
}

// New returns a manager bringing up wifi on stack, with events on loop
func New(cfg Config, stack *Stack, loop *EventLoop, wifi Driver, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		stack:    stack,
		loop:     loop,
		wifi:     wifi,
		log:      NewPrintLogger(nil, LevelInfo),
		shutdown: DefaultShutdown,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.abort == nil {
		m.abort = func(err error) {
			m.log.Logf(LevelError, Tag, "%s", err)
			panic(err)
		}
	}
	return m
}

// Run is the firmware network task: it initializes the stack and event
// loop, connects, and holds the connection until ctx is done
func (m *Manager) Run(ctx context.Context) error {
	if err := m.stack.Init(); err != nil {
		return fmt.Errorf("netif init: %w", err)
	}
	m.loop.Start()
	defer m.loop.Stop()

	if err := m.Connect(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	if err := m.Disconnect(); err != nil && !errors.Is(err, ErrInvalidState) {
		return err
	}
	return nil
}

// Connect brings up the station and blocks until every active interface has
// its address(es).  Connect returns ErrInvalidState if already connected.
// If ctx is done first, the connection is torn down and ctx's error is
// returned.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.start(); err != nil {
		return err
	}

	h, err := m.shutdown.Register(m.stopOnShutdown)
	if err != nil {
		m.Disconnect()
		return fmt.Errorf("register shutdown handler: %w", err)
	}
	m.mu.Lock()
	m.stopHandle = h
	sem, n := m.sem, m.waitCount()
	m.mu.Unlock()

	m.log.Logf(LevelInfo, Tag, "Waiting for IP(s)")
	for i := 0; i < n; i++ {
		if err := sem.Take(ctx); err != nil {
			m.log.Logf(LevelWarn, Tag, "Gave up waiting for IP(s): %s", err)
			m.Disconnect()
			return err
		}
	}

	return m.logConnected()
}

// Disconnect tears down the station.  Disconnect returns ErrInvalidState if
// not connected.
func (m *Manager) Disconnect() error {
	m.mu.Lock()
	if m.sem == nil {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.sem = nil
	h := m.stopHandle
	m.stopHandle = nil
	m.mu.Unlock()

	if err := m.stop(); err != nil {
		return err
	}
	if h != nil {
		if err := m.shutdown.Unregister(h); err != nil {
			return fmt.Errorf("unregister shutdown handler: %w", err)
		}
	}
	return nil
}

// Netif returns our station netif, or nil when not connected
func (m *Manager) Netif() *Netif {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.netif
}

// NetifFromDesc finds the netif we created with description desc, or nil
func (m *Manager) NetifFromDesc(desc string) *Netif {
	expected := Tag + ": " + desc
	for n := m.stack.Next(nil); n != nil; n = m.stack.Next(n) {
		if n.Desc() == expected {
			return n
		}
	}
	return nil
}

// IPv4 returns the last IPv4 address acquired on our netif
func (m *Manager) IPv4() net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ip4
}

// IPv6 returns the last IPv6 address of the preferred type acquired on our
// netif
func (m *Manager) IPv6() net.IP {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ip6
}

// isOurNetif is true when netif's description starts with prefix.  Like the
// firmware's strncmp check, the last byte of prefix is not compared.
func isOurNetif(prefix string, netif *Netif) bool {
	if netif == nil {
		return false
	}
	n := len(prefix) - 1
	if n < 0 {
		n = 0
	}
	desc := netif.Desc()
	return len(desc) >= n && desc[:n] == prefix[:n]
}

func (m *Manager) waitCount() int {
	if m.cfg.ConnectIPv6 {
		return m.active * 2
	}
	return m.active
}

// start the station and create the semaphore counting acquired addresses
func (m *Manager) start() error {
	m.mu.Lock()
	if m.sem != nil {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.active++
	// the semaphore exists before the radio starts, so no got-IP is missed
	m.sem = NewCountingSemaphore(m.waitCount(), 0)
	m.mu.Unlock()

	if err := m.wifiStart(); err != nil {
		m.mu.Lock()
		m.sem = nil
		m.mu.Unlock()
		m.stop()
		return err
	}
	return nil
}

// stop the station and release its resources
func (m *Manager) stop() error {
	err := m.wifiStop()
	m.mu.Lock()
	if m.active > 0 {
		m.active--
	}
	// addresses belong to the session
	m.ip4, m.ip6 = nil, nil
	m.mu.Unlock()
	return err
}

func (m *Manager) stopOnShutdown() {
	if err := m.stop(); err != nil {
		m.log.Logf(LevelError, Tag, "Stop on shutdown: %s", err)
	}
}

func (m *Manager) register(base EventBase, id EventID, fn HandlerFunc) error {
	h, err := m.loop.Register(base, id, fn)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.regs = append(m.regs, h)
	m.mu.Unlock()
	return nil
}

func (m *Manager) wifiStart() error {
	if err := m.wifi.Init(m.loop); err != nil {
		return fmt.Errorf("wifi init: %w", err)
	}

	cfg := DefaultWifiStaConfig()
	cfg.Desc = Tag + ": " + cfg.Desc
	cfg.RoutePrio = staRoutePrio
	netif, err := m.stack.Create(cfg)
	if err != nil {
		return fmt.Errorf("netif create: %w", err)
	}
	m.mu.Lock()
	m.netif = netif
	m.mu.Unlock()

	if err := m.wifi.AttachNetif(netif); err != nil {
		return fmt.Errorf("wifi attach netif: %w", err)
	}
	handlers, err := SetDefaultWifiStaHandlers(m.loop, netif)
	if err != nil {
		return fmt.Errorf("wifi default handlers: %w", err)
	}
	m.mu.Lock()
	m.staHandlers = handlers
	m.mu.Unlock()

	if err := m.register(WifiEvent, WifiEventStaDisconnected, m.onWifiDisconnect); err != nil {
		return fmt.Errorf("register handler: %w", err)
	}
	if err := m.register(IPEvent, IPEventStaGotIP, m.onGotIP); err != nil {
		return fmt.Errorf("register handler: %w", err)
	}
	if m.cfg.ConnectIPv6 {
		onConnect := func(ev *Event) { m.onWifiConnect(netif, ev) }
		if err := m.register(WifiEvent, WifiEventStaConnected, onConnect); err != nil {
			return fmt.Errorf("register handler: %w", err)
		}
		if err := m.register(IPEvent, IPEventGotIP6, m.onGotIPv6); err != nil {
			return fmt.Errorf("register handler: %w", err)
		}
	}

	if err := m.wifi.SetStorage(StorageRAM); err != nil {
		return fmt.Errorf("wifi set storage: %w", err)
	}
	sta := m.cfg.staConfig()
	m.log.Logf(LevelInfo, Tag, "Connecting to %s...", sta.SSID)
	if err := m.wifi.SetMode(ModeSta); err != nil {
		return fmt.Errorf("wifi set mode: %w", err)
	}
	if err := m.wifi.SetConfig(sta); err != nil {
		return fmt.Errorf("wifi set config: %w", err)
	}
	if err := m.wifi.Start(); err != nil {
		return fmt.Errorf("wifi start: %w", err)
	}
	// a failed first attempt is retried by onWifiDisconnect
	if err := m.wifi.Connect(); err != nil {
		m.log.Logf(LevelWarn, Tag, "Wi-Fi connect: %s", err)
	}
	return nil
}

func (m *Manager) wifiStop() error {
	netif := m.NetifFromDesc(DefaultWifiStaConfig().Desc)

	m.mu.Lock()
	regs := m.regs
	m.regs = nil
	m.mu.Unlock()
	for _, h := range regs {
		if err := m.loop.Unregister(h); err != nil {
			return fmt.Errorf("unregister handler: %w", err)
		}
	}

	err := m.wifi.Stop()
	if errors.Is(err, ErrWifiNotInit) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("wifi stop: %w", err)
	}
	if err := m.wifi.Deinit(); err != nil {
		return fmt.Errorf("wifi deinit: %w", err)
	}

	m.mu.Lock()
	sta := m.staHandlers
	m.staHandlers = nil
	m.mu.Unlock()
	if sta != nil {
		if err := sta.Clear(); err != nil {
			return fmt.Errorf("wifi clear default handlers: %w", err)
		}
	}
	if err := m.wifi.DetachNetif(); err != nil {
		return fmt.Errorf("wifi detach netif: %w", err)
	}
	m.stack.Destroy(netif)

	m.mu.Lock()
	m.netif = nil
	m.mu.Unlock()
	return nil
}

func (m *Manager) logConnected() error {
	for n := m.stack.Next(nil); n != nil; n = m.stack.Next(n) {
		if !isOurNetif(Tag, n) {
			continue
		}
		m.log.Logf(LevelInfo, Tag, "Connected to %s", n.Desc())
		info, err := n.IPInfo()
		if err != nil {
			return fmt.Errorf("netif %s: %w", n.Desc(), err)
		}
		m.log.Logf(LevelInfo, Tag, "- IPv4 address: %s", info.IP)
		if m.cfg.ConnectIPv6 {
			for _, ip := range n.AllIP6() {
				m.log.Logf(LevelInfo, Tag, "- IPv6 address: %s, type: %s", ip, IP6AddrTypeOf(ip))
			}
		}
	}
	return nil
}

func (m *Manager) give() {
	m.mu.Lock()
	sem := m.sem
	m.mu.Unlock()
	if sem != nil {
		sem.Give()
	}
}

func (m *Manager) onGotIP(ev *Event) {
	got, ok := ev.Data.(*GotIPEvent)
	if !ok {
		return
	}
	if !isOurNetif(Tag, got.Netif) {
		m.log.Logf(LevelWarn, Tag, "Got IPv4 from another interface \"%s\": ignored", got.Netif)
		return
	}
	m.log.Logf(LevelInfo, Tag, "Got IPv4 event: Interface \"%s\" address: %s", got.Netif, got.IPInfo.IP)
	m.mu.Lock()
	m.ip4 = got.IPInfo.IP
	m.mu.Unlock()
	m.give()
}

func (m *Manager) onGotIPv6(ev *Event) {
	got, ok := ev.Data.(*GotIP6Event)
	if !ok {
		return
	}
	if !isOurNetif(Tag, got.Netif) {
		m.log.Logf(LevelWarn, Tag, "Got IPv6 from another netif: ignored")
		return
	}
	typ := IP6AddrTypeOf(got.IP)
	m.log.Logf(LevelInfo, Tag, "Got IPv6 event: Interface \"%s\" address: %s, type: %s", got.Netif, got.IP, typ)
	if typ != m.cfg.PreferredIP6Type {
		return
	}
	m.mu.Lock()
	m.ip6 = got.IP
	m.mu.Unlock()
	m.give()
}

func (m *Manager) onWifiConnect(netif *Netif, _ *Event) {
	if err := netif.CreateIP6LinkLocal(); err != nil {
		m.log.Logf(LevelWarn, Tag, "IPv6 link-local on %s: %s", netif, err)
	}
}

func (m *Manager) onWifiDisconnect(*Event) {
	m.log.Logf(LevelInfo, Tag, "Wi-Fi disconnected, trying to reconnect...")
	err := m.wifi.Connect()
	if errors.Is(err, ErrWifiNotStarted) {
		return
	}
	if err != nil {
		m.abort(fmt.Errorf("wifi reconnect: %w", err))
	}
}
