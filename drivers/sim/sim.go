// Package sim is a simulated Wi-Fi radio.  It associates with a list of
// configured access points and hands out their fixed leases, so the station
// bring-up can run on a host without hardware.
package sim

import (
	"context"
	"errors"
	"net"
	"sort"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/internal/xsync"
)

// AP is a simulated access point
type AP struct {
	SSID     string
	Password string
	Auth     wifista.AuthMode
	RSSI     int8
	Channel  uint8
	// Lease is the IPv4 configuration handed out on association
	Lease wifista.IPInfo
	// IP6 are global addresses announced after association
	IP6 []net.IP
}

type Config struct {
	MAC       net.HardwareAddr
	APs       []AP
	ScanDelay time.Duration
}

var defaultMAC = net.HardwareAddr{0x02, 0x5e, 0x00, 0x00, 0x00, 0x01}

var ErrWifiNotStopped = errors.New("wifi not stopped")

// Driver implements wifista.Driver
type Driver struct {
	mu          xsync.Mutex
	mac         net.HardwareAddr
	aps         []AP
	scanDelay   time.Duration
	loop        *wifista.EventLoop
	netif       *wifista.Netif
	initialized bool
	started     bool
	mode        wifista.Mode
	storage     wifista.Storage
	sta         wifista.StaConfig
	assoc       *AP
	gen         uint64
	connects    int
}

func New(cfg Config) *Driver {
	mac := cfg.MAC
	if len(mac) == 0 {
		mac = defaultMAC
	}
	return &Driver{
		mac:       mac,
		aps:       append([]AP(nil), cfg.APs...),
		scanDelay: cfg.ScanDelay,
	}
}

func (d *Driver) Init(loop *wifista.EventLoop) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loop = loop
	d.initialized = true
	return nil
}

func (d *Driver) Deinit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	if d.started {
		return ErrWifiNotStopped
	}
	d.initialized = false
	return nil
}

func (d *Driver) AttachNetif(n *wifista.Netif) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n.SetHardwareAddr(d.mac)
	d.netif = n
	return nil
}

func (d *Driver) DetachNetif() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.netif = nil
	return nil
}

func (d *Driver) SetStorage(s wifista.Storage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	d.storage = s
	return nil
}

func (d *Driver) SetMode(m wifista.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	d.mode = m
	return nil
}

func (d *Driver) SetConfig(cfg wifista.StaConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	if len(cfg.SSID) == 0 || len(cfg.SSID) > 32 {
		return wifista.ErrWifiSSID
	}
	if len(cfg.Password) > 64 {
		return wifista.ErrWifiPassword
	}
	d.sta = cfg
	return nil
}

func (d *Driver) Start() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return wifista.ErrWifiNotInit
	}
	if d.mode != wifista.ModeSta && d.mode != wifista.ModeAPSta {
		d.mu.Unlock()
		return wifista.ErrWifiMode
	}
	d.started = true
	loop := d.loop
	d.mu.Unlock()
	post(loop, wifista.WifiEventStaStart, nil)
	return nil
}

func (d *Driver) Stop() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return wifista.ErrWifiNotInit
	}
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.gen++
	assoc := d.assoc
	d.assoc = nil
	loop := d.loop
	d.mu.Unlock()
	if assoc != nil {
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: assoc.SSID, Reason: wifista.ReasonAssocLeave, RSSI: assoc.RSSI})
	}
	post(loop, wifista.WifiEventStaStop, nil)
	return nil
}

// Connect starts an association attempt in the background
func (d *Driver) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return wifista.ErrWifiNotStarted
	}
	d.connects++
	d.gen++
	go d.associate(d.gen, d.sta)
	return nil
}

func (d *Driver) Disconnect() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return wifista.ErrWifiNotStarted
	}
	d.gen++
	assoc := d.assoc
	d.assoc = nil
	loop := d.loop
	d.mu.Unlock()
	if assoc != nil {
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: assoc.SSID, Reason: wifista.ReasonAssocLeave, RSSI: assoc.RSSI})
	}
	return nil
}

// Kick drops the current association as if the AP went away.  Kick returns
// false if not associated.
func (d *Driver) Kick(reason wifista.Reason) bool {
	d.mu.Lock()
	assoc := d.assoc
	d.assoc = nil
	loop := d.loop
	d.mu.Unlock()
	if assoc == nil {
		return false
	}
	post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
		SSID: assoc.SSID, Reason: reason, RSSI: assoc.RSSI})
	return true
}

// AddAP makes an access point visible to later scans
func (d *Driver) AddAP(ap AP) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.aps = append(d.aps, ap)
}

// RemoveAP hides every AP named ssid, returning how many were removed
func (d *Driver) RemoveAP(ssid string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.aps[:0]
	for _, ap := range d.aps {
		if ap.SSID != ssid {
			kept = append(kept, ap)
		}
	}
	removed := len(d.aps) - len(kept)
	d.aps = kept
	return removed
}

// APs returns the visible access points
func (d *Driver) APs() []AP {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]AP(nil), d.aps...)
}

// Associated returns the AP we're associated with
func (d *Driver) Associated() (AP, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.assoc == nil {
		return AP{}, false
	}
	return *d.assoc, true
}

// Connects returns the number of accepted Connect calls
func (d *Driver) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Started is true between Start and Stop
func (d *Driver) Started() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// pick chooses the AP to associate with, or nil if none qualifies
func pick(aps []AP, sta wifista.StaConfig) *AP {
	var candidates []AP
	for _, ap := range aps {
		if ap.SSID == sta.SSID && sta.Threshold.Accepts(ap.RSSI, ap.Auth) {
			candidates = append(candidates, ap)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	if sta.ScanMethod == wifista.AllChannelScan {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if sta.SortMethod == wifista.ConnectAPBySecurity && a.Auth != b.Auth {
				return a.Auth > b.Auth
			}
			return a.RSSI > b.RSSI
		})
	}
	return &candidates[0]
}

func (d *Driver) associate(gen uint64, sta wifista.StaConfig) {
	if d.scanDelay > 0 {
		time.Sleep(d.scanDelay)
	}

	d.mu.Lock()
	if gen != d.gen || !d.started {
		// superseded by a later Connect, Disconnect or Stop
		d.mu.Unlock()
		return
	}
	ap := pick(d.aps, sta)
	loop, netif := d.loop, d.netif
	if ap == nil {
		d.mu.Unlock()
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: sta.SSID, Reason: wifista.ReasonNoAPFound})
		return
	}
	if ap.Auth != wifista.AuthOpen && ap.Password != sta.Password {
		d.mu.Unlock()
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: sta.SSID, Reason: wifista.ReasonAuthFail, RSSI: ap.RSSI})
		return
	}
	d.assoc = ap
	d.mu.Unlock()

	post(loop, wifista.WifiEventStaConnected, &wifista.ConnectedEvent{
		SSID: ap.SSID, Channel: ap.Channel, AuthMode: ap.Auth})
	if netif == nil {
		return
	}
	if !ap.Lease.IsZero() {
		netif.GotIP(ap.Lease)
	}
	for _, ip := range ap.IP6 {
		netif.GotIP6(ip)
	}
}

func post(loop *wifista.EventLoop, id wifista.EventID, data any) {
	if loop == nil {
		return
	}
	loop.Post(context.Background(), wifista.WifiEvent, id, data)
}
