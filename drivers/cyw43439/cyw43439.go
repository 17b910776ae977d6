//go:build pico

// Package cyw43439 adapts the Pico W radio to wifista.Driver
package cyw43439

import (
	"context"
	"errors"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/internal/xsync"
	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/whd"
)

type Config struct {
	// Country is the two letter regulatory domain, "XX" for worldwide
	Country     string
	JoinTimeout time.Duration
	// StaticIP is assigned once joined.  The chip driver carries no IP
	// stack, so there is no lease to wait for.
	StaticIP wifista.IPInfo
}

var ErrWifiNotStopped = errors.New("wifi not stopped")

// Device implements wifista.Driver on the on-board CYW43439
type Device struct {
	dev         *cyw43439.Device
	cfg         Config
	mu          xsync.Mutex
	enabled     bool
	loop        *wifista.EventLoop
	netif       *wifista.Netif
	initialized bool
	started     bool
	mode        wifista.Mode
	sta         wifista.StaConfig
}

func New(cfg Config) *Device {
	if cfg.Country == "" {
		cfg.Country = "XX"
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 10 * time.Second
	}
	spi, cs, wlreg, irq := cyw43439.PicoWSpi(0)
	return &Device{
		dev: cyw43439.NewDevice(spi, cs, wlreg, irq, irq),
		cfg: cfg,
	}
}

func (d *Device) Init(loop *wifista.EventLoop) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loop = loop
	if !d.enabled {
		// firmware upload happens once per boot
		if err := d.dev.EnableStaMode(whd.CountryCode(d.cfg.Country, 0)); err != nil {
			return err
		}
		d.enabled = true
	}
	d.initialized = true
	return nil
}

func (d *Device) Deinit() error {
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

func (d *Device) AttachNetif(n *wifista.Netif) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.netif = n
	return nil
}

func (d *Device) DetachNetif() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.netif = nil
	return nil
}

// SetStorage is accepted and ignored; the chip keeps no configuration
func (d *Device) SetStorage(wifista.Storage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	return nil
}

func (d *Device) SetMode(m wifista.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	if m != wifista.ModeSta {
		return wifista.ErrWifiMode
	}
	d.mode = m
	return nil
}

func (d *Device) SetConfig(cfg wifista.StaConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return wifista.ErrWifiNotInit
	}
	if len(cfg.SSID) == 0 || len(cfg.SSID) > 32 {
		return wifista.ErrWifiSSID
	}
	d.sta = cfg
	return nil
}

func (d *Device) Start() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return wifista.ErrWifiNotInit
	}
	if d.mode != wifista.ModeSta {
		d.mu.Unlock()
		return wifista.ErrWifiMode
	}
	d.started = true
	loop := d.loop
	d.mu.Unlock()
	post(loop, wifista.WifiEventStaStart, nil)
	return nil
}

func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return wifista.ErrWifiNotInit
	}
	wasStarted := d.started
	d.started = false
	loop := d.loop
	d.mu.Unlock()
	if wasStarted {
		post(loop, wifista.WifiEventStaStop, nil)
	}
	return nil
}

func (d *Device) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return wifista.ErrWifiNotStarted
	}
	go d.join(d.sta)
	return nil
}

func (d *Device) join(sta wifista.StaConfig) {
	auth := uint32(whd.CYW43_AUTH_WPA2_AES_PSK)
	if sta.Password == "" {
		auth = uint32(whd.CYW43_AUTH_OPEN)
	}
	err := d.dev.WifiConnectTimeout(sta.SSID, sta.Password, auth, d.cfg.JoinTimeout)

	d.mu.Lock()
	loop, netif, started := d.loop, d.netif, d.started
	d.mu.Unlock()
	if !started {
		return
	}
	if err != nil {
		println("join", sta.SSID, "failed:", err.Error())
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: sta.SSID, Reason: wifista.ReasonConnectionFail})
		return
	}
	post(loop, wifista.WifiEventStaConnected, &wifista.ConnectedEvent{SSID: sta.SSID})
	if netif != nil && !d.cfg.StaticIP.IsZero() {
		netif.GotIP(d.cfg.StaticIP)
	}
}

// Disconnect drops our side of the association.  The chip driver has no
// leave call in this version, so the link is simply considered down.
func (d *Device) Disconnect() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return wifista.ErrWifiNotStarted
	}
	loop, ssid := d.loop, d.sta.SSID
	d.mu.Unlock()
	post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
		SSID: ssid, Reason: wifista.ReasonAssocLeave})
	return nil
}

func post(loop *wifista.EventLoop, id wifista.EventID, data any) {
	if loop == nil {
		return
	}
	loop.Post(context.Background(), wifista.WifiEvent, id, data)
}
