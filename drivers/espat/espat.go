// Package espat drives an ESP-AT Wi-Fi coprocessor over a UART.  The modem
// runs its own IP stack; we issue AT commands and turn its unsolicited
// result codes into station events.
package espat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/internal/xsync"
)

const tag = "espat"

var (
	ErrCommand        = errors.New("AT command error")
	ErrTimeout        = errors.New("AT command timeout")
	ErrClosed         = errors.New("AT link closed")
	ErrWifiNotStopped = errors.New("wifi not stopped")
)

// JoinError is returned when AT+CWJAP fails
type JoinError struct {
	Code int
}

func (e *JoinError) Error() string {
	return fmt.Sprintf("join failed: +CWJAP:%d", e.Code)
}

// Reason maps the AT join error code onto a station disconnect reason
func (e *JoinError) Reason() wifista.Reason {
	switch e.Code {
	case 1:
		return wifista.ReasonHandshakeTimeout
	case 2:
		return wifista.ReasonAuthFail
	case 3:
		return wifista.ReasonNoAPFound
	case 4:
		return wifista.ReasonConnectionFail
	}
	return wifista.ReasonUnspecified
}

type Config struct {
	// CommandTimeout bounds ordinary commands
	CommandTimeout time.Duration
	// JoinTimeout bounds AT+CWJAP
	JoinTimeout time.Duration
	Logger      wifista.Logger
}

// Device implements wifista.Driver on an ESP-AT modem
type Device struct {
	rw          io.ReadWriter
	cmdTimeout  time.Duration
	joinTimeout time.Duration
	log         wifista.Logger
	readerOnce  sync.Once

	// one command in flight at a time
	cmdMu xsync.Mutex

	mu          xsync.Mutex
	pending     bool
	info        []string
	joinCode    int
	result      chan error
	closed      bool
	loop        *wifista.EventLoop
	netif       *wifista.Netif
	initialized bool
	started     bool
	mode        wifista.Mode
	sta         wifista.StaConfig
}

func NewDevice(rw io.ReadWriter, cfg Config) *Device {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 2 * time.Second
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = 20 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = wifista.NopLogger
	}
	return &Device{
		rw:          rw,
		cmdTimeout:  cfg.CommandTimeout,
		joinTimeout: cfg.JoinTimeout,
		log:         cfg.Logger,
	}
}

// Close the underlying link if it can be closed
func (d *Device) Close() error {
	if c, ok := d.rw.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (d *Device) startReader() {
	d.readerOnce.Do(func() { go d.read() })
}

func (d *Device) read() {
	scanner := bufio.NewScanner(d.rw)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		d.log.Logf(wifista.LevelDebug, tag, "<- %s", line)
		d.handleLine(line)
	}
	d.mu.Lock()
	d.closed = true
	d.finishLocked(ErrClosed)
	d.mu.Unlock()
}

func (d *Device) handleLine(line string) {
	switch line {
	case "WIFI CONNECTED":
		d.mu.Lock()
		loop, ssid := d.loop, d.sta.SSID
		d.mu.Unlock()
		post(loop, wifista.WifiEventStaConnected, &wifista.ConnectedEvent{SSID: ssid})
		return
	case "WIFI GOT IP":
		// the join command may still be in flight; fetch once it's done
		go d.fetchIP()
		return
	case "WIFI DISCONNECT":
		d.mu.Lock()
		loop, ssid := d.loop, d.sta.SSID
		d.mu.Unlock()
		post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{
			SSID: ssid, Reason: wifista.ReasonBeaconTimeout})
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.pending {
		return
	}
	switch {
	case line == "OK":
		d.finishLocked(nil)
	case line == "ERROR":
		d.finishLocked(ErrCommand)
	case line == "FAIL":
		d.finishLocked(&JoinError{Code: d.joinCode})
	case strings.HasPrefix(line, "+CWJAP:"):
		code, err := strconv.Atoi(strings.TrimPrefix(line, "+CWJAP:"))
		if err == nil {
			d.joinCode = code
			return
		}
		d.info = append(d.info, line)
	case strings.HasPrefix(line, "busy"):
	default:
		d.info = append(d.info, line)
	}
}

func (d *Device) finishLocked(err error) {
	if !d.pending {
		return
	}
	d.pending = false
	d.result <- err
}

// command sends an AT command and waits for its final result, returning the
// information lines printed before it
func (d *Device) command(cmd string, timeout time.Duration) ([]string, error) {
	d.cmdMu.Lock()
	defer d.cmdMu.Unlock()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.pending = true
	d.info = nil
	d.joinCode = 0
	result := make(chan error, 1)
	d.result = result
	d.mu.Unlock()

	d.log.Logf(wifista.LevelDebug, tag, "-> %s", redact(cmd))
	if _, err := io.WriteString(d.rw, cmd+"\r\n"); err != nil {
		d.mu.Lock()
		d.pending = false
		d.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", redact(cmd), err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-result:
		d.mu.Lock()
		info := d.info
		d.mu.Unlock()
		if err != nil {
			return info, fmt.Errorf("%s: %w", redact(cmd), err)
		}
		return info, nil
	case <-timer.C:
		d.mu.Lock()
		d.pending = false
		d.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", redact(cmd), ErrTimeout)
	}
}

// redact hides the password of a join command
func redact(cmd string) string {
	if strings.HasPrefix(cmd, "AT+CWJAP=") {
		if i := strings.Index(cmd, `","`); i >= 0 {
			return cmd[:i] + `","****"`
		}
	}
	return cmd
}

// quote a string parameter, escaping the characters AT parsing treats
// specially
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"', ',', '\\':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

func (d *Device) Init(loop *wifista.EventLoop) error {
	d.mu.Lock()
	d.loop = loop
	d.mu.Unlock()
	d.startReader()
	if _, err := d.command("AT", d.cmdTimeout); err != nil {
		return err
	}
	if _, err := d.command("ATE0", d.cmdTimeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.initialized = true
	d.mu.Unlock()
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

// AttachNetif binds n and gives it the modem's station MAC
func (d *Device) AttachNetif(n *wifista.Netif) error {
	info, err := d.command("AT+CIPSTAMAC?", d.cmdTimeout)
	if err != nil {
		return err
	}
	for _, line := range info {
		if v, ok := strings.CutPrefix(line, "+CIPSTAMAC:"); ok {
			mac, err := net.ParseMAC(unquote(v))
			if err != nil {
				return fmt.Errorf("station MAC %q: %w", v, err)
			}
			n.SetHardwareAddr(mac)
		}
	}
	d.mu.Lock()
	d.netif = n
	d.mu.Unlock()
	return nil
}

func (d *Device) DetachNetif() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.netif = nil
	return nil
}

func (d *Device) isInit() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initialized
}

func (d *Device) SetStorage(s wifista.Storage) error {
	if !d.isInit() {
		return wifista.ErrWifiNotInit
	}
	store := 1
	if s == wifista.StorageRAM {
		store = 0
	}
	_, err := d.command("AT+SYSSTORE="+strconv.Itoa(store), d.cmdTimeout)
	return err
}

func (d *Device) SetMode(m wifista.Mode) error {
	if !d.isInit() {
		return wifista.ErrWifiNotInit
	}
	if _, err := d.command("AT+CWMODE="+strconv.Itoa(int(m)), d.cmdTimeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.mode = m
	d.mu.Unlock()
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
	if len(cfg.Password) > 64 {
		return wifista.ErrWifiPassword
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

func (d *Device) Stop() error {
	d.mu.Lock()
	if !d.initialized {
		d.mu.Unlock()
		return wifista.ErrWifiNotInit
	}
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	loop := d.loop
	d.mu.Unlock()
	// still started if the modem didn't take the quit
	if _, err := d.command("AT+CWQAP", d.cmdTimeout); err != nil {
		return err
	}
	d.mu.Lock()
	d.started = false
	d.mu.Unlock()
	post(loop, wifista.WifiEventStaStop, nil)
	return nil
}

// Connect starts joining the configured AP.  A failed join is reported as
// WifiEventStaDisconnected.
func (d *Device) Connect() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return wifista.ErrWifiNotStarted
	}
	sta := d.sta
	d.mu.Unlock()
	go d.join(sta)
	return nil
}

func (d *Device) join(sta wifista.StaConfig) {
	cmd := "AT+CWJAP=" + quote(sta.SSID) + "," + quote(sta.Password)
	_, err := d.command(cmd, d.joinTimeout)
	if err == nil {
		return
	}
	d.log.Logf(wifista.LevelWarn, tag, "%s", err)
	reason := wifista.ReasonUnspecified
	var joinErr *JoinError
	if errors.As(err, &joinErr) {
		reason = joinErr.Reason()
	}
	d.mu.Lock()
	loop := d.loop
	d.mu.Unlock()
	post(loop, wifista.WifiEventStaDisconnected, &wifista.DisconnectedEvent{SSID: sta.SSID, Reason: reason})
}

func (d *Device) Disconnect() error {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()
	if !started {
		return wifista.ErrWifiNotStarted
	}
	_, err := d.command("AT+CWQAP", d.cmdTimeout)
	return err
}

// fetchIP reads the station addresses and reports them on the netif
func (d *Device) fetchIP() {
	info, err := d.command("AT+CIPSTA?", d.cmdTimeout)
	if err != nil {
		d.log.Logf(wifista.LevelError, tag, "%s", err)
		return
	}
	ip, ip6, err := parseCIPSTA(info)
	if err != nil {
		d.log.Logf(wifista.LevelError, tag, "%s", err)
		return
	}
	d.mu.Lock()
	netif := d.netif
	d.mu.Unlock()
	if netif == nil {
		return
	}
	netif.GotIP(ip)
	for _, addr := range ip6 {
		netif.GotIP6(addr)
	}
}

func unquote(s string) string {
	if u, err := strconv.Unquote(s); err == nil {
		return u
	}
	return strings.Trim(s, `"`)
}

// parseCIPSTA parses the +CIPSTA:<key>:"<addr>" lines of AT+CIPSTA?
func parseCIPSTA(lines []string) (wifista.IPInfo, []net.IP, error) {
	var info wifista.IPInfo
	var ip6 []net.IP
	for _, line := range lines {
		rest, ok := strings.CutPrefix(line, "+CIPSTA:")
		if !ok {
			continue
		}
		key, value, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		ip := net.ParseIP(unquote(value))
		if ip == nil {
			return info, nil, fmt.Errorf("bad address in %q", line)
		}
		switch key {
		case "ip":
			info.IP = ip.To4()
		case "gateway":
			info.Gateway = ip.To4()
		case "netmask":
			info.Netmask = ip.To4()
		case "ip6ll", "ip6gl":
			if !ip.IsUnspecified() {
				ip6 = append(ip6, ip)
			}
		}
	}
	if info.IsZero() {
		return info, nil, wifista.ErrNetifNoIP
	}
	return info, ip6, nil
}

func post(loop *wifista.EventLoop, id wifista.EventID, data any) {
	if loop == nil {
		return
	}
	loop.Post(context.Background(), wifista.WifiEvent, id, data)
}
