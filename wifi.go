package wifista

import (
	"errors"
	"strconv"
)

// Mode is the Wi-Fi operating mode
type Mode int

const (
	ModeNull Mode = iota
	ModeSta
	ModeAP
	ModeAPSta
)

// Storage selects where the driver keeps its configuration
type Storage int

const (
	StorageFlash Storage = iota
	StorageRAM
)

// ScanMethod picks how the station looks for its AP
type ScanMethod int

const (
	// FastScan connects to the first matching AP found
	FastScan ScanMethod = iota
	// AllChannelScan scans every channel, then picks an AP by SortMethod
	AllChannelScan
)

// SortMethod orders candidate APs after an all-channel scan
type SortMethod int

const (
	ConnectAPBySignal SortMethod = iota
	ConnectAPBySecurity
)

// AuthMode is an AP's authentication mode.  Modes are ordered weakest to
// strongest.
type AuthMode int

const (
	AuthOpen AuthMode = iota
	AuthWEP
	AuthWPAPSK
	AuthWPA2PSK
	AuthWPAWPA2PSK
	AuthWPA2Enterprise
	AuthWPA3PSK
	AuthWPA2WPA3PSK
)

var authModeNames = [...]string{
	AuthOpen:           "open",
	AuthWEP:            "wep",
	AuthWPAPSK:         "wpa_psk",
	AuthWPA2PSK:        "wpa2_psk",
	AuthWPAWPA2PSK:     "wpa_wpa2_psk",
	AuthWPA2Enterprise: "wpa2_enterprise",
	AuthWPA3PSK:        "wpa3_psk",
	AuthWPA2WPA3PSK:    "wpa2_wpa3_psk",
}

func (a AuthMode) String() string {
	if a < 0 || int(a) >= len(authModeNames) {
		return "auth(" + strconv.Itoa(int(a)) + ")"
	}
	return authModeNames[a]
}

// ParseAuthMode is the inverse of AuthMode.String
func ParseAuthMode(s string) (AuthMode, error) {
	for i, name := range authModeNames {
		if name == s {
			return AuthMode(i), nil
		}
	}
	return AuthOpen, errors.New("unknown auth mode: " + s)
}

// Threshold rejects APs weaker than RSSI or with auth weaker than AuthMode.
// An RSSI of 0 accepts any signal.
type Threshold struct {
	RSSI     int8
	AuthMode AuthMode
}

// Accepts is true if an AP with rssi and auth passes the threshold
func (t Threshold) Accepts(rssi int8, auth AuthMode) bool {
	if t.RSSI != 0 && rssi < t.RSSI {
		return false
	}
	return auth >= t.AuthMode
}

// StaConfig is the station configuration handed to a Driver
type StaConfig struct {
	SSID       string
	Password   string
	ScanMethod ScanMethod
	SortMethod SortMethod
	Threshold  Threshold
}

// Reason is a station disconnect reason code
type Reason uint8

const (
	ReasonUnspecified          Reason = 1
	ReasonAuthExpire           Reason = 2
	ReasonAuthLeave            Reason = 3
	ReasonAssocExpire          Reason = 4
	ReasonAssocLeave           Reason = 8
	Reason4WayHandshakeTimeout Reason = 15
	ReasonBeaconTimeout        Reason = 200
	ReasonNoAPFound            Reason = 201
	ReasonAuthFail             Reason = 202
	ReasonAssocFail            Reason = 203
	ReasonHandshakeTimeout     Reason = 204
	ReasonConnectionFail       Reason = 205
)

var (
	ErrWifiNotInit    = errors.New("wifi driver not initialized")
	ErrWifiNotStarted = errors.New("wifi not started")
	ErrWifiMode       = errors.New("wifi mode error")
	ErrWifiSSID       = errors.New("wifi ssid invalid")
	ErrWifiPassword   = errors.New("wifi password invalid")
	ErrWifiConn       = errors.New("wifi connection not bound to a netif")
)

// Driver is a Wi-Fi radio.  Drivers post WifiEvent events on the loop given
// to Init, and report addresses through the netif given to AttachNetif.
//
// Connect only starts an association; the outcome arrives later as
// WifiEventStaConnected or WifiEventStaDisconnected.  Connect and Disconnect
// return ErrWifiNotStarted before Start, and Stop returns ErrWifiNotInit
// before Init.
type Driver interface {
	Init(loop *EventLoop) error
	Deinit() error
	AttachNetif(*Netif) error
	DetachNetif() error
	SetStorage(Storage) error
	SetMode(Mode) error
	SetConfig(StaConfig) error
	Start() error
	Stop() error
	Connect() error
	Disconnect() error
}

// StaHandlers are the default station event handlers keeping a netif's link
// state and addresses in step with the radio
type StaHandlers struct {
	loop  *EventLoop
	netif *Netif
	regs  []*Handler
}

// SetDefaultWifiStaHandlers registers handlers marking netif up on connect,
// assigning addresses as they are acquired, and marking netif down, with its
// addresses cleared, on disconnect or stop.  Register these before any
// handler that reads the netif's addresses.
func SetDefaultWifiStaHandlers(loop *EventLoop, netif *Netif) (*StaHandlers, error) {
	s := &StaHandlers{loop: loop, netif: netif}
	regs := []struct {
		base EventBase
		id   EventID
		fn   HandlerFunc
	}{
		{WifiEvent, WifiEventStaConnected, s.onConnected},
		{WifiEvent, WifiEventStaDisconnected, s.onDown},
		{WifiEvent, WifiEventStaStop, s.onDown},
		{IPEvent, IPEventStaGotIP, s.onGotIP},
		{IPEvent, IPEventGotIP6, s.onGotIP6},
	}
	for _, r := range regs {
		h, err := loop.Register(r.base, r.id, r.fn)
		if err != nil {
			s.Clear()
			return nil, err
		}
		s.regs = append(s.regs, h)
	}
	return s, nil
}

func (s *StaHandlers) onConnected(*Event) {
	s.netif.setUp(true)
}

func (s *StaHandlers) onDown(*Event) {
	s.netif.setUp(false)
}

func (s *StaHandlers) onGotIP(ev *Event) {
	if got, ok := ev.Data.(*GotIPEvent); ok && got.Netif == s.netif {
		s.netif.SetIPInfo(got.IPInfo)
	}
}

func (s *StaHandlers) onGotIP6(ev *Event) {
	got, ok := ev.Data.(*GotIP6Event)
	if !ok || got.Netif != s.netif {
		return
	}
	// handlers after this one see the assigned index
	got.Index, _ = s.netif.AddIP6(got.IP)
}

// Clear unregisters the default handlers
func (s *StaHandlers) Clear() error {
	var err error
	for _, h := range s.regs {
		if e := s.loop.Unregister(h); e != nil && err == nil {
			err = e
		}
	}
	s.regs = nil
	return err
}
