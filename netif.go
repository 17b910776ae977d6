package wifista

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// IPInfo is the IPv4 configuration of a netif
type IPInfo struct {
	IP      net.IP
	Netmask net.IP
	Gateway net.IP
}

func (i IPInfo) String() string {
	return fmt.Sprintf("ip %s, mask %s, gw %s", i.IP, i.Netmask, i.Gateway)
}

// IsZero is true when no address is assigned
func (i IPInfo) IsZero() bool {
	return i.IP == nil || i.IP.IsUnspecified()
}

func (i IPInfo) equal(o IPInfo) bool {
	return i.IP.Equal(o.IP) && i.Netmask.Equal(o.Netmask) && i.Gateway.Equal(o.Gateway)
}

// MaxIP6AddrsPerNetif is the number of IPv6 addresses a netif can hold
const MaxIP6AddrsPerNetif = 3

// InherentConfig holds the properties a netif is created with
type InherentConfig struct {
	// Key is unique among the netifs of a stack
	Key string
	// Desc is a free-form description, used to find netifs by owner
	Desc string
	// RoutePrio orders netifs when picking a default route; higher wins
	RoutePrio int
}

// DefaultWifiStaConfig returns the inherent config of a Wi-Fi station netif
func DefaultWifiStaConfig() InherentConfig {
	return InherentConfig{Key: "WIFI_STA_DEF", Desc: "sta", RoutePrio: 100}
}

var (
	ErrNetifNotFound  = errors.New("netif not found")
	ErrNetifDuplicate = errors.New("netif key already in use")
	ErrNetifNoIP      = errors.New("netif has no IPv4 address")
	ErrNetifNoMAC     = errors.New("netif has no hardware address")
	ErrNetifIP6Full   = errors.New("netif IPv6 address table full")
	ErrStackNotInit   = errors.New("network stack not initialized")
)

// Netif is a network interface handle.  It is created by a Stack and filled
// in by the Wi-Fi driver bound to it.
type Netif struct {
	stack *Stack
	cfg   InherentConfig
	mu    rwMutex
	mac   net.HardwareAddr
	up    bool
	ip    IPInfo
	ip6   []net.IP
}

func (n *Netif) Key() string    { return n.cfg.Key }
func (n *Netif) Desc() string   { return n.cfg.Desc }
func (n *Netif) RoutePrio() int { return n.cfg.RoutePrio }
func (n *Netif) String() string { return n.cfg.Desc }

func (n *Netif) HardwareAddr() net.HardwareAddr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.mac
}

func (n *Netif) SetHardwareAddr(mac net.HardwareAddr) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mac = append(net.HardwareAddr(nil), mac...)
}

// IsUp is true while the link is associated
func (n *Netif) IsUp() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.up
}

func (n *Netif) setUp(up bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.up = up
	if !up {
		n.ip = IPInfo{}
		n.ip6 = nil
	}
}

// IPInfo returns the IPv4 configuration, or ErrNetifNoIP if none is assigned
func (n *Netif) IPInfo() (IPInfo, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.ip.IsZero() {
		return IPInfo{}, ErrNetifNoIP
	}
	return n.ip, nil
}

// SetIPInfo assigns the IPv4 configuration, returning true if it changed
func (n *Netif) SetIPInfo(info IPInfo) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	changed := !n.ip.equal(info)
	n.ip = info
	return changed
}

// AllIP6 returns a copy of the IPv6 addresses assigned
func (n *Netif) AllIP6() []net.IP {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]net.IP(nil), n.ip6...)
}

// AddIP6 assigns an IPv6 address and returns its index.  An address already
// assigned keeps its index.
func (n *Netif) AddIP6(ip net.IP) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, a := range n.ip6 {
		if a.Equal(ip) {
			return i, nil
		}
	}
	if len(n.ip6) >= MaxIP6AddrsPerNetif {
		return -1, ErrNetifIP6Full
	}
	n.ip6 = append(n.ip6, ip)
	return len(n.ip6) - 1, nil
}

// CreateIP6LinkLocal announces the EUI-64 link-local address derived from
// the hardware address with IPEventGotIP6.  It is called from handlers, so
// the event is queued without blocking.
func (n *Netif) CreateIP6LinkLocal() error {
	mac := n.HardwareAddr()
	if len(mac) != 6 {
		return ErrNetifNoMAC
	}
	if loop := n.loop(); loop != nil {
		loop.PostAsync(IPEvent, IPEventGotIP6,
			&GotIP6Event{Netif: n, IP: LinkLocalFromMAC(mac), Index: -1})
	}
	return nil
}

// GotIP posts IPEventStaGotIP for info.  Drivers call this from their own
// goroutine once the link has an address; it blocks while the loop's queue
// is full.  The address is assigned when the event is handled, in order with
// the link events posted around it.
func (n *Netif) GotIP(info IPInfo) {
	n.mu.RLock()
	changed := !n.ip.equal(info)
	n.mu.RUnlock()
	n.post(IPEventStaGotIP, &GotIPEvent{Netif: n, IPInfo: info, Changed: changed})
}

// GotIP6 posts IPEventGotIP6 for ip.  Like GotIP, the address is assigned
// when the event is handled.
func (n *Netif) GotIP6(ip net.IP) {
	n.post(IPEventGotIP6, &GotIP6Event{Netif: n, IP: ip, Index: -1})
}

func (n *Netif) loop() *EventLoop {
	if n.stack == nil {
		return nil
	}
	return n.stack.loop
}

func (n *Netif) post(id EventID, data any) {
	if loop := n.loop(); loop != nil {
		loop.Post(context.Background(), IPEvent, id, data)
	}
}

// Stack is the network stack: the set of netifs the firmware knows about
type Stack struct {
	mu     rwMutex
	loop   *EventLoop
	ready  bool
	netifs []*Netif
}

// NewStack returns a network stack posting IP events on loop
func NewStack(loop *EventLoop) *Stack {
	return &Stack{loop: loop}
}

// Init the stack.  Calling Init again is harmless.
func (s *Stack) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = true
	return nil
}

// Create a netif.  Keys must be unique.
func (s *Stack) Create(cfg InherentConfig) (*Netif, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil, ErrStackNotInit
	}
	for _, n := range s.netifs {
		if n.cfg.Key == cfg.Key {
			return nil, fmt.Errorf("%w: %s", ErrNetifDuplicate, cfg.Key)
		}
	}
	n := &Netif{stack: s, cfg: cfg}
	s.netifs = append(s.netifs, n)
	return n, nil
}

// Destroy removes the netif from the stack.  Destroying nil or an unknown
// netif does nothing.
func (s *Stack) Destroy(n *Netif) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.netifs {
		if m == n {
			s.netifs = append(s.netifs[:i:i], s.netifs[i+1:]...)
			return
		}
	}
}

// Next returns the netif following prev in creation order.  Pass nil to get
// the first; nil is returned after the last.
func (s *Stack) Next(prev *Netif) *Netif {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if prev == nil {
		if len(s.netifs) == 0 {
			return nil
		}
		return s.netifs[0]
	}
	for i, n := range s.netifs {
		if n == prev {
			if i+1 < len(s.netifs) {
				return s.netifs[i+1]
			}
			return nil
		}
	}
	return nil
}

// Len returns the number of netifs
func (s *Stack) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.netifs)
}
