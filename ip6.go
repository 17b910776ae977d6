package wifista

import (
	"errors"
	"net"
	"strings"
)

// IP6AddrType classifies an IPv6 address
type IP6AddrType int

const (
	IP6AddrUnknown IP6AddrType = iota
	IP6AddrGlobal
	IP6AddrLinkLocal
	IP6AddrSiteLocal
	IP6AddrUniqueLocal
	IP6AddrIPv4MappedIPv6
)

var ip6AddrTypeNames = [...]string{
	IP6AddrUnknown:        "UNKNOWN",
	IP6AddrGlobal:         "GLOBAL",
	IP6AddrLinkLocal:      "LINK_LOCAL",
	IP6AddrSiteLocal:      "SITE_LOCAL",
	IP6AddrUniqueLocal:    "UNIQUE_LOCAL",
	IP6AddrIPv4MappedIPv6: "IPV4_MAPPED_IPV6",
}

func (t IP6AddrType) String() string {
	if t < 0 || int(t) >= len(ip6AddrTypeNames) {
		return ip6AddrTypeNames[IP6AddrUnknown]
	}
	return ip6AddrTypeNames[t]
}

// IP6AddrTypeOf classifies ip.  IPv4 addresses in their 16-byte form are
// IPv4-mapped.
func IP6AddrTypeOf(ip net.IP) IP6AddrType {
	if len(ip) != net.IPv6len {
		return IP6AddrUnknown
	}
	switch {
	case ip.To4() != nil:
		return IP6AddrIPv4MappedIPv6
	case ip[0] == 0xfe && ip[1]&0xc0 == 0x80:
		return IP6AddrLinkLocal
	case ip[0] == 0xfe && ip[1]&0xc0 == 0xc0:
		return IP6AddrSiteLocal
	case ip[0]&0xfe == 0xfc:
		return IP6AddrUniqueLocal
	case ip[0]&0xe0 == 0x20:
		return IP6AddrGlobal
	}
	return IP6AddrUnknown
}

// LinkLocalFromMAC derives the fe80::/64 EUI-64 address for a 48-bit MAC
func LinkLocalFromMAC(mac net.HardwareAddr) net.IP {
	ip := make(net.IP, net.IPv6len)
	ip[0], ip[1] = 0xfe, 0x80
	ip[8] = mac[0] ^ 0x02
	ip[9] = mac[1]
	ip[10] = mac[2]
	ip[11] = 0xff
	ip[12] = 0xfe
	ip[13] = mac[3]
	ip[14] = mac[4]
	ip[15] = mac[5]
	return ip
}

// ParseIP6AddrType is the inverse of IP6AddrType.String, ignoring case
func ParseIP6AddrType(s string) (IP6AddrType, error) {
	for i, name := range ip6AddrTypeNames {
		if strings.EqualFold(name, s) {
			return IP6AddrType(i), nil
		}
	}
	return IP6AddrUnknown, errors.New("unknown IPv6 address type: " + s)
}
