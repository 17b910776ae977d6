// Package status publishes station link and address changes to MQTT brokers
// and to web clients.
package status

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/merliot/wifista"
)

// Report is a snapshot of a netif, taken when Event happened
type Report struct {
	Event   string    `json:"event"`
	Desc    string    `json:"desc"`
	Key     string    `json:"key"`
	Up      bool      `json:"up"`
	MAC     string    `json:"mac,omitempty"`
	IP      string    `json:"ip,omitempty"`
	Netmask string    `json:"netmask,omitempty"`
	Gateway string    `json:"gateway,omitempty"`
	IP6     []string  `json:"ip6,omitempty"`
	Time    time.Time `json:"time"`
}

// NewReport snapshots netif.  A nil netif gives a report with only Event and
// Time set.
func NewReport(netif *wifista.Netif, event string) Report {
	r := Report{Event: event, Time: time.Now()}
	if netif == nil {
		return r
	}
	r.Desc = netif.Desc()
	r.Key = netif.Key()
	r.Up = netif.IsUp()
	if mac := netif.HardwareAddr(); mac != nil {
		r.MAC = mac.String()
	}
	if info, err := netif.IPInfo(); err == nil {
		r.setIPInfo(info)
	}
	for _, ip := range netif.AllIP6() {
		r.addIP6(ip)
	}
	return r
}

func (r *Report) setIPInfo(info wifista.IPInfo) {
	r.IP = info.IP.String()
	r.Netmask = info.Netmask.String()
	r.Gateway = info.Gateway.String()
}

func (r *Report) addIP6(ip net.IP) {
	s := ip.String()
	for _, have := range r.IP6 {
		if have == s {
			return
		}
	}
	r.IP6 = append(r.IP6, s)
}

func (r *Report) clearAddrs() {
	r.IP, r.Netmask, r.Gateway = "", "", ""
	r.IP6 = nil
}

func (r Report) JSON() []byte {
	buf, _ := json.Marshal(r)
	return buf
}

// Sink receives reports
type Sink interface {
	Publish(ctx context.Context, r Report) error
}
