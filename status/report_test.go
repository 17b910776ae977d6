package status

import (
	"encoding/json"
	"net"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/merliot/wifista"
)

func TestNewReportNil(t *testing.T) {
	c := qt.New(t)
	r := NewReport(nil, "connected")
	c.Assert(r.Event, qt.Equals, "connected")
	c.Assert(r.Desc, qt.Equals, "")
	c.Assert(r.Up, qt.IsFalse)
	c.Assert(r.Time.IsZero(), qt.IsFalse)
}

func TestNewReport(t *testing.T) {
	c := qt.New(t)
	stack := wifista.NewStack(wifista.NewEventLoop("test loop", 0))
	c.Assert(stack.Init(), qt.IsNil)
	netif, err := stack.Create(wifista.DefaultWifiStaConfig())
	c.Assert(err, qt.IsNil)

	mac, _ := net.ParseMAC("02:5e:00:00:00:01")
	netif.SetHardwareAddr(mac)
	netif.SetIPInfo(wifista.IPInfo{
		IP:      net.ParseIP("10.0.0.7").To4(),
		Netmask: net.ParseIP("255.0.0.0").To4(),
		Gateway: net.ParseIP("10.0.0.1").To4(),
	})
	_, err = netif.AddIP6(net.ParseIP("fe80::5e:ff:fe00:1"))
	c.Assert(err, qt.IsNil)

	r := NewReport(netif, "got_ip")
	c.Assert(r.Desc, qt.Equals, "sta")
	c.Assert(r.Key, qt.Equals, "WIFI_STA_DEF")
	c.Assert(r.MAC, qt.Equals, "02:5e:00:00:00:01")
	c.Assert(r.IP, qt.Equals, "10.0.0.7")
	c.Assert(r.Netmask, qt.Equals, "255.0.0.0")
	c.Assert(r.Gateway, qt.Equals, "10.0.0.1")
	c.Assert(r.IP6, qt.DeepEquals, []string{"fe80::5e:ff:fe00:1"})

	r.addIP6(net.ParseIP("fe80::5e:ff:fe00:1"))
	c.Assert(r.IP6, qt.HasLen, 1)

	var back map[string]any
	c.Assert(json.Unmarshal(r.JSON(), &back), qt.IsNil)
	c.Assert(back["ip"], qt.Equals, "10.0.0.7")
	c.Assert(back["event"], qt.Equals, "got_ip")

	r.clearAddrs()
	c.Assert(r.IP, qt.Equals, "")
	c.Assert(r.IP6, qt.IsNil)
}
