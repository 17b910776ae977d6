//go:build tinygo

// tinygo flash -monitor -target pico -ldflags '-X "main.ssid=xxx" -X "main.pass=xxx" -X "main.ip=192.168.1.50/24" -X "main.gw=192.168.1.1"' ./cmd/wifista-tiny

package main

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/probe"
)

var (
	ssid string
	pass string
	ip   string
	gw   string
)

func staticIP() wifista.IPInfo {
	addr, subnet, err := net.ParseCIDR(ip)
	if err != nil {
		return wifista.IPInfo{}
	}
	return wifista.IPInfo{
		IP:      addr.To4(),
		Netmask: net.IP(subnet.Mask).To4(),
		Gateway: net.ParseIP(gw).To4(),
	}
}

func main() {
	// wait a bit for serial
	time.Sleep(2 * time.Second)

	cfg := wifista.DefaultConfig()
	if ssid != "" {
		cfg.SSID, cfg.Password = ssid, pass
	}

	loop := wifista.NewEventLoop("default", 0)
	stack := wifista.NewStack(loop)
	m := wifista.New(cfg, stack, loop, probe.Probe(staticIP()))

	if err := m.Run(context.Background()); err != nil {
		log.Fatal(err)
	}
}
