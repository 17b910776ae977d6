package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func simConfig() *Config {
	return &Config{
		SSID:          "home",
		Password:      "secret",
		IPv6Type:      "link_local",
		ScanMethod:    "fast",
		SortMethod:    "signal",
		AuthThreshold: "wpa_psk",
		Driver:        "sim",
		Sim: SimConfig{APs: []APConfig{{
			SSID:     "home",
			Password: "secret",
			RSSI:     -40,
			IP:       "192.168.4.2/24",
			Gateway:  "192.168.4.1",
		}}},
		MQTT: MQTTConfig{Client: "none"},
	}
}

func newTestConsole(c *qt.C, cfg *Config) (*console, *bytes.Buffer) {
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Assert(err, qt.IsNil)
	c.Assert(a.start(), qt.IsNil)
	c.Cleanup(a.close)
	out := &bytes.Buffer{}
	return &console{app: a, out: out}, out
}

func TestConsoleConnect(t *testing.T) {
	c := qt.New(t)
	con, out := newTestConsole(c, simConfig())
	ctx := context.Background()

	c.Assert(con.exec(ctx, "status"), qt.IsNil)
	c.Assert(out.String(), qt.Contains, "not connected")

	c.Assert(con.exec(ctx, "connect"), qt.IsNil)
	out.Reset()
	c.Assert(con.exec(ctx, "status"), qt.IsNil)
	c.Assert(out.String(), qt.Contains, "wifimanager: sta (WIFI_STA_DEF) up=true")
	c.Assert(out.String(), qt.Contains, "- IPv4 address: 192.168.4.2/255.255.255.0 gw 192.168.4.1")

	c.Assert(con.exec(ctx, "kick 200"), qt.IsNil)
	c.Assert(con.exec(ctx, "kick x"), qt.ErrorMatches, `bad reason "x"`)

	c.Assert(con.exec(ctx, "disconnect"), qt.IsNil)
	c.Assert(con.exec(ctx, "disconnect"), qt.IsNotNil)
	c.Assert(con.exec(ctx, "kick"), qt.ErrorMatches, "not associated")
}

func TestConsoleAPs(t *testing.T) {
	c := qt.New(t)
	con, out := newTestConsole(c, simConfig())
	ctx := context.Background()

	c.Assert(con.exec(ctx, `ap add "cafe wifi" latte -60`), qt.IsNil)
	c.Assert(con.exec(ctx, "ap add lobby"), qt.IsNil)
	c.Assert(con.exec(ctx, "ap list"), qt.IsNil)
	c.Assert(out.String(), qt.Contains, "cafe wifi")
	c.Assert(out.String(), qt.Contains, "lobby")
	c.Assert(out.String(), qt.Contains, "open")

	c.Assert(con.exec(ctx, "ap del lobby"), qt.IsNil)
	c.Assert(con.exec(ctx, "ap del lobby"), qt.ErrorMatches, `no ap "lobby"`)
	c.Assert(con.exec(ctx, "ap add"), qt.ErrorMatches, "usage: .*")
	c.Assert(con.exec(ctx, "ap add x y notanumber"), qt.ErrorMatches, `bad rssi "notanumber"`)
	c.Assert(con.exec(ctx, "ap frob"), qt.ErrorMatches, `unknown ap command "frob"`)
}

func TestConsoleLoop(t *testing.T) {
	c := qt.New(t)
	con, out := newTestConsole(c, simConfig())
	in := strings.NewReader("help\nbogus\n\"unterminated\nquit\nstatus\n")
	c.Assert(con.loop(context.Background(), in), qt.IsNil)
	s := out.String()
	c.Assert(s, qt.Contains, "ap add ssid")
	c.Assert(s, qt.Contains, `error: unknown command "bogus", try help`)
	c.Assert(s, qt.Contains, "error: ")
	// nothing runs after quit
	c.Assert(s, qt.Not(qt.Contains), "not connected")
}

func TestNewAppErrors(t *testing.T) {
	c := qt.New(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := simConfig()
	cfg.Driver = "carrier-pigeon"
	_, err := newApp(cfg, log)
	c.Assert(err, qt.ErrorMatches, `unknown driver "carrier-pigeon"`)

	cfg = simConfig()
	cfg.MQTT.Client = "smoke-signals"
	_, err = newApp(cfg, log)
	c.Assert(err, qt.ErrorMatches, `unknown mqtt client "smoke-signals"`)

	cfg = simConfig()
	cfg.ScanMethod = "slow"
	_, err = newApp(cfg, log)
	c.Assert(err, qt.IsNotNil)
}

func TestAppRunCancelled(t *testing.T) {
	c := qt.New(t)
	cfg := simConfig()
	cfg.SSID = "elsewhere"
	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.Assert(err, qt.IsNil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Assert(a.run(ctx), qt.IsNil)
}
