package main

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/spf13/pflag"

	"github.com/merliot/wifista"
)

const testYAML = `
ssid: home
password: secret
ipv6: true
ipv6_type: global
scan_method: all_channel
sort_method: security
rssi_threshold: -70
auth_threshold: wpa2_psk
driver: sim
sim:
  mac: "02:00:00:00:00:42"
  aps:
    - ssid: home
      password: secret
      auth: wpa2_psk
      rssi: -40
      channel: 11
      ip: 192.168.4.2/24
      gateway: 192.168.4.1
      ip6: ["2001:db8::2"]
status:
  listen: ":8000"
log:
  level: debug
`

func writeConfig(c *qt.C, body string) string {
	path := filepath.Join(c.TempDir(), "wifista.yaml")
	c.Assert(os.WriteFile(path, []byte(body), 0o600), qt.IsNil)
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	c := qt.New(t)
	c.Setenv("HOME", c.TempDir())
	dir := c.TempDir()
	wd, _ := os.Getwd()
	c.Assert(os.Chdir(dir), qt.IsNil)
	c.Cleanup(func() { os.Chdir(wd) })

	v, err := newViper(nil)
	c.Assert(err, qt.IsNil)
	cfg, err := loadConfig(v, "")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Driver, qt.Equals, "sim")
	c.Assert(cfg.ESPAT.Baud, qt.Equals, 115200)
	c.Assert(cfg.MQTT.Client, qt.Equals, "none")

	mc, err := cfg.managerConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(mc, qt.DeepEquals, wifista.DefaultConfig())
}

func TestLoadConfigFile(t *testing.T) {
	c := qt.New(t)
	v, err := newViper(nil)
	c.Assert(err, qt.IsNil)
	cfg, err := loadConfig(v, writeConfig(c, testYAML))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.SSID, qt.Equals, "home")
	c.Assert(cfg.Status.Listen, qt.Equals, ":8000")
	c.Assert(cfg.Log.Level, qt.Equals, "debug")
	c.Assert(cfg.Sim.APs, qt.HasLen, 1)

	mc, err := cfg.managerConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(mc.ConnectIPv6, qt.IsTrue)
	c.Assert(mc.PreferredIP6Type, qt.Equals, wifista.IP6AddrGlobal)
	c.Assert(mc.ScanMethod, qt.Equals, wifista.AllChannelScan)
	c.Assert(mc.SortMethod, qt.Equals, wifista.ConnectAPBySecurity)
	c.Assert(mc.RSSIThreshold, qt.Equals, int8(-70))
	c.Assert(mc.AuthThreshold, qt.Equals, wifista.AuthWPA2PSK)

	sc, err := cfg.Sim.simConfig()
	c.Assert(err, qt.IsNil)
	c.Assert(sc.MAC.String(), qt.Equals, "02:00:00:00:00:42")
	ap := sc.APs[0]
	c.Assert(ap.Auth, qt.Equals, wifista.AuthWPA2PSK)
	c.Assert(ap.Channel, qt.Equals, uint8(11))
	c.Assert(ap.Lease.IP.String(), qt.Equals, "192.168.4.2")
	c.Assert(ap.Lease.Netmask.String(), qt.Equals, "255.255.255.0")
	c.Assert(ap.Lease.Gateway.String(), qt.Equals, "192.168.4.1")
	c.Assert(ap.IP6[0].String(), qt.Equals, "2001:db8::2")
}

func TestLoadConfigMissingFile(t *testing.T) {
	c := qt.New(t)
	v, _ := newViper(nil)
	_, err := loadConfig(v, filepath.Join(c.TempDir(), "nope.yaml"))
	c.Assert(err, qt.ErrorMatches, "failed to read config file: .*")
}

func TestConfigEnvAndFlags(t *testing.T) {
	c := qt.New(t)
	c.Setenv("WIFISTA_SSID", "from-env")
	c.Setenv("WIFISTA_STATUS_LISTEN", ":9000")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("password", "", "")
	flags.String("driver", "", "")
	c.Assert(flags.Parse([]string{"--password", "from-flag"}), qt.IsNil)

	v, err := newViper(flags)
	c.Assert(err, qt.IsNil)
	cfg, err := loadConfig(v, writeConfig(c, testYAML))
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.SSID, qt.Equals, "from-env")
	c.Assert(cfg.Password, qt.Equals, "from-flag")
	c.Assert(cfg.Status.Listen, qt.Equals, ":9000")
	// unset flag leaves the file's value
	c.Assert(cfg.Driver, qt.Equals, "sim")
}

func TestManagerConfigErrors(t *testing.T) {
	c := qt.New(t)
	good := Config{
		IPv6Type:      "link_local",
		ScanMethod:    "fast",
		SortMethod:    "signal",
		AuthThreshold: "wpa_psk",
	}
	_, err := good.managerConfig()
	c.Assert(err, qt.IsNil)

	tests := []struct {
		about string
		edit  func(*Config)
		err   string
	}{
		{"scan", func(cfg *Config) { cfg.ScanMethod = "slow" }, `unknown scan_method "slow"`},
		{"sort", func(cfg *Config) { cfg.SortMethod = "name" }, `unknown sort_method "name"`},
		{"rssi", func(cfg *Config) { cfg.RSSIThreshold = 10 }, `rssi_threshold 10 out of range`},
		{"auth", func(cfg *Config) { cfg.AuthThreshold = "wpa9" }, `unknown auth mode: wpa9`},
		{"ip6", func(cfg *Config) { cfg.IPv6Type = "odd" }, `unknown IPv6 address type: odd`},
	}
	for _, test := range tests {
		c.Run(test.about, func(c *qt.C) {
			cfg := good
			test.edit(&cfg)
			_, err := cfg.managerConfig()
			c.Assert(err, qt.ErrorMatches, test.err)
		})
	}
}

func TestSimAPErrors(t *testing.T) {
	c := qt.New(t)
	_, err := APConfig{SSID: "x", Auth: "bogus"}.simAP()
	c.Assert(err, qt.ErrorMatches, "ap x: unknown auth mode: bogus")
	_, err = APConfig{SSID: "x", IP: "10.0.0.1"}.simAP()
	c.Assert(err, qt.IsNotNil)
	_, err = APConfig{SSID: "x", IP6: []string{"nope"}}.simAP()
	c.Assert(err, qt.ErrorMatches, `ap x: bad ip6 "nope"`)

	ap, err := APConfig{SSID: "open"}.simAP()
	c.Assert(err, qt.IsNil)
	c.Assert(ap.Auth, qt.Equals, wifista.AuthWPA2PSK)
}
