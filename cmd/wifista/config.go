package main

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/sim"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the wifista.yaml layout
type Config struct {
	SSID          string       `mapstructure:"ssid"`
	Password      string       `mapstructure:"password"`
	IPv6          bool         `mapstructure:"ipv6"`
	IPv6Type      string       `mapstructure:"ipv6_type"`      // link_local, global, ...
	ScanMethod    string       `mapstructure:"scan_method"`    // fast, all_channel
	SortMethod    string       `mapstructure:"sort_method"`    // signal, security
	RSSIThreshold int          `mapstructure:"rssi_threshold"` // dBm, 0 for any
	AuthThreshold string       `mapstructure:"auth_threshold"` // open, wep, wpa_psk, ...
	Driver        string       `mapstructure:"driver"`         // sim, espat
	ESPAT         ESPATConfig  `mapstructure:"espat"`
	Sim           SimConfig    `mapstructure:"sim"`
	Status        StatusConfig `mapstructure:"status"`
	MQTT          MQTTConfig   `mapstructure:"mqtt"`
	Log           LogConfig    `mapstructure:"log"`
	// DeadlockTimeout reports locks held longer than this, 0 to disable
	DeadlockTimeout time.Duration `mapstructure:"deadlock_timeout"`
}

type ESPATConfig struct {
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`
}

type SimConfig struct {
	MAC string     `mapstructure:"mac"`
	APs []APConfig `mapstructure:"aps"`
}

// APConfig is one simulated access point
type APConfig struct {
	SSID     string   `mapstructure:"ssid"`
	Password string   `mapstructure:"password"`
	Auth     string   `mapstructure:"auth"`
	RSSI     int      `mapstructure:"rssi"`
	Channel  int      `mapstructure:"channel"`
	IP       string   `mapstructure:"ip"` // CIDR, e.g. 192.168.4.2/24
	Gateway  string   `mapstructure:"gateway"`
	IP6      []string `mapstructure:"ip6"`
}

type StatusConfig struct {
	Listen  string `mapstructure:"listen"` // e.g. ":8000", empty to disable
	User    string `mapstructure:"user"`
	Passwd  string `mapstructure:"passwd"`
	TLSHost string `mapstructure:"tls_host"`
}

type MQTTConfig struct {
	Client   string `mapstructure:"client"` // none, paho, natiu
	Broker   string `mapstructure:"broker"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // rotated log file, empty for stderr
}

func setDefaults(v *viper.Viper) {
	def := wifista.DefaultConfig()
	v.SetDefault("ssid", def.SSID)
	v.SetDefault("password", def.Password)
	v.SetDefault("ipv6", false)
	v.SetDefault("ipv6_type", "link_local")
	v.SetDefault("scan_method", "fast")
	v.SetDefault("sort_method", "signal")
	v.SetDefault("rssi_threshold", 0)
	v.SetDefault("auth_threshold", def.AuthThreshold.String())
	v.SetDefault("deadlock_timeout", 30*time.Second)
	v.SetDefault("driver", "sim")
	v.SetDefault("espat.port", "/dev/ttyUSB0")
	v.SetDefault("espat.baud", 115200)
	v.SetDefault("sim.mac", "")
	v.SetDefault("sim.aps", []APConfig{})
	v.SetDefault("status.listen", "")
	v.SetDefault("status.user", "")
	v.SetDefault("status.passwd", "")
	v.SetDefault("status.tls_host", "")
	v.SetDefault("mqtt.client", "none")
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.topic", "wifista/status")
	v.SetDefault("mqtt.client_id", "wifista")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

// newViper layers flags over WIFISTA_* environment over the config file
// over defaults
func newViper(flags *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("wifista")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if flags == nil {
		return v, nil
	}
	binds := map[string]string{
		"ssid":      "ssid",
		"password":  "password",
		"ipv6":      "ipv6",
		"driver":    "driver",
		"port":      "espat.port",
		"listen":    "status.listen",
		"log-level": "log.level",
		"log-file":  "log.file",
	}
	for flag, key := range binds {
		if f := flags.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}
	return v, nil
}

// loadConfig reads file, or wifista.yaml from the usual places when file is
// empty.  A missing wifista.yaml is not an error.
func loadConfig(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("wifista")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wifista")
		v.AddConfigPath("/etc/wifista/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || file != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

var scanMethods = map[string]wifista.ScanMethod{
	"fast":        wifista.FastScan,
	"all_channel": wifista.AllChannelScan,
}

var sortMethods = map[string]wifista.SortMethod{
	"signal":   wifista.ConnectAPBySignal,
	"security": wifista.ConnectAPBySecurity,
}

// managerConfig validates and converts to the manager's config
func (c *Config) managerConfig() (wifista.Config, error) {
	mc := wifista.Config{
		SSID:        c.SSID,
		Password:    c.Password,
		ConnectIPv6: c.IPv6,
	}
	var ok bool
	var err error
	if mc.PreferredIP6Type, err = wifista.ParseIP6AddrType(c.IPv6Type); err != nil {
		return mc, err
	}
	if mc.ScanMethod, ok = scanMethods[c.ScanMethod]; !ok {
		return mc, fmt.Errorf("unknown scan_method %q", c.ScanMethod)
	}
	if mc.SortMethod, ok = sortMethods[c.SortMethod]; !ok {
		return mc, fmt.Errorf("unknown sort_method %q", c.SortMethod)
	}
	if c.RSSIThreshold < -128 || c.RSSIThreshold > 0 {
		return mc, fmt.Errorf("rssi_threshold %d out of range", c.RSSIThreshold)
	}
	mc.RSSIThreshold = int8(c.RSSIThreshold)
	if mc.AuthThreshold, err = wifista.ParseAuthMode(c.AuthThreshold); err != nil {
		return mc, err
	}
	return mc, nil
}

func (a APConfig) simAP() (sim.AP, error) {
	ap := sim.AP{
		SSID:     a.SSID,
		Password: a.Password,
		RSSI:     int8(a.RSSI),
		Channel:  uint8(a.Channel),
	}
	if a.Auth == "" {
		a.Auth = wifista.AuthWPA2PSK.String()
	}
	auth, err := wifista.ParseAuthMode(a.Auth)
	if err != nil {
		return ap, fmt.Errorf("ap %s: %w", a.SSID, err)
	}
	ap.Auth = auth
	if a.IP != "" {
		ip, subnet, err := net.ParseCIDR(a.IP)
		if err != nil {
			return ap, fmt.Errorf("ap %s: %w", a.SSID, err)
		}
		ap.Lease = wifista.IPInfo{
			IP:      ip.To4(),
			Netmask: net.IP(subnet.Mask),
			Gateway: net.ParseIP(a.Gateway).To4(),
		}
	}
	for _, s := range a.IP6 {
		ip := net.ParseIP(s)
		if ip == nil {
			return ap, fmt.Errorf("ap %s: bad ip6 %q", a.SSID, s)
		}
		ap.IP6 = append(ap.IP6, ip)
	}
	return ap, nil
}

func (s SimConfig) simConfig() (sim.Config, error) {
	var cfg sim.Config
	if s.MAC != "" {
		mac, err := net.ParseMAC(s.MAC)
		if err != nil {
			return cfg, err
		}
		cfg.MAC = mac
	}
	for _, a := range s.APs {
		ap, err := a.simAP()
		if err != nil {
			return cfg, err
		}
		cfg.APs = append(cfg.APs, ap)
	}
	return cfg, nil
}
