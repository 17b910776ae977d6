package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/merliot/wifista"
	"github.com/merliot/wifista/drivers/sim"
	"github.com/merliot/wifista/status"
	"github.com/spf13/cobra"
)

var connectTimeout = 30 * time.Second

var errQuit = errors.New("quit")

func consoleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Interactive console for poking at the station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			if err := a.start(); err != nil {
				return err
			}
			defer a.close()
			con := &console{app: a, out: cmd.OutOrStdout()}
			return con.loop(cmd.Context(), cmd.InOrStdin())
		},
	}
}

type console struct {
	app *app
	out io.Writer
}

func (c *console) loop(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		err := c.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			fmt.Fprintf(c.out, "error: %s\r\n", err)
		}
		fmt.Fprint(c.out, "> ")
	}
	return scanner.Err()
}

const consoleHelp = `status                        show the station netif
connect                       connect and wait for IP(s)
disconnect                    tear down the station
kick [reason]                 drop the association (sim)
ap add ssid [password [rssi]] add an access point (sim)
ap del ssid                   remove an access point (sim)
ap list                       list access points (sim)
help                          this
quit                          leave`

// exec runs one console line
func (c *console) exec(ctx context.Context, line string) error {
	args, err := shlex.Split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	switch args[0] {
	case "status":
		return c.status()
	case "connect":
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		return c.app.mgr.Connect(ctx)
	case "disconnect":
		return c.app.mgr.Disconnect()
	case "kick":
		return c.kick(args[1:])
	case "ap":
		return c.ap(args[1:])
	case "help":
		fmt.Fprintf(c.out, "%s\r\n", strings.ReplaceAll(consoleHelp, "\n", "\r\n"))
		return nil
	case "quit", "exit":
		return errQuit
	}
	return fmt.Errorf("unknown command %q, try help", args[0])
}

func (c *console) status() error {
	netif := c.app.mgr.Netif()
	if netif == nil {
		fmt.Fprintf(c.out, "not connected\r\n")
		return nil
	}
	r := status.NewReport(netif, "status")
	fmt.Fprintf(c.out, "%s (%s) up=%t mac=%s\r\n", r.Desc, r.Key, r.Up, r.MAC)
	if r.IP != "" {
		fmt.Fprintf(c.out, "- IPv4 address: %s/%s gw %s\r\n", r.IP, r.Netmask, r.Gateway)
	}
	for _, ip := range netif.AllIP6() {
		fmt.Fprintf(c.out, "- IPv6 address: %s, type: %s\r\n", ip, wifista.IP6AddrTypeOf(ip))
	}
	return nil
}

func (c *console) radio() (*sim.Driver, error) {
	if c.app.radio == nil {
		return nil, fmt.Errorf("not supported by driver %s", c.app.cfg.Driver)
	}
	return c.app.radio, nil
}

func (c *console) kick(args []string) error {
	radio, err := c.radio()
	if err != nil {
		return err
	}
	reason := wifista.ReasonBeaconTimeout
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 8)
		if err != nil {
			return fmt.Errorf("bad reason %q", args[0])
		}
		reason = wifista.Reason(n)
	}
	if !radio.Kick(reason) {
		return errors.New("not associated")
	}
	return nil
}

func (c *console) ap(args []string) error {
	radio, err := c.radio()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return errors.New("usage: ap add|del|list")
	}
	switch args[0] {
	case "list":
		for _, ap := range radio.APs() {
			fmt.Fprintf(c.out, "%-32s %-16s %4d dBm ch %d\r\n", ap.SSID, ap.Auth, ap.RSSI, ap.Channel)
		}
		return nil
	case "add":
		if len(args) < 2 || len(args) > 4 {
			return errors.New("usage: ap add ssid [password [rssi]]")
		}
		cfg := APConfig{SSID: args[1], IP: "192.168.4.2/24", Gateway: "192.168.4.1", RSSI: -50}
		if len(args) > 2 {
			cfg.Password = args[2]
		} else {
			cfg.Auth = wifista.AuthOpen.String()
		}
		if len(args) > 3 {
			rssi, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("bad rssi %q", args[3])
			}
			cfg.RSSI = rssi
		}
		ap, err := cfg.simAP()
		if err != nil {
			return err
		}
		radio.AddAP(ap)
		return nil
	case "del":
		if len(args) != 2 {
			return errors.New("usage: ap del ssid")
		}
		if radio.RemoveAP(args[1]) == 0 {
			return fmt.Errorf("no ap %q", args[1])
		}
		return nil
	}
	return fmt.Errorf("unknown ap command %q", args[0])
}
