package main

import (
	"io"
	"log/slog"

	"github.com/merliot/wifista"
	"github.com/spf13/cobra"
)

var (
	configFile string
	cfg        *Config
	logger     *slog.Logger
	logCloser  io.Closer
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wifista",
		Short:         "Wi-Fi station bring-up",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg, err = loadConfig(v, configFile); err != nil {
				return err
			}
			logger, logCloser = newLogger(cfg.Log, cmd.ErrOrStderr())
			wifista.SetDeadlockTimeout(cfg.DeadlockTimeout)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if logCloser != nil {
				return logCloser.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (default wifista.yaml in ., $HOME/.wifista, /etc/wifista)")
	flags.String("ssid", "", "AP to join")
	flags.String("password", "", "AP password")
	flags.Bool("ipv6", false, "also wait for an IPv6 address")
	flags.String("driver", "", "radio: sim or espat")
	flags.String("port", "", "ESP-AT serial port")
	flags.String("listen", "", "status server address, e.g. :8000")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-file", "", "log to this file, rotated")

	root.AddCommand(runCmd(), consoleCmd())
	return root
}

func execute() error {
	return newRootCmd().Execute()
}
