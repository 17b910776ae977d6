package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect and hold the connection until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, logger)
			if err != nil {
				return err
			}
			logger.Info("Starting wifista...", "driver", cfg.Driver, "ssid", cfg.SSID)
			if err := a.run(ctx); err != nil {
				return err
			}
			logger.Info("Goodbye.")
			return nil
		},
	}
}
