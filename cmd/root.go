// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFile string

	vcfg     = viper.New()
	cfg      *Config
	logger   = zerolog.Nop()
	closeLog = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "flightlink",
	Short: "Flight controller link protocol tool",
	Long: `Flightlink - A CLI tool for talking to flight controllers over the
flightlink framing protocol.

Provides commands for monitoring, decoding and recording link traffic, sending
and streaming commands, and checking link health.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

Every flag can also be set in a YAML config file (--config, or
./flightlink.yaml, or ~/.config/flightlink/flightlink.yaml) or through
FLIGHTLINK_* environment variables, e.g. FLIGHTLINK_PORT, FLIGHTLINK_LOG_LEVEL.

For WebSocket authentication, the password is read from the FLIGHTLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = LoadConfig(vcfg, configFile)
		if err != nil {
			return err
		}
		logger, closeLog, err = InitLogger(cfg.Log, os.Stderr)
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()

	flags.StringVar(&configFile, "config", "", "Config file (YAML)")

	// Serial connection flags
	flags.StringP("port", "p", "", "Serial port device")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	flags.StringP("url", "u", "", "WebSocket URL (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth")
	flags.Bool("no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Logging flags
	flags.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.String("log-file", "", "Write JSON logs to a rotated file instead of stderr")

	for key, flag := range map[string]string{
		"port":          "port",
		"baud":          "baud",
		"url":           "url",
		"username":      "username",
		"no_ssl_verify": "no-ssl-verify",
		"log.level":     "log-level",
		"log.file":      "log-file",
	} {
		if err := vcfg.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}

// Execute runs the root command until it finishes or the process is
// interrupted
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		var exit *ExitError
		if !errors.As(err, &exit) || exit.Err != nil {
			rootCmd.PrintErrln("Error:", err)
		}
	}
	return err
}
