// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
)

var (
	monitorRecord        string
	monitorMetricsAddr   string
	monitorStatsInterval int
	monitorShowHex       bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Display link traffic in human-readable format",
	Long: `Continuously decode and display flightlink frames as they arrive.

Each dispatched frame is printed with timestamp, command and decoded payload.
Corrupt frames and noise are skipped and counted; a statistics summary is
printed at --stats-interval and on exit.

Connection checks and requests from the peer are answered, so the
monitor behaves like a live endpoint.

  --record FILE        also write every frame to a capture file (see replay)
  --metrics-addr ADDR  serve Prometheus metrics on ADDR/metrics

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Write frames to a capture file")
	monitorCmd.Flags().StringVar(&monitorMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats-interval", 0, "Statistics summary interval in seconds (0 disables)")
	monitorCmd.Flags().BoolVar(&monitorShowHex, "hex", false, "Print the raw frame bytes")
}

func printFrame(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
	if dir == flightlink.DirectionTx {
		fmt.Print("TX ")
	}
	fmt.Print(flightlink.FormatFrame(time.Now(), id, body))
	if monitorShowHex {
		fmt.Printf("  Frame: %s\n", flightlink.FormatHex(flightlink.AppendFrame(nil, id, body)))
	}
}

func runMonitor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	l, err := openLink(ctx, handlerSet())
	if err != nil {
		return connectionError(err)
	}
	defer l.Close()
	l.onFrame = printFrame

	if monitorRecord != "" {
		f, err := os.Create(monitorRecord)
		if err != nil {
			return fmt.Errorf("create capture: %w", err)
		}
		defer f.Close()

		l.rec, err = flightlink.NewCaptureWriter(f, l.info)
		if err != nil {
			return err
		}
		logger.Info().
			Str("file", monitorRecord).
			Str("session", l.rec.Header().Session.String()).
			Msg("recording")
	}

	if monitorMetricsAddr != "" {
		serveMetrics(ctx, monitorMetricsAddr, newMetricsRegistry(l), logger)
	}

	fmt.Printf("Flightlink - Monitor\n")
	fmt.Printf("Connection: %s\n", l.info)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if monitorStatsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					stats := l.Stats()
					fmt.Print(stats.String())
				}
			}
		}()
	}

	err = l.Run(runCtx)
	stats := l.Stats()
	fmt.Printf("\n%s", stats.String())
	return err
}
