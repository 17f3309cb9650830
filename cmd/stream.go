// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var (
	streamRate  float64
	streamCount int
	streamQuiet bool
)

var streamCmd = &cobra.Command{
	Use:   "stream <command> [args...]",
	Short: "Transmit one command repeatedly at a fixed rate",
	Long: `Transmit the same command frame at --rate frames per second until --count
frames have been sent or the command is interrupted.

Arguments are the same as for send. Frames received meanwhile are decoded and
answered, and a statistics summary is printed on exit. Useful for soak testing
a receiver or feeding a ground station with synthetic telemetry.

Examples:
  flightlink stream gps 52.52 13.405 3 --rate 10 --port /dev/ttyUSB0
  flightlink stream connection_check 1 --rate 50 --count 1000 --url ws://bridge.local/link`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStream,
}

func init() {
	rootCmd.AddCommand(streamCmd)
	streamCmd.Flags().Float64Var(&streamRate, "rate", 10, "Frames per second")
	streamCmd.Flags().IntVar(&streamCount, "count", 0, "Stop after this many frames (0 runs until interrupted)")
	streamCmd.Flags().BoolVar(&streamQuiet, "quiet", false, "Do not print received frames")
}

// streamFrames transmits id through l at limiter's rate until count frames are
// sent (0 means unlimited) or ctx is done. It returns the number sent.
func streamFrames(ctx context.Context, l *link, id flightlink.CommandID, limiter *rate.Limiter, count int) (int, error) {
	sent := 0
	for count == 0 || sent < count {
		if err := limiter.Wait(ctx); err != nil {
			// cancelled
			return sent, nil
		}
		if err := l.Transmit(id); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func runStream(cmd *cobra.Command, args []string) error {
	if streamRate <= 0 {
		return fmt.Errorf("--rate must be positive")
	}
	id, payload, err := parseCommandArgs(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	l, err := openLink(ctx, handlerSet(flightlink.NewHandler(id, payload)))
	if err != nil {
		return connectionError(err)
	}
	defer l.Close()
	if !streamQuiet {
		l.onFrame = func(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
			if dir == flightlink.DirectionRx {
				fmt.Print(flightlink.FormatFrame(time.Now(), id, body))
			}
		}
	}

	fmt.Printf("Flightlink - Stream\n")
	fmt.Printf("Connection: %s\n", l.info)
	fmt.Printf("Streaming %s at %.1f Hz\n\n", flightlink.FormatCommand(id), streamRate)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() {
		runErr <- l.Run(runCtx)
		cancel()
	}()

	limiter := rate.NewLimiter(rate.Limit(streamRate), 1)
	start := time.Now()
	sent, err := streamFrames(runCtx, l, id, limiter, streamCount)
	elapsed := time.Since(start)
	cancel()

	stats := l.Stats()
	fmt.Printf("\n%d frames sent in %s (%.1f/s)\n", sent, elapsed.Round(time.Millisecond), float64(sent)/elapsed.Seconds())
	fmt.Print(stats.String())

	if err != nil {
		return connectionError(err)
	}
	if rerr := <-runErr; rerr != nil {
		return connectionError(rerr)
	}
	return nil
}
