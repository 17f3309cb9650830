// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
)

var rawDuration time.Duration

var rawCmd = &cobra.Command{
	Use:   "raw",
	Short: "Dump raw bytes received from the connection",
	Long: `Read from the connection without framing and print every chunk as hex.

Nothing is decoded or answered. Useful for debugging baud rate mismatches,
bridge configuration and connection stability. Feed the output to "decode"
to recover frames later.

Runs until --duration elapses (0 runs until interrupted).

Exit codes:
  0 - Completed normally
  2 - Connection error`,
	RunE: runRaw,
}

func init() {
	rootCmd.AddCommand(rawCmd)
	rawCmd.Flags().DurationVar(&rawDuration, "duration", 0, "Stop after this long (0 runs until interrupted)")
}

func runRaw(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	conn, connInfo, err := OpenConnection(ctx, cfg)
	if err != nil {
		return connectionError(err)
	}
	defer conn.Close()

	fmt.Printf("Flightlink - Raw Dump\n")
	fmt.Printf("Connection: %s\n\n", connInfo)

	if rawDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rawDuration)
		defer cancel()
	}

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				readChan <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	chunks, total := 0, 0
	summary := func() {
		fmt.Printf("\n--- Raw dump ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Chunks received: %d\n", chunks)
		fmt.Printf("Bytes received: %d\n", total)
	}

	for {
		select {
		case data := <-readChan:
			chunks++
			total += len(data)
			fmt.Printf("[%s] %3d bytes: %s\n", time.Now().Format("15:04:05.000"), len(data), flightlink.FormatHex(data))

		case err := <-errChan:
			summary()
			if err == ErrConnectionClosed {
				return nil
			}
			return connectionError(err)

		case <-ctx.Done():
			summary()
			return nil
		}
	}
}
