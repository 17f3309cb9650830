// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
)

var sendWait time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <command> [args...]",
	Short: "Send one command frame",
	Long: `Build one frame from the command line and write it to the connection.

Commands and their arguments:
` + usageTable() + `
Integers accept 0x and 0b prefixes. Servo states are disabled, open, center,
close or a number. A request names the command the peer should send back.

With --wait, received frames are printed for that long after sending, which is
useful for seeing the answer to a request.

Examples:
  flightlink send mode 2 --port /dev/ttyUSB0
  flightlink send request gps --wait 1s --port /dev/ttyUSB0
  flightlink send servo_stabilizer center 1000 1500 2000 --url ws://bridge.local/link`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Print received frames for this long after sending")
}

// parseCommandArgs resolves "<command> [args...]" into an identifier and payload
func parseCommandArgs(args []string) (flightlink.CommandID, flightlink.Payload, error) {
	id, ok := flightlink.ParseCommand(args[0])
	if !ok {
		return flightlink.CmdNone, nil, fmt.Errorf("unknown command %q (one of: %s)", args[0], commandList())
	}
	p, err := ParsePayload(id, args[1:])
	if err != nil {
		return flightlink.CmdNone, nil, err
	}
	return id, p, nil
}

func commandList() string {
	names := make([]string, 0, flightlink.CommandCount)
	for id := flightlink.CommandID(0); id < flightlink.CommandCount; id++ {
		names = append(names, strings.ToLower(flightlink.FormatCommand(id)))
	}
	return strings.Join(names, ", ")
}

func runSend(cmd *cobra.Command, args []string) error {
	id, payload, err := parseCommandArgs(args)
	if err != nil {
		return err
	}

	l, err := openLink(cmd.Context(), handlerSet(flightlink.NewHandler(id, payload)))
	if err != nil {
		return connectionError(err)
	}
	defer l.Close()

	var frame []byte
	if err := l.Do(func(m *flightlink.Manager) error {
		frame = m.EncodeFrame(id)
		return m.Transmit(id)
	}); err != nil {
		return err
	}
	fmt.Printf("Sent %s: %s\n", flightlink.FormatCommand(id), flightlink.FormatHex(frame))

	if sendWait <= 0 {
		return nil
	}

	l.onFrame = func(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
		if dir == flightlink.DirectionRx {
			fmt.Print(flightlink.FormatFrame(time.Now(), id, body))
		}
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), sendWait)
	defer cancel()
	return l.Run(ctx)
}
