// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Flightlink - flight controller link protocol tool
//
// A CLI tool for monitoring, decoding and driving the flightlink framing
// protocol over a serial port or a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/flightlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
