// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

var portsDetailed bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long: `List the serial ports available on this machine.

With --detailed, USB ports are shown with their vendor and product IDs and
serial number where the platform reports them.`,
	Args: cobra.NoArgs,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsDetailed, "detailed", false, "Show USB details")
}

func runPorts(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if !portsDetailed {
		ports, err := serial.GetPortsList()
		if err != nil {
			return fmt.Errorf("list ports: %w", err)
		}
		if len(ports) == 0 {
			fmt.Fprintln(out, "No serial ports found")
			return nil
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	}

	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}
	if len(ports) == 0 {
		fmt.Fprintln(out, "No serial ports found")
		return nil
	}
	for _, p := range ports {
		if !p.IsUSB {
			fmt.Fprintln(out, p.Name)
			continue
		}
		fmt.Fprintf(out, "%s  USB %s:%s", p.Name, p.VID, p.PID)
		if p.SerialNumber != "" {
			fmt.Fprintf(out, "  serial=%s", p.SerialNumber)
		}
		if p.Product != "" {
			fmt.Fprintf(out, "  %s", p.Product)
		}
		fmt.Fprintln(out)
	}
	return nil
}
