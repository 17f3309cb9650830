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

var (
	pingTimeout  time.Duration
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure round trip time with loopback connection checks",
	Long: `Send CONNECTION_CHECK frames and wait for the peer to echo each one back
with the loopback bit set.

Each ping carries a 6-bit sequence value so late echoes are not mistaken for
the current one.

Exit codes:
  0 - All pings answered
  1 - One or more pings timed out
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", 2*time.Second, "Time to wait for each echo")
	pingCmd.Flags().IntVar(&pingCount, "count", 4, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 500*time.Millisecond, "Delay between pings")
}

// pingResult is the outcome of one ping
type pingResult struct {
	Seq uint8
	RTT time.Duration
	OK  bool
}

// newEchoHandler returns a connection check handler that reports the value of
// every echo (loopback set) on the returned channel. Plain checks from the
// peer are still answered by the handler's own reply.
func newEchoHandler() (*flightlink.Handler[*flightlink.ConnectionCheck], <-chan uint8) {
	echoes := make(chan uint8, 8)
	h := flightlink.NewConnectionCheckHandler(
		flightlink.WithCallback(func(c *flightlink.ConnectionCheck) {
			if !c.Loopback {
				return
			}
			select {
			case echoes <- c.Value:
			default:
			}
		}),
	)
	return h, echoes
}

// pinger sends loopback checks over a running link
type pinger struct {
	l       *link
	check   *flightlink.Handler[*flightlink.ConnectionCheck]
	echoes  <-chan uint8
	timeout time.Duration
}

// ping sends one check with sequence seq and waits for its echo
func (p *pinger) ping(ctx context.Context, seq uint8) (pingResult, error) {
	res := pingResult{Seq: seq & flightlink.ConnectionCheckValueMask}

	// Discard echoes that arrived after an earlier timeout
drain:
	for {
		select {
		case <-p.echoes:
		default:
			break drain
		}
	}

	start := time.Now()
	if err := p.l.Do(func(m *flightlink.Manager) error {
		v := p.check.Value()
		v.Value = res.Seq
		v.Loopback = false
		return m.Transmit(flightlink.CmdConnectionCheck)
	}); err != nil {
		return res, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case v := <-p.echoes:
			if v != res.Seq {
				continue
			}
			res.RTT = time.Since(start)
			res.OK = true
			return res, nil
		case <-timer.C:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

func runPing(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	check, echoes := newEchoHandler()
	l, err := openLink(ctx, handlerSet(check))
	if err != nil {
		return connectionError(err)
	}
	defer l.Close()

	fmt.Printf("Flightlink - Ping\n")
	fmt.Printf("Connection: %s\n", l.info)
	fmt.Printf("Timeout: %s per ping\n", pingTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- l.Run(runCtx) }()

	p := &pinger{l: l, check: check, echoes: echoes, timeout: pingTimeout}
	answered := 0
	var total time.Duration

	sent := 0
	for i := 0; i < pingCount; i++ {
		if i > 0 {
			select {
			case <-time.After(pingInterval):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			break
		}

		fmt.Printf("Ping %d/%d: ", i+1, pingCount)
		res, err := p.ping(ctx, uint8(i))
		if err != nil {
			if ctx.Err() != nil {
				fmt.Println("interrupted")
				break
			}
			fmt.Printf("SEND FAILED: %v\n", err)
			return connectionError(err)
		}
		sent++
		if res.OK {
			answered++
			total += res.RTT
			fmt.Printf("echo seq=%d rtt=%v\n", res.Seq, res.RTT.Round(time.Microsecond))
		} else {
			fmt.Printf("TIMEOUT (no echo in %s)\n", pingTimeout)
		}

		select {
		case err := <-runErr:
			if err != nil {
				return connectionError(err)
			}
			return connectionError(ErrConnectionClosed)
		default:
		}
	}

	fmt.Printf("\n--- Ping statistics ---\n")
	loss := 0.0
	if sent > 0 {
		loss = float64(sent-answered) / float64(sent) * 100
	}
	fmt.Printf("%d pings sent, %d echoes received, %.0f%% loss\n", sent, answered, loss)
	if answered > 0 {
		fmt.Printf("average rtt %v\n", (total / time.Duration(answered)).Round(time.Microsecond))
	}

	if answered < sent {
		return &ExitError{Code: exitFailed}
	}
	return nil
}
