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

var probeTimeout time.Duration

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Discover which commands the peer answers",
	Long: `Send a REQUEST for every command in turn and report which ones the peer
answers with a frame of that command.

Peers only answer requests for commands they have registered. REQUEST itself
is skipped since peers never answer a request for it.

Exit codes:
  0 - At least one command answered
  1 - No answers
  2 - Connection error`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", time.Second, "Time to wait for each answer")
}

// probeResult is the outcome for one command
type probeResult struct {
	ID       flightlink.CommandID
	Answered bool
	RTT      time.Duration
	Value    string
}

// prober requests every command over a running link
type prober struct {
	l        *link
	request  *flightlink.Handler[*flightlink.Request]
	received <-chan receivedFrame
	timeout  time.Duration
}

type receivedFrame struct {
	id   flightlink.CommandID
	body []byte
}

// newProber wires a request handler and a frame observer for l's handlers.
// It must be called before the link runs.
func newProber(l *link, request *flightlink.Handler[*flightlink.Request], timeout time.Duration) *prober {
	ch := make(chan receivedFrame, 16)
	l.onFrame = func(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
		if dir != flightlink.DirectionRx {
			return
		}
		select {
		case ch <- receivedFrame{id: id, body: append([]byte(nil), body...)}:
		default:
		}
	}
	return &prober{l: l, request: request, received: ch, timeout: timeout}
}

func (p *prober) probe(ctx context.Context, id flightlink.CommandID) (probeResult, error) {
	res := probeResult{ID: id}

drain:
	for {
		select {
		case <-p.received:
		default:
			break drain
		}
	}

	start := time.Now()
	if err := p.l.Do(func(m *flightlink.Manager) error {
		p.request.Value().ID = id
		return m.Transmit(flightlink.CmdRequest)
	}); err != nil {
		return res, err
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	for {
		select {
		case f := <-p.received:
			if f.id != id {
				continue
			}
			res.Answered = true
			res.RTT = time.Since(start)
			if v, err := flightlink.DecodeBody(f.id, f.body); err == nil {
				res.Value = flightlink.FormatPayload(v)
			}
			return res, nil
		case <-timer.C:
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	request := flightlink.NewRequestHandler(flightlink.CmdNone)
	l, err := openLink(ctx, handlerSet(request))
	if err != nil {
		return connectionError(err)
	}
	defer l.Close()
	p := newProber(l, request, probeTimeout)

	fmt.Printf("Flightlink - Probe\n")
	fmt.Printf("Connection: %s\n", l.info)
	fmt.Printf("Timeout: %s per command\n\n", probeTimeout)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = l.Run(runCtx) }()

	answered, probed := 0, 0
	for id := flightlink.CommandID(0); id < flightlink.CommandCount; id++ {
		if id == flightlink.CmdRequest {
			continue
		}
		probed++
		res, err := p.probe(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return connectionError(err)
		}
		status := "no answer"
		if res.Answered {
			answered++
			status = fmt.Sprintf("answered in %v", res.RTT.Round(time.Microsecond))
		}
		fmt.Printf("  %-22s %s\n", flightlink.FormatCommand(id), status)
		if res.Value != "" {
			fmt.Print(res.Value)
		}
	}

	fmt.Printf("\n--- Probe summary ---\n")
	fmt.Printf("%d of %d commands answered\n", answered, probed)
	if answered == 0 {
		return &ExitError{Code: exitFailed}
	}
	return nil
}
