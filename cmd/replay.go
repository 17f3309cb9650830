// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
)

var (
	replayYAML bool
	replayFeed bool
	replayRx   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Print the frames stored in a capture file",
	Long: `Read a capture written by "monitor --record" and print its frames.

With --feed, the received frames are pushed back through a fresh stream
reassembler as raw bytes and its statistics are printed, which is a quick way
to check that a capture reproduces the same dispatch behaviour.

Examples:
  flightlink replay flight.cap
  flightlink replay --yaml --rx-only flight.cap
  flightlink replay --feed flight.cap`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().BoolVar(&replayYAML, "yaml", false, "Print frames as YAML documents")
	replayCmd.Flags().BoolVar(&replayFeed, "feed", false, "Feed received frames through a reassembler and print statistics")
	replayCmd.Flags().BoolVar(&replayRx, "rx-only", false, "Skip transmitted frames")
}

// readCapture returns the header and every record in r
func readCapture(r io.Reader) (flightlink.CaptureHeader, []*flightlink.CaptureRecord, error) {
	cr, err := flightlink.NewCaptureReader(r)
	if err != nil {
		return flightlink.CaptureHeader{}, nil, err
	}
	var recs []*flightlink.CaptureRecord
	for {
		rec, err := cr.Next()
		if errors.Is(err, io.EOF) {
			return cr.Header(), recs, nil
		}
		if err != nil {
			return cr.Header(), recs, fmt.Errorf("record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}

func captureDoc(rec *flightlink.CaptureRecord) frameDoc {
	doc := newFrameDoc(rec.Command, rec.Body)
	t := rec.Time
	doc.Time = &t
	doc.Direction = rec.Direction.String()
	return doc
}

func runReplay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	hdr, recs, err := readCapture(f)
	if err != nil && len(recs) == 0 {
		return err
	}
	if err != nil {
		logger.Warn().Err(err).Msg("capture truncated")
	}

	out := cmd.OutOrStdout()
	if replayRx {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Direction == flightlink.DirectionRx {
				kept = append(kept, rec)
			}
		}
		recs = kept
	}

	if !replayYAML {
		fmt.Fprintf(out, "Capture: %s\n", args[0])
		fmt.Fprintf(out, "Session: %s\n", hdr.Session)
		fmt.Fprintf(out, "Source: %s\n", hdr.Source)
		fmt.Fprintf(out, "Started: %s\n", hdr.Started.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Frames: %d\n\n", len(recs))
	}

	if replayFeed {
		return feedCapture(cmd, recs)
	}

	if replayYAML {
		docs := make([]frameDoc, len(recs))
		for i, rec := range recs {
			docs[i] = captureDoc(rec)
		}
		return writeFrameDocs(out, docs)
	}
	for _, rec := range recs {
		if rec.Direction == flightlink.DirectionTx {
			fmt.Fprint(out, "TX ")
		}
		fmt.Fprint(out, flightlink.FormatFrame(rec.Time, rec.Command, rec.Body))
	}
	return nil
}

// feedCapture rebuilds the received byte stream and runs it through a Manager
func feedCapture(cmd *cobra.Command, recs []*flightlink.CaptureRecord) error {
	d := newFrameDecoder()
	var stream []byte
	for _, rec := range recs {
		if rec.Direction == flightlink.DirectionRx {
			stream = append(stream, rec.Frame()...)
		}
	}
	frames := d.decode(stream)

	stats := d.mgr.Stats()
	fmt.Fprintf(cmd.OutOrStdout(), "Replayed %d bytes, %d frames dispatched\n\n", len(stream), len(frames))
	fmt.Fprint(cmd.OutOrStdout(), stats.String())
	return nil
}
