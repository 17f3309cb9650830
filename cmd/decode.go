// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	decodeYAML   bool
	decodeBinary bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode [hex...]",
	Short: "Decode flightlink frames from hex or a binary dump",
	Long: `Run bytes through the stream reassembler offline and print every frame
that is recovered.

Bytes are given as hex arguments, or read from stdin when no argument or "-"
is given. Separators such as spaces, colons and 0x prefixes are ignored.
With --binary, stdin is read as raw bytes instead of hex text.

Noise between frames is skipped and counted, exactly as on a live link.

Examples:
  flightlink decode 73 05 02 07 65
  flightlink decode --yaml 7305020765
  flightlink decode --binary < capture.bin`,
	RunE: runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeYAML, "yaml", false, "Print frames as YAML documents")
	decodeCmd.Flags().BoolVar(&decodeBinary, "binary", false, "Read raw bytes from stdin instead of hex")
}

// frameDoc is the YAML form of one frame
type frameDoc struct {
	Time      *time.Time         `yaml:"time,omitempty"`
	Direction string             `yaml:"direction,omitempty"`
	Command   string             `yaml:"command"`
	ID        uint8              `yaml:"id"`
	Body      string             `yaml:"body"`
	Payload   flightlink.Payload `yaml:"payload,omitempty"`

	raw []byte
}

func newFrameDoc(id flightlink.CommandID, body []byte) frameDoc {
	doc := frameDoc{
		Command: flightlink.FormatCommand(id),
		ID:      uint8(id),
		Body:    flightlink.FormatHex(body),
		raw:     body,
	}
	if p, err := flightlink.DecodeBody(id, body); err == nil {
		doc.Payload = p
	}
	return doc
}

// frameDecoder feeds bytes through a Manager and collects dispatched frames
type frameDecoder struct {
	mgr    *flightlink.Manager
	frames []frameDoc
}

func newFrameDecoder() *frameDecoder {
	d := &frameDecoder{}
	d.mgr = flightlink.NewManager(
		flightlink.WithSink(io.Discard),
		flightlink.WithLogger(logger),
		flightlink.WithHandlers(tapAll(flightlink.NewDefaultHandlers(), d.record)...),
	)
	return d
}

func (d *frameDecoder) record(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
	d.frames = append(d.frames, newFrameDoc(id, append([]byte(nil), body...)))
}

// decode feeds data and returns the frames recovered from it
func (d *frameDecoder) decode(data []byte) []frameDoc {
	d.frames = nil
	_, _ = d.mgr.Write(data)
	return d.frames
}

func readDecodeInput(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		if decodeBinary {
			return raw, nil
		}
		return ParseHex(string(raw))
	}
	return ParseHex(strings.Join(args, " "))
}

func writeFrameDocs(w io.Writer, docs []frameDoc) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for i := range docs {
		if err := enc.Encode(&docs[i]); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
	}
	return enc.Close()
}

func runDecode(cmd *cobra.Command, args []string) error {
	data, err := readDecodeInput(args, cmd.InOrStdin())
	if err != nil {
		return err
	}

	d := newFrameDecoder()
	frames := d.decode(data)
	out := cmd.OutOrStdout()

	if decodeYAML {
		if err := writeFrameDocs(out, frames); err != nil {
			return err
		}
	} else {
		for _, f := range frames {
			fmt.Fprint(out, flightlink.FormatFrame(time.Now(), flightlink.CommandID(f.ID), f.raw))
		}
	}

	stats := d.mgr.Stats()
	fmt.Fprintf(cmd.ErrOrStderr(), "%d bytes, %d frames, %d skipped bytes, %d invalid, %d decode errors, %d pending\n",
		len(data), len(frames), stats.SkippedBytes, stats.InvalidFrames, stats.DecodeErrors, d.mgr.Buffered())
	return nil
}
