// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// CaptureVersion is the capture file format version
const CaptureVersion = 1

// Direction of a captured frame
type Direction uint8

const (
	DirectionRx Direction = iota
	DirectionTx
)

func (d Direction) String() string {
	if d == DirectionTx {
		return "TX"
	}
	return "RX"
}

// CaptureHeader is the first item of a capture file
type CaptureHeader struct {
	Version uint8     `cbor:"0,keyasint"`
	Session uuid.UUID `cbor:"1,keyasint"`
	Started time.Time `cbor:"2,keyasint"`
	Source  string    `cbor:"3,keyasint,omitempty"`
}

// CaptureRecord is one frame in a capture file
type CaptureRecord struct {
	Time      time.Time `cbor:"0,keyasint"`
	Direction Direction `cbor:"1,keyasint"`
	Command   CommandID `cbor:"2,keyasint"`
	Body      []byte    `cbor:"3,keyasint"`
}

// Frame returns the wire frame for the record
func (r *CaptureRecord) Frame() []byte {
	return AppendFrame(make([]byte, 0, len(r.Body)+FrameOverhead), r.Command, r.Body)
}

var captureEncMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// CaptureWriter writes a stream of CBOR items: one header then records
type CaptureWriter struct {
	enc    *cbor.Encoder
	header CaptureHeader
}

// NewCaptureWriter writes a new header with a fresh session id to w
func NewCaptureWriter(w io.Writer, source string) (*CaptureWriter, error) {
	cw := &CaptureWriter{
		enc: captureEncMode.NewEncoder(w),
		header: CaptureHeader{
			Version: CaptureVersion,
			Session: uuid.New(),
			Started: time.Now().UTC(),
			Source:  source,
		},
	}
	if err := cw.enc.Encode(&cw.header); err != nil {
		return nil, fmt.Errorf("failed to write capture header: %w", err)
	}
	return cw, nil
}

// Header returns the header written at creation
func (cw *CaptureWriter) Header() CaptureHeader {
	return cw.header
}

// Write appends one record. The body is copied by the encoder.
func (cw *CaptureWriter) Write(dir Direction, id CommandID, body []byte) error {
	rec := CaptureRecord{
		Time:      time.Now().UTC(),
		Direction: dir,
		Command:   id,
		Body:      body,
	}
	if err := cw.enc.Encode(&rec); err != nil {
		return fmt.Errorf("failed to write capture record: %w", err)
	}
	return nil
}

// CaptureReader reads a capture file
type CaptureReader struct {
	dec    *cbor.Decoder
	header CaptureHeader
}

// NewCaptureReader reads and checks the header from r
func NewCaptureReader(r io.Reader) (*CaptureReader, error) {
	cr := &CaptureReader{dec: cbor.NewDecoder(r)}
	if err := cr.dec.Decode(&cr.header); err != nil {
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if cr.header.Version != CaptureVersion {
		return nil, fmt.Errorf("unsupported capture version %d (expected %d)", cr.header.Version, CaptureVersion)
	}
	return cr, nil
}

// Header returns the capture header
func (cr *CaptureReader) Header() CaptureHeader {
	return cr.header
}

// Next returns the next record, or io.EOF at the end of the file
func (cr *CaptureReader) Next() (*CaptureRecord, error) {
	var rec CaptureRecord
	if err := cr.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to read capture record: %w", err)
	}
	if len(rec.Body) != BodyLen(rec.Command) {
		return nil, fmt.Errorf("%w: %s record has %d body bytes", ErrBodyLength, FormatCommand(rec.Command), len(rec.Body))
	}
	return &rec, nil
}
