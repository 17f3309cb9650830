// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import "fmt"

// AppendFrame appends the wire frame for id and body to dst and returns the
// extended slice. The body is written as given; callers are responsible for
// supplying BodyLen(id) bytes.
func AppendFrame(dst []byte, id CommandID, body []byte) []byte {
	dst = append(dst, StartByte, byte(id))
	dst = append(dst, body...)
	return append(dst, Checksum(id, body), StopByte)
}

// PutFrame writes the frame for id and body into buf and returns the number
// of bytes written, or 0 if buf is too small.
func PutFrame(buf []byte, id CommandID, body []byte) int {
	n := len(body) + FrameOverhead
	if len(buf) < n {
		return 0
	}
	buf[0] = StartByte
	buf[1] = byte(id)
	copy(buf[2:], body)
	buf[n-2] = Checksum(id, body)
	buf[n-1] = StopByte
	return n
}

// DecodeFrame validates a complete frame and returns its identifier and body.
// The body aliases frame. Any violation returns an error wrapping
// ErrInvalidFrame.
func DecodeFrame(frame []byte) (CommandID, []byte, error) {
	if len(frame) < FrameOverhead {
		return CmdNone, nil, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidFrame, len(frame))
	}
	if frame[0] != StartByte {
		return CmdNone, nil, fmt.Errorf("%w: bad start byte 0x%02X", ErrInvalidFrame, frame[0])
	}
	last := len(frame) - 1
	if frame[last] != StopByte {
		return CmdNone, nil, fmt.Errorf("%w: bad stop byte 0x%02X", ErrInvalidFrame, frame[last])
	}

	id := CommandID(frame[1])
	body := frame[2 : last-1]
	if sum := Checksum(id, body); sum != frame[last-1] {
		return CmdNone, nil, fmt.Errorf("%w: checksum mismatch: expected 0x%02X, got 0x%02X",
			ErrInvalidFrame, sum, frame[last-1])
	}
	if !id.Valid() {
		return CmdNone, nil, fmt.Errorf("%w: unknown command 0x%02X", ErrInvalidFrame, frame[1])
	}
	if len(body) != BodyLen(id) {
		return CmdNone, nil, fmt.Errorf("%w: %s body is %d bytes (expected %d)",
			ErrInvalidFrame, FormatCommand(id), len(body), BodyLen(id))
	}

	return id, body, nil
}
