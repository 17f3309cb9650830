// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Constants Tests
// ============================================================

func TestBodyLen_Table(t *testing.T) {
	tests := []struct {
		id       CommandID
		expected int
	}{
		{CmdConnectionCheck, 1},
		{CmdSensorStatus, 1},
		{CmdRequest, 1},
		{CmdGoal, 16},
		{CmdAltitude, 10},
		{CmdMode, 1},
		{CmdAbsoluteNavigation, 10},
		{CmdRelativeNavigation, 13},
		{CmdServoParachuteLeft, 7},
		{CmdServoParachuteRight, 7},
		{CmdServoStabilizer, 7},
		{CmdGPS, 17},
		{CmdIMU, 36},
	}

	for _, tt := range tests {
		t.Run(FormatCommand(tt.id), func(t *testing.T) {
			if got := BodyLen(tt.id); got != tt.expected {
				t.Errorf("BodyLen: expected %d, got %d", tt.expected, got)
			}
			if got := FrameLen(tt.id); got != tt.expected+FrameOverhead {
				t.Errorf("FrameLen: expected %d, got %d", tt.expected+FrameOverhead, got)
			}
		})
	}
}

func TestBodyLen_Invalid(t *testing.T) {
	for _, id := range []CommandID{CmdNone, 14, 0x73, 0xFF} {
		if id.Valid() {
			t.Errorf("0x%02X should not be valid", uint8(id))
		}
		if BodyLen(id) != -1 || FrameLen(id) != -1 {
			t.Errorf("0x%02X should have no length", uint8(id))
		}
	}
}

func TestSizeLimits(t *testing.T) {
	if CommandCount != 13 {
		t.Errorf("CommandCount: expected 13, got %d", CommandCount)
	}
	if MaxBodyLen != 36 || MaxFrameLen != 40 || RingCapacity != 80 {
		t.Errorf("unexpected limits: body=%d frame=%d ring=%d", MaxBodyLen, MaxFrameLen, RingCapacity)
	}
	for id := CommandID(0); id < CommandCount; id++ {
		if BodyLen(id) > MaxBodyLen {
			t.Errorf("%s body exceeds MaxBodyLen", FormatCommand(id))
		}
	}
}

// ============================================================
// Checksum Tests
// ============================================================

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		id       CommandID
		body     []byte
		expected uint8
	}{
		{"mode", CmdMode, []byte{0x5A}, 0x5F},
		{"empty body", CmdIMU, nil, 0x0C},
		{"wraps", CmdGPS, []byte{0xFF, 0xFF}, 0x09},
		{"all zero", CmdConnectionCheck, []byte{0}, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.id, tt.body); got != tt.expected {
				t.Errorf("expected 0x%02X, got 0x%02X", tt.expected, got)
			}
		})
	}
}

// ============================================================
// Frame Codec Tests
// ============================================================

func TestAppendFrame_Mode(t *testing.T) {
	frame := AppendFrame(nil, CmdMode, []byte{0x5A})
	expected := []byte{StartByte, 0x05, 0x5A, 0x5F, StopByte}
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected % X, got % X", expected, frame)
	}
}

func TestPutFrame(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5, 6, 7}
	buf := make([]byte, MaxFrameLen)
	n := PutFrame(buf, CmdServoStabilizer, body)
	if n != FrameLen(CmdServoStabilizer) {
		t.Fatalf("expected %d bytes, got %d", FrameLen(CmdServoStabilizer), n)
	}
	if !bytes.Equal(buf[:n], AppendFrame(nil, CmdServoStabilizer, body)) {
		t.Error("PutFrame and AppendFrame disagree")
	}

	if PutFrame(make([]byte, 5), CmdServoStabilizer, body) != 0 {
		t.Error("short buffer should return 0")
	}
}

func TestDecodeFrame_RoundTrip(t *testing.T) {
	for id := CommandID(0); id < CommandCount; id++ {
		body := make([]byte, BodyLen(id))
		for i := range body {
			body[i] = byte(i*7 + int(id))
		}
		frame := AppendFrame(nil, id, body)

		gotID, gotBody, err := DecodeFrame(frame)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", FormatCommand(id), err)
		}
		if gotID != id {
			t.Errorf("%s: decoded id %d", FormatCommand(id), gotID)
		}
		if !bytes.Equal(gotBody, body) {
			t.Errorf("%s: body mismatch", FormatCommand(id))
		}
	}
}

func TestDecodeFrame_BodyMayContainFramingBytes(t *testing.T) {
	body := []byte{StopByte, StartByte, StopByte, StartByte, 0, 0, 0}
	_, got, err := DecodeFrame(AppendFrame(nil, CmdServoParachuteLeft, body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Errorf("expected % X, got % X", body, got)
	}
}

func TestDecodeFrame_Invalid(t *testing.T) {
	valid := AppendFrame(nil, CmdMode, []byte{0x5A})
	mutate := func(i int, v byte) []byte {
		f := bytes.Clone(valid)
		f[i] = v
		return f
	}

	tests := []struct {
		name  string
		frame []byte
	}{
		{"too short", []byte{StartByte, 0x05, StopByte}},
		{"bad start", mutate(0, 'x')},
		{"bad stop", mutate(4, 'x')},
		{"bad checksum", mutate(3, 0x00)},
		{"unknown id", AppendFrame(nil, 0x20, []byte{0x5A})},
		{"none id", AppendFrame(nil, CmdNone, []byte{0x5A})},
		{"long body", AppendFrame(nil, CmdMode, []byte{0x5A, 0x00})},
		{"empty body", AppendFrame(nil, CmdMode, nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, body, err := DecodeFrame(tt.frame)
			if !errors.Is(err, ErrInvalidFrame) {
				t.Fatalf("expected ErrInvalidFrame, got %v", err)
			}
			if id != CmdNone || body != nil {
				t.Errorf("expected no output on error, got id=%d body=% X", id, body)
			}
		})
	}
}

// Any single corrupted byte must be caught: start, stop and id are checked
// directly, and a changed id or body byte moves the checksum.
func TestDecodeFrame_SingleByteMutation(t *testing.T) {
	for id := CommandID(0); id < CommandCount; id++ {
		body := make([]byte, BodyLen(id))
		for i := range body {
			body[i] = byte(0x30 + i)
		}
		frame := AppendFrame(nil, id, body)

		for pos := range frame {
			for delta := 1; delta < 256; delta += 17 {
				f := bytes.Clone(frame)
				f[pos] += byte(delta)
				if _, _, err := DecodeFrame(f); err == nil {
					t.Fatalf("%s: mutation at %d (+%d) accepted", FormatCommand(id), pos, delta)
				}
			}
		}
	}
}
