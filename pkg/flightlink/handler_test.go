// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"errors"
	"testing"
)

func TestHandler_ReceiveUpdatesValue(t *testing.T) {
	h := NewModeHandler()
	reply, err := h.Receive([]byte{0x5A})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != CmdNone {
		t.Errorf("mode should not request a reply, got %s", FormatCommand(reply))
	}
	if *h.Value() != 0x5A {
		t.Errorf("expected 0x5A, got 0x%02X", uint8(*h.Value()))
	}
}

func TestHandler_CallbackSeesFreshValue(t *testing.T) {
	var seen []uint8
	h := NewServoConfigHandler(CmdServoStabilizer, WithCallback(func(s *ServoConfig) {
		seen = append(seen, uint8(s.State))
		s.CloseCount = 42 // callback may adjust the kept value
	}))

	body := (&ServoConfig{State: ServoClose, CloseCount: 2000}).AppendBody(nil)
	if _, err := h.Receive(body); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != uint8(ServoClose) {
		t.Errorf("callback not invoked with decoded value: %v", seen)
	}
	if h.Value().CloseCount != 42 {
		t.Errorf("callback change not kept: %d", h.Value().CloseCount)
	}
}

func TestHandler_WrongLengthKeepsValue(t *testing.T) {
	calls := 0
	h := NewModeHandler(WithCallback(func(*Mode) { calls++ }))
	*h.Value() = 7

	reply, err := h.Receive([]byte{1, 2})
	if !errors.Is(err, ErrBodyLength) {
		t.Fatalf("expected ErrBodyLength, got %v", err)
	}
	if reply != CmdNone {
		t.Errorf("expected no reply on error, got %s", FormatCommand(reply))
	}
	if *h.Value() != 7 {
		t.Errorf("value changed on error: %d", *h.Value())
	}
	if calls != 1 {
		t.Errorf("callback should still run once, ran %d times", calls)
	}
}

func TestHandler_UpdateRunsBeforeEncode(t *testing.T) {
	counter := uint8(0)
	h := NewConnectionCheckHandler(WithUpdate(func(c *ConnectionCheck) {
		counter++
		c.Value = counter
	}))

	first := h.Transmit(nil)
	second := h.Transmit(nil)
	if first[0] != 1 || second[0] != 2 {
		t.Errorf("expected 01 then 02, got %02X then %02X", first[0], second[0])
	}
}

func TestHandler_SetHooks(t *testing.T) {
	h := NewGPSHandler()
	got := false
	h.SetCallback(func(*GPS) { got = true })
	h.SetUpdate(func(g *GPS) { g.FixStatus = 9 })

	if _, err := h.Receive(make([]byte, GPSLen)); err != nil {
		t.Fatal(err)
	}
	if !got {
		t.Error("callback not invoked")
	}
	if body := h.Transmit(nil); body[16] != 9 {
		t.Errorf("update not applied: % X", body)
	}
}

func TestConnectionCheckHandler_Reply(t *testing.T) {
	tests := []struct {
		name     string
		body     byte
		reply    CommandID
		loopback bool
	}{
		{"plain check", 0x05, CmdConnectionCheck, true},
		{"echo", 0x85, CmdNone, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewConnectionCheckHandler()
			reply, err := h.Receive([]byte{tt.body})
			if err != nil {
				t.Fatal(err)
			}
			if reply != tt.reply {
				t.Errorf("expected reply %s, got %s", FormatCommand(tt.reply), FormatCommand(reply))
			}
			if h.Value().Value != 0x05 || h.Value().Loopback != tt.loopback {
				t.Errorf("unexpected value after receive: %+v", *h.Value())
			}
		})
	}
}

func TestRequestHandler_Reply(t *testing.T) {
	tests := []struct {
		name     string
		body     byte
		expected CommandID
	}{
		{"valid", byte(CmdGPS), CmdGPS},
		{"first", byte(CmdConnectionCheck), CmdConnectionCheck},
		{"none", byte(CmdNone), CmdNone},
		{"self", byte(CmdRequest), CmdNone},
		{"out of range", 0xEE, CmdNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRequestHandler(CmdNone)
			reply, err := h.Receive([]byte{tt.body})
			if err != nil {
				t.Fatal(err)
			}
			if reply != tt.expected {
				t.Errorf("expected %s, got %s", FormatCommand(tt.expected), FormatCommand(reply))
			}
		})
	}
}

func TestRequestHandler_TransmitTarget(t *testing.T) {
	h := NewRequestHandler(CmdIMU)
	if body := h.Transmit(nil); len(body) != 1 || body[0] != byte(CmdIMU) {
		t.Errorf("expected % X, got % X", []byte{byte(CmdIMU)}, body)
	}
}

func TestRequestHandler_ReceivedIDReplacesTarget(t *testing.T) {
	var seen CommandID = CmdNone
	h := NewRequestHandler(CmdIMU, WithCallback(func(r *Request) { seen = r.ID }))

	if _, err := h.Receive([]byte{byte(CmdGPS)}); err != nil {
		t.Fatal(err)
	}
	if seen != CmdGPS {
		t.Errorf("callback saw %s", FormatCommand(seen))
	}
	if body := h.Transmit(nil); body[0] != byte(CmdGPS) {
		t.Errorf("expected the received id, got % X", body)
	}

	h.Value().ID = CmdIMU
	if body := h.Transmit(nil); body[0] != byte(CmdIMU) {
		t.Errorf("expected the restored target, got % X", body)
	}
}

func TestNewDefaultHandlers(t *testing.T) {
	hs := NewDefaultHandlers()
	if len(hs) != CommandCount {
		t.Fatalf("expected %d handlers, got %d", CommandCount, len(hs))
	}
	for i, h := range hs {
		if h.ID() != CommandID(i) {
			t.Errorf("handler %d has id %s", i, FormatCommand(h.ID()))
		}
		if h.BodyLen() != BodyLen(h.ID()) {
			t.Errorf("%s: BodyLen %d", FormatCommand(h.ID()), h.BodyLen())
		}
		if got := len(h.Transmit(nil)); got != h.BodyLen() {
			t.Errorf("%s: transmitted %d bytes", FormatCommand(h.ID()), got)
		}
	}
}
