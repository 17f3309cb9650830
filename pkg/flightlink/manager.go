// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package flightlink

import (
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// Manager is the command registry, stream reassembler and dispatcher for one
// link. It does no locking and never blocks: run it from a single goroutine
// and guard handler values yourself if they are read elsewhere.
type Manager struct {
	handlers [CommandCount]CommandHandler
	rx       ring
	frame    [MaxFrameLen]byte // materialised receive frame
	tx       [MaxFrameLen]byte // transmit scratch
	sink     io.Writer
	log      zerolog.Logger
	stats    Statistics
}

// Option configures a Manager
type Option func(*Manager)

// WithSink sets the transport that transmitted frames are written to
func WithSink(w io.Writer) Option {
	return func(m *Manager) { m.sink = w }
}

// WithLogger sets the logger used for dropped frames and buffer events
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithHandlers registers handlers at construction. It panics on a
// registration error, like MustRegister.
func WithHandlers(hs ...CommandHandler) Option {
	return func(m *Manager) { m.MustRegister(hs...) }
}

// NewManager creates a manager with an empty registry
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		log:   zerolog.Nop(),
		stats: NewStatistics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds h to the registry. Each identifier takes one handler.
func (m *Manager) Register(h CommandHandler) error {
	id := h.ID()
	if !id.Valid() {
		return fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, uint8(id))
	}
	if m.handlers[id] != nil {
		return fmt.Errorf("%w: %s", ErrSlotTaken, FormatCommand(id))
	}
	m.handlers[id] = h
	return nil
}

// MustRegister registers every handler and panics on the first error
func (m *Manager) MustRegister(hs ...CommandHandler) {
	for _, h := range hs {
		if err := m.Register(h); err != nil {
			panic(err)
		}
	}
}

// Handler returns the handler registered for id, or nil
func (m *Manager) Handler(id CommandID) CommandHandler {
	if !id.Valid() {
		return nil
	}
	return m.handlers[id]
}

// SetSink replaces the transport sink
func (m *Manager) SetSink(w io.Writer) {
	m.sink = w
}

// Stats returns a copy of the link statistics
func (m *Manager) Stats() Statistics {
	return m.stats
}

// ResetStats clears the link statistics
func (m *Manager) ResetStats() {
	m.stats.Reset()
}

// Buffered returns the number of received bytes not yet scanned
func (m *Manager) Buffered() int {
	return m.rx.unread
}

// Reset drops everything in the receive buffer
func (m *Manager) Reset() {
	m.rx.reset()
}

// Receive appends a chunk of transport bytes to the receive buffer.
//
// A chunk larger than RingCapacity resets the buffer and is dropped
// (ErrOversizedInput). Unread bytes may be overwritten when the buffer is
// full; the oldest bytes are lost. Call Process or Drain afterwards.
func (m *Manager) Receive(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if len(chunk) > RingCapacity {
		m.rx.reset()
		m.stats.Resets++
		m.stats.touch()
		m.log.Warn().Int("len", len(chunk)).Int("capacity", RingCapacity).Msg("oversized input, receive buffer reset")
		return fmt.Errorf("%w: %d bytes (capacity %d)", ErrOversizedInput, len(chunk), RingCapacity)
	}

	if m.rx.write(chunk) {
		m.stats.Overflows++
		m.log.Debug().Int("len", len(chunk)).Msg("receive buffer overflow, unread bytes overwritten")
	}
	m.stats.BytesReceived += uint64(len(chunk))
	return nil
}

// Process scans the receive buffer and dispatches at most one frame.
// It returns the dispatched identifier, or CmdNone when no complete frame is
// ready. Candidates that fail validation are consumed and scanning goes on.
func (m *Manager) Process() CommandID {
	q := &m.rx
	for q.unread > 0 {
		if q.at(0) != StartByte {
			q.skip(1)
			m.stats.SkippedBytes++
			continue
		}
		if q.unread < 2 {
			break
		}

		id := CommandID(q.at(1))
		if !id.Valid() {
			q.skip(1)
			m.stats.SkippedBytes++
			continue
		}

		n := FrameLen(id)
		if q.unread < n {
			// Partial frame, wait for more bytes
			break
		}
		if q.at(n-1) != StopByte {
			q.skip(1)
			m.stats.SkippedBytes++
			continue
		}

		frame := m.frame[:n]
		q.peek(frame)
		q.skip(n)

		got, err := m.ReceiveFrame(frame)
		if err != nil {
			continue
		}
		return got
	}
	return CmdNone
}

// Drain calls Process until no frame is ready and returns the number of
// frames dispatched.
func (m *Manager) Drain() int {
	count := 0
	for m.Process() != CmdNone {
		count++
	}
	return count
}

// Feed is Receive followed by Drain
func (m *Manager) Feed(chunk []byte) (int, error) {
	if err := m.Receive(chunk); err != nil {
		return 0, err
	}
	return m.Drain(), nil
}

// Write implements io.Writer for stream sources. p is fed in pieces no
// larger than one frame, draining after each, so arbitrarily large reads
// never trip the oversized input reset.
func (m *Manager) Write(p []byte) (int, error) {
	for off := 0; off < len(p); off += MaxFrameLen {
		end := off + MaxFrameLen
		if end > len(p) {
			end = len(p)
		}
		if _, err := m.Feed(p[off:end]); err != nil {
			return off, err
		}
	}
	return len(p), nil
}

// ReceiveFrame validates one complete frame and dispatches it
func (m *Manager) ReceiveFrame(frame []byte) (CommandID, error) {
	id, body, err := DecodeFrame(frame)
	if err != nil {
		m.stats.InvalidFrames++
		m.stats.touch()
		m.log.Debug().Err(err).Msg("dropped frame")
		return CmdNone, err
	}
	if err := m.Dispatch(id, body); err != nil {
		return CmdNone, err
	}
	return id, nil
}

// Dispatch hands body to the handler registered for id. If the handler asks
// for a reply, the requested command is transmitted before Dispatch returns.
func (m *Manager) Dispatch(id CommandID, body []byte) error {
	h := m.Handler(id)
	if h == nil {
		m.stats.Unregistered++
		m.stats.touch()
		m.log.Debug().Str("cmd", FormatCommand(id)).Msg("no handler registered")
		return fmt.Errorf("%w: %s", ErrUnregistered, FormatCommand(id))
	}

	reply, err := h.Receive(body)
	if err != nil {
		m.stats.DecodeErrors++
		m.stats.touch()
		m.log.Debug().Err(err).Str("cmd", FormatCommand(id)).Msg("decode failed")
		return err
	}
	m.stats.FramesReceived++
	m.stats.PerCommand[id]++
	m.stats.touch()

	if reply != CmdNone {
		if err := m.Transmit(reply); err != nil {
			m.log.Warn().Err(err).Str("cmd", FormatCommand(reply)).Msg("reply not sent")
		}
	}
	return nil
}

// Transmit encodes the current value of id and writes the frame to the sink.
// An unregistered id is a no-op.
func (m *Manager) Transmit(id CommandID) error {
	if m.Handler(id) == nil {
		return nil
	}
	if m.sink == nil {
		return ErrNoSink
	}
	n := m.EncodeFrameTo(m.tx[:], id)
	if n == 0 {
		return fmt.Errorf("%w: %s encoded to wrong length", ErrBodyLength, FormatCommand(id))
	}
	if _, err := m.sink.Write(m.tx[:n]); err != nil {
		return fmt.Errorf("write %s: %w", FormatCommand(id), err)
	}
	m.stats.FramesSent++
	m.stats.touch()
	return nil
}

// EncodeFrame returns the transmit frame for id, or nil if id is unregistered
func (m *Manager) EncodeFrame(id CommandID) []byte {
	frame, err := m.AppendFrame(nil, id)
	if err != nil {
		return nil
	}
	return frame
}

// AppendFrame appends the transmit frame for id to dst
func (m *Manager) AppendFrame(dst []byte, id CommandID) ([]byte, error) {
	h := m.Handler(id)
	if h == nil {
		return dst, fmt.Errorf("%w: %s", ErrUnregistered, FormatCommand(id))
	}

	start := len(dst)
	dst = append(dst, StartByte, byte(id))
	dst = h.Transmit(dst)
	body := dst[start+2:]
	if len(body) != BodyLen(id) {
		return dst[:start], fmt.Errorf("%w: %s body is %d bytes", ErrBodyLength, FormatCommand(id), len(body))
	}
	return append(dst, Checksum(id, body), StopByte), nil
}

// EncodeFrameTo writes the transmit frame for id into buf without
// allocating. It returns the frame length, or 0 if id is unregistered or buf
// is too small.
func (m *Manager) EncodeFrameTo(buf []byte, id CommandID) int {
	h := m.Handler(id)
	if h == nil {
		return 0
	}
	n := FrameLen(id)
	if len(buf) < n {
		return 0
	}

	body := h.Transmit(buf[2:2:n])
	if len(body) != n-FrameOverhead {
		return 0
	}
	buf[0] = StartByte
	buf[1] = byte(id)
	buf[n-2] = Checksum(id, body)
	buf[n-1] = StopByte
	return n
}

// IsDropped reports whether err is one of the recoverable link errors
func IsDropped(err error) bool {
	return errors.Is(err, ErrInvalidFrame) ||
		errors.Is(err, ErrUnregistered) ||
		errors.Is(err, ErrOversizedInput) ||
		errors.Is(err, ErrBodyLength)
}
