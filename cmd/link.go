// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/rs/zerolog"
)

// frameFunc observes one received or transmitted frame
type frameFunc func(dir flightlink.Direction, id flightlink.CommandID, body []byte)

// link couples a connection to a Manager. The Manager is not safe for
// concurrent use, so the read loop and every transmitting caller go through mu.
// Handler hooks and the frame observer run with mu held and must not call
// back into the link.
type link struct {
	mu      sync.Mutex
	mgr     *flightlink.Manager
	conn    Connection
	info    string
	rec     *flightlink.CaptureWriter
	onFrame frameFunc
	log     zerolog.Logger
}

// tap reports successfully received bodies to fn
type tap struct {
	flightlink.CommandHandler
	fn frameFunc
}

func (t tap) Receive(body []byte) (flightlink.CommandID, error) {
	reply, err := t.CommandHandler.Receive(body)
	if err == nil {
		t.fn(flightlink.DirectionRx, t.ID(), body)
	}
	return reply, err
}

// tapAll wraps every handler in hs
func tapAll(hs []flightlink.CommandHandler, fn frameFunc) []flightlink.CommandHandler {
	out := make([]flightlink.CommandHandler, len(hs))
	for i, h := range hs {
		out[i] = tap{CommandHandler: h, fn: fn}
	}
	return out
}

// txSink is the Manager's sink: each Write is exactly one frame
type txSink struct {
	l *link
}

func (s txSink) Write(p []byte) (int, error) {
	n, err := s.l.conn.Write(p)
	if err != nil {
		return n, err
	}
	if id, body, derr := flightlink.DecodeFrame(p); derr == nil {
		s.l.observe(flightlink.DirectionTx, id, body)
	}
	return n, nil
}

// handlerSet returns one default handler per command with any overrides
// swapped in for their identifier
func handlerSet(overrides ...flightlink.CommandHandler) []flightlink.CommandHandler {
	hs := flightlink.NewDefaultHandlers()
	for _, o := range overrides {
		hs[o.ID()] = o
	}
	return hs
}

func newLink(conn Connection, info string, log zerolog.Logger, handlers []flightlink.CommandHandler) *link {
	l := &link{conn: conn, info: info, log: log}
	l.mgr = flightlink.NewManager(
		flightlink.WithSink(txSink{l}),
		flightlink.WithLogger(log),
		flightlink.WithHandlers(tapAll(handlers, l.observe)...),
	)
	return l
}

// openLink opens the configured connection and wraps it in a link
func openLink(ctx context.Context, handlers []flightlink.CommandHandler) (*link, error) {
	conn, info, err := OpenConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("connection", info).Msg("connected")
	return newLink(conn, info, logger, handlers), nil
}

func (l *link) observe(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
	if l.rec != nil {
		if err := l.rec.Write(dir, id, body); err != nil {
			l.log.Warn().Err(err).Msg("capture write failed")
		}
	}
	if l.onFrame != nil {
		l.onFrame(dir, id, body)
	}
}

// Do runs fn with exclusive access to the Manager
func (l *link) Do(fn func(m *flightlink.Manager) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.mgr)
}

// payloadHolder is a handler that exposes its live value
type payloadHolder interface {
	Payload() flightlink.Payload
}

// Send copies p into the live value of id and transmits it
func (l *link) Send(id flightlink.CommandID, p flightlink.Payload) error {
	return l.Do(func(m *flightlink.Manager) error {
		h := m.Handler(id)
		if t, ok := h.(tap); ok {
			h = t.CommandHandler
		}
		holder, ok := h.(payloadHolder)
		if !ok {
			return fmt.Errorf("%w: %s", flightlink.ErrUnregistered, flightlink.FormatCommand(id))
		}
		if err := holder.Payload().UnmarshalBody(p.AppendBody(nil)); err != nil {
			return err
		}
		return m.Transmit(id)
	})
}

// Transmit sends the current value of id
func (l *link) Transmit(id flightlink.CommandID) error {
	return l.Do(func(m *flightlink.Manager) error {
		return m.Transmit(id)
	})
}

// Stats returns a snapshot of the link statistics
func (l *link) Stats() flightlink.Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mgr.Stats()
}

// Buffered returns the number of received bytes awaiting a complete frame
func (l *link) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mgr.Buffered()
}

func (l *link) Close() error {
	return l.conn.Close()
}

// Run feeds the Manager from the connection until ctx is done or the
// connection fails. A peer closing the connection is not an error.
func (l *link) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := l.conn.Read(buf)
			if n > 0 {
				l.mu.Lock()
				_, _ = l.mgr.Write(buf[:n])
				l.mu.Unlock()
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, ErrConnectionClosed) || errors.Is(err, io.EOF) {
			l.log.Info().Str("connection", l.info).Msg("connection closed")
			return nil
		}
		return fmt.Errorf("read: %w", err)
	}
}
