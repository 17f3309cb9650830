// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// pipeLink returns a link over one end of an in-memory pipe and the other end
func pipeLink(t *testing.T, handlers []flightlink.CommandHandler) (*link, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return newLink(a, "pipe", zerolog.Nop(), handlers), b
}

// runLink runs l until the test ends and returns its result channel
func runLink(t *testing.T, l *link) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

// collect reads whole writes from conn. net.Pipe delivers each write to a
// single read when the buffer is large enough.
func collect(conn net.Conn) <-chan []byte {
	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				out <- append([]byte(nil), buf[:n]...)
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

// servePeer answers frames arriving on conn with a Manager of its own
func servePeer(conn net.Conn, handlers ...flightlink.CommandHandler) {
	peer := flightlink.NewManager(
		flightlink.WithSink(conn),
		flightlink.WithHandlers(handlers...),
	)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				_, _ = peer.Write(buf[:n])
			}
			if err != nil {
				return
			}
		}
	}()
}

func receiveFrame(t *testing.T, frames <-chan []byte) []byte {
	t.Helper()
	select {
	case f, ok := <-frames:
		require.True(t, ok, "peer connection closed")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame from link")
		return nil
	}
}

func TestLink_RunDispatchesAndRecords(t *testing.T) {
	mode := flightlink.NewModeHandler()
	l, peer := pipeLink(t, handlerSet(mode))

	var capture bytes.Buffer
	rec, err := flightlink.NewCaptureWriter(&capture, "pipe")
	require.NoError(t, err)
	l.rec = rec

	var seen []flightlink.CommandID
	l.onFrame = func(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
		seen = append(seen, id)
	}
	runLink(t, l)

	_, err = peer.Write(flightlink.AppendFrame([]byte{0x00, 0x13}, flightlink.CmdMode, []byte{0x07}))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return l.Stats().FramesReceived == 1
	}, 2*time.Second, 5*time.Millisecond)

	var got flightlink.Mode
	require.NoError(t, l.Do(func(m *flightlink.Manager) error {
		got = *mode.Value()
		assert.Equal(t, []flightlink.CommandID{flightlink.CmdMode}, seen)
		return nil
	}))
	assert.Equal(t, flightlink.Mode(7), got)

	stats := l.Stats()
	assert.EqualValues(t, 2, stats.SkippedBytes)
	assert.EqualValues(t, 7, stats.BytesReceived)

	r, err := flightlink.NewCaptureReader(&capture)
	require.NoError(t, err)
	assert.Equal(t, "pipe", r.Header().Source)
	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, flightlink.DirectionRx, first.Direction)
	assert.Equal(t, flightlink.CmdMode, first.Command)
	assert.Equal(t, []byte{0x07}, first.Body)
	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLink_AnswersConnectionCheck(t *testing.T) {
	l, peer := pipeLink(t, handlerSet())
	frames := collect(peer)
	runLink(t, l)

	check := &flightlink.ConnectionCheck{Value: 0x2A}
	_, err := peer.Write(flightlink.AppendFrame(nil, flightlink.CmdConnectionCheck, check.AppendBody(nil)))
	require.NoError(t, err)

	id, body, err := flightlink.DecodeFrame(receiveFrame(t, frames))
	require.NoError(t, err)
	assert.Equal(t, flightlink.CmdConnectionCheck, id)

	var echo flightlink.ConnectionCheck
	require.NoError(t, echo.UnmarshalBody(body))
	assert.Equal(t, flightlink.ConnectionCheck{Value: 0x2A, Loopback: true}, echo)
	assert.EqualValues(t, 1, l.Stats().FramesSent)

	// The echo itself is not answered
	_, err = peer.Write(flightlink.AppendFrame(nil, flightlink.CmdConnectionCheck, body))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return l.Stats().FramesReceived == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, l.Stats().FramesSent)
}

func TestLink_Send(t *testing.T) {
	l, peer := pipeLink(t, handlerSet())
	frames := collect(peer)

	var sent []flightlink.Direction
	l.onFrame = func(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
		sent = append(sent, dir)
	}

	require.NoError(t, l.Send(flightlink.CmdMode, modePayload(9)))
	assert.Equal(t, flightlink.AppendFrame(nil, flightlink.CmdMode, []byte{0x09}), receiveFrame(t, frames))
	require.NoError(t, l.Do(func(m *flightlink.Manager) error {
		assert.Equal(t, []flightlink.Direction{flightlink.DirectionTx}, sent)
		return nil
	}))

	// The live value keeps what was sent
	require.NoError(t, l.Transmit(flightlink.CmdMode))
	assert.Equal(t, flightlink.AppendFrame(nil, flightlink.CmdMode, []byte{0x09}), receiveFrame(t, frames))
}

func TestLink_SendUnregistered(t *testing.T) {
	l, _ := pipeLink(t, []flightlink.CommandHandler{flightlink.NewGPSHandler()})
	err := l.Send(flightlink.CmdMode, modePayload(1))
	assert.ErrorIs(t, err, flightlink.ErrUnregistered)
}

func TestLink_PeerClose(t *testing.T) {
	l, peer := pipeLink(t, handlerSet())
	done := runLink(t, l)

	require.NoError(t, peer.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after the peer closed")
	}
}

func TestPinger(t *testing.T) {
	check, echoes := newEchoHandler()
	l, peer := pipeLink(t, handlerSet(check))
	servePeer(peer, flightlink.NewDefaultHandlers()...)
	runLink(t, l)

	p := &pinger{l: l, check: check, echoes: echoes, timeout: 2 * time.Second}
	for _, seq := range []uint8{0, 1, 63, 64} {
		res, err := p.ping(context.Background(), seq)
		require.NoError(t, err)
		assert.True(t, res.OK, "seq %d", seq)
		assert.Equal(t, seq&flightlink.ConnectionCheckValueMask, res.Seq)
		assert.Positive(t, res.RTT)
	}
	assert.EqualValues(t, 4, l.Stats().FramesSent)
}

func TestPinger_Timeout(t *testing.T) {
	check, echoes := newEchoHandler()
	l, peer := pipeLink(t, handlerSet(check))
	go func() { _, _ = io.Copy(io.Discard, peer) }()
	runLink(t, l)

	p := &pinger{l: l, check: check, echoes: echoes, timeout: 20 * time.Millisecond}
	res, err := p.ping(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, res.OK)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.timeout = time.Second
	_, err = p.ping(ctx, 6)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProber(t *testing.T) {
	request := flightlink.NewRequestHandler(flightlink.CmdNone)
	l, peer := pipeLink(t, handlerSet(request))

	gps := flightlink.NewGPSHandler()
	*gps.Value() = flightlink.GPS{Latitude: 48.1, Longitude: 11.5, FixStatus: 2}
	servePeer(peer, flightlink.NewRequestHandler(flightlink.CmdNone), gps)

	p := newProber(l, request, 100*time.Millisecond)
	runLink(t, l)

	res, err := p.probe(context.Background(), flightlink.CmdGPS)
	require.NoError(t, err)
	assert.True(t, res.Answered)
	assert.Contains(t, res.Value, "48.1")

	res, err = p.probe(context.Background(), flightlink.CmdMode)
	require.NoError(t, err)
	assert.False(t, res.Answered, "peer has no MODE handler")
	assert.Empty(t, res.Value)
}

func TestStreamFrames(t *testing.T) {
	l, peer := pipeLink(t, handlerSet())
	frames := collect(peer)

	limiter := rate.NewLimiter(rate.Inf, 1)
	sent, err := streamFrames(context.Background(), l, flightlink.CmdAltitude, limiter, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	want := flightlink.AppendFrame(nil, flightlink.CmdAltitude, make([]byte, flightlink.BodyLen(flightlink.CmdAltitude)))
	for i := 0; i < 3; i++ {
		assert.Equal(t, want, receiveFrame(t, frames))
	}
}

func TestStreamFrames_Cancelled(t *testing.T) {
	l, _ := pipeLink(t, handlerSet())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, err := streamFrames(ctx, l, flightlink.CmdMode, rate.NewLimiter(1, 1), 0)
	assert.NoError(t, err)
	assert.Zero(t, sent)
}
