// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/flightlink/pkg/flightlink"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var dashboardLogFrames bool

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive TUI for watching and commanding a link",
	Long: `Watch and command a flightlink peer from an interactive terminal UI.

Features:
  - Latest value of every command, with frame counts
  - Live link statistics (frame rate, errors, skipped bytes)
  - Periodic loopback pings with round trip time
  - A command line for sending any command ("mode 2", "request gps", "ping")
  - Automatic reconnection on connection loss

Tab switches between the command list and the command line. Enter on a list
entry requests that command from the peer.

Supports both serial and WebSocket connections.`,
	RunE: runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
	dashboardCmd.Flags().BoolVar(&dashboardLogFrames, "log-frames", false, "Log every frame in the event panel")
}

var errNotConnected = errors.New("not connected")

// frameEvent is one observed frame, queued for the TUI
type frameEvent struct {
	at   time.Time
	dir  flightlink.Direction
	id   flightlink.CommandID
	body []byte
}

// dashboardSession owns the current link and replaces it after a connection
// loss
type dashboardSession struct {
	mu       sync.RWMutex
	l        *link
	handlers []flightlink.CommandHandler
	events   chan frameEvent
	p        *tea.Program
}

func newDashboardSession(l *link, handlers []flightlink.CommandHandler) *dashboardSession {
	s := &dashboardSession{
		handlers: handlers,
		events:   make(chan frameEvent, 256),
	}
	s.attach(l)
	return s
}

func (s *dashboardSession) attach(l *link) {
	l.onFrame = s.observe
	s.mu.Lock()
	s.l = l
	s.mu.Unlock()
}

func (s *dashboardSession) current() *link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.l
}

func (s *dashboardSession) observe(dir flightlink.Direction, id flightlink.CommandID, body []byte) {
	ev := frameEvent{at: time.Now(), dir: dir, id: id, body: append([]byte(nil), body...)}
	select {
	case s.events <- ev:
	default:
	}
}

// Send transmits p on the current link
func (s *dashboardSession) Send(id flightlink.CommandID, p flightlink.Payload) error {
	l := s.current()
	if l == nil {
		return errNotConnected
	}
	return l.Send(id, p)
}

// Stats returns the current link's statistics
func (s *dashboardSession) Stats() flightlink.Statistics {
	l := s.current()
	if l == nil {
		return flightlink.NewStatistics()
	}
	return l.Stats()
}

// run reads from the current link, reconnecting with backoff, until ctx is
// done
func (s *dashboardSession) run(ctx context.Context) {
	for {
		l := s.current()
		err := l.Run(ctx)
		_ = l.Close()
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = ErrConnectionClosed
		}
		s.p.Send(connectionLostMsg{err: err})

		if !s.reconnect(ctx) {
			return
		}
	}
}

// reconnect attempts to reconnect with exponential backoff and reports false
// if ctx ended first
func (s *dashboardSession) reconnect(ctx context.Context) bool {
	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		l, err := openLink(ctx, s.handlers)
		if err == nil {
			s.attach(l)
			s.p.Send(reconnectedMsg{connInfo: l.info})
			return true
		}
		logger.Debug().Err(err).Dur("backoff", backoff).Msg("reconnect failed")

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// batch forwards queued frames to the TUI at a fixed rate
func (s *dashboardSession) batch(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var msg frameBatchMsg
		drainLoop:
			for {
				select {
				case ev := <-s.events:
					msg.frames = append(msg.frames, ev)
				default:
					break drainLoop
				}
			}
			if len(msg.frames) > 0 {
				s.p.Send(msg)
			}
		}
	}
}

func runDashboard(cmd *cobra.Command, args []string) error {
	// Console logging would tear the alt screen
	if cfg.Log.File == "" {
		logger = zerolog.Nop()
	}

	handlers := handlerSet()
	l, err := openLink(cmd.Context(), handlers)
	if err != nil {
		return connectionError(err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s := newDashboardSession(l, handlers)
	m := initialDashboardModel(s, l.info, dashboardLogFrames)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	s.p = p

	go s.run(ctx)
	go s.batch(ctx)

	_, err = p.Run()
	cancel()
	if cur := s.current(); cur != nil {
		_ = cur.Close()
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
