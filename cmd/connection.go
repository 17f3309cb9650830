// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Connection is the byte stream a link runs over. A serial.Port satisfies it
// directly; WebSocket bridges go through bridgeConn.
type Connection interface {
	io.ReadWriteCloser
}

// ErrConnectionClosed is returned once the bridge has closed the WebSocket
var ErrConnectionClosed = errors.New("websocket connection closed")

// messageConn is the part of *websocket.Conn that bridgeConn uses
type messageConn interface {
	NextReader() (int, io.Reader, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// bridgeConn flattens binary WebSocket messages into one byte stream. A
// message may hold part of a frame or several frames; the Manager's ring
// buffer reassembles them, so Read never waits for a message boundary.
type bridgeConn struct {
	ws  messageConn
	msg io.Reader // current binary message, nil between messages
	err error     // sticky once the socket fails
}

func newBridgeConn(ws messageConn) *bridgeConn {
	return &bridgeConn{ws: ws}
}

func (b *bridgeConn) Read(p []byte) (int, error) {
	for b.err == nil {
		if b.msg == nil {
			kind, r, err := b.ws.NextReader()
			if err != nil {
				b.fail(err)
				break
			}
			// Text messages are bridge status lines, not link bytes
			if kind != websocket.BinaryMessage {
				continue
			}
			b.msg = r
		}

		n, err := b.msg.Read(p)
		if errors.Is(err, io.EOF) {
			b.msg = nil
			err = nil
		}
		if err != nil {
			b.fail(err)
		}
		if n > 0 || len(p) == 0 {
			return n, nil
		}
	}
	return 0, b.err
}

func (b *bridgeConn) fail(err error) {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = ErrConnectionClosed
	}
	b.err = err
}

// Write sends p as a single binary message
func (b *bridgeConn) Write(p []byte) (int, error) {
	if err := b.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (b *bridgeConn) Close() error {
	if b.err == nil {
		b.err = ErrConnectionClosed
	}
	return b.ws.Close()
}

// OpenSerialConnection opens portName at baudRate, 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, nil
}

// bridgeRequest splits credentials embedded in rawURL off into a Basic auth
// header. Explicit username and password take precedence over the URL's.
func bridgeRequest(rawURL, username, password string) (string, http.Header, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	if u.User != nil {
		if username == "" {
			username = u.User.Username()
		}
		if password == "" {
			password, _ = u.User.Password()
		}
		u.User = nil
	}

	headers := http.Header{}
	if username != "" {
		creds := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+creds)
	}
	return u.String(), headers, nil
}

// OpenWebSocketConnection dials a serial-over-WebSocket bridge
func OpenWebSocketConnection(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	target, headers, err := bridgeRequest(wsURL, username, password)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	if strings.HasPrefix(target, "wss:") {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	ws, resp, err := dialer.DialContext(ctx, target, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return newBridgeConn(ws), nil
}

// GetPassword reads the bridge password from FLIGHTLINK_PASSWORD, or prompts
// for it on stderr
func GetPassword() (string, error) {
	if pw := os.Getenv(envPrefix + "_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// OpenConnection opens the WebSocket bridge or serial port named by c. The
// returned string describes the connection for display.
func OpenConnection(ctx context.Context, c *Config) (Connection, string, error) {
	switch {
	case c.URL != "":
		password := ""
		if c.Username != "" {
			var err error
			if password, err = GetPassword(); err != nil {
				return nil, "", err
			}
		}
		conn, err := OpenWebSocketConnection(ctx, c.URL, c.Username, password, c.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", c.URL), nil

	case c.Port != "":
		conn, err := OpenSerialConnection(c.Port, c.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud), nil
	}
	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
