// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/Thermoquad/trackside/pkg/decodersim"
	"github.com/Thermoquad/trackside/pkg/tracklink"
)

// Connection carries link frames to and from the booster board over serial,
// WebSocket or an in-process pipe
type Connection interface {
	io.Reader
	io.Writer
	io.Closer
}

// Handshake and dial limits for the WebSocket bridge
const (
	wsHandshakeTimeout = 10 * time.Second
	wsDialTimeout      = 15 * time.Second
)

// ErrConnectionClosed is returned by reads after the bridge dropped the socket
var ErrConnectionClosed = errors.New("websocket connection closed")

// wsConnection streams the binary messages of a bridge socket as one byte
// stream. Text messages carry bridge status and are skipped.
type wsConnection struct {
	ws     *websocket.Conn
	frame  io.Reader
	failed error
}

func (w *wsConnection) Read(p []byte) (int, error) {
	if w.failed != nil {
		return 0, ErrConnectionClosed
	}
	for {
		if w.frame != nil {
			n, err := w.frame.Read(p)
			if errors.Is(err, io.EOF) {
				w.frame = nil
				err = nil
			}
			if n > 0 || err != nil {
				return n, err
			}
			continue
		}

		kind, r, err := w.ws.NextReader()
		if err != nil {
			w.failed = err
			return 0, err
		}
		if kind == websocket.BinaryMessage {
			w.frame = r
		}
	}
}

// Write sends p as a single binary message; the board bridge forwards it
// to the UART unchanged
func (w *wsConnection) Write(p []byte) (int, error) {
	if err := w.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *wsConnection) Close() error {
	return w.ws.Close()
}

// OpenSerialConnection opens the booster's UART at 8N1
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return port, nil
}

// OpenWebSocketConnection dials a board bridge. Credentials, when given, are
// sent as HTTP Basic auth on the upgrade request.
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: skipSSLVerify}
	}

	header := http.Header{}
	if username != "" {
		req := http.Request{Header: header}
		req.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsDialTimeout)
	defer cancel()

	ws, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("connect to bridge (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("connect to bridge: %w", err)
	}
	return &wsConnection{ws: ws}, nil
}

// GetPassword returns TRACKSIDE_PASSWORD, or prompts on stderr. Input is
// hidden when stdin is a terminal.
func GetPassword() (string, error) {
	if pw := os.Getenv("TRACKSIDE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Bridge password: ")
	defer fmt.Fprintln(os.Stderr)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		pw, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(pw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Simulated decoder placed on the programming track by --sim
const (
	simLocoAddress      = 3
	simLocoManufacturer = 145 // ZIMO
)

// OpenSimConnection starts a simulated board on one end of an in-process
// pipe and returns the other end
func OpenSimConnection() (Connection, error) {
	host, board := net.Pipe()
	sim := decodersim.NewBoard(
		decodersim.NewLoco(simLocoAddress, simLocoManufacturer),
		decodersim.NewStation(),
		logger.With().Str("component", "sim").Logger(),
	)

	go func() {
		if err := sim.Serve(board); err != nil {
			logger.Warn().Err(err).Msg("simulated board stopped")
		}
		board.Close()
	}()

	return host, nil
}

// OpenConnection opens a simulated, WebSocket or serial connection based on
// the merged settings
func OpenConnection() (Connection, string, error) {
	if settings.Sim {
		conn, err := OpenSimConnection()
		if err != nil {
			return nil, "", err
		}
		return conn, "Simulated board", nil
	}

	if settings.URL != "" {
		// WebSocket mode
		password := ""
		if settings.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(settings.URL, settings.Username, password, settings.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("WebSocket: %s", settings.URL), nil
	}

	if settings.Port != "" {
		// Serial mode
		conn, err := OpenSerialConnection(settings.Port, settings.Baud)
		if err != nil {
			return nil, "", err
		}

		return conn, fmt.Sprintf("Serial: %s @ %d baud", settings.Port, settings.Baud), nil
	}

	return nil, "", fmt.Errorf("one of --port, --url or --sim must be specified")
}

// openLink opens the configured connection and starts a link client on it
func openLink() (*tracklink.Client, string, error) {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return nil, "", err
	}

	client := tracklink.NewClient(conn, tracklink.ClientOptions{
		Timeout: settings.RequestTimeout,
		Logger:  &logger,
	})
	logger.Debug().Str("connection", connInfo).Msg("link open")
	return client, connInfo, nil
}
