// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds the wait for a board reply
const DefaultTimeout = 2 * time.Second

var (
	// ErrTimeout is returned when the board does not answer a request
	ErrTimeout = errors.New("no reply from board")

	// ErrClosed is returned once the link reader has stopped
	ErrClosed = errors.New("link closed")
)

// BoardError is an error report sent by the board in reply to a request
type BoardError struct {
	MsgType   uint8
	Rejected  uint8 // ERROR_INVALID_CMD: the rejected message type
	Track     Track // ERROR_TRACK_FAULT
	Milliamps int   // ERROR_TRACK_FAULT
}

func (e *BoardError) Error() string {
	switch e.MsgType {
	case MsgErrorInvalidCmd:
		return fmt.Sprintf("board rejected %s (0x%02X)", FormatMessageType(e.Rejected), e.Rejected)
	case MsgErrorTrackFault:
		return fmt.Sprintf("track fault on %s track (%d mA)", e.Track, e.Milliamps)
	default:
		return fmt.Sprintf("board error 0x%02X", e.MsgType)
	}
}

func newBoardError(p *Packet) *BoardError {
	e := &BoardError{MsgType: p.Type()}
	if v, ok := p.Uint(KeyRejected); ok && e.MsgType == MsgErrorInvalidCmd {
		e.Rejected = uint8(v)
	}
	if e.MsgType == MsgErrorTrackFault {
		t, _ := p.Uint(KeyTrack)
		mA, _ := p.Int(KeyMilliamps)
		e.Track = Track(t)
		e.Milliamps = int(mA)
	}
	return e
}

// ClientOptions configures a Client
type ClientOptions struct {
	// Timeout bounds each request; zero means DefaultTimeout
	Timeout time.Duration
	// OnPacket is called from the reader goroutine for every decoded packet
	OnPacket func(*Packet)
	Logger   *zerolog.Logger
}

// Client is the host side of the link. One goroutine decodes incoming
// frames; requests are serialized so exactly one is outstanding at a time.
type Client struct {
	rw    io.ReadWriter
	opts  ClientOptions
	log   zerolog.Logger
	stats *Statistics

	mu      sync.Mutex
	replies chan *Packet

	done    chan struct{}
	readErr error
}

// NewClient starts the reader goroutine on rw
func NewClient(rw io.ReadWriter, opts ClientOptions) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	c := &Client{
		rw:      rw,
		opts:    opts,
		log:     log.With().Str("component", "tracklink").Logger(),
		stats:   NewStatistics(),
		replies: make(chan *Packet, 32),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Stats returns the live link statistics
func (c *Client) Stats() *Statistics {
	return c.stats
}

// Done is closed when the reader goroutine stops
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that stopped the reader, once Done is closed
func (c *Client) Err() error {
	select {
	case <-c.done:
		return c.readErr
	default:
		return nil
	}
}

// Close closes the underlying connection, which stops the reader
func (c *Client) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (c *Client) readLoop() {
	decoder := NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := c.rw.Read(buf)
		for _, b := range buf[:n] {
			packet, decodeErr := decoder.DecodeByte(b)
			if decodeErr != nil {
				c.stats.Update(nil, decodeErr, nil)
				c.log.Debug().Err(decodeErr).Msg("frame rejected")
				continue
			}
			if packet == nil {
				continue
			}
			c.dispatch(packet)
		}
		if err != nil {
			c.readErr = err
			close(c.done)
			return
		}
	}
}

func (c *Client) dispatch(packet *Packet) {
	validationErrors := ValidatePacket(packet)
	c.stats.Update(packet, nil, validationErrors)
	for _, v := range validationErrors {
		c.log.Warn().Str("type", FormatMessageType(packet.Type())).Msg(v.Message)
	}

	if c.opts.OnPacket != nil {
		c.opts.OnPacket(packet)
	}

	select {
	case c.replies <- packet:
	default:
		c.log.Warn().Str("type", FormatMessageType(packet.Type())).Msg("reply queue full, packet dropped")
	}
}

// Request sends p and waits for a reply of one of the expected types.
// Error reports from the board are returned as *BoardError.
func (c *Client) Request(p *Packet, expect ...uint8) (*Packet, error) {
	name := FormatMessageType(p.Type())
	frame, err := EncodePacket(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replies to earlier timed-out requests are stale
	for drained := false; !drained; {
		select {
		case <-c.replies:
		default:
			drained = true
		}
	}

	select {
	case <-c.done:
		return nil, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
	default:
	}

	if _, err := c.rw.Write(frame); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	c.log.Trace().Str("type", name).Msg("request sent")

	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()

	for {
		select {
		case reply := <-c.replies:
			if reply.IsError() {
				return nil, newBoardError(reply)
			}
			for _, t := range expect {
				if reply.Type() == t {
					return reply, nil
				}
			}
			c.log.Debug().Str("type", FormatMessageType(reply.Type())).Msg("ignoring unsolicited packet")
		case <-timer.C:
			c.stats.RecordTimeout()
			return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, name, c.opts.Timeout)
		case <-c.done:
			return nil, fmt.Errorf("%w: %v", ErrClosed, c.readErr)
		}
	}
}

// command sends p and expects a STATUS reply
func (c *Client) command(p *Packet) error {
	_, err := c.Request(p, MsgStatus)
	return err
}

// current requests a CURRENT_DATA reading for track
func (c *Client) current(track Track) (int, error) {
	reply, err := c.Request(NewCurrentRequest(track), MsgCurrentData)
	if err != nil {
		return 0, err
	}
	mA, ok := reply.Int(KeyMilliamps)
	if !ok {
		return 0, fmt.Errorf("CURRENT_DATA without current field")
	}
	return int(mA), nil
}

// Ping measures the round trip to the board and returns its uptime
func (c *Client) Ping() (rtt time.Duration, uptime time.Duration, err error) {
	start := time.Now()
	reply, err := c.Request(NewPingRequest(), MsgPingResponse)
	if err != nil {
		return 0, 0, err
	}
	ms, _ := reply.Uint(KeyUptime)
	return time.Since(start), time.Duration(ms) * time.Millisecond, nil
}

// Programming returns the programming track view of the link
func (c *Client) Programming() *ProgrammingTrack {
	return &ProgrammingTrack{c: c}
}

// Main returns the main track view of the link
func (c *Client) Main() *MainTrack {
	return &MainTrack{c: c}
}
