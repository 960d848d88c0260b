// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"errors"
	"fmt"
)

// ErrCRCMismatch is returned by the decoder when a frame checksum is wrong
var ErrCRCMismatch = errors.New("CRC mismatch")

// Decoder is the byte-at-a-time frame decoder
type Decoder struct {
	state      int
	body       []byte // length byte + CBOR payload
	length     int
	crc        uint16
	escapeNext bool
	raw        []byte
}

// NewDecoder creates an idle decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state: stateIdle,
		body:  make([]byte, 0, MaxFrameSize),
		raw:   make([]byte, 0, MaxFrameSize*2),
	}
}

// Reset drops any partial frame
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.body = d.body[:0]
	d.length = 0
	d.crc = 0
	d.escapeNext = false
	d.raw = d.raw[:0]
}

// RawBytes returns the bytes seen since the last frame boundary
func (d *Decoder) RawBytes() []byte {
	return d.raw
}

// DecodeByte feeds one byte to the decoder. It returns a packet when a
// frame completes and an error when a frame is rejected.
func (d *Decoder) DecodeByte(b byte) (*Packet, error) {
	d.raw = append(d.raw, b)
	if len(d.raw) > MaxFrameSize*2+2 {
		d.raw = d.raw[:0]
	}

	// Framing bytes are never escaped on the wire
	switch {
	case b == StartByte:
		d.Reset()
		d.raw = append(d.raw, b)
		d.state = stateLength
		return nil, nil
	case b == EndByte:
		return d.finish()
	case b == EscByte && !d.escapeNext:
		d.escapeNext = true
		return nil, nil
	}

	if d.escapeNext {
		b ^= EscXor
		d.escapeNext = false
	}

	switch d.state {
	case stateIdle:
		return nil, nil

	case stateLength:
		if int(b) > MaxPayloadSize {
			d.Reset()
			return nil, fmt.Errorf("invalid length: %d (max %d)", b, MaxPayloadSize)
		}
		d.length = int(b)
		d.body = append(d.body, b)
		if d.length == 0 {
			d.state = stateCRC1
		} else {
			d.state = statePayload
		}

	case statePayload:
		d.body = append(d.body, b)
		if len(d.body)-1 >= d.length {
			d.state = stateCRC1
		}

	case stateCRC1:
		d.crc = uint16(b) << 8
		d.state = stateCRC2

	case stateCRC2:
		d.crc |= uint16(b)
		d.state = stateEnd

	default:
		d.Reset()
		return nil, fmt.Errorf("unexpected byte 0x%02X after CRC", b)
	}
	return nil, nil
}

func (d *Decoder) finish() (*Packet, error) {
	if d.state != stateEnd {
		state := d.state
		d.Reset()
		if state == stateIdle {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected END byte in state %d", state)
	}

	calculated := CalculateCRC(d.body)
	if calculated != d.crc {
		err := fmt.Errorf("%w: expected 0x%04X, got 0x%04X", ErrCRCMismatch, calculated, d.crc)
		d.Reset()
		return nil, err
	}

	payload := make([]byte, d.length)
	copy(payload, d.body[1:])
	packet := NewPacket(uint8(d.length), payload, d.crc)
	d.Reset()
	return packet, nil
}
