// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import "time"

// Packet is one decoded link frame
type Packet struct {
	length      uint8
	cborPayload []byte // [msg_type, payload_map]
	crc         uint16
	timestamp   time.Time

	// parsed lazily from cborPayload
	msgType    uint8
	payloadMap map[int]interface{}
	parsed     bool
	parseErr   error
}

// NewPacket creates a packet from its raw frame fields
func NewPacket(length uint8, cborPayload []byte, crc uint16) *Packet {
	return &Packet{
		length:      length,
		cborPayload: cborPayload,
		crc:         crc,
		timestamp:   time.Now(),
	}
}

// NewPacketWithPayload creates a packet from a message type and payload map.
// CBOR encoding and CRC are computed when it is encoded.
func NewPacketWithPayload(msgType uint8, payload map[int]interface{}) *Packet {
	return &Packet{
		msgType:    msgType,
		payloadMap: payload,
		parsed:     true,
		timestamp:  time.Now(),
	}
}

func (p *Packet) ensureParsed() {
	if p.parsed {
		return
	}
	p.parsed = true
	if len(p.cborPayload) == 0 {
		return
	}
	p.msgType, p.payloadMap, p.parseErr = ParseCBORMessage(p.cborPayload)
}

// Length returns the CBOR payload length from the frame header
func (p *Packet) Length() uint8 {
	return p.length
}

// Type returns the message type
func (p *Packet) Type() uint8 {
	p.ensureParsed()
	return p.msgType
}

// Payload returns the raw CBOR bytes
func (p *Packet) Payload() []byte {
	return p.cborPayload
}

// PayloadMap returns the decoded payload map (nil for empty payloads)
func (p *Packet) PayloadMap() map[int]interface{} {
	p.ensureParsed()
	return p.payloadMap
}

// ParseError returns any error from decoding the CBOR payload
func (p *Packet) ParseError() error {
	p.ensureParsed()
	return p.parseErr
}

// CRC returns the frame checksum
func (p *Packet) CRC() uint16 {
	return p.crc
}

// Timestamp returns when the packet was decoded or built
func (p *Packet) Timestamp() time.Time {
	return p.timestamp
}

// IsReply reports whether the packet is a board reply
func (p *Packet) IsReply() bool {
	t := p.Type()
	return t >= 0x30 && t <= 0x3F
}

// IsError reports whether the packet is an error report
func (p *Packet) IsError() bool {
	return p.Type() >= 0xE0 && p.Type() <= 0xEF
}

// Uint returns a payload field as an unsigned integer
func (p *Packet) Uint(key int) (uint64, bool) {
	return GetMapUint(p.PayloadMap(), key)
}

// Int returns a payload field as a signed integer
func (p *Packet) Int(key int) (int64, bool) {
	return GetMapInt(p.PayloadMap(), key)
}

// Bool returns a payload field as a boolean
func (p *Packet) Bool(key int) (bool, bool) {
	return GetMapBool(p.PayloadMap(), key)
}
