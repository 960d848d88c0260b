// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"fmt"
)

// EncodePacket encodes a packet into a complete wire frame
func EncodePacket(p *Packet) ([]byte, error) {
	return EncodeFrame(p.Type(), p.PayloadMap())
}

// EncodeFrame builds a wire frame for msgType and payload, including
// framing, CRC and byte stuffing
func EncodeFrame(msgType uint8, payload map[int]interface{}) ([]byte, error) {
	cborPayload, err := encodeCBORMessage(msgType, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode CBOR payload: %w", err)
	}
	if len(cborPayload) > MaxPayloadSize {
		return nil, fmt.Errorf("CBOR payload too large: %d bytes (max %d)", len(cborPayload), MaxPayloadSize)
	}

	body := make([]byte, 0, 1+len(cborPayload)+2)
	body = append(body, uint8(len(cborPayload)))
	body = append(body, cborPayload...)
	crc := CalculateCRC(body)
	body = append(body, byte(crc>>8), byte(crc))

	stuffed := stuffBytes(body)
	frame := make([]byte, 0, len(stuffed)+2)
	frame = append(frame, StartByte)
	frame = append(frame, stuffed...)
	frame = append(frame, EndByte)
	return frame, nil
}

// stuffBytes escapes every framing byte in data
func stuffBytes(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == StartByte || b == EndByte || b == EscByte {
			out = append(out, EscByte, b^EscXor)
			continue
		}
		out = append(out, b)
	}
	return out
}

// UnstuffBytes reverses stuffBytes
func UnstuffBytes(data []byte) ([]byte, error) {
	out := make([]byte, 0, len(data))
	escaped := false
	for _, b := range data {
		switch {
		case escaped:
			out = append(out, b^EscXor)
			escaped = false
		case b == EscByte:
			escaped = true
		default:
			out = append(out, b)
		}
	}
	if escaped {
		return nil, fmt.Errorf("incomplete escape sequence at end of data")
	}
	return out, nil
}
