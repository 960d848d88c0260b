// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package tracklink implements the framed serial protocol spoken between
// trackside and the booster board that generates the DCC signal.
//
// A frame is START, the byte-stuffed body (length, CBOR message, CRC-16
// big-endian) and END. The CBOR message is a two element array
// [msg_type, payload_map] whose map keys are small integers.
package tracklink

// Protocol framing bytes
const (
	StartByte = 0x7E
	EndByte   = 0x7F
	EscByte   = 0x7D
	EscXor    = 0x20
)

// Frame size limits
const (
	MaxPayloadSize = 120
	MaxFrameSize   = 1 + MaxPayloadSize + 2 // length + payload + CRC
)

// CRC-16-CCITT configuration
const (
	crcPolynomial = 0x1021
	crcInitial    = 0xFFFF
)

// Message types - Service Mode (Host → Board) 0x10-0x1F
const (
	MsgProgBegin      = 0x10
	MsgProgEnd        = 0x11
	MsgPowerOn        = 0x12
	MsgPowerOff       = 0x13
	MsgLoop           = 0x14
	MsgVerifyByte     = 0x15
	MsgVerifyBit      = 0x16
	MsgWriteByte      = 0x17
	MsgCurrentRequest = 0x18
)

// Message types - Operations (Host → Board) 0x20-0x2F
const (
	MsgOpsBegin          = 0x20
	MsgOpsEnd            = 0x21
	MsgSpeed             = 0x22
	MsgFunction          = 0x23
	MsgAccessoryBasic    = 0x24
	MsgAccessoryExtended = 0x25
	MsgPoMMulti          = 0x26
	MsgPoMAccessory      = 0x27
	MsgEmergencyStop     = 0x28
	MsgPingRequest       = 0x2F
)

// Message types - Replies (Board → Host) 0x30-0x3F
const (
	MsgStatus       = 0x30
	MsgAckResult    = 0x31
	MsgCurrentData  = 0x32
	MsgPingResponse = 0x3F
)

// Message types - Errors (Board → Host) 0xE0-0xEF
const (
	MsgErrorInvalidCmd = 0xE0
	MsgErrorTrackFault = 0xE1
)

// Track selects which output a power, loop or current message addresses
type Track uint8

const (
	TrackProgramming Track = 0x00
	TrackMain        Track = 0x01
)

func (t Track) String() string {
	switch t {
	case TrackProgramming:
		return "programming"
	case TrackMain:
		return "main"
	default:
		return "unknown"
	}
}

// Payload keys - POWER_ON, POWER_OFF, LOOP, CURRENT_REQUEST
const (
	KeyTrack = 0
)

// Payload keys - VERIFY_BYTE, VERIFY_BIT, WRITE_BYTE
const (
	KeyCV       = 0
	KeyValue    = 1
	KeyBit      = 1
	KeyExpected = 2
)

// Payload keys - operations messages
const (
	KeyAddress   = 0
	KeyLong      = 1
	KeySteps     = 2
	KeyForward   = 3
	KeySpeed     = 4
	KeyFunction  = 2
	KeyOn        = 3
	KeyDirection = 1
	KeyAspect    = 1
	KeyPoMCV     = 1
	KeyPoMValue  = 2
)

// Payload keys - replies and errors
const (
	KeyAck       = 0 // ACK_RESULT
	KeyMilliamps = 1 // ACK_RESULT, CURRENT_DATA, ERROR_TRACK_FAULT
	KeyPowered   = 1 // STATUS
	KeyUptime    = 0 // PING_RESPONSE
	KeyRejected  = 0 // ERROR_INVALID_CMD
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateLength
	statePayload
	stateCRC1
	stateCRC2
	stateEnd
)

// Value limits checked by the validator
const (
	MaxCV           = 1024
	MaxLocoAddress  = 10239
	MaxAccAddress   = 2044
	MaxFunction     = 68
	MaxSpeed        = 127
	MaxSignalAspect = 255
)
