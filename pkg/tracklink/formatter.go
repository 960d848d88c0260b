// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"fmt"
	"time"
)

var messageNames = map[uint8]string{
	MsgProgBegin:      "PROG_BEGIN",
	MsgProgEnd:        "PROG_END",
	MsgPowerOn:        "POWER_ON",
	MsgPowerOff:       "POWER_OFF",
	MsgLoop:           "LOOP",
	MsgVerifyByte:     "VERIFY_BYTE",
	MsgVerifyBit:      "VERIFY_BIT",
	MsgWriteByte:      "WRITE_BYTE",
	MsgCurrentRequest: "CURRENT_REQUEST",

	MsgOpsBegin:          "OPS_BEGIN",
	MsgOpsEnd:            "OPS_END",
	MsgSpeed:             "SPEED",
	MsgFunction:          "FUNCTION",
	MsgAccessoryBasic:    "ACCESSORY_BASIC",
	MsgAccessoryExtended: "ACCESSORY_EXTENDED",
	MsgPoMMulti:          "POM_MULTI",
	MsgPoMAccessory:      "POM_ACCESSORY",
	MsgEmergencyStop:     "EMERGENCY_STOP",
	MsgPingRequest:       "PING_REQUEST",

	MsgStatus:       "STATUS",
	MsgAckResult:    "ACK_RESULT",
	MsgCurrentData:  "CURRENT_DATA",
	MsgPingResponse: "PING_RESPONSE",

	MsgErrorInvalidCmd: "ERROR_INVALID_CMD",
	MsgErrorTrackFault: "ERROR_TRACK_FAULT",
}

// FormatMessageType returns the name of a message type
func FormatMessageType(msgType uint8) string {
	if name, ok := messageNames[msgType]; ok {
		return name
	}
	return "UNKNOWN"
}

// FormatPacket renders a packet as a header line plus one payload line
func FormatPacket(p *Packet) string {
	timestamp := p.Timestamp().Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, FormatMessageType(p.Type()), p.Type(), p.Length())
	if err := p.ParseError(); err != nil {
		return result + fmt.Sprintf("  CBOR error: %v\n", err)
	}
	return result + FormatPayloadMap(p.Type(), p.PayloadMap())
}

// FormatPayloadMap renders the fields of a payload map by message type
func FormatPayloadMap(msgType uint8, m map[int]interface{}) string {
	switch msgType {
	case MsgProgBegin, MsgProgEnd, MsgOpsBegin, MsgOpsEnd, MsgEmergencyStop, MsgPingRequest:
		return "  (no payload)\n"

	case MsgPowerOn, MsgPowerOff, MsgLoop, MsgCurrentRequest:
		track, _ := GetMapUint(m, KeyTrack)
		return fmt.Sprintf("  Track: %s\n", Track(track))

	case MsgVerifyByte, MsgWriteByte:
		cv, _ := GetMapUint(m, KeyCV)
		value, _ := GetMapUint(m, KeyValue)
		return fmt.Sprintf("  CV%d = %d (0b%08b)\n", cv, value, value)

	case MsgVerifyBit:
		cv, _ := GetMapUint(m, KeyCV)
		bit, _ := GetMapUint(m, KeyBit)
		expected, _ := GetMapBool(m, KeyExpected)
		return fmt.Sprintf("  CV%d bit %d = %d\n", cv, bit, boolDigit(expected))

	case MsgSpeed:
		addr, _ := GetMapUint(m, KeyAddress)
		long, _ := GetMapBool(m, KeyLong)
		steps, _ := GetMapUint(m, KeySteps)
		forward, _ := GetMapBool(m, KeyForward)
		speed, _ := GetMapUint(m, KeySpeed)
		dir := "reverse"
		if forward {
			dir = "forward"
		}
		return fmt.Sprintf("  Loco %d%s: %s %d/%d\n", addr, longSuffix(long), dir, speed, steps)

	case MsgFunction:
		addr, _ := GetMapUint(m, KeyAddress)
		long, _ := GetMapBool(m, KeyLong)
		fn, _ := GetMapUint(m, KeyFunction)
		on, _ := GetMapBool(m, KeyOn)
		state := "off"
		if on {
			state = "on"
		}
		return fmt.Sprintf("  Loco %d%s: F%d %s\n", addr, longSuffix(long), fn, state)

	case MsgAccessoryBasic:
		addr, _ := GetMapUint(m, KeyAddress)
		dir, _ := GetMapUint(m, KeyDirection)
		pos := "straight"
		if dir != 0 {
			pos = "diverging"
		}
		return fmt.Sprintf("  Turnout %d: %s\n", addr, pos)

	case MsgAccessoryExtended:
		addr, _ := GetMapUint(m, KeyAddress)
		aspect, _ := GetMapUint(m, KeyAspect)
		return fmt.Sprintf("  Signal %d: aspect %d (0b%08b)\n", addr, aspect, aspect)

	case MsgPoMMulti, MsgPoMAccessory:
		addr, _ := GetMapUint(m, KeyAddress)
		cv, _ := GetMapUint(m, KeyPoMCV)
		value, _ := GetMapUint(m, KeyPoMValue)
		return fmt.Sprintf("  Address %d: CV%d = %d\n", addr, cv, value)

	case MsgStatus:
		track, _ := GetMapUint(m, KeyTrack)
		powered, _ := GetMapBool(m, KeyPowered)
		return fmt.Sprintf("  Track: %s, Powered: %t\n", Track(track), powered)

	case MsgAckResult:
		ack, _ := GetMapBool(m, KeyAck)
		mA, _ := GetMapInt(m, KeyMilliamps)
		return fmt.Sprintf("  Ack: %t, Current: %d mA\n", ack, mA)

	case MsgCurrentData:
		track, _ := GetMapUint(m, KeyTrack)
		mA, _ := GetMapInt(m, KeyMilliamps)
		return fmt.Sprintf("  Track: %s, Current: %d mA\n", Track(track), mA)

	case MsgPingResponse:
		uptime, _ := GetMapUint(m, KeyUptime)
		return fmt.Sprintf("  Uptime: %s\n", time.Duration(uptime)*time.Millisecond)

	case MsgErrorInvalidCmd:
		rejected, _ := GetMapUint(m, KeyRejected)
		return fmt.Sprintf("  Rejected: %s (0x%02X)\n", FormatMessageType(uint8(rejected)), rejected)

	case MsgErrorTrackFault:
		track, _ := GetMapUint(m, KeyTrack)
		mA, _ := GetMapInt(m, KeyMilliamps)
		return fmt.Sprintf("  Track: %s, Current: %d mA\n", Track(track), mA)

	default:
		return fmt.Sprintf("  %v\n", m)
	}
}

func boolDigit(b bool) int {
	if b {
		return 1
	}
	return 0
}

func longSuffix(long bool) string {
	if long {
		return " (long)"
	}
	return ""
}
