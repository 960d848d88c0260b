// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

// Command builders create packets with the payload keys the board expects.

// NewProgBegin creates a PROG_BEGIN packet (0x10). The board hands the
// programming track to the host.
func NewProgBegin() *Packet {
	return NewPacketWithPayload(MsgProgBegin, nil)
}

// NewProgEnd creates a PROG_END packet (0x11)
func NewProgEnd() *Packet {
	return NewPacketWithPayload(MsgProgEnd, nil)
}

// NewPowerOn creates a POWER_ON packet (0x12) for one track output
func NewPowerOn(track Track) *Packet {
	return NewPacketWithPayload(MsgPowerOn, map[int]interface{}{KeyTrack: uint64(track)})
}

// NewPowerOff creates a POWER_OFF packet (0x13) for one track output
func NewPowerOff(track Track) *Packet {
	return NewPacketWithPayload(MsgPowerOff, map[int]interface{}{KeyTrack: uint64(track)})
}

// NewLoop creates a LOOP packet (0x14). The board emits one round of idle
// or refresh packets on the track.
func NewLoop(track Track) *Packet {
	return NewPacketWithPayload(MsgLoop, map[int]interface{}{KeyTrack: uint64(track)})
}

// NewVerifyByte creates a VERIFY_BYTE packet (0x15). The reply is an
// ACK_RESULT.
func NewVerifyByte(cv int, value uint8) *Packet {
	return NewPacketWithPayload(MsgVerifyByte, map[int]interface{}{
		KeyCV:    uint64(cv),
		KeyValue: uint64(value),
	})
}

// NewVerifyBit creates a VERIFY_BIT packet (0x16). The reply is an
// ACK_RESULT.
func NewVerifyBit(cv int, bit uint8, expected bool) *Packet {
	return NewPacketWithPayload(MsgVerifyBit, map[int]interface{}{
		KeyCV:       uint64(cv),
		KeyBit:      uint64(bit),
		KeyExpected: expected,
	})
}

// NewWriteByte creates a WRITE_BYTE packet (0x17). The reply is an
// ACK_RESULT.
func NewWriteByte(cv int, value uint8) *Packet {
	return NewPacketWithPayload(MsgWriteByte, map[int]interface{}{
		KeyCV:    uint64(cv),
		KeyValue: uint64(value),
	})
}

// NewCurrentRequest creates a CURRENT_REQUEST packet (0x18). The reply is
// CURRENT_DATA.
func NewCurrentRequest(track Track) *Packet {
	return NewPacketWithPayload(MsgCurrentRequest, map[int]interface{}{KeyTrack: uint64(track)})
}

// NewOpsBegin creates an OPS_BEGIN packet (0x20)
func NewOpsBegin() *Packet {
	return NewPacketWithPayload(MsgOpsBegin, nil)
}

// NewOpsEnd creates an OPS_END packet (0x21)
func NewOpsEnd() *Packet {
	return NewPacketWithPayload(MsgOpsEnd, nil)
}

// NewSpeed creates a SPEED packet (0x22) for a multifunction decoder
func NewSpeed(addr int, long bool, steps int, forward bool, speed int) *Packet {
	return NewPacketWithPayload(MsgSpeed, map[int]interface{}{
		KeyAddress: uint64(addr),
		KeyLong:    long,
		KeySteps:   uint64(steps),
		KeyForward: forward,
		KeySpeed:   uint64(speed),
	})
}

// NewFunction creates a FUNCTION packet (0x23). The board keeps the
// function group state and refreshes the whole group.
func NewFunction(addr int, long bool, fn int, on bool) *Packet {
	return NewPacketWithPayload(MsgFunction, map[int]interface{}{
		KeyAddress:  uint64(addr),
		KeyLong:     long,
		KeyFunction: uint64(fn),
		KeyOn:       on,
	})
}

// NewAccessoryBasic creates an ACCESSORY_BASIC packet (0x24).
// Direction 0 is straight, anything else diverging.
func NewAccessoryBasic(addr int, direction int) *Packet {
	return NewPacketWithPayload(MsgAccessoryBasic, map[int]interface{}{
		KeyAddress:   uint64(addr),
		KeyDirection: uint64(direction),
	})
}

// NewAccessoryExtended creates an ACCESSORY_EXTENDED packet (0x25) carrying
// a signal aspect
func NewAccessoryExtended(addr int, aspect int) *Packet {
	return NewPacketWithPayload(MsgAccessoryExtended, map[int]interface{}{
		KeyAddress: uint64(addr),
		KeyAspect:  uint64(aspect),
	})
}

// NewPoMMulti creates a POM_MULTI packet (0x26)
func NewPoMMulti(addr, cv, value int) *Packet {
	return newPoM(MsgPoMMulti, addr, cv, value)
}

// NewPoMAccessory creates a POM_ACCESSORY packet (0x27)
func NewPoMAccessory(addr, cv, value int) *Packet {
	return newPoM(MsgPoMAccessory, addr, cv, value)
}

func newPoM(msgType uint8, addr, cv, value int) *Packet {
	return NewPacketWithPayload(msgType, map[int]interface{}{
		KeyAddress:  uint64(addr),
		KeyPoMCV:    uint64(cv),
		KeyPoMValue: uint64(value),
	})
}

// NewEmergencyStop creates an EMERGENCY_STOP packet (0x28) for every loco
// on the main track
func NewEmergencyStop() *Packet {
	return NewPacketWithPayload(MsgEmergencyStop, nil)
}

// NewPingRequest creates a PING_REQUEST packet (0x2F).
// The board answers with PING_RESPONSE containing its uptime.
func NewPingRequest() *Packet {
	return NewPacketWithPayload(MsgPingRequest, nil)
}

// Reply builders, used by board implementations

// NewStatus creates a STATUS reply (0x30)
func NewStatus(track Track, powered bool) *Packet {
	return NewPacketWithPayload(MsgStatus, map[int]interface{}{
		KeyTrack:   uint64(track),
		KeyPowered: powered,
	})
}

// NewAckResult creates an ACK_RESULT reply (0x31)
func NewAckResult(ack bool, milliamps int) *Packet {
	return NewPacketWithPayload(MsgAckResult, map[int]interface{}{
		KeyAck:       ack,
		KeyMilliamps: int64(milliamps),
	})
}

// NewCurrentData creates a CURRENT_DATA reply (0x32)
func NewCurrentData(track Track, milliamps int) *Packet {
	return NewPacketWithPayload(MsgCurrentData, map[int]interface{}{
		KeyTrack:     uint64(track),
		KeyMilliamps: int64(milliamps),
	})
}

// NewPingResponse creates a PING_RESPONSE reply (0x3F)
func NewPingResponse(uptimeMs uint64) *Packet {
	return NewPacketWithPayload(MsgPingResponse, map[int]interface{}{KeyUptime: uptimeMs})
}

// NewErrorInvalidCmd creates an ERROR_INVALID_CMD report (0xE0)
func NewErrorInvalidCmd(rejected uint8) *Packet {
	return NewPacketWithPayload(MsgErrorInvalidCmd, map[int]interface{}{KeyRejected: uint64(rejected)})
}

// NewErrorTrackFault creates an ERROR_TRACK_FAULT report (0xE1)
func NewErrorTrackFault(track Track, milliamps int) *Packet {
	return NewPacketWithPayload(MsgErrorTrackFault, map[int]interface{}{
		KeyTrack:     uint64(track),
		KeyMilliamps: int64(milliamps),
	})
}
