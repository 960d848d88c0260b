// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tracklink

import (
	"fmt"

	"github.com/Thermoquad/trackside/pkg/operations"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var (
	_ servicemode.Track  = (*ProgrammingTrack)(nil)
	_ operations.Station = (*MainTrack)(nil)
)

// ProgrammingTrack drives the programming track output of the board
type ProgrammingTrack struct {
	c   *Client
	ack bool
}

func (t *ProgrammingTrack) Begin() error {
	return t.c.command(NewProgBegin())
}

func (t *ProgrammingTrack) End() error {
	return t.c.command(NewProgEnd())
}

func (t *ProgrammingTrack) PowerOn() error {
	return t.c.command(NewPowerOn(TrackProgramming))
}

func (t *ProgrammingTrack) PowerOff() error {
	return t.c.command(NewPowerOff(TrackProgramming))
}

func (t *ProgrammingTrack) Loop() error {
	return t.c.command(NewLoop(TrackProgramming))
}

func (t *ProgrammingTrack) Current() (int, error) {
	return t.c.current(TrackProgramming)
}

func (t *ProgrammingTrack) Verify(cv int, value uint8) error {
	return t.acknowledged(NewVerifyByte(cv, value))
}

func (t *ProgrammingTrack) VerifyBit(cv int, bit uint8, expected bool) error {
	return t.acknowledged(NewVerifyBit(cv, bit, expected))
}

func (t *ProgrammingTrack) Write(cv int, value uint8) error {
	return t.acknowledged(NewWriteByte(cv, value))
}

// Ack returns the acknowledgment of the most recent verify or write
func (t *ProgrammingTrack) Ack() bool {
	return t.ack
}

func (t *ProgrammingTrack) acknowledged(p *Packet) error {
	t.ack = false
	reply, err := t.c.Request(p, MsgAckResult)
	if err != nil {
		return err
	}
	ack, ok := reply.Bool(KeyAck)
	if !ok {
		return fmt.Errorf("ACK_RESULT without ack field")
	}
	t.ack = ack
	return nil
}

// MainTrack drives the main track output of the board
type MainTrack struct {
	c *Client
}

func (t *MainTrack) Begin() error {
	return t.c.command(NewOpsBegin())
}

func (t *MainTrack) End() error {
	return t.c.command(NewOpsEnd())
}

func (t *MainTrack) PowerOn() error {
	return t.c.command(NewPowerOn(TrackMain))
}

func (t *MainTrack) PowerOff() error {
	return t.c.command(NewPowerOff(TrackMain))
}

func (t *MainTrack) Loop() error {
	return t.c.command(NewLoop(TrackMain))
}

func (t *MainTrack) Current() (int, error) {
	return t.c.current(TrackMain)
}

func (t *MainTrack) EmergencyStop() error {
	return t.c.command(NewEmergencyStop())
}

func (t *MainTrack) Speed(addr int, long bool, steps int, forward bool, speed int) error {
	return t.c.command(NewSpeed(addr, long, steps, forward, speed))
}

func (t *MainTrack) Function(addr int, long bool, fn int, on bool) error {
	return t.c.command(NewFunction(addr, long, fn, on))
}

func (t *MainTrack) AccessoryBasic(addr int, direction int) error {
	return t.c.command(NewAccessoryBasic(addr, direction))
}

func (t *MainTrack) AccessoryExtended(addr int, aspect int) error {
	return t.c.command(NewAccessoryExtended(addr, aspect))
}

func (t *MainTrack) PoMMulti(addr, cv, value int) error {
	return t.c.command(NewPoMMulti(addr, cv, value))
}

func (t *MainTrack) PoMAccessory(addr, cv, value int) error {
	return t.c.command(NewPoMAccessory(addr, cv, value))
}
