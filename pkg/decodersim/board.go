// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decodersim

import (
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/trackside/pkg/tracklink"
)

// Board answers link requests the way the booster firmware does, backed by a
// simulated decoder on the programming track and a simulated station on the
// main track
type Board struct {
	Decoder *Decoder
	Station *Station

	start time.Time
	log   zerolog.Logger
}

// NewBoard wires a decoder and a station behind the link protocol
func NewBoard(d *Decoder, s *Station, log zerolog.Logger) *Board {
	return &Board{Decoder: d, Station: s, start: time.Now(), log: log}
}

// Serve decodes requests from rw and writes one reply per request until rw
// is closed
func (b *Board) Serve(rw io.ReadWriter) error {
	decoder := tracklink.NewDecoder()
	buf := make([]byte, 256)
	for {
		n, err := rw.Read(buf)
		for _, c := range buf[:n] {
			packet, decodeErr := decoder.DecodeByte(c)
			if decodeErr != nil {
				b.log.Debug().Err(decodeErr).Msg("board: frame rejected")
				continue
			}
			if packet == nil {
				continue
			}
			frame, encErr := tracklink.EncodePacket(b.Handle(packet))
			if encErr != nil {
				return encErr
			}
			if _, werr := rw.Write(frame); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}

// Handle executes one request and builds its reply
func (b *Board) Handle(p *tracklink.Packet) *tracklink.Packet {
	if len(tracklink.ValidatePacket(p)) > 0 {
		return tracklink.NewErrorInvalidCmd(p.Type())
	}

	track := tracklink.TrackProgramming
	if v, ok := p.Uint(tracklink.KeyTrack); ok {
		track = tracklink.Track(v)
	}
	u := func(key int) int {
		v, _ := p.Uint(key)
		return int(v)
	}
	flag := func(key int) bool {
		v, _ := p.Bool(key)
		return v
	}

	var err error
	switch p.Type() {
	case tracklink.MsgProgBegin:
		err = b.Decoder.Begin()
	case tracklink.MsgProgEnd:
		err = b.Decoder.End()
	case tracklink.MsgOpsBegin:
		track = tracklink.TrackMain
		err = b.Station.Begin()
	case tracklink.MsgOpsEnd:
		track = tracklink.TrackMain
		err = b.Station.End()

	case tracklink.MsgPowerOn:
		if track == tracklink.TrackMain {
			err = b.Station.PowerOn()
		} else {
			err = b.Decoder.PowerOn()
		}
	case tracklink.MsgPowerOff:
		if track == tracklink.TrackMain {
			err = b.Station.PowerOff()
		} else {
			err = b.Decoder.PowerOff()
		}
	case tracklink.MsgLoop:
		if track == tracklink.TrackMain {
			err = b.Station.Loop()
		} else {
			err = b.Decoder.Loop()
		}

	case tracklink.MsgCurrentRequest:
		var mA int
		if track == tracklink.TrackMain {
			mA, err = b.Station.Current()
		} else {
			mA, err = b.Decoder.Current()
		}
		if err != nil {
			return tracklink.NewErrorTrackFault(track, 0)
		}
		return tracklink.NewCurrentData(track, mA)

	case tracklink.MsgVerifyByte:
		err = b.Decoder.Verify(u(tracklink.KeyCV), uint8(u(tracklink.KeyValue)))
		return b.ackResult(err)
	case tracklink.MsgVerifyBit:
		err = b.Decoder.VerifyBit(u(tracklink.KeyCV), uint8(u(tracklink.KeyBit)), flag(tracklink.KeyExpected))
		return b.ackResult(err)
	case tracklink.MsgWriteByte:
		err = b.Decoder.Write(u(tracklink.KeyCV), uint8(u(tracklink.KeyValue)))
		return b.ackResult(err)

	case tracklink.MsgSpeed:
		track = tracklink.TrackMain
		err = b.Station.Speed(u(tracklink.KeyAddress), flag(tracklink.KeyLong), u(tracklink.KeySteps), flag(tracklink.KeyForward), u(tracklink.KeySpeed))
	case tracklink.MsgFunction:
		track = tracklink.TrackMain
		err = b.Station.Function(u(tracklink.KeyAddress), flag(tracklink.KeyLong), u(tracklink.KeyFunction), flag(tracklink.KeyOn))
	case tracklink.MsgAccessoryBasic:
		track = tracklink.TrackMain
		err = b.Station.AccessoryBasic(u(tracklink.KeyAddress), u(tracklink.KeyDirection))
	case tracklink.MsgAccessoryExtended:
		track = tracklink.TrackMain
		err = b.Station.AccessoryExtended(u(tracklink.KeyAddress), u(tracklink.KeyAspect))
	case tracklink.MsgPoMMulti:
		track = tracklink.TrackMain
		err = b.Station.PoMMulti(u(tracklink.KeyAddress), u(tracklink.KeyPoMCV), u(tracklink.KeyPoMValue))
	case tracklink.MsgPoMAccessory:
		track = tracklink.TrackMain
		err = b.Station.PoMAccessory(u(tracklink.KeyAddress), u(tracklink.KeyPoMCV), u(tracklink.KeyPoMValue))
	case tracklink.MsgEmergencyStop:
		track = tracklink.TrackMain
		err = b.Station.EmergencyStop()

	case tracklink.MsgPingRequest:
		return tracklink.NewPingResponse(uint64(time.Since(b.start).Milliseconds()))

	default:
		return tracklink.NewErrorInvalidCmd(p.Type())
	}

	if err != nil {
		b.log.Debug().Err(err).Str("type", tracklink.FormatMessageType(p.Type())).Msg("board: command failed")
		return tracklink.NewErrorTrackFault(track, 0)
	}
	powered := b.Decoder.Powered()
	if track == tracklink.TrackMain {
		powered = b.Station.Powered()
	}
	return tracklink.NewStatus(track, powered)
}

func (b *Board) ackResult(err error) *tracklink.Packet {
	if err != nil {
		return tracklink.NewErrorTrackFault(tracklink.TrackProgramming, 0)
	}
	mA := AbsentCurrent
	if b.Decoder.Powered() {
		mA = PresentCurrent
	}
	return tracklink.NewAckResult(b.Decoder.Ack(), mA)
}
