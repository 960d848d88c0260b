// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package decodersim simulates a DCC decoder on a programming track and a
// command station on the main track. It backs the --sim flag and the engine
// tests.
package decodersim

import (
	"fmt"
	"sync"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// OpKind identifies a track instruction
type OpKind int

const (
	OpBegin OpKind = iota
	OpEnd
	OpPowerOn
	OpPowerOff
	OpLoop
	OpCurrent
	OpVerify
	OpVerifyBit
	OpWrite
)

var opNames = map[OpKind]string{
	OpBegin:     "begin",
	OpEnd:       "end",
	OpPowerOn:   "power_on",
	OpPowerOff:  "power_off",
	OpLoop:      "loop",
	OpCurrent:   "current",
	OpVerify:    "verify",
	OpVerifyBit: "verify_bit",
	OpWrite:     "write",
}

func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(k))
}

// Op is one recorded instruction
type Op struct {
	Kind     OpKind
	CV       int
	Bit      uint8
	Value    uint8
	Expected bool
}

func (o Op) String() string {
	switch o.Kind {
	case OpVerify, OpWrite:
		return fmt.Sprintf("%s CV%d=%d", o.Kind, o.CV, o.Value)
	case OpVerifyBit:
		b := 0
		if o.Expected {
			b = 1
		}
		return fmt.Sprintf("%s CV%d.%d=%d", o.Kind, o.CV, o.Bit, b)
	default:
		return o.Kind.String()
	}
}

// Current readings reported by the simulated track
const (
	AbsentCurrent  = -10 // mA
	PresentCurrent = 4   // mA
)

// Decoder is a simulated decoder sitting on a simulated programming track.
// It implements the service mode track contract.
type Decoder struct {
	mu sync.Mutex

	cvs      [dcc.MaxCV + 1]uint8
	defaults [dcc.MaxCV + 1]uint8

	// DirectMode makes the decoder answer bit-verify instructions
	DirectMode bool
	// Present reports whether the decoder is on the track at all
	Present bool
	// AbsentPolls is the number of current readings that report no decoder
	// before it shows up
	AbsentPolls int
	// ReadOnly CVs ignore writes
	ReadOnly map[int]bool
	// AckFilter may veto an acknowledgment; returning false drops it
	AckFilter func(op Op) bool

	// Err, when set, is returned by every instruction
	Err error

	powered bool
	begun   bool
	ack     bool
	ops     []Op
}

// New returns a decoder with every CV set to zero
func New() *Decoder {
	return &Decoder{Present: true, ReadOnly: map[int]bool{}}
}

// NewLoco returns a multifunction decoder answering on addr. Addresses above
// the short range are programmed as long addresses.
func NewLoco(addr int, manufacturer uint8) *Decoder {
	d := New()
	d.DirectMode = true
	cv29 := uint8(dcc.CV29SpeedSteps | dcc.CV29AnalogMode)
	if dcc.ValidLongAddress(addr) {
		lsb, msb := dcc.EncodeMultifunctionAddress(addr)
		d.cvs[dcc.CVPrimaryAddress] = dcc.DefaultAddress
		d.cvs[dcc.CVExtAddressHigh] = msb
		d.cvs[dcc.CVExtAddressLow] = lsb
		cv29 |= dcc.CV29LongAddress
	} else {
		d.cvs[dcc.CVPrimaryAddress] = uint8(addr)
	}
	d.cvs[dcc.CVConfig] = cv29
	d.cvs[dcc.CVStartVoltage] = 3
	d.cvs[dcc.CVAcceleration] = 8
	d.cvs[dcc.CVDeceleration] = 6
	d.cvs[dcc.CVVersion] = 42
	d.cvs[dcc.CVManufacturer] = manufacturer
	d.defaults = d.cvs
	d.defaults[dcc.CVPrimaryAddress] = dcc.DefaultAddress
	d.defaults[dcc.CVExtAddressHigh] = 0
	d.defaults[dcc.CVExtAddressLow] = 0
	d.defaults[dcc.CVConfig] = dcc.CV29SpeedSteps | dcc.CV29AnalogMode
	return d
}

// NewAccessory returns an accessory decoder answering on addr with a typical
// servo timing table
func NewAccessory(addr int, manufacturer uint8) *Decoder {
	d := New()
	d.DirectMode = true
	lsb, msb := dcc.EncodeAccessoryAddress(addr)
	d.cvs[dcc.CVPrimaryAddress] = lsb
	d.cvs[dcc.CVAccessoryAddrHigh] = msb
	d.cvs[dcc.CVConfig] = dcc.CV29Accessory
	d.cvs[dcc.CVManufacturer] = manufacturer
	d.cvs[33], d.cvs[34] = 0, 50  // 50 Hz
	d.cvs[35], d.cvs[36] = 3, 232 // 1000 µs
	d.cvs[37], d.cvs[38] = 7, 208 // 2000 µs
	d.cvs[39] = 10
	d.cvs[40] = 20
	d.defaults = d.cvs
	d.defaults[dcc.CVPrimaryAddress] = 1
	d.defaults[dcc.CVAccessoryAddrHigh] = 0
	return d
}

// CV returns the stored value of cv
func (d *Decoder) CV(cv int) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cvs[cv]
}

// SetCV stores value in cv without recording an instruction
func (d *Decoder) SetCV(cv int, value uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cvs[cv] = value
}

// Powered reports whether the track is powered
func (d *Decoder) Powered() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.powered
}

// Begun reports whether the track is taken
func (d *Decoder) Begun() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.begun
}

// Ops returns a copy of the recorded instructions
func (d *Decoder) Ops() []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Op, len(d.ops))
	copy(out, d.ops)
	return out
}

// Count returns how many instructions of kind were recorded
func (d *Decoder) Count(kind OpKind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, op := range d.ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Filter returns the recorded instructions of the given kinds in order
func (d *Decoder) Filter(kinds ...OpKind) []Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Op
	for _, op := range d.ops {
		for _, k := range kinds {
			if op.Kind == k {
				out = append(out, op)
				break
			}
		}
	}
	return out
}

// ResetOps clears the instruction log
func (d *Decoder) ResetOps() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ops = nil
}

func (d *Decoder) record(op Op) error {
	d.ops = append(d.ops, op)
	return d.Err
}

// answering reports whether the decoder can see instructions
func (d *Decoder) answering() bool {
	return d.Present && d.powered && d.AbsentPolls <= 0
}

func (d *Decoder) setAck(op Op, ack bool) {
	if ack && d.AckFilter != nil && !d.AckFilter(op) {
		ack = false
	}
	d.ack = ack
}

// Begin takes the programming track
func (d *Decoder) Begin() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begun = true
	return d.record(Op{Kind: OpBegin})
}

// End releases the programming track
func (d *Decoder) End() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begun = false
	d.powered = false
	return d.record(Op{Kind: OpEnd})
}

// PowerOn energizes the track
func (d *Decoder) PowerOn() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powered = true
	return d.record(Op{Kind: OpPowerOn})
}

// PowerOff de-energizes the track
func (d *Decoder) PowerOff() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powered = false
	return d.record(Op{Kind: OpPowerOff})
}

// Loop pumps idle packets
func (d *Decoder) Loop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.record(Op{Kind: OpLoop})
}

// Current reports the track current in mA
func (d *Decoder) Current() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.record(Op{Kind: OpCurrent}); err != nil {
		return 0, err
	}
	if !d.Present || !d.powered {
		return AbsentCurrent, nil
	}
	if d.AbsentPolls > 0 {
		d.AbsentPolls--
		return AbsentCurrent, nil
	}
	return PresentCurrent, nil
}

// Verify compares value against the stored CV
func (d *Decoder) Verify(cv int, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	op := Op{Kind: OpVerify, CV: cv, Value: value}
	if err := d.record(op); err != nil {
		return err
	}
	d.setAck(op, d.answering() && dcc.ValidCV(cv) && d.cvs[cv] == value)
	return nil
}

// VerifyBit compares one bit of the stored CV. Decoders without direct mode
// never acknowledge.
func (d *Decoder) VerifyBit(cv int, bit uint8, expected bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	op := Op{Kind: OpVerifyBit, CV: cv, Bit: bit, Expected: expected}
	if err := d.record(op); err != nil {
		return err
	}
	if !d.DirectMode || !d.answering() || !dcc.ValidCV(cv) || bit > 7 {
		d.setAck(op, false)
		return nil
	}
	set := d.cvs[cv]&(1<<bit) != 0
	d.setAck(op, set == expected)
	return nil
}

// Write stores value in cv. Writing 8 to CV8 restores the factory defaults;
// any other write to CV8 is ignored.
func (d *Decoder) Write(cv int, value uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	op := Op{Kind: OpWrite, CV: cv, Value: value}
	if err := d.record(op); err != nil {
		return err
	}
	if !d.answering() || !dcc.ValidCV(cv) {
		d.setAck(op, false)
		return nil
	}
	switch {
	case cv == dcc.CVManufacturer:
		if value == 8 {
			d.cvs = d.defaults
		}
	case d.ReadOnly[cv]:
	default:
		d.cvs[cv] = value
	}
	d.setAck(op, true)
	return nil
}

// Ack returns the acknowledgment of the most recent instruction
func (d *Decoder) Ack() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ack
}
