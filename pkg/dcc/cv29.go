// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

import (
	"fmt"
	"strings"
)

// Direction is the CV29 bit 0 setting
type Direction int

const (
	DirectionNormal Direction = iota
	DirectionReversed
)

// SpeedStepMode is the CV29 bit 1 setting
type SpeedStepMode int

const (
	SpeedSteps14 SpeedStepMode = iota
	SpeedSteps28
)

// SpeedTableSource is the CV29 bit 4 setting
type SpeedTableSource int

const (
	SpeedTableThreePoint SpeedTableSource = iota // CV2, CV5, CV6
	SpeedTableCustom                             // CV66-CV95
)

// AddressMode is the CV29 bit 5 setting
type AddressMode int

const (
	AddressShort AddressMode = iota
	AddressLong
)

// DecoderClass is the CV29 bit 7 setting
type DecoderClass int

const (
	ClassMultifunction DecoderClass = iota
	ClassAccessory
)

// String returns the class name used in reports and record file names
func (c DecoderClass) String() string {
	if c == ClassAccessory {
		return "accessory"
	}
	return "multifunction"
}

// FeatureSet is the decoded form of CV29. Every field depends on exactly one
// bit of the raw value.
type FeatureSet struct {
	Raw              uint8
	Direction        Direction
	SpeedSteps       SpeedStepMode
	AnalogConversion bool
	Bidirectional    bool
	SpeedTable       SpeedTableSource
	Addressing       AddressMode
	Reserved         bool
	Class            DecoderClass
}

// DecodeCV29 decodes the configuration register bit by bit
func DecodeCV29(v uint8) FeatureSet {
	fs := FeatureSet{Raw: v}
	if v&CV29Direction != 0 {
		fs.Direction = DirectionReversed
	}
	if v&CV29SpeedSteps != 0 {
		fs.SpeedSteps = SpeedSteps28
	}
	fs.AnalogConversion = v&CV29AnalogMode != 0
	fs.Bidirectional = v&CV29Bidirectional != 0
	if v&CV29SpeedTable != 0 {
		fs.SpeedTable = SpeedTableCustom
	}
	if v&CV29LongAddress != 0 {
		fs.Addressing = AddressLong
	}
	fs.Reserved = v&CV29Reserved != 0
	if v&CV29Accessory != 0 {
		fs.Class = ClassAccessory
	}
	return fs
}

// LongAddress reports whether the decoder uses two-byte addressing
func (fs FeatureSet) LongAddress() bool {
	return fs.Addressing == AddressLong
}

// Accessory reports whether the decoder is an accessory decoder
func (fs FeatureSet) Accessory() bool {
	return fs.Class == ClassAccessory
}

var cv29Labels = [8]struct {
	name    string
	meaning [2]string
}{
	{"Direction", [2]string{"normal", "reversed"}},
	{"Speed steps", [2]string{"14", "28/128"}},
	{"Power source", [2]string{"digital only", "analog conversion per CV12"}},
	{"Bidirectional comms", [2]string{"off", "on"}},
	{"Speed table", [2]string{"three point (CV2/CV5/CV6)", "custom (CV66-CV95)"}},
	{"Addressing", [2]string{"1 byte", "2 byte"}},
	{"Reserved", [2]string{"-", "-"}},
	{"Decoder type", [2]string{"multifunction", "accessory (see CV541)"}},
}

// Report renders the feature set as an aligned table, one line per bit
func (fs FeatureSet) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CV29 = 0b%08b (%d)\n", fs.Raw, fs.Raw)
	for bit := 0; bit < 8; bit++ {
		label := cv29Labels[bit]
		fmt.Fprintf(&b, "%-20s: %s\n", label.name, label.meaning[(fs.Raw>>bit)&1])
	}
	return b.String()
}
