// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package dcc holds the NMRA-DCC domain primitives used by trackside: CV
// ranges, the decoder address codec, CV29 feature decoding, the manufacturer
// table and the compact text command parser.
package dcc

// CV index and value ranges
const (
	MinCV    = 1
	MaxCV    = 1024
	MaxValue = 255
)

// Address ranges
const (
	MinAccessoryAddress = 1
	MaxAccessoryAddress = 2044
	MinShortAddress     = 1
	MaxShortAddress     = 127
	MinLongAddress      = 128
	MaxLongAddress      = 10239

	// DefaultAddress is the factory address of a multifunction decoder
	DefaultAddress = 3
)

// Well-known configuration variables
const (
	CVPrimaryAddress    = 1
	CVStartVoltage      = 2
	CVAcceleration      = 3
	CVDeceleration      = 4
	CVVersion           = 7
	CVManufacturer      = 8
	CVAccessoryAddrHigh = 9
	CVExtAddressHigh    = 17
	CVExtAddressLow     = 18
	CVConfig            = 29
)

// CV29 bit masks
const (
	CV29Direction     = 1 << 0
	CV29SpeedSteps    = 1 << 1
	CV29AnalogMode    = 1 << 2
	CV29Bidirectional = 1 << 3
	CV29SpeedTable    = 1 << 4
	CV29LongAddress   = 1 << 5
	CV29Reserved      = 1 << 6
	CV29Accessory     = 1 << 7

	// CV29CanonicalAccessory is written to accessory decoders before their
	// address CVs are read (long address, accessory class, output mode).
	CV29CanonicalAccessory = 0b1110_0000
)

// Factory reset sequence written to CV8
var FactoryResetSequence = []uint8{0, 8, 33}

// ValidCV reports whether cv is an addressable configuration variable
func ValidCV(cv int) bool {
	return cv >= MinCV && cv <= MaxCV
}

// ValidValue reports whether v fits a CV
func ValidValue(v int) bool {
	return v >= 0 && v <= MaxValue
}

// ValidAccessoryAddress reports whether addr is a valid accessory address
func ValidAccessoryAddress(addr int) bool {
	return addr >= MinAccessoryAddress && addr <= MaxAccessoryAddress
}

// ValidShortAddress reports whether addr fits the one-byte address form
func ValidShortAddress(addr int) bool {
	return addr >= MinShortAddress && addr <= MaxShortAddress
}

// ValidLongAddress reports whether addr needs the two-byte address form
func ValidLongAddress(addr int) bool {
	return addr >= MinLongAddress && addr <= MaxLongAddress
}

// ValidMultifunctionAddress reports whether addr is a valid loco address in
// either form
func ValidMultifunctionAddress(addr int) bool {
	return ValidShortAddress(addr) || ValidLongAddress(addr)
}
