// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

import (
	"strings"
	"testing"
)

// ============================================================
// Address Codec Tests
// ============================================================

func TestAccessoryAddress_RoundTrip(t *testing.T) {
	for addr := 1; addr < 2045; addr++ {
		lsb, msb := EncodeAccessoryAddress(addr)
		if got := DecodeAccessoryAddress(lsb, msb); got != addr {
			t.Fatalf("DecodeAccessoryAddress(EncodeAccessoryAddress(%d)) = %d", addr, got)
		}
	}
}

func TestAccessoryAddress_OutOfRange(t *testing.T) {
	for _, addr := range []int{-5, 0, 2045, 4000} {
		lsb, msb := EncodeAccessoryAddress(addr)
		if lsb != 1 || msb != 0 {
			t.Errorf("EncodeAccessoryAddress(%d) = (%d, %d), want (1, 0)", addr, lsb, msb)
		}
	}
}

func TestAccessoryAddress_MasksHighBits(t *testing.T) {
	// Only the three low bits of CV9 are address bits
	if got := DecodeAccessoryAddress(0x10, 0b1111_1010); got != 0x210 {
		t.Errorf("DecodeAccessoryAddress = 0x%X, want 0x210", got)
	}
}

func TestMultifunctionAddress_RoundTrip(t *testing.T) {
	for addr := 1; addr < 10240; addr++ {
		lsb, msb := EncodeMultifunctionAddress(addr)
		if got := DecodeMultifunctionAddress(lsb, msb); got != addr {
			t.Fatalf("DecodeMultifunctionAddress(EncodeMultifunctionAddress(%d)) = %d", addr, got)
		}
	}
}

func TestMultifunctionAddress_KnownValues(t *testing.T) {
	tests := []struct {
		addr int
		lsb  uint8
		msb  uint8
	}{
		{addr: 3, lsb: 3, msb: 192},
		{addr: 1234, lsb: 210, msb: 196},
		{addr: 10239, lsb: 255, msb: 231},
		{addr: 0, lsb: 3, msb: 0},
		{addr: 10240, lsb: 3, msb: 0},
	}

	for _, tt := range tests {
		lsb, msb := EncodeMultifunctionAddress(tt.addr)
		if lsb != tt.lsb || msb != tt.msb {
			t.Errorf("EncodeMultifunctionAddress(%d) = (%d, %d), want (%d, %d)", tt.addr, lsb, msb, tt.lsb, tt.msb)
		}
	}
}

func TestAddressRanges(t *testing.T) {
	if !ValidAccessoryAddress(2044) || ValidAccessoryAddress(2045) || ValidAccessoryAddress(0) {
		t.Error("accessory range should be 1-2044")
	}
	if !ValidShortAddress(127) || ValidShortAddress(128) {
		t.Error("short range should be 1-127")
	}
	if !ValidLongAddress(128) || !ValidLongAddress(10239) || ValidLongAddress(10240) {
		t.Error("long range should be 128-10239")
	}
	if !ValidCV(1) || !ValidCV(1024) || ValidCV(0) || ValidCV(1025) {
		t.Error("CV range should be 1-1024")
	}
}

func TestSpeedStepsFromCV29(t *testing.T) {
	tests := []struct {
		cv29 uint8
		want int
	}{
		{0b0000_0000, 14},
		{0b0000_1000, 14},
		{0b0000_0010, 128},
		{0b0000_1010, 28},
		{0b0010_0110, 128},
	}

	for _, tt := range tests {
		if got := SpeedStepsFromCV29(tt.cv29); got != tt.want {
			t.Errorf("SpeedStepsFromCV29(0b%08b) = %d, want %d", tt.cv29, got, tt.want)
		}
	}
}

// ============================================================
// CV29 Tests
// ============================================================

func TestDecodeCV29_BitsIndependent(t *testing.T) {
	for v := 0; v < 256; v++ {
		fs := DecodeCV29(uint8(v))
		bits := []bool{
			fs.Direction == DirectionReversed,
			fs.SpeedSteps == SpeedSteps28,
			fs.AnalogConversion,
			fs.Bidirectional,
			fs.SpeedTable == SpeedTableCustom,
			fs.Addressing == AddressLong,
			fs.Reserved,
			fs.Class == ClassAccessory,
		}
		for bit, set := range bits {
			want := v&(1<<bit) != 0
			if set != want {
				t.Fatalf("DecodeCV29(0b%08b) bit %d = %v, want %v", v, bit, set, want)
			}
		}
	}
}

func TestDecodeCV29_CanonicalAccessory(t *testing.T) {
	fs := DecodeCV29(CV29CanonicalAccessory)
	if !fs.Accessory() || !fs.LongAddress() {
		t.Errorf("canonical accessory pattern should be accessory with long addressing, got %+v", fs)
	}
}

func TestFeatureSet_Report(t *testing.T) {
	report := DecodeCV29(0b0010_0010).Report()
	lines := strings.Split(strings.TrimSpace(report), "\n")
	if len(lines) != 9 {
		t.Fatalf("Report() has %d lines, want 9:\n%s", len(lines), report)
	}
	if !strings.Contains(report, "2 byte") {
		t.Errorf("Report() should mention two byte addressing:\n%s", report)
	}
	if !strings.Contains(report, "multifunction") {
		t.Errorf("Report() should mention multifunction decoder:\n%s", report)
	}
}

// ============================================================
// Manufacturer Tests
// ============================================================

func TestManufacturerName(t *testing.T) {
	if got := ManufacturerName(151); got != "ESU" {
		t.Errorf("ManufacturerName(151) = %q, want ESU", got)
	}
	if got := ManufacturerName(250); got != "Unknown (250)" {
		t.Errorf("ManufacturerName(250) = %q", got)
	}
}
