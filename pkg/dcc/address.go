// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dcc

// Reset sentinels returned for out-of-range addresses
const (
	accessoryResetLSB     = 1
	multifunctionResetLSB = 3

	// longAddressOffset marks the high byte of a two-byte loco address
	longAddressOffset = 192
)

// EncodeAccessoryAddress splits an accessory address into its CV1 (lsb) and
// CV9 (msb) values. Addresses outside (0, 2045) yield the reset pair (1, 0).
func EncodeAccessoryAddress(addr int) (lsb, msb uint8) {
	if addr <= 0 || addr >= MaxAccessoryAddress+1 {
		return accessoryResetLSB, 0
	}
	return uint8(addr % 256), uint8(addr / 256)
}

// DecodeAccessoryAddress is the inverse of EncodeAccessoryAddress. Only the
// three low bits of CV9 carry address information.
func DecodeAccessoryAddress(lsb, msb uint8) int {
	return int(msb&0b0000_0111)<<8 | int(lsb)
}

// EncodeMultifunctionAddress splits a loco address into its CV18 (lsb) and
// CV17 (msb) values using the two-byte form. Addresses outside (0, 10240)
// yield the reset pair (3, 0).
func EncodeMultifunctionAddress(addr int) (lsb, msb uint8) {
	if addr <= 0 || addr >= MaxLongAddress+1 {
		return multifunctionResetLSB, 0
	}
	return uint8(addr % 256), uint8(addr/256 + longAddressOffset)
}

// DecodeMultifunctionAddress is the inverse of EncodeMultifunctionAddress
func DecodeMultifunctionAddress(lsb, msb uint8) int {
	return (int(msb)-longAddressOffset)*256 + int(lsb)
}

// SpeedStepsFromCV29 derives the speed step count used when a scanned loco is
// handed to the operations controller.
func SpeedStepsFromCV29(cv29 uint8) int {
	if cv29&CV29SpeedSteps == 0 {
		return 14
	}
	if cv29&CV29Bidirectional != 0 {
		return 28
	}
	return 128
}
