// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package servicemode implements decoder programming on an isolated
// programming track: presence detection, the direct-mode capability probe,
// bit-level and sequential CV reads, verified writes, the address-read
// protocol, factory reset and batch CV dumps.
//
// The engine is synchronous. Every verify or write instruction is resolved
// through the Track before the next one is issued, and a Session must be the
// only user of its Track while it is open.
package servicemode

// Track is the programming-track collaborator. Implementations generate the
// DCC service mode packets and sample the acknowledgment current; the engine
// only decides which instructions to send.
type Track interface {
	// Begin takes ownership of the programming track
	Begin() error
	// End releases the programming track
	End() error
	PowerOn() error
	PowerOff() error
	// Loop pumps background signal generation and must be called
	// periodically while waiting
	Loop() error
	// Current returns the track current in milliamps. Values below the
	// presence threshold mean no decoder is on the track.
	Current() (int, error)
	// Verify issues a byte-verify instruction
	Verify(cv int, value uint8) error
	// VerifyBit issues a bit-verify instruction for one bit of a CV
	VerifyBit(cv int, bit uint8, expected bool) error
	// Write issues a byte-write instruction
	Write(cv int, value uint8) error
	// Ack reports whether the decoder acknowledged the most recent
	// verify or write instruction
	Ack() bool
}
