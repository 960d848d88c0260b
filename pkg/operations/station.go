// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package operations runs the layout in operations mode: it keeps the loco
// and accessory registries, interprets the text command language and turns
// it into main track commands.
package operations

import (
	"context"
	"errors"

	"github.com/Thermoquad/trackside/pkg/servicemode"
)

// Station is the main track collaborator
type Station interface {
	Begin() error
	End() error
	PowerOn() error
	PowerOff() error
	Loop() error
	Current() (int, error)

	EmergencyStop() error
	Speed(addr int, long bool, steps int, forward bool, speed int) error
	Function(addr int, long bool, fn int, on bool) error
	AccessoryBasic(addr int, direction int) error
	AccessoryExtended(addr int, aspect int) error
	PoMMulti(addr, cv, value int) error
	PoMAccessory(addr, cv, value int) error
}

// Scanner identifies the single loco on the programming track. The main
// track is released while it runs.
type Scanner func(ctx context.Context) (servicemode.LocoProfile, error)

var (
	// ErrParseReject is returned for a malformed command token. No state
	// is changed.
	ErrParseReject = errors.New("command rejected")

	// ErrNoActiveLoco is returned by loco verbs before a loco is selected
	ErrNoActiveLoco = errors.New("no active loco")

	// ErrActiveLoco is returned when removing the loco under control
	ErrActiveLoco = errors.New("active loco cannot be removed")

	// ErrNoScanner is returned by the scan verb when no programming track
	// is available
	ErrNoScanner = errors.New("loco scan not available")

	// ErrIdle is returned by Tick after the layout was put to sleep
	ErrIdle = errors.New("layout idle, shut down")
)

// Recoverable reports whether err only rejected a single command
func Recoverable(err error) bool {
	return errors.Is(err, ErrParseReject) ||
		errors.Is(err, ErrNoActiveLoco) ||
		errors.Is(err, ErrActiveLoco) ||
		errors.Is(err, ErrNoScanner) ||
		errors.Is(err, ErrScanFailed)
}
