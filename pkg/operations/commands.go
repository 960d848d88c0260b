// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package operations

import (
	"context"
	"fmt"
	"strings"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// dispatch runs a single command token
func (c *Controller) dispatch(ctx context.Context, token string) (quit bool, err error) {
	if token == "" {
		return false, nil
	}

	switch strings.ToLower(token) {
	case "run":
		return false, nil
	case "reset":
		return false, c.ResetLayout()
	case "emerg", "e", "stop":
		return false, c.EmergencyStop()
	case "quit", "q":
		return true, nil
	case "?":
		fmt.Fprint(c.out, Usage)
		return false, nil
	}

	verb := dcc.Verb(token)
	switch verb {
	case 'p':
		return false, c.pomMulti(token)
	case 'a':
		return false, c.pomAccessory(token)
	case 'd', 'v', 'r', 'f', 'h':
		if c.active == nil {
			return false, fmt.Errorf("%w: %q", ErrNoActiveLoco, token)
		}
	case 'l', 'w', 's', 'g':
	default:
		return false, reject(token, "unknown command")
	}

	bare := len(token) == 1
	cmd := dcc.Parse(token[1:])

	switch verb {
	case 'l':
		if token[1:] == "?" {
			return false, c.scan(ctx)
		}
		return false, c.controlLoco(token, cmd)
	case 'd':
		if bare {
			c.printLocos()
			return false, nil
		}
		return false, c.removeLoco(token, cmd)
	case 'v':
		return false, c.drive(token, true, cmd.Primary.Or(0))
	case 'r':
		return false, c.drive(token, false, cmd.Primary.Or(0))
	case 'h':
		return false, c.Halt()
	case 'f':
		if bare {
			fmt.Fprint(c.out, c.active.FunctionTable())
			return false, nil
		}
		return false, c.toggleFunction(token, cmd)
	case 'g':
		return false, c.printLocoData(token, cmd)
	case 'w':
		if bare {
			c.printAccessories()
			return false, nil
		}
		return false, c.turnout(token, cmd)
	case 's':
		if bare {
			c.printAccessories()
			return false, nil
		}
		return false, c.signal(token, cmd)
	}
	return false, nil
}

func (c *Controller) pomMulti(token string) error {
	addr, cv, value := dcc.ParsePoM(token)
	if !dcc.ValidMultifunctionAddress(addr) {
		return reject(token, "invalid loco address")
	}
	if !dcc.ValidCV(cv) || !dcc.ValidValue(value) {
		return reject(token, "invalid CV or value")
	}
	fmt.Fprintf(c.out, "PoM loco %d, CV %d = %d\n", addr, cv, value)
	return c.station.PoMMulti(addr, cv, value)
}

func (c *Controller) pomAccessory(token string) error {
	addr, cv, value := dcc.ParsePoM(token)
	if !dcc.ValidAccessoryAddress(addr) {
		return reject(token, "invalid accessory address")
	}
	if !dcc.ValidCV(cv) || !dcc.ValidValue(value) {
		return reject(token, "invalid CV or value")
	}
	fmt.Fprintf(c.out, "PoM accessory %d, CV %d = %d\n", addr, cv, value)
	return c.station.PoMAccessory(addr, cv, value)
}

// scan releases the main track, identifies the loco on the programming
// track and takes control of it
func (c *Controller) scan(ctx context.Context) error {
	if c.opts.Scanner == nil {
		return ErrNoScanner
	}
	if err := c.station.End(); err != nil {
		return fmt.Errorf("release main track: %w", err)
	}

	profile, scanErr := c.opts.Scanner(ctx)

	if err := c.station.Begin(); err != nil {
		return fmt.Errorf("begin main track: %w", err)
	}
	if err := c.station.PowerOn(); err != nil {
		return fmt.Errorf("power on main track: %w", err)
	}
	if scanErr != nil {
		return fmt.Errorf("%w: %w", ErrScanFailed, scanErr)
	}

	kind := "short"
	if profile.Long {
		kind = "long"
	}
	fmt.Fprintf(c.out, "Loco %d, %s address, %d speed steps\n", profile.Address, kind, profile.SpeedSteps)
	c.log.Info().
		Int("address", profile.Address).
		Bool("long", profile.Long).
		Int("steps", profile.SpeedSteps).
		Msg("loco scanned")

	return c.activate(profile.Address, profile.Long, profile.SpeedSteps, "")
}

// controlLoco handles "l<addr>[,<long>[,<steps>[,<name>]]]"
func (c *Controller) controlLoco(token string, cmd dcc.ParsedCommand) error {
	if !cmd.Primary.Set {
		return reject(token, "missing loco address")
	}
	addr := cmd.Primary.Value
	if !dcc.ValidMultifunctionAddress(addr) {
		return reject(token, "invalid loco address")
	}

	long := addr > dcc.MaxShortAddress
	if cmd.Secondary.Set {
		long = cmd.Secondary.Value != 0
	}
	if !long && addr > dcc.MaxShortAddress {
		return reject(token, "address needs a long address")
	}

	steps := 0
	if cmd.Tertiary.Set {
		steps = cmd.Tertiary.Value
		if steps != 14 && steps != 28 && steps != 128 {
			return reject(token, "speed steps must be 14, 28 or 128")
		}
	}

	name := strings.TrimSpace(cmd.Trailing)

	if l := c.Loco(addr); l != nil {
		if cmd.Secondary.Set {
			l.Long = long
		}
		if steps != 0 {
			l.SpeedSteps = steps
		}
		if name != "" {
			l.Name = name
		}
		c.active = l
		fmt.Fprintf(c.out, "Loco %s [%d] active again\n", l.Name, l.Address)
		return c.sendSpeed(l)
	}

	if steps == 0 {
		steps = DefaultSpeedSteps
	}
	return c.activate(addr, long, steps, name)
}

// activate registers addr if needed and makes it the active loco
func (c *Controller) activate(addr int, long bool, steps int, name string) error {
	l := c.Loco(addr)
	if l == nil {
		if name == "" {
			name = fmt.Sprintf("Loco %d", addr)
		}
		l = &Loco{Address: addr, Forward: true, Name: name}
		c.locos = append(c.locos, l)
		width := 1
		if long {
			width = 2
		}
		fmt.Fprintf(c.out, "Active loco: '%s' [%d], %d-byte address, %d speed steps\n", name, addr, width, steps)
	}
	l.Long = long
	l.SpeedSteps = steps
	c.active = l
	c.log.Debug().Int("address", addr).Msg("loco active")
	return c.sendSpeed(l)
}

func (c *Controller) removeLoco(token string, cmd dcc.ParsedCommand) error {
	if !cmd.Primary.Set {
		return reject(token, "missing loco address")
	}
	addr := cmd.Primary.Value
	if c.active != nil && c.active.Address == addr {
		return fmt.Errorf("%w: %d", ErrActiveLoco, addr)
	}
	for i, l := range c.locos {
		if l.Address == addr {
			c.locos = append(c.locos[:i], c.locos[i+1:]...)
			fmt.Fprintf(c.out, "Loco %d removed\n", addr)
			return nil
		}
	}
	return reject(token, "unknown loco")
}

func (c *Controller) sendSpeed(l *Loco) error {
	return c.station.Speed(l.Address, l.Long, l.SpeedSteps, l.Forward, l.Speed)
}

// drive sets direction and speed of the active loco. A direction change
// halts the loco first.
func (c *Controller) drive(token string, forward bool, speed int) error {
	l := c.active
	if speed < 0 || speed > dcc.MaxFieldValue {
		return reject(token, "invalid speed")
	}
	if speed > c.opts.MaxSpeed {
		speed = c.opts.MaxSpeed
	}
	if l.Forward != forward {
		if err := c.Halt(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "HALT")
		c.opts.Sleep(c.opts.DirectionSettle)
	}
	l.Forward = forward
	l.Speed = speed
	fmt.Fprintf(c.out, "Loco %d <<- speed %d %s\n", l.Address, speed, l.Direction())
	return c.sendSpeed(l)
}

// Halt brings the active loco to speed 0 keeping its direction
func (c *Controller) Halt() error {
	l := c.active
	if l == nil {
		return ErrNoActiveLoco
	}
	l.Speed = 0
	return c.sendSpeed(l)
}

func (c *Controller) toggleFunction(token string, cmd dcc.ParsedCommand) error {
	fn := cmd.Primary.Value
	if !cmd.Primary.Set || fn < 0 || fn > MaxFunction {
		return reject(token, fmt.Sprintf("function must be 0 to %d", MaxFunction))
	}
	l := c.active
	on := !l.Functions[fn]
	if err := c.station.Function(l.Address, l.Long, fn, on); err != nil {
		return err
	}
	l.Functions[fn] = on
	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(c.out, "Function %d %s\n", fn, state)
	return nil
}

func (c *Controller) printLocoData(token string, cmd dcc.ParsedCommand) error {
	addr := 0
	switch {
	case cmd.Primary.Set:
		addr = cmd.Primary.Value
	case c.active != nil:
		addr = c.active.Address
	default:
		return fmt.Errorf("%w: %q", ErrNoActiveLoco, token)
	}
	data, ok := c.LocoData(addr)
	if !ok {
		return reject(token, "unknown loco")
	}
	fmt.Fprintf(c.out, "address=%d forward=%t speed=%d steps=%d functions=%013b name=%s\n",
		data.Address, data.Forward, data.Speed, data.SpeedSteps, data.Functions, data.Name)
	return nil
}

// turnout handles "w<addr>[,<dir>]". Without a direction the turnout is
// toggled; a new turnout starts straight.
func (c *Controller) turnout(token string, cmd dcc.ParsedCommand) error {
	addr := cmd.Primary.Value
	if !cmd.Primary.Set || !dcc.ValidAccessoryAddress(addr) {
		return reject(token, "invalid accessory address")
	}
	acc := c.Accessory(addr)

	dir := 0
	switch {
	case cmd.Secondary.Set:
		if cmd.Secondary.Value != 0 {
			dir = 1
		}
	case acc != nil && acc.Direction != 1:
		dir = 1
	}

	if err := c.station.AccessoryBasic(addr, dir); err != nil {
		return err
	}
	if acc == nil {
		acc = &Accessory{Address: addr}
		c.accessories = append(c.accessories, acc)
	}
	acc.Signal = false
	acc.Direction = dir
	fmt.Fprintln(c.out, "Turnout "+acc.String())
	return nil
}

// signal handles "s<addr>[,<aspect>]". Without an aspect the last one is
// sent again.
func (c *Controller) signal(token string, cmd dcc.ParsedCommand) error {
	addr := cmd.Primary.Value
	if !cmd.Primary.Set || !dcc.ValidAccessoryAddress(addr) {
		return reject(token, "invalid accessory address")
	}
	acc := c.Accessory(addr)

	aspect := 0
	switch {
	case cmd.Secondary.Set:
		aspect = cmd.Secondary.Value
	case acc != nil:
		aspect = acc.Aspect
	}
	if aspect > dcc.MaxValue {
		return reject(token, "aspect must be 0 to 255")
	}

	if err := c.station.AccessoryExtended(addr, aspect); err != nil {
		return err
	}
	if acc == nil {
		acc = &Accessory{Address: addr}
		c.accessories = append(c.accessories, acc)
	}
	acc.Signal = true
	acc.Aspect = aspect
	fmt.Fprintf(c.out, "Signal %d aspect %d\n", addr, aspect)
	return nil
}

// EmergencyStop stops every loco on the layout
func (c *Controller) EmergencyStop() error {
	fmt.Fprintln(c.out, "Emergency stop")
	c.log.Warn().Msg("emergency stop")
	c.emergency = true
	c.haltAll()
	return c.station.EmergencyStop()
}

// Resume leaves the emergency stop state
func (c *Controller) Resume() error {
	if err := c.station.Begin(); err != nil {
		return fmt.Errorf("begin main track: %w", err)
	}
	c.emergency = false
	c.log.Info().Msg("resumed")
	return nil
}

// ResetLayout stops all locos, sets turnouts straight and signals to
// aspect 0
func (c *Controller) ResetLayout() error {
	c.log.Info().Msg("reset layout")
	if c.emergency {
		if err := c.Resume(); err != nil {
			return err
		}
	}
	for _, l := range c.locos {
		l.Speed = 0
		if err := c.sendSpeed(l); err != nil {
			return err
		}
	}
	for _, a := range c.accessories {
		if a.Signal {
			if err := c.station.AccessoryExtended(a.Address, 0); err != nil {
				return err
			}
			a.Aspect = 0
			continue
		}
		if err := c.station.AccessoryBasic(a.Address, 0); err != nil {
			return err
		}
		a.Direction = 0
	}
	fmt.Fprintln(c.out, "Layout reset")
	return nil
}

func (c *Controller) printLocos() {
	if len(c.locos) == 0 {
		fmt.Fprintln(c.out, "No locos")
		return
	}
	for _, l := range c.locos {
		fmt.Fprintln(c.out, l.String())
		fmt.Fprintln(c.out, l.FunctionTable())
	}
}

func (c *Controller) printAccessories() {
	if len(c.accessories) == 0 {
		fmt.Fprintln(c.out, "No accessories")
		return
	}
	for _, a := range c.accessories {
		fmt.Fprintln(c.out, a.String())
	}
}
