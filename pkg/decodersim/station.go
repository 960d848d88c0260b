// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package decodersim

import (
	"fmt"
	"strings"
	"sync"
)

// Command is one instruction sent to the simulated command station
type Command struct {
	Name string
	Args []int
}

func (c Command) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprintf("%d", a)
	}
	return fmt.Sprintf("%s(%s)", c.Name, strings.Join(args, ","))
}

// Station is a simulated command station on the main track. It records
// every command and reports a fixed track current.
type Station struct {
	mu sync.Mutex

	// Milliamps is reported by Current
	Milliamps int
	// Err, when set, is returned by every command
	Err error

	powered  bool
	begun    bool
	commands []Command
}

// NewStation returns an idle station
func NewStation() *Station {
	return &Station{Milliamps: 120}
}

func (s *Station) record(name string, args ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, Command{Name: name, Args: args})
	return s.Err
}

// Commands returns a copy of the recorded commands, ignoring loop and
// current polls
func (s *Station) Commands() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Command, 0, len(s.commands))
	for _, c := range s.commands {
		if c.Name == "loop" || c.Name == "current" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Last returns the most recent command with the given name
func (s *Station) Last(name string) (Command, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.commands) - 1; i >= 0; i-- {
		if s.commands[i].Name == name {
			return s.commands[i], true
		}
	}
	return Command{}, false
}

// Reset clears the command log
func (s *Station) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = nil
}

// Powered reports whether the main track is powered
func (s *Station) Powered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powered
}

func (s *Station) Begin() error {
	s.mu.Lock()
	s.begun = true
	s.mu.Unlock()
	return s.record("begin")
}

func (s *Station) End() error {
	s.mu.Lock()
	s.begun = false
	s.powered = false
	s.mu.Unlock()
	return s.record("end")
}

func (s *Station) PowerOn() error {
	s.mu.Lock()
	s.powered = true
	s.mu.Unlock()
	return s.record("power_on")
}

func (s *Station) PowerOff() error {
	s.mu.Lock()
	s.powered = false
	s.mu.Unlock()
	return s.record("power_off")
}

func (s *Station) Loop() error {
	return s.record("loop")
}

func (s *Station) Current() (int, error) {
	if err := s.record("current"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.powered {
		return 0, nil
	}
	return s.Milliamps, nil
}

func (s *Station) EmergencyStop() error {
	return s.record("emergency_stop")
}

func (s *Station) Speed(addr int, long bool, steps int, forward bool, speed int) error {
	return s.record("speed", addr, boolInt(long), steps, boolInt(forward), speed)
}

func (s *Station) Function(addr int, long bool, fn int, on bool) error {
	return s.record("function", addr, boolInt(long), fn, boolInt(on))
}

func (s *Station) AccessoryBasic(addr int, direction int) error {
	return s.record("accessory_basic", addr, direction)
}

func (s *Station) AccessoryExtended(addr int, aspect int) error {
	return s.record("accessory_extended", addr, aspect)
}

func (s *Station) PoMMulti(addr, cv, value int) error {
	return s.record("pom_multi", addr, cv, value)
}

func (s *Station) PoMAccessory(addr, cv, value int) error {
	return s.record("pom_accessory", addr, cv, value)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
