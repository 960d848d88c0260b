// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package operations

import (
	"fmt"
	"strings"
)

// MaxFunction is the highest function number a loco can have
const MaxFunction = 68

// Loco is a multifunction decoder under control
type Loco struct {
	Address    int
	Long       bool
	SpeedSteps int
	Name       string

	Forward   bool
	Speed     int
	Functions [MaxFunction + 1]bool
}

// FunctionMask packs F0 to F12 into a bit mask, F0 in bit 0
func (l *Loco) FunctionMask() uint16 {
	var mask uint16
	for fn := 0; fn <= 12; fn++ {
		if l.Functions[fn] {
			mask |= 1 << fn
		}
	}
	return mask
}

// Direction returns "fwd" or "rev"
func (l *Loco) Direction() string {
	if l.Forward {
		return "fwd"
	}
	return "rev"
}

func (l *Loco) String() string {
	return fmt.Sprintf("Addr: %5d | %3d steps | speed %3d %-3s | %s", l.Address, l.SpeedSteps, l.Speed, l.Direction(), l.Name)
}

// FunctionTable lists all functions, upper case F when on, twelve per line
func (l *Loco) FunctionTable() string {
	var b strings.Builder
	for fn := 0; fn <= MaxFunction; fn++ {
		mark := "f"
		if l.Functions[fn] {
			mark = "F"
		}
		fmt.Fprintf(&b, "%s%-4d", mark, fn)
		if fn%12 == 11 || fn == MaxFunction {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// LocoData is the summary reported by the loco data verb
type LocoData struct {
	Address    int
	Forward    bool
	Speed      int
	SpeedSteps int
	Functions  uint16
	Name       string
}

// Accessory is a turnout or signal decoder that has been commanded
type Accessory struct {
	Address   int
	Signal    bool
	Direction int // turnouts: 0 straight, 1 diverging
	Aspect    int // signals
}

func (a *Accessory) String() string {
	if a.Signal {
		return fmt.Sprintf("%-5d signal   aspect %08b", a.Address, a.Aspect)
	}
	pos := "straight"
	if a.Direction != 0 {
		pos = "diverging"
	}
	return fmt.Sprintf("%-5d turnout  %s", a.Address, pos)
}
