// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"context"
	"fmt"
	"time"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// Curated CV lists read by Dump
var (
	// MultifunctionCVs covers addressing, motor tuning and the speed tables
	// of common loco decoders (66 and 95 are ZIMO forward/reverse trim)
	MultifunctionCVs = []int{
		1, 2, 3, 4, 5, 6, 8, 9, 17, 18, 19, 27, 29,
		33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44,
		48, 49, 50, 51, 52, 53, 66, 95, 97,
		116, 117, 118, 119, 120, 121, 122, 123, 124,
		141, 186, 188, 189, 190,
	}

	// ShortAddressCVs is read from decoders still on the factory address
	ShortAddressCVs = []int{1, 7, 8, 17, 18, 29}

	// AccessoryCVs is ordered so that each timing pair reads low byte first
	AccessoryCVs = []int{
		1, 9, 34, 33, 36, 35, 38, 37, 39, 40,
		50, 51, 52, 60, 61, 62, 70, 71, 72,
	}
)

// SelectCVList picks the CV list matching the decoder class and address
func SelectCVList(id Identity) []int {
	switch {
	case id.Accessory():
		return AccessoryCVs
	case id.ShortDefault():
		return ShortAddressCVs
	default:
		return MultifunctionCVs
	}
}

// Reading is one CV of a dump
type Reading struct {
	CV    int
	Value Value
}

// AccessoryTiming is derived from the servo/coil timing CVs of an accessory
// decoder
type AccessoryTiming struct {
	Frequency int // Hz
	Min       int // µs
	Max       int // µs
	Step      int // µs
	Wait      int // ms
}

func (t AccessoryTiming) String() string {
	return fmt.Sprintf("Freq: %d Hz, Min: %d µs, Max: %d µs, Step: %d µs, Wait: %d ms",
		t.Frequency, t.Min, t.Max, t.Step, t.Wait)
}

// DumpOptions gates a dump on wall-clock budget and read success
type DumpOptions struct {
	// Budget is the time allowed for the whole dump; zero means no limit
	Budget time.Duration
	// MinKnown is the number of CVs that must be read successfully
	MinKnown int
}

// DumpResult holds the readings of a dump in list order
type DumpResult struct {
	Readings     []Reading
	Elapsed      time.Duration
	AveragePerCV time.Duration
	Known        int
	// Timing is set for accessory decoders when every timing CV is known
	Timing *AccessoryTiming
}

// Value returns the reading of cv, if it was part of the dump
func (r *DumpResult) Value(cv int) (Value, bool) {
	for _, reading := range r.Readings {
		if reading.CV == cv {
			return reading.Value, true
		}
	}
	return Value{}, false
}

// ReadCVs reads each valid CV of list optionally and keeps list order.
// Indices outside the CV range are skipped.
func (s *Session) ReadCVs(ctx context.Context, list []int) ([]Reading, error) {
	readings := make([]Reading, 0, len(list))
	for _, cv := range list {
		if !dcc.ValidCV(cv) {
			continue
		}
		v, err := s.Read(ctx, cv, false)
		if err != nil {
			return readings, err
		}
		readings = append(readings, Reading{CV: cv, Value: v})
	}
	return readings, nil
}

// Dump reads the CV list selected for id. When the budget runs out the
// session ends and the partial result is returned with ErrTimeout. Fewer than
// MinKnown confirmed CVs yields the full result with a recoverable
// AccessError.
func (s *Session) Dump(ctx context.Context, id Identity, opts DumpOptions) (*DumpResult, error) {
	list := SelectCVList(id)
	start := s.opts.Now()
	var deadline time.Time
	if opts.Budget > 0 {
		deadline = start.Add(opts.Budget)
	}

	result := &DumpResult{Readings: make([]Reading, 0, len(list))}
	finish := func() {
		result.Elapsed = s.opts.Now().Sub(start)
		if n := len(result.Readings); n > 0 {
			result.AveragePerCV = result.Elapsed / time.Duration(n)
		}
	}

	for _, cv := range list {
		if !dcc.ValidCV(cv) {
			continue
		}
		if !deadline.IsZero() && !s.opts.Now().Before(deadline) {
			finish()
			s.log.Warn().Int("read", len(result.Readings)).Msg("dump budget exhausted")
			return result, s.fail(fmt.Errorf("%w: dump budget %v exhausted after %d CVs", ErrTimeout, opts.Budget, len(result.Readings)))
		}

		v, err := s.Read(ctx, cv, false)
		if err != nil {
			finish()
			return result, err
		}
		result.Readings = append(result.Readings, Reading{CV: cv, Value: v})
		if v.Known {
			result.Known++
		}
	}
	finish()

	if id.Accessory() {
		result.Timing = accessoryTiming(result)
	}

	s.log.Info().
		Int("cvs", len(result.Readings)).
		Int("known", result.Known).
		Dur("elapsed", result.Elapsed).
		Dur("per_cv", result.AveragePerCV).
		Msg("dump complete")

	if result.Known < opts.MinKnown {
		return result, &AccessError{Op: "dump", Err: fmt.Errorf("%w: %d of %d CVs known", ErrVerifyExhausted, result.Known, opts.MinKnown)}
	}
	return result, nil
}

func accessoryTiming(r *DumpResult) *AccessoryTiming {
	byteOf := func(cv int) (int, bool) {
		v, ok := r.Value(cv)
		return int(v.Byte), ok && v.Known
	}
	pair := func(low, high int) (int, bool) {
		l, okL := byteOf(low)
		h, okH := byteOf(high)
		return l + h*256, okL && okH
	}

	freq, ok1 := pair(34, 33)
	lo, ok2 := pair(36, 35)
	hi, ok3 := pair(38, 37)
	step, ok4 := byteOf(39)
	wait, ok5 := byteOf(40)
	if !(ok1 && ok2 && ok3 && ok4 && ok5) {
		return nil
	}
	return &AccessoryTiming{Frequency: freq, Min: lo, Max: hi, Step: step, Wait: wait}
}
