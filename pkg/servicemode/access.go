// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"context"
	"fmt"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// Value is the outcome of a CV read. Known is false when an optional read
// could not be confirmed.
type Value struct {
	Byte  uint8
	Known bool
}

// Known returns a confirmed CV value
func Known(b uint8) Value {
	return Value{Byte: b, Known: true}
}

func (v Value) String() string {
	if !v.Known {
		return "?"
	}
	return fmt.Sprintf("%d", v.Byte)
}

// Read reads one CV using the strategy chosen by the direct-mode probe.
//
// An optional read that exhausts its retries returns an unknown Value and a
// nil error. A required read that exhausts its retries ends the session and
// returns an AccessError.
func (s *Session) Read(ctx context.Context, cv int, required bool) (Value, error) {
	if s.closed {
		return Value{}, ErrSessionClosed
	}
	if !dcc.ValidCV(cv) {
		return Value{}, fmt.Errorf("%w: %d", ErrInvalidCV, cv)
	}
	if s.opts.WriteOnly {
		return Value{}, nil
	}

	var (
		b   uint8
		ok  bool
		err error
	)
	if s.directMode {
		b, ok, err = s.readDirect(ctx, cv)
	} else {
		b, ok, err = s.readSequential(ctx, cv)
	}
	if err != nil {
		return Value{}, s.fail(err)
	}
	if ok {
		s.log.Debug().Int("cv", cv).Uint8("value", b).Msg("read")
		return Known(b), nil
	}

	accessErr := &AccessError{Op: "read", CV: cv, Required: required, Err: ErrVerifyExhausted}
	if required {
		s.log.Error().Err(accessErr).Msg("read failed")
		return Value{}, s.fail(accessErr)
	}
	s.log.Warn().Err(accessErr).Msg("read failed")
	return Value{}, nil
}

// readDirect accumulates the value bit by bit and confirms it with a byte
// verify. A pass whose checksum is not acknowledged is discarded entirely.
func (s *Session) readDirect(ctx context.Context, cv int) (uint8, bool, error) {
	for pass := 0; pass < s.opts.Repetitions; pass++ {
		var candidate uint8
		for bit := uint8(0); bit < 8; bit++ {
			if err := s.checkAbort(ctx); err != nil {
				return 0, false, err
			}
			if err := s.track.VerifyBit(cv, bit, true); err != nil {
				return 0, false, fmt.Errorf("verify bit %d of CV %d: %w", bit, cv, err)
			}
			if s.track.Ack() {
				candidate |= 1 << bit
			}
		}

		if err := s.checkAbort(ctx); err != nil {
			return 0, false, err
		}
		if err := s.track.Verify(cv, candidate); err != nil {
			return 0, false, fmt.Errorf("verify CV %d: %w", cv, err)
		}
		if s.track.Ack() {
			return candidate, true, nil
		}
		s.log.Debug().Int("cv", cv).Int("pass", pass+1).Uint8("candidate", candidate).Msg("checksum not acknowledged")
	}
	return 0, false, nil
}

// readSequential tries every value in ascending order until one is
// acknowledged
func (s *Session) readSequential(ctx context.Context, cv int) (uint8, bool, error) {
	for candidate := 0; candidate <= dcc.MaxValue; candidate++ {
		for attempt := 0; attempt < s.opts.Repetitions; attempt++ {
			if err := s.checkAbort(ctx); err != nil {
				return 0, false, err
			}
			if err := s.track.Verify(cv, uint8(candidate)); err != nil {
				return 0, false, fmt.Errorf("verify CV %d: %w", cv, err)
			}
			if s.track.Ack() {
				return uint8(candidate), true, nil
			}
		}
	}
	return 0, false, nil
}

// Write stores a CV value and confirms it by reading it back. A value that is
// already present is not written again. CV8 is written without verification.
func (s *Session) Write(ctx context.Context, cv int, value uint8) error {
	if s.closed {
		return ErrSessionClosed
	}
	if !dcc.ValidCV(cv) {
		return fmt.Errorf("%w: %d", ErrInvalidCV, cv)
	}

	if cv == dcc.CVManufacturer || s.opts.WriteOnly {
		if err := s.writeOnce(ctx, cv, value); err != nil {
			return s.fail(err)
		}
		s.log.Info().Int("cv", cv).Uint8("value", value).Msg("written without verify")
		return nil
	}

	current, err := s.Read(ctx, cv, false)
	if err != nil {
		return err
	}
	if current.Known && current.Byte == value {
		s.log.Debug().Int("cv", cv).Uint8("value", value).Msg("value already present")
		return nil
	}

	for attempt := 0; attempt < s.opts.Repetitions; attempt++ {
		if err := s.writeOnce(ctx, cv, value); err != nil {
			return s.fail(err)
		}
		back, err := s.Read(ctx, cv, false)
		if err != nil {
			return err
		}
		if back.Known && back.Byte == value {
			s.log.Info().Int("cv", cv).Uint8("value", value).Msg("written")
			return nil
		}
		s.log.Debug().Int("cv", cv).Stringer("read_back", back).Int("attempt", attempt+1).Msg("write not confirmed")
	}

	accessErr := &AccessError{Op: "write", CV: cv, Err: ErrVerifyExhausted}
	s.log.Warn().Err(accessErr).Msg("write failed")
	return accessErr
}

func (s *Session) writeOnce(ctx context.Context, cv int, value uint8) error {
	if err := s.checkAbort(ctx); err != nil {
		return err
	}
	if err := s.track.Write(cv, value); err != nil {
		return fmt.Errorf("write CV %d: %w", cv, err)
	}
	if err := s.track.Loop(); err != nil {
		return fmt.Errorf("write CV %d: %w", cv, err)
	}
	return nil
}
