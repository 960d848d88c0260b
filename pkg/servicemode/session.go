// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// Default session parameters
const (
	DefaultRepetitions       = 3
	DefaultPresenceThreshold = -4 // mA
	DefaultPresenceTimeout   = time.Minute
	DefaultSettleLoops       = 100
	DefaultResetSettle       = time.Second
)

// Options configures a programming session
type Options struct {
	// Repetitions is the retry budget for a single CV access
	Repetitions int
	// PresenceThreshold is the lowest track current (mA) that counts as a
	// decoder on the track
	PresenceThreshold int
	// PresenceTimeout bounds the wait for a decoder
	PresenceTimeout time.Duration
	// SettleLoops is the number of Loop calls between detection and the
	// first instruction
	SettleLoops int
	// ResetSettle is the delay on each side of the factory reset power cycle
	ResetSettle time.Duration
	// WriteOnly skips every read; writes are sent once without verification
	WriteOnly bool

	// OnWaiting is called with the measured current while no decoder is
	// detected
	OnWaiting func(milliamps int)

	Logger *zerolog.Logger
	Now    func() time.Time
	Sleep  func(time.Duration)
}

// DefaultOptions returns the options used by the command line tools
func DefaultOptions() Options {
	return Options{
		Repetitions:       DefaultRepetitions,
		PresenceThreshold: DefaultPresenceThreshold,
		PresenceTimeout:   DefaultPresenceTimeout,
		SettleLoops:       DefaultSettleLoops,
		ResetSettle:       DefaultResetSettle,
	}
}

func (o Options) withDefaults() Options {
	if o.Repetitions <= 0 {
		o.Repetitions = DefaultRepetitions
	}
	if o.PresenceTimeout <= 0 {
		o.PresenceTimeout = DefaultPresenceTimeout
	}
	if o.SettleLoops < 0 {
		o.SettleLoops = 0
	}
	if o.ResetSettle < 0 {
		o.ResetSettle = 0
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Sleep == nil {
		o.Sleep = time.Sleep
	}
	return o
}

// Session is one decoder's stay on the programming track. It owns the
// discovered direct-mode flag, the retry budget and the presence deadline.
type Session struct {
	ID uuid.UUID

	track      Track
	opts       Options
	log        zerolog.Logger
	directMode bool
	deadline   time.Time
	closed     bool
}

// Open takes the track, waits for a decoder and probes direct-mode support.
// The track is released again on every error path.
func Open(ctx context.Context, track Track, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{
		ID:    uuid.New(),
		track: track,
		opts:  opts,
	}
	s.log = opts.Logger.With().Str("session", s.ID.String()).Logger()

	if err := track.Begin(); err != nil {
		return nil, fmt.Errorf("begin programming track: %w", err)
	}
	if err := track.PowerOn(); err != nil {
		return nil, s.fail(fmt.Errorf("power on programming track: %w", err))
	}

	if err := s.waitForDecoder(ctx); err != nil {
		return nil, s.fail(err)
	}

	for i := 0; i < opts.SettleLoops; i++ {
		if err := track.Loop(); err != nil {
			return nil, s.fail(fmt.Errorf("settle: %w", err))
		}
	}

	direct, err := s.probeDirectMode(ctx)
	if err != nil {
		return nil, s.fail(err)
	}
	s.directMode = direct
	s.log.Info().Bool("direct_mode", direct).Msg("decoder detected")

	return s, nil
}

// Run opens a session, calls fn and always tears the session down. A
// teardown failure is joined to fn's error.
func Run(ctx context.Context, track Track, opts Options, fn func(*Session) error) (err error) {
	s, err := Open(ctx, track, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			s.log.Error().Err(cerr).Msg("teardown failed")
			err = errors.Join(err, cerr)
		}
	}()
	return fn(s)
}

// waitForDecoder polls the track current until a decoder draws current or
// the deadline passes
func (s *Session) waitForDecoder(ctx context.Context) error {
	s.deadline = s.opts.Now().Add(s.opts.PresenceTimeout)
	for {
		if err := s.checkAbort(ctx); err != nil {
			return err
		}

		milliamps, err := s.track.Current()
		if err != nil {
			return fmt.Errorf("read track current: %w", err)
		}
		if milliamps >= s.opts.PresenceThreshold {
			return nil
		}

		if s.opts.OnWaiting != nil {
			s.opts.OnWaiting(milliamps)
		}
		if !s.opts.Now().Before(s.deadline) {
			s.log.Warn().Int("current_ma", milliamps).Msg("presence timeout")
			return fmt.Errorf("%w within %v", ErrTimeout, s.opts.PresenceTimeout)
		}

		if err := s.track.Loop(); err != nil {
			return fmt.Errorf("loop: %w", err)
		}
	}
}

// probeDirectMode sets and clears bit 7 of CV8 via bit-verify. A decoder with
// direct mode support acknowledges exactly one of the two probes.
func (s *Session) probeDirectMode(ctx context.Context) (bool, error) {
	var acks [2]bool
	for i, expected := range []bool{true, false} {
		if err := s.checkAbort(ctx); err != nil {
			return false, err
		}
		if err := s.track.VerifyBit(dcc.CVManufacturer, 7, expected); err != nil {
			return false, fmt.Errorf("direct mode probe: %w", err)
		}
		if err := s.track.Loop(); err != nil {
			return false, fmt.Errorf("direct mode probe: %w", err)
		}
		acks[i] = s.track.Ack()
	}
	return acks[0] != acks[1], nil
}

// DirectMode reports whether the decoder supports bit-level reads
func (s *Session) DirectMode() bool {
	return s.directMode
}

// Deadline returns the presence deadline of the session
func (s *Session) Deadline() time.Time {
	return s.deadline
}

// Closed reports whether the session has been torn down
func (s *Session) Closed() bool {
	return s.closed
}

// Close powers the track off and releases it. It is safe to call more than
// once.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	powerErr := s.track.PowerOff()
	endErr := s.track.End()
	s.log.Debug().Msg("session closed")

	if powerErr != nil {
		return fmt.Errorf("power off programming track: %w", powerErr)
	}
	if endErr != nil {
		return fmt.Errorf("end programming track: %w", endErr)
	}
	return nil
}

// checkAbort converts a cancelled context into ErrUserAbort
func (s *Session) checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUserAbort, err)
	}
	return nil
}

// fail tears the session down before handing a fatal error back
func (s *Session) fail(err error) error {
	if cerr := s.Close(); cerr != nil {
		s.log.Error().Err(cerr).Msg("teardown failed")
		return errors.Join(err, cerr)
	}
	return err
}
