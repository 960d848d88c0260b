// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode

import (
	"context"
	"fmt"

	"github.com/Thermoquad/trackside/pkg/dcc"
)

// FactoryReset writes the manufacturer reset sequence to CV8 and power
// cycles the track so the decoder reloads its defaults
func (s *Session) FactoryReset(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}

	s.log.Info().Msg("factory reset")
	for _, value := range dcc.FactoryResetSequence {
		if err := s.Write(ctx, dcc.CVManufacturer, value); err != nil {
			return err
		}
	}

	if err := s.track.PowerOff(); err != nil {
		return s.fail(fmt.Errorf("factory reset power off: %w", err))
	}
	s.opts.Sleep(s.opts.ResetSettle)

	if err := s.checkAbort(ctx); err != nil {
		return s.fail(err)
	}

	if err := s.track.PowerOn(); err != nil {
		return s.fail(fmt.Errorf("factory reset power on: %w", err))
	}
	s.opts.Sleep(s.opts.ResetSettle)
	return nil
}
