// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/trackside/pkg/decodersim"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

const manufacturerZIMO = 145

func testOptions() servicemode.Options {
	opts := servicemode.DefaultOptions()
	opts.SettleLoops = 0
	opts.ResetSettle = 0
	opts.Sleep = func(time.Duration) {}
	return opts
}

// steppingClock advances by step on every call
func steppingClock(step time.Duration) func() time.Time {
	now := time.Unix(0, 0)
	return func() time.Time {
		now = now.Add(step)
		return now
	}
}

func openSession(t *testing.T, d *decodersim.Decoder, opts servicemode.Options) *servicemode.Session {
	t.Helper()
	s, err := servicemode.Open(context.Background(), d, opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	d.ResetOps()
	return s
}

// ============================================================
// Session Lifecycle Tests
// ============================================================

func TestOpen_ProbesDirectMode(t *testing.T) {
	tests := []struct {
		name   string
		direct bool
		cv8    uint8
	}{
		{"direct mode, bit 7 set", true, 145},
		{"direct mode, bit 7 clear", true, 99},
		{"no direct mode", false, 145},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := decodersim.NewLoco(3, tt.cv8)
			d.DirectMode = tt.direct
			s := openSession(t, d, testOptions())
			assert.Equal(t, tt.direct, s.DirectMode())
		})
	}
}

func TestOpen_SettlesBeforeProbe(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	opts := testOptions()
	opts.SettleLoops = 100

	s, err := servicemode.Open(context.Background(), d, opts)
	require.NoError(t, err)
	defer s.Close()

	ops := d.Ops()
	loops := 0
	for _, op := range ops {
		if op.Kind == decodersim.OpVerifyBit {
			break
		}
		if op.Kind == decodersim.OpLoop {
			loops++
		}
	}
	assert.Equal(t, 100, loops)
}

func TestOpen_WaitsForDecoder(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	d.AbsentPolls = 5

	var waiting []int
	opts := testOptions()
	opts.OnWaiting = func(mA int) { waiting = append(waiting, mA) }

	s := openSession(t, d, opts)
	assert.Len(t, waiting, 5)
	assert.Equal(t, decodersim.AbsentCurrent, waiting[0])
	assert.False(t, s.Closed())
	assert.False(t, s.Deadline().IsZero())
}

func TestOpen_TimeoutTearsDown(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	d.Present = false

	opts := testOptions()
	opts.Now = steppingClock(10 * time.Second)

	_, err := servicemode.Open(context.Background(), d, opts)
	require.ErrorIs(t, err, servicemode.ErrTimeout)
	assert.True(t, servicemode.IsFatal(err))
	assert.False(t, d.Powered())
	assert.False(t, d.Begun())
	assert.Equal(t, 1, d.Count(decodersim.OpEnd))
}

func TestOpen_AbortTearsDown(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	d.Present = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := servicemode.Open(ctx, d, testOptions())
	require.ErrorIs(t, err, servicemode.ErrUserAbort)
	assert.False(t, d.Powered())
	assert.False(t, d.Begun())
}

func TestClose_Idempotent(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	s := openSession(t, d, testOptions())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, d.Count(decodersim.OpEnd))
	assert.Equal(t, 1, d.Count(decodersim.OpPowerOff))

	_, err := s.Read(context.Background(), 1, false)
	assert.ErrorIs(t, err, servicemode.ErrSessionClosed)
}

func TestRun_AlwaysCloses(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	sentinel := errors.New("operator gave up")

	err := servicemode.Run(context.Background(), d, testOptions(), func(s *servicemode.Session) error {
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.False(t, d.Begun())
	assert.False(t, d.Powered())
}

func TestRun_TeardownFailureJoined(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	linkDown := errors.New("link down")

	err := servicemode.Run(context.Background(), d, testOptions(), func(s *servicemode.Session) error {
		d.Err = linkDown
		return nil
	})
	require.ErrorIs(t, err, linkDown)
	assert.ErrorContains(t, err, "power off programming track")
}

func TestRun_AbortMidSession(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	ctx, cancel := context.WithCancel(context.Background())

	err := servicemode.Run(ctx, d, testOptions(), func(s *servicemode.Session) error {
		cancel()
		_, err := s.Read(ctx, 1, false)
		return err
	})
	require.ErrorIs(t, err, servicemode.ErrUserAbort)
	assert.True(t, servicemode.IsFatal(err))
	assert.False(t, d.Powered())
	assert.Equal(t, 1, d.Count(decodersim.OpEnd))
}

// ============================================================
// Error Classification Tests
// ============================================================

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"required read", &servicemode.AccessError{Op: "read", CV: 1, Required: true, Err: servicemode.ErrVerifyExhausted}, true},
		{"optional write", &servicemode.AccessError{Op: "write", CV: 1, Err: servicemode.ErrVerifyExhausted}, false},
		{"invalid cv", servicemode.ErrInvalidCV, false},
		{"invalid address", servicemode.ErrInvalidAddress, false},
		{"write only", servicemode.ErrWriteOnly, false},
		{"timeout", servicemode.ErrTimeout, true},
		{"abort", servicemode.ErrUserAbort, true},
		{"transport", errors.New("serial port closed"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, servicemode.IsFatal(tt.err))
		})
	}
}

func TestAccessError_Message(t *testing.T) {
	err := &servicemode.AccessError{Op: "read", CV: 29, Required: true, Err: servicemode.ErrVerifyExhausted}
	assert.Equal(t, "required read CV 29: verify retries exhausted", err.Error())
	assert.ErrorIs(t, err, servicemode.ErrVerifyExhausted)
}
