// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package servicemode_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/trackside/pkg/dcc"
	"github.com/Thermoquad/trackside/pkg/decodersim"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

func identify(t *testing.T, s *servicemode.Session) servicemode.Identity {
	t.Helper()
	id, err := s.Identify(context.Background())
	require.NoError(t, err)
	return id
}

func cvsOf(readings []servicemode.Reading) []int {
	cvs := make([]int, len(readings))
	for i, r := range readings {
		cvs[i] = r.CV
	}
	return cvs
}

// ============================================================
// CV List Selection Tests
// ============================================================

func TestSelectCVList(t *testing.T) {
	accessory := servicemode.Identity{Features: dcc.DecodeCV29(dcc.CV29CanonicalAccessory), Address: 3, AddressKnown: true}
	short := servicemode.Identity{Features: dcc.DecodeCV29(0), Address: 3, AddressKnown: true}
	other := servicemode.Identity{Features: dcc.DecodeCV29(0), Address: 4, AddressKnown: true}
	unknown := servicemode.Identity{Features: dcc.DecodeCV29(0)}

	assert.Equal(t, servicemode.AccessoryCVs, servicemode.SelectCVList(accessory))
	assert.Equal(t, servicemode.ShortAddressCVs, servicemode.SelectCVList(short))
	assert.Equal(t, servicemode.MultifunctionCVs, servicemode.SelectCVList(other))
	assert.Equal(t, servicemode.MultifunctionCVs, servicemode.SelectCVList(unknown))
}

func TestReadCVs_SkipsInvalidIndices(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	s := openSession(t, d, testOptions())

	readings, err := s.ReadCVs(context.Background(), []int{0, 1, 2000, 29})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 29}, cvsOf(readings))
	assert.Equal(t, servicemode.Known(3), readings[0].Value)
}

// ============================================================
// Dump Tests
// ============================================================

func TestDump_ShortAddressLoco(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	s := openSession(t, d, testOptions())
	id := identify(t, s)

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{})
	require.NoError(t, err)
	assert.Equal(t, servicemode.ShortAddressCVs, cvsOf(result.Readings))
	assert.Equal(t, len(servicemode.ShortAddressCVs), result.Known)
	assert.Nil(t, result.Timing)

	v, ok := result.Value(dcc.CVVersion)
	require.True(t, ok)
	assert.Equal(t, servicemode.Known(42), v)
}

func TestDump_LongAddressLoco(t *testing.T) {
	d := decodersim.NewLoco(1234, manufacturerZIMO)
	s := openSession(t, d, testOptions())
	id := identify(t, s)

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{MinKnown: len(servicemode.MultifunctionCVs)})
	require.NoError(t, err)
	assert.Equal(t, servicemode.MultifunctionCVs, cvsOf(result.Readings))
}

func TestDump_AccessoryTiming(t *testing.T) {
	d := decodersim.NewAccessory(300, manufacturerTams)
	s := openSession(t, d, testOptions())
	id := identify(t, s)

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{})
	require.NoError(t, err)
	assert.Equal(t, servicemode.AccessoryCVs, cvsOf(result.Readings))
	require.NotNil(t, result.Timing)
	assert.Equal(t, servicemode.AccessoryTiming{Frequency: 50, Min: 1000, Max: 2000, Step: 10, Wait: 20}, *result.Timing)
	assert.Equal(t, "Freq: 50 Hz, Min: 1000 µs, Max: 2000 µs, Step: 10 µs, Wait: 20 ms", result.Timing.String())
}

func TestDump_Latency(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	opts := testOptions()
	opts.Now = steppingClock(time.Millisecond)
	s := openSession(t, d, opts)
	id := identify(t, s)

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{})
	require.NoError(t, err)
	assert.Positive(t, result.Elapsed)
	assert.Equal(t, result.Elapsed/time.Duration(len(result.Readings)), result.AveragePerCV)
}

func TestDump_BudgetExhausted(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	opts := testOptions()
	opts.Now = steppingClock(time.Second)
	s := openSession(t, d, opts)
	id := identify(t, s)

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{Budget: 5 * time.Second})
	require.ErrorIs(t, err, servicemode.ErrTimeout)
	require.NotNil(t, result)
	assert.Len(t, result.Readings, 4)
	assert.True(t, s.Closed())
	assert.False(t, d.Powered())
}

func TestDump_TooFewKnown(t *testing.T) {
	d := decodersim.NewLoco(3, manufacturerZIMO)
	s := openSession(t, d, testOptions())
	id := identify(t, s)
	d.AckFilter = func(op decodersim.Op) bool { return op.CV != dcc.CVExtAddressHigh }

	result, err := s.Dump(context.Background(), id, servicemode.DumpOptions{MinKnown: len(servicemode.ShortAddressCVs)})
	require.ErrorIs(t, err, servicemode.ErrVerifyExhausted)
	assert.False(t, servicemode.IsFatal(err))
	assert.False(t, s.Closed())

	assert.Len(t, result.Readings, len(servicemode.ShortAddressCVs))
	assert.Equal(t, len(servicemode.ShortAddressCVs)-1, result.Known)
	v, ok := result.Value(dcc.CVExtAddressHigh)
	require.True(t, ok)
	assert.False(t, v.Known)
}
