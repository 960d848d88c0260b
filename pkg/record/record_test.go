// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package record_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/trackside/pkg/dcc"
	"github.com/Thermoquad/trackside/pkg/record"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

var taken = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func locoIdentity() servicemode.Identity {
	return servicemode.Identity{
		CV29:         0x06,
		Features:     dcc.DecodeCV29(0x06),
		Address:      3,
		AddressKnown: true,
		CV8:          servicemode.Known(145),
		Manufacturer: "ZIMO",
	}
}

func sampleDump() *servicemode.DumpResult {
	return &servicemode.DumpResult{
		Readings: []servicemode.Reading{
			{CV: 1, Value: servicemode.Known(3)},
			{CV: 7, Value: servicemode.Known(42)},
			{CV: 8, Value: servicemode.Known(145)},
			{CV: 17, Value: servicemode.Value{}},
			{CV: 29, Value: servicemode.Known(6)},
		},
		Known: 4,
	}
}

func intp(v int) *int { return &v }

// ============================================================
// Record Construction Tests
// ============================================================

func TestNew_FromDump(t *testing.T) {
	session := uuid.New()
	r := record.New(locoIdentity(), session, sampleDump(), taken)

	assert.Equal(t, record.ClassLoco, r.Class)
	assert.Equal(t, 3, r.Address)
	assert.Equal(t, "ZIMO", r.Manufacturer)
	require.NotNil(t, r.CV8)
	assert.Equal(t, 145, *r.CV8)
	assert.Equal(t, session.String(), r.Session)
	require.Len(t, r.CVs, 5)
	assert.Nil(t, r.CVs[3].Value)
	assert.Equal(t, 4, r.Known())

	v, ok := r.Value(29)
	assert.True(t, ok)
	assert.Equal(t, 6, v)
	_, ok = r.Value(17)
	assert.False(t, ok)
}

func TestNew_Accessory(t *testing.T) {
	id := servicemode.Identity{
		CV29:         dcc.CV29CanonicalAccessory,
		Features:     dcc.DecodeCV29(dcc.CV29CanonicalAccessory),
		Address:      300,
		AddressKnown: true,
		Manufacturer: "Tams Elektronik",
	}
	r := record.New(id, uuid.New(), nil, taken)

	assert.Equal(t, record.ClassAccessory, r.Class)
	assert.Nil(t, r.CV8)
	assert.Empty(t, r.CVs)
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name   string
		record record.Record
		want   string
	}{
		{"loco", record.Record{Class: record.ClassLoco, Address: 3, Manufacturer: "ZIMO"}, "Lok#3_ZIMO.yaml"},
		{"accessory with spaces", record.Record{Class: record.ClassAccessory, Address: 300, Manufacturer: "Tams Elektronik"}, "Zubehoer#300_Tams-Elektronik.yaml"},
		{"no manufacturer", record.Record{Class: record.ClassLoco, Address: 1234}, "Lok#1234_unknown.yaml"},
		{"unknown id", record.Record{Class: record.ClassLoco, Address: 5, Manufacturer: "Unknown (250)"}, "Lok#5_Unknown-(250).yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.FileName())
		})
	}
}

func TestWritable_SkipsReadOnlyAndUnknown(t *testing.T) {
	r := record.New(locoIdentity(), uuid.New(), sampleDump(), taken)
	r.CVs = append(r.CVs, record.Entry{CV: 2000, Value: intp(1)}, record.Entry{CV: 2, Value: intp(300)})

	var cvs []int
	for _, e := range r.Writable() {
		cvs = append(cvs, e.CV)
	}
	assert.Equal(t, []int{1, 29}, cvs)
}

// ============================================================
// Persistence Tests
// ============================================================

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	r := record.New(locoIdentity(), uuid.New(), sampleDump(), taken)

	path, err := r.Save(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Lok#3_ZIMO.yaml"), path)

	loaded, err := record.Load(path)
	require.NoError(t, err)
	assert.Equal(t, r.Class, loaded.Class)
	assert.Equal(t, r.Address, loaded.Address)
	assert.Equal(t, r.Manufacturer, loaded.Manufacturer)
	assert.Equal(t, r.Session, loaded.Session)
	assert.True(t, r.Taken.Equal(loaded.Taken))
	assert.Equal(t, r.CVs, loaded.CVs)
	assert.Equal(t, r.CV8, loaded.CV8)
}

func TestSave_UnknownValuesStayNull(t *testing.T) {
	dir := t.TempDir()
	r := record.New(locoIdentity(), uuid.New(), sampleDump(), taken)

	path, err := r.Save(dir)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "value: null")
}

func TestSave_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	r := record.New(locoIdentity(), uuid.New(), sampleDump(), taken)
	_, err := r.Save(dir)
	require.NoError(t, err)

	r.CVs[0].Value = intp(4)
	path, err := r.Save(dir)
	require.NoError(t, err)

	loaded, err := record.Load(path)
	require.NoError(t, err)
	v, _ := loaded.Value(1)
	assert.Equal(t, 4, v)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSave_FailureLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	r := record.New(locoIdentity(), uuid.New(), sampleDump(), taken)

	// a non-empty directory in the way makes the final rename fail
	blocker := filepath.Join(dir, r.FileName())
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

	_, err := r.Save(dir)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".record-"), "temp file %s left behind", e.Name())
	}
	_, err = os.Stat(filepath.Join(blocker, "keep"))
	assert.NoError(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := record.Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("class: [oops"), 0o644))
	_, err = record.Load(bad)
	assert.Error(t, err)

	wrongClass := filepath.Join(dir, "wrong.yaml")
	require.NoError(t, os.WriteFile(wrongClass, []byte("class: tender\naddress: 3\n"), 0o644))
	_, err = record.Load(wrongClass)
	assert.ErrorContains(t, err, "unknown class")
}
