// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package record persists CV dumps as YAML files so a decoder can be
// inspected later or restored after a factory reset.
package record

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/trackside/pkg/dcc"
	"github.com/Thermoquad/trackside/pkg/servicemode"
)

// Class is the decoder class stored in a record
type Class string

const (
	ClassLoco      Class = "loco"
	ClassAccessory Class = "accessory"
)

// File name prefixes by class
const (
	prefixLoco      = "Lok"
	prefixAccessory = "Zubehoer"
)

// readOnlyCVs are never written back by a restore
var readOnlyCVs = map[int]bool{
	dcc.CVVersion:      true,
	dcc.CVManufacturer: true,
}

// Entry is one CV of a record. A nil Value was not read successfully.
type Entry struct {
	CV    int  `yaml:"cv"`
	Value *int `yaml:"value"`
}

// Record is a saved CV dump
type Record struct {
	Class        Class     `yaml:"class"`
	Address      int       `yaml:"address"`
	Manufacturer string    `yaml:"manufacturer"`
	CV8          *int      `yaml:"cv8"`
	Session      string    `yaml:"session"`
	Taken        time.Time `yaml:"taken"`
	CVs          []Entry   `yaml:"cvs"`
}

func intPtr(v servicemode.Value) *int {
	if !v.Known {
		return nil
	}
	b := int(v.Byte)
	return &b
}

// New builds a record from an identification and the dump that followed it
func New(id servicemode.Identity, session uuid.UUID, dump *servicemode.DumpResult, taken time.Time) *Record {
	r := &Record{
		Class:        ClassLoco,
		Address:      id.Address,
		Manufacturer: id.Manufacturer,
		CV8:          intPtr(id.CV8),
		Session:      session.String(),
		Taken:        taken,
	}
	if id.Accessory() {
		r.Class = ClassAccessory
	}
	if dump != nil {
		r.CVs = make([]Entry, 0, len(dump.Readings))
		for _, reading := range dump.Readings {
			r.CVs = append(r.CVs, Entry{CV: reading.CV, Value: intPtr(reading.Value)})
		}
	}
	return r
}

// FileName returns "<Lok|Zubehoer>#<address>_<manufacturer>.yaml" with
// spaces in the manufacturer name replaced by dashes
func (r *Record) FileName() string {
	prefix := prefixLoco
	if r.Class == ClassAccessory {
		prefix = prefixAccessory
	}
	manufacturer := r.Manufacturer
	if manufacturer == "" {
		manufacturer = "unknown"
	}
	manufacturer = strings.ReplaceAll(manufacturer, " ", "-")
	manufacturer = strings.ReplaceAll(manufacturer, string(filepath.Separator), "-")
	return fmt.Sprintf("%s#%d_%s.yaml", prefix, r.Address, manufacturer)
}

// Value returns the stored value of cv
func (r *Record) Value(cv int) (int, bool) {
	for _, e := range r.CVs {
		if e.CV == cv && e.Value != nil {
			return *e.Value, true
		}
	}
	return 0, false
}

// Known counts the entries with a value
func (r *Record) Known() int {
	n := 0
	for _, e := range r.CVs {
		if e.Value != nil {
			n++
		}
	}
	return n
}

// Writable returns the entries a restore writes back: known values of
// valid, writable CVs, in record order
func (r *Record) Writable() []Entry {
	out := make([]Entry, 0, len(r.CVs))
	for _, e := range r.CVs {
		if e.Value == nil || readOnlyCVs[e.CV] || !dcc.ValidCV(e.CV) || !dcc.ValidValue(*e.Value) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Save writes the record into dir under FileName. The data goes to a
// temporary file that is renamed into place, so an existing record is
// either fully replaced or left untouched.
func (r *Record) Save(dir string) (path string, err error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create records dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".record-*.yaml")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}

	path = filepath.Join(dir, r.FileName())
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replace record: %w", err)
	}
	return path, nil
}

// Load reads a record file
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}
	var r Record
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	if r.Class != ClassLoco && r.Class != ClassAccessory {
		return nil, fmt.Errorf("parse record: unknown class %q", r.Class)
	}
	return &r, nil
}
