// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package artifact

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

const doc = `
name: vehicle
version: 2
messages:
  - id: 0x100
    name: EngineStatus
    signals:
      - {name: EngineSpeed, start_bit: 0, length: 16, gain: 0.25, unit: rpm}
      - {name: Torque, start_bit: 24, length: 16, signed: true}
      - {name: "0xA5", start_bit: 56, length: 8}
  - id: 0x200
    name: BatteryMux
    signals:
      - {name: Page, start_bit: 0, length: 8, mux: selector}
      - {name: CellVoltage, start_bit: 8, length: 16, gain: 0.001, mux: 1}
      - {name: Status, start_bit: 60, length: 12, byte_order: big}
`

func buildPlan(t *testing.T) *codec.Plan {
	t.Helper()
	s, err := schema.ParseSchema(doc)
	if err != nil {
		t.Fatalf("ParseSchema() error = %v", err)
	}
	plan, err := codec.Build(context.Background(), s, codec.Options{})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return plan
}

func TestMarshalDeterministic(t *testing.T) {
	plan := buildPlan(t)
	a, err := Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	b, err := Marshal(buildPlan(t))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("Marshal() output differs between identical plans")
	}
}

func TestRoundTrip(t *testing.T) {
	plan := buildPlan(t)
	data, err := Marshal(plan)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	again, err := Marshal(got)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("re-encoded plan differs")
	}
	if len(got.Warnings) != len(plan.Warnings) || len(got.Warnings) == 0 {
		t.Errorf("Warnings = %v, want %v", got.Warnings, plan.Warnings)
	}

	// The decoded plan must decode frames the same way.
	frame := []byte{0x40, 0x1F, 0x00, 0x9C, 0xFF, 0, 0, 0xA5}
	_, want, err := plan.DecodeFrame(0x100, false, frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	_, values, err := got.DecodeFrame(0x100, false, frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	for name, v := range want {
		if values[name] != v {
			t.Errorf("%s = %v, want %v", name, values[name], v)
		}
	}
}

func TestUnmarshalErrors(t *testing.T) {
	other, err := encMode.Marshal(envelope{Magic: "other", Version: FormatVersion, Plan: &codec.Plan{}})
	if err != nil {
		t.Fatal(err)
	}
	future, err := encMode.Marshal(envelope{Magic: magic, Version: FormatVersion + 1, Plan: &codec.Plan{}})
	if err != nil {
		t.Fatal(err)
	}
	empty, err := encMode.Marshal(envelope{Magic: magic, Version: FormatVersion})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"garbage", []byte{0xFF, 0x00}},
		{"magic", other},
		{"version", future},
		{"no plan", empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal(tt.data); !errors.Is(err, ErrFormat) {
				t.Errorf("Unmarshal() error = %v, want ErrFormat", err)
			}
		})
	}

	if _, err := Marshal(nil); err == nil {
		t.Error("Marshal(nil) error = nil")
	}
}

func TestFile(t *testing.T) {
	plan := buildPlan(t)
	path := filepath.Join(t.TempDir(), "vehicle.plan")

	if err := WriteFile(path, plan); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got.Schema != "vehicle" || len(got.Messages) != 2 {
		t.Errorf("ReadFile() = %s with %d messages", got.Schema, len(got.Messages))
	}

	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.plan")); err == nil {
		t.Error("ReadFile(missing) error = nil")
	}
}
