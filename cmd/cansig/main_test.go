// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MultiTechSystems/can-signal-schema/schema"
)

const vehicleSchema = `
name: vehicle
version: 2
messages:
  - id: 0x100
    name: EngineStatus
    signals:
      - {name: EngineSpeed, start_bit: 0, length: 16, gain: 0.25, unit: rpm}
      - {name: CoolantTemp, start_bit: 16, length: 8, offset: -40, unit: degC}
      - {name: Torque, start_bit: 24, length: 16, signed: true, unit: Nm}
      - {name: Reserved_1, start_bit: 40, length: 8}
      - {name: "0xA5", start_bit: 56, length: 8}
  - id: 0x200
    name: BatteryMux
    signals:
      - {name: Page, start_bit: 0, length: 8, mux: selector}
      - {name: CellVoltage, start_bit: 8, length: 16, gain: 0.001, unit: V, mux: 1}
      - {name: CellTemp, start_bit: 8, length: 8, signed: true, mux: 2}
      - {name: Status, start_bit: 60, length: 12, byte_order: big}
`

type harness struct {
	dir    string
	schema string
	config string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:    dir,
		schema: filepath.Join(dir, "vehicle.yaml"),
		config: filepath.Join(dir, "cansig.yaml"),
	}
	if err := os.WriteFile(h.schema, []byte(vehicleSchema), 0o644); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append(args[:1:1], append([]string{"--config", h.config, "--log-level", "error"}, args[1:]...)...)
	err := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return stdout.String(), err
}

func TestUsage(t *testing.T) {
	var stderr bytes.Buffer
	if err := run(context.Background(), nil, nil, nil, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, name := range []string{"check", "generate", "plan", "decode", "encode"} {
		if !strings.Contains(stderr.String(), name) {
			t.Errorf("usage lacks %s", name)
		}
	}
	if err := run(context.Background(), []string{"frobnicate"}, nil, nil, &stderr); err == nil {
		t.Error("run(frobnicate) error = nil")
	}
}

func TestCheck(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "", "check", h.schema)
	if err != nil {
		t.Fatalf("check error = %v", err)
	}
	if !strings.Contains(out, "2 messages, 7 signals, 1 warnings") {
		t.Errorf("check output = %q", out)
	}
	if !strings.Contains(out, "layout_overflow") {
		t.Errorf("check output lacks overflow warning: %q", out)
	}
}

func TestCheckRejectsSchema(t *testing.T) {
	h := newHarness(t)
	bad := filepath.Join(h.dir, "bad.yaml")
	doc := `
messages:
  - {id: 1, name: A, signals: [{name: X, start_bit: 0, length: 8}]}
  - {id: 1, name: B, signals: [{name: Y, start_bit: 0, length: 8}]}
`
	if err := os.WriteFile(bad, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := h.run(t, "", "check", bad)
	var se *schema.SchemaError
	if !errors.As(err, &se) {
		t.Errorf("check error = %v, want *schema.SchemaError", err)
	}
}

func TestGenerate(t *testing.T) {
	h := newHarness(t)
	out := filepath.Join(h.dir, "gen")
	planPath := filepath.Join(h.dir, "vehicle.plan")

	if _, err := h.run(t, "", "generate", "-t", "c", "-o", out, "--plan", planPath, h.schema); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	for _, name := range []string{"canDecodeAuto.h", "canDecodeAuto.c"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("%s not written: %v", name, err)
		}
	}
	if _, err := os.Stat(planPath); err != nil {
		t.Errorf("plan not written: %v", err)
	}
}

func TestGenerateFromConfig(t *testing.T) {
	h := newHarness(t)
	cfg := "target: go\npackage: bus\noutput: " + filepath.Join(h.dir, "out") + "\n"
	if err := os.WriteFile(h.config, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := h.run(t, "", "generate", h.schema); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	src, err := os.ReadFile(filepath.Join(h.dir, "out", "bus.go"))
	if err != nil {
		t.Fatalf("bus.go not written: %v", err)
	}
	if !strings.Contains(string(src), "package bus") {
		t.Error("bus.go has the wrong package")
	}
}

func TestGenerateBinaryReload(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run(t, "", "generate", "-t", "binary", "-o", h.dir, h.schema); err != nil {
		t.Fatalf("generate error = %v", err)
	}
	out, err := h.run(t, "", "check", filepath.Join(h.dir, "vehicle.bin"))
	if err != nil {
		t.Fatalf("check binary error = %v", err)
	}
	if !strings.Contains(out, "2 messages") {
		t.Errorf("check output = %q", out)
	}
}

const captureLog = `(1.000000) can0 100#401F82F6FF0000A5
(1.010000) can0 200#01D20400000000F0
(1.020000) can0 300#00
(1.030000) can0 100#0102
(1.040000) can0 00000100#401F82F6FF0000A5
`

func TestDecode(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, captureLog, "decode", h.schema)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("decode lines = %d, want 2:\n%s", len(lines), out)
	}
	for _, want := range []string{"EngineSpeed=2000 rpm", "CoolantTemp=90 degC", "Torque=-10 Nm"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("line 1 = %q, lacks %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[1], "CellVoltage=1.234 V") || strings.Contains(lines[1], "CellTemp") {
		t.Errorf("line 2 = %q", lines[1])
	}

	out, err = h.run(t, captureLog, "decode", "--unknown", h.schema)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !strings.Contains(out, "0x300 ?") {
		t.Errorf("unknown frame not printed:\n%s", out)
	}
	// Same number as EngineStatus but an extended frame.
	if !strings.Contains(out, "0x100 ?") {
		t.Errorf("extended 0x100 frame not reported unknown:\n%s", out)
	}
}

func TestDecodeWithPlan(t *testing.T) {
	h := newHarness(t)
	planPath := filepath.Join(h.dir, "v.plan")
	if _, err := h.run(t, "", "plan", "-o", planPath, h.schema); err != nil {
		t.Fatalf("plan error = %v", err)
	}
	out, err := h.run(t, captureLog, "decode", "--plan", planPath)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !strings.Contains(out, "EngineStatus") {
		t.Errorf("decode output = %q", out)
	}

	if _, err := h.run(t, captureLog, "decode"); err == nil {
		t.Error("decode without schema or plan error = nil")
	}
}

func TestEncode(t *testing.T) {
	h := newHarness(t)
	out, err := h.run(t, "", "encode", h.schema, "EngineStatus", "EngineSpeed=2000", "CoolantTemp=90", "Torque=-10")
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "100#401F82F6FF0000A5" {
		t.Errorf("encode = %q, want 100#401F82F6FF0000A5", got)
	}

	if _, err := h.run(t, "", "encode", h.schema, "EngineStatus", "EngineSpeed"); err == nil {
		t.Error("encode without value error = nil")
	}
	if _, err := h.run(t, "", "encode", h.schema, "Nope"); err == nil {
		t.Error("encode unknown message error = nil")
	}
	_, err = h.run(t, "", "encode", h.schema, "EngineStatus", "EngineSpeeed=1")
	if err == nil || !strings.Contains(err.Error(), `"EngineSpeeed"`) {
		t.Errorf("encode misspelled signal error = %v, want it named", err)
	}
}
