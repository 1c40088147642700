// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package artifact stores a codec.Plan as CBOR so generation and frame
// decoding can run without re-reading the schema. Encoding is Core
// Deterministic (RFC 8949 §4.2): the same plan always produces the same
// bytes.
package artifact

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"github.com/MultiTechSystems/can-signal-schema/codec"
)

// FormatVersion is bumped whenever the plan layout changes incompatibly.
const FormatVersion = 1

const magic = "cansig-plan"

// ErrFormat reports data that is not a plan artifact of this version.
var ErrFormat = errors.New("not a cansig plan artifact")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("artifact: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("artifact: CBOR decoder initialization failed: " + err.Error())
	}
}

type envelope struct {
	Magic   string      `cbor:"magic"`
	Version int         `cbor:"version"`
	Plan    *codec.Plan `cbor:"plan"`
}

// Marshal encodes plan.
func Marshal(plan *codec.Plan) ([]byte, error) {
	if plan == nil {
		return nil, errors.New("artifact: nil plan")
	}
	return encMode.Marshal(envelope{Magic: magic, Version: FormatVersion, Plan: plan})
}

// Unmarshal decodes a plan written by Marshal.
func Unmarshal(data []byte) (*codec.Plan, error) {
	var env envelope
	if err := decMode.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if env.Magic != magic {
		return nil, ErrFormat
	}
	if env.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrFormat, env.Version, FormatVersion)
	}
	if env.Plan == nil {
		return nil, fmt.Errorf("%w: no plan", ErrFormat)
	}
	return env.Plan, nil
}

// WriteFile writes plan to path.
func WriteFile(path string, plan *codec.Plan) error {
	data, err := Marshal(plan)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}

// ReadFile reads a plan from path.
func ReadFile(path string) (*codec.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan: %w", err)
	}
	plan, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return plan, nil
}
