// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Bit numbering schemes for big-endian start bits.
const (
	// NumberingDBC is the DBC convention: the start bit names the MSB as
	// byte*8 + bit, bit 0 being the LSB of the byte.
	NumberingDBC = "dbc"
	// NumberingSequential counts bits MSB-first through the frame, as CAN
	// loading sheets generated from MATLAB do.
	NumberingSequential = "sequential"
)

var hexLiteral = regexp.MustCompile(`^0[xX][0-9A-Fa-f]+$`)

// ParseNumbering normalizes a bit numbering name. Empty means NumberingDBC.
func ParseNumbering(s string) (string, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", NumberingDBC:
		return NumberingDBC, nil
	case NumberingSequential:
		return v, nil
	}
	return "", fmt.Errorf("unknown bit numbering %q", s)
}

// MotorolaFromSequential converts a sequential MSB-first bit counter to a
// DBC Motorola start bit. The mapping is its own inverse.
func MotorolaFromSequential(n int) int {
	return (7 - n%8) + 8*(n/8)
}

// LoadFile reads and parses a schema document from disk.
func LoadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return ParseSchema(string(data))
}

// ParseSchema parses a schema from a YAML or JSON string. Signal entries
// without a usable start bit or length are skipped, so they never reach the
// codec. The result is sealed but not validated.
func ParseSchema(data string) (*Schema, error) {
	return ParseSchemaWith(data, NumberingDBC)
}

// ParseSchemaWith is ParseSchema with a different default bit numbering for
// documents that do not declare one.
func ParseSchemaWith(data, numbering string) (*Schema, error) {
	numbering, err := ParseNumbering(numbering)
	if err != nil {
		return nil, &SchemaError{Code: ErrParse, Message: err.Error()}
	}

	var raw map[string]any
	if err := yaml.Unmarshal([]byte(data), &raw); err != nil {
		if err := json.Unmarshal([]byte(data), &raw); err != nil {
			return nil, &SchemaError{Code: ErrParse, Message: fmt.Sprintf("failed to parse schema: %v", err)}
		}
	}
	if raw == nil {
		return nil, &SchemaError{Code: ErrParse, Message: "empty schema document"}
	}

	s := &Schema{}
	if name, ok := raw["name"].(string); ok {
		s.Name = name
	}
	if version, ok := toInt(raw["version"]); ok {
		s.Version = version
	}
	if desc, ok := raw["description"].(string); ok {
		s.Description = desc
	}
	if n, ok := raw["bit_numbering"].(string); ok {
		if numbering, err = ParseNumbering(n); err != nil {
			return nil, &SchemaError{Code: ErrParse, Message: err.Error()}
		}
	}

	msgsRaw, _ := raw["messages"].([]any)
	for i, mr := range msgsRaw {
		mm, ok := mr.(map[string]any)
		if !ok {
			continue
		}
		m, err := parseMessageMap(mm, numbering)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		s.Messages = append(s.Messages, m)
	}

	s.Seal()
	return s, nil
}

func parseMessageMap(mm map[string]any, numbering string) (Message, error) {
	m := Message{}

	id, ok := toUint64(mm["id"])
	if !ok {
		return m, &SchemaError{Code: ErrParse, Message: fmt.Sprintf("unparseable id %v", mm["id"])}
	}
	if id > math.MaxUint32 {
		return m, &SchemaError{Code: ErrParse, Message: fmt.Sprintf("id 0x%X does not fit 32 bits", id)}
	}
	m.ID = uint32(id)
	if ext, ok := mm["extended"].(bool); ok {
		m.Extended = ext
	} else {
		m.Extended = m.ID > MaxStandardID
	}
	if name, ok := mm["name"].(string); ok {
		m.Name = strings.TrimSpace(name)
	}
	if desc, ok := mm["description"].(string); ok {
		m.Description = desc
	}
	if n, ok := mm["bit_numbering"].(string); ok {
		var err error
		if numbering, err = ParseNumbering(n); err != nil {
			return m, &SchemaError{Code: ErrParse, Message: err.Error()}
		}
	}

	sigsRaw, _ := mm["signals"].([]any)
	for _, sr := range sigsRaw {
		sm, ok := sr.(map[string]any)
		if !ok {
			continue
		}
		sig, ok, err := parseSignalMap(sm, numbering)
		if err != nil {
			return m, fmt.Errorf("%s: %w", m.Name, err)
		}
		if ok {
			m.Signals = append(m.Signals, sig)
		}
	}
	return m, nil
}

// parseSignalMap returns ok=false for entries that must be skipped.
func parseSignalMap(sm map[string]any, numbering string) (Signal, bool, error) {
	sig := Signal{Gain: 1.0}

	start, ok := toInt(firstOf(sm, "start_bit", "start", "start bit"))
	if !ok {
		return sig, false, nil
	}
	length, ok := toInt(firstOf(sm, "length", "bits", "length (bits)"))
	if !ok {
		return sig, false, nil
	}
	sig.StartBit = start
	sig.Length = length

	switch name := sm["name"].(type) {
	case string:
		name = strings.TrimSpace(name)
		if hexLiteral.MatchString(name) {
			v, err := strconv.ParseUint(name[2:], 16, 64)
			if err != nil {
				return sig, false, &SchemaError{Code: ErrParse, Message: fmt.Sprintf("unparseable constant %s: %v", name, err)}
			}
			sig.Role = Constant(v)
		} else {
			sig.Name = name
		}
	case int:
		sig.Role = Constant(uint64(name))
	}

	if desc, ok := sm["description"].(string); ok {
		sig.Description = desc
	}
	if gain, ok := toFloat64(firstOf(sm, "gain", "scale", "factor")); ok {
		sig.Gain = gain
	}
	if offset, ok := toFloat64(sm["offset"]); ok {
		sig.Offset = offset
	}
	sig.Signed = toBool(sm["signed"])
	if unit, ok := sm["unit"].(string); ok {
		sig.Unit = unit
	}

	if bo, ok := firstOf(sm, "byte_order", "endian").(string); ok {
		order, err := ParseByteOrder(bo)
		if err != nil {
			return sig, false, &SchemaError{Code: ErrParse, Message: err.Error(), Signal: sig.Label()}
		}
		sig.ByteOrder = order
	}
	if n, ok := sm["bit_numbering"].(string); ok {
		var err error
		if numbering, err = ParseNumbering(n); err != nil {
			return sig, false, &SchemaError{Code: ErrParse, Message: err.Error(), Signal: sig.Label()}
		}
	}
	if sig.ByteOrder == BigEndian && numbering == NumberingSequential {
		sig.StartBit = MotorolaFromSequential(sig.StartBit)
	}

	if c, ok := sm["constant"]; ok {
		v, ok := toUint64(c)
		if !ok {
			return sig, false, &SchemaError{Code: ErrParse, Message: fmt.Sprintf("unparseable constant %v", c), Signal: sig.Label()}
		}
		sig.Role = Constant(v)
	}

	if mux, ok := sm["mux"]; ok && sig.Role.Kind != RoleConstant {
		role, err := parseMux(mux)
		if err != nil {
			return sig, false, &SchemaError{Code: ErrParse, Message: err.Error(), Signal: sig.Label()}
		}
		sig.Role = role
	}

	return sig, true, nil
}

// parseMux accepts "selector" or DBC's "M" for the selector, and an integer
// or DBC's "m<N>" for a multiplexed signal.
func parseMux(v any) (Role, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		switch {
		case strings.EqualFold(s, "selector"), s == "M":
			return Selector(), nil
		case strings.HasPrefix(s, "m"):
			n, err := strconv.ParseUint(s[1:], 10, 64)
			if err != nil {
				return Role{}, fmt.Errorf("invalid mux value %q", s)
			}
			return Muxed(n), nil
		}
	}
	n, ok := toUint64(v)
	if !ok {
		return Role{}, fmt.Errorf("invalid mux value %v", v)
	}
	return Muxed(n), nil
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	case uint64:
		return int(val), true
	case float64:
		if val != float64(int(val)) {
			return 0, false
		}
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch val := v.(type) {
	case int:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case int64:
		if val < 0 {
			return 0, false
		}
		return uint64(val), true
	case uint64:
		return val, true
	case float64:
		if val < 0 || val != float64(uint64(val)) {
			return 0, false
		}
		return uint64(val), true
	case string:
		s := strings.TrimSpace(val)
		if hexLiteral.MatchString(s) {
			n, err := strconv.ParseUint(s[2:], 16, 64)
			return n, err == nil
		}
		n, err := strconv.ParseUint(s, 10, 64)
		return n, err == nil
	}
	return 0, false
}

func toBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToUpper(strings.TrimSpace(val))
		return s == "YES" || s == "TRUE" || s == "Y" || s == "1"
	case int:
		return val != 0
	}
	return false
}
