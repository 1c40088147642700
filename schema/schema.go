// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package schema describes CAN message layouts: fixed 8-byte frames carrying
// named signals at arbitrary bit offsets and widths, in either Intel or
// Motorola bit numbering, with optional multiplexing and constant fields.
package schema

import (
	"fmt"
	"strings"
)

// FrameSize is the only frame length the codec supports.
const FrameSize = 8

// FrameBits is the number of addressable bits in a frame.
const FrameBits = FrameSize * 8

// MaxSignalBits is the widest signal the codec handles.
const MaxSignalBits = 32

// Identifier limits.
const (
	MaxStandardID = 0x7FF
	MaxExtendedID = 0x1FFFFFFF
)

// ByteOrder selects the bit numbering convention of a signal.
type ByteOrder uint8

const (
	// LittleEndian ("Intel"): the start bit is the signal's LSB and bits
	// continue linearly through the frame.
	LittleEndian ByteOrder = iota
	// BigEndian ("Motorola"): the start bit is the signal's MSB; bits run
	// downward within a byte, then continue at bit 7 of the next byte.
	BigEndian
)

func (o ByteOrder) String() string {
	switch o {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return fmt.Sprintf("ByteOrder(%d)", uint8(o))
	}
}

// ParseByteOrder accepts the spellings found in DBC exports and CAN loading
// sheets. Anything containing "MSB" is big-endian.
func ParseByteOrder(s string) (ByteOrder, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "little", "intel", "lsb", "lsb_first", "little_endian":
		return LittleEndian, nil
	case "big", "motorola", "msb", "msb_first", "big_endian":
		return BigEndian, nil
	}
	if strings.Contains(v, "msb") {
		return BigEndian, nil
	}
	if strings.Contains(v, "lsb") {
		return LittleEndian, nil
	}
	return LittleEndian, fmt.Errorf("unknown byte order %q", s)
}

// RoleKind tags the multiplex role of a signal.
type RoleKind uint8

const (
	RolePlain RoleKind = iota
	RoleSelector
	RoleMuxed
	RoleConstant
)

func (k RoleKind) String() string {
	switch k {
	case RolePlain:
		return "plain"
	case RoleSelector:
		return "selector"
	case RoleMuxed:
		return "muxed"
	case RoleConstant:
		return "constant"
	default:
		return fmt.Sprintf("RoleKind(%d)", uint8(k))
	}
}

// Role is the multiplex role of a signal. Value is the dispatch value for
// RoleMuxed and the literal for RoleConstant; it is unused otherwise.
type Role struct {
	Kind  RoleKind
	Value uint64
}

// Plain returns the role of an always-active signal.
func Plain() Role { return Role{Kind: RolePlain} }

// Selector returns the role of a message's multiplexor signal.
func Selector() Role { return Role{Kind: RoleSelector} }

// Muxed returns the role of a signal active when the selector equals v.
func Muxed(v uint64) Role { return Role{Kind: RoleMuxed, Value: v} }

// Constant returns the role of a fixed literal field.
func Constant(v uint64) Role { return Role{Kind: RoleConstant, Value: v} }

// PhysicalType is the value type a signal decodes to.
type PhysicalType string

const (
	TypeU8    PhysicalType = "u8"
	TypeS8    PhysicalType = "s8"
	TypeU16   PhysicalType = "u16"
	TypeS16   PhysicalType = "s16"
	TypeU32   PhysicalType = "u32"
	TypeS32   PhysicalType = "s32"
	TypeFloat PhysicalType = "float"
)

// InferType picks the physical type of a signal. Unscaled signals decode to
// the smallest integer holding length bits; scaled ones decode to float.
func InferType(length int, signed bool, gain, offset float64) PhysicalType {
	if gain != 1.0 || offset != 0.0 {
		return TypeFloat
	}
	switch {
	case length <= 8:
		if signed {
			return TypeS8
		}
		return TypeU8
	case length <= 16:
		if signed {
			return TypeS16
		}
		return TypeU16
	default:
		if signed {
			return TypeS32
		}
		return TypeU32
	}
}

// IsFloat reports whether the type is the scaled float type.
func (t PhysicalType) IsFloat() bool { return t == TypeFloat }

// IsSigned reports whether the type is a signed integer.
func (t PhysicalType) IsSigned() bool {
	return t == TypeS8 || t == TypeS16 || t == TypeS32
}

// Bits returns the storage width of an integer type, 32 for float.
func (t PhysicalType) Bits() int {
	switch t {
	case TypeU8, TypeS8:
		return 8
	case TypeU16, TypeS16:
		return 16
	default:
		return 32
	}
}

// Class returns the type with signedness erased, so u16 and s16 compare equal.
func (t PhysicalType) Class() PhysicalType {
	switch t {
	case TypeS8:
		return TypeU8
	case TypeS16:
		return TypeU16
	case TypeS32:
		return TypeU32
	default:
		return t
	}
}

// Signal is a named bit field within a frame.
type Signal struct {
	Name        string
	Description string
	StartBit    int
	Length      int
	Gain        float64
	Offset      float64
	Signed      bool
	Unit        string
	ByteOrder   ByteOrder
	Role        Role

	// Type is set by Seal and never recomputed.
	Type PhysicalType
}

// IsConstant reports whether the signal is a fixed literal.
func (s *Signal) IsConstant() bool { return s.Role.Kind == RoleConstant }

// Scaled reports whether raw and physical values differ.
func (s *Signal) Scaled() bool { return s.Gain != 1.0 || s.Offset != 0.0 }

// Label returns the signal name, or the literal for unnamed constants.
func (s *Signal) Label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.IsConstant() {
		return fmt.Sprintf("0x%X", s.Role.Value)
	}
	return ""
}

// Message is one CAN identifier and the signals its frame carries.
type Message struct {
	ID          uint32
	Extended    bool
	Name        string
	Description string
	Signals     []Signal
}

// Selector returns the message's selector signal, or nil.
func (m *Message) Selector() *Signal {
	for i := range m.Signals {
		if m.Signals[i].Role.Kind == RoleSelector {
			return &m.Signals[i]
		}
	}
	return nil
}

// Schema is the full set of messages on a bus.
type Schema struct {
	Name        string
	Version     int
	Description string
	Messages    []Message
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m
		out.Messages[i].Signals = append([]Signal(nil), m.Signals...)
	}
	return &out
}

// Seal fills defaults and caches each signal's physical type. A zero gain is
// taken to mean unset.
func (s *Schema) Seal() {
	for i := range s.Messages {
		for j := range s.Messages[i].Signals {
			sig := &s.Messages[i].Signals[j]
			if sig.Gain == 0 {
				sig.Gain = 1.0
			}
			if sig.Type == "" {
				sig.Type = InferType(sig.Length, sig.Signed, sig.Gain, sig.Offset)
			}
		}
	}
}

// Message looks up a message by name.
func (s *Schema) Message(name string) *Message {
	for i := range s.Messages {
		if s.Messages[i].Name == name {
			return &s.Messages[i]
		}
	}
	return nil
}

// Check performs structural validation of each message in isolation.
// Cross-message consistency lives in package validate.
func (s *Schema) Check() error {
	if err := s.CheckMessages(); err != nil {
		return err
	}
	for i := range s.Messages {
		if err := s.Messages[i].Check(); err != nil {
			return err
		}
	}
	return nil
}

// CheckMessages validates message names and identifiers only.
func (s *Schema) CheckMessages() error {
	names := make(map[string]bool)
	ids := make(map[uint32]string)

	for i := range s.Messages {
		m := &s.Messages[i]
		if m.Name == "" {
			return invalidf(m, nil, "message 0x%X has no name", m.ID)
		}
		if names[m.Name] {
			return invalidf(m, nil, "duplicate message name %q", m.Name)
		}
		names[m.Name] = true

		key := m.ID
		if m.Extended {
			key |= 1 << 31
		}
		if prev, ok := ids[key]; ok {
			return invalidf(m, nil, "message %q reuses ID 0x%X of %q", m.Name, m.ID, prev)
		}
		ids[key] = m.Name

		limit := uint32(MaxStandardID)
		if m.Extended {
			limit = MaxExtendedID
		}
		if m.ID > limit {
			return invalidf(m, nil, "message %q ID 0x%X exceeds 0x%X", m.Name, m.ID, limit)
		}
	}
	return nil
}

// Check validates the signals of one message: ranges, names and the
// multiplex structure.
func (m *Message) Check() error {
	selectors := 0
	muxed := false
	seen := make(map[string]bool)

	for j := range m.Signals {
		sig := &m.Signals[j]
		if sig.StartBit < 0 || sig.StartBit >= FrameBits {
			return invalidf(m, sig, "start bit %d outside 0..%d", sig.StartBit, FrameBits-1)
		}
		if sig.Length < 1 || sig.Length > MaxSignalBits {
			return invalidf(m, sig, "length %d outside 1..%d", sig.Length, MaxSignalBits)
		}

		switch sig.Role.Kind {
		case RoleSelector:
			selectors++
		case RoleMuxed:
			muxed = true
		case RoleConstant:
			continue
		case RolePlain:
		}

		if sig.Name == "" {
			return invalidf(m, sig, "signal at bit %d has no name", sig.StartBit)
		}
		if seen[sig.Name] {
			return invalidf(m, sig, "duplicate signal %q", sig.Name)
		}
		seen[sig.Name] = true
	}

	if selectors > 1 {
		return invalidf(m, nil, "message %q has %d selector signals", m.Name, selectors)
	}
	if muxed && selectors == 0 {
		return invalidf(m, nil, "message %q has multiplexed signals but no selector", m.Name)
	}
	return nil
}
