// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"fmt"
	"math"

	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

// Frame is the 8-byte payload of a classical CAN data frame.
type Frame [schema.FrameSize]byte

// FrameFromBytes copies an 8-byte payload into a Frame.
func FrameFromBytes(data []byte) (Frame, error) {
	var f Frame
	if len(data) != schema.FrameSize {
		return f, fmt.Errorf("%w: got %d bytes", ErrFrameLength, len(data))
	}
	copy(f[:], data)
	return f, nil
}

// ExtractRaw gathers a signal's bits from the frame into an unsigned value.
func ExtractRaw(f Frame, chunks []layout.Chunk) uint64 {
	var raw uint64
	for _, c := range chunks {
		part := uint64(f[c.ByteIndex]>>c.Shift) & c.ValueMask()
		raw |= part << c.ValueShift
	}
	return raw
}

// InsertRaw scatters raw into the frame. Only the bits owned by the chunks
// change; everything else in the frame is preserved.
func InsertRaw(f *Frame, chunks []layout.Chunk, length int, raw uint64) {
	raw &= lengthMask(length)
	for _, c := range chunks {
		part := byte((raw >> c.ValueShift) & c.ValueMask())
		f[c.ByteIndex] = f[c.ByteIndex]&^c.Mask() | part<<c.Shift
	}
}

// SignExtend interprets the low length bits of raw as two's complement.
func SignExtend(raw uint64, length int) int64 {
	raw &= lengthMask(length)
	if length > 0 && length < 64 && raw&(1<<(length-1)) != 0 {
		return int64(raw) - (1 << length)
	}
	return int64(raw)
}

// Physical converts raw bits to a physical value: raw*gain + offset, after
// sign extension when signed.
func Physical(raw uint64, length int, signed bool, gain, offset float64) float64 {
	var v float64
	if signed {
		v = float64(SignExtend(raw, length))
	} else {
		v = float64(raw & lengthMask(length))
	}
	if gain == 1.0 && offset == 0.0 {
		return v
	}
	return v*gain + offset
}

// RawFromPhysical is the inverse of Physical. Scaled values are rounded to
// the nearest raw step; anything outside length bits is truncated silently.
func RawFromPhysical(physical float64, length int, gain, offset float64) uint64 {
	var n int64
	if gain == 1.0 && offset == 0.0 {
		n = int64(physical)
	} else {
		n = int64(math.Round((physical - offset) / gain))
	}
	return uint64(n) & lengthMask(length)
}

func lengthMask(length int) uint64 {
	if length >= 64 {
		return math.MaxUint64
	}
	return (1 << length) - 1
}

// Value is one decoded signal.
type Value struct {
	Type     schema.PhysicalType
	Raw      uint64
	Physical float64
	Unit     string
}

// Float returns the physical value.
func (v Value) Float() float64 { return v.Physical }

// Int returns the physical value truncated to an integer.
func (v Value) Int() int64 { return int64(v.Physical) }

// Uint returns the raw bits.
func (v Value) Uint() uint64 { return v.Raw }

func (v Value) String() string {
	var s string
	if v.Type.IsFloat() {
		s = fmt.Sprintf("%g", v.Physical)
	} else {
		s = fmt.Sprintf("%d", int64(v.Physical))
	}
	if v.Unit != "" {
		s += " " + v.Unit
	}
	return s
}
