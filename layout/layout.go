// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package layout maps a signal's (start bit, length, byte order) to the
// byte-aligned chunks that hold its bits in an 8-byte frame.
//
// Intel signals walk a linear bit cursor upward from the LSB. Motorola
// signals start at the MSB, walk downward within a byte, then resume at bit 7
// of the next byte. Either way a chunk never crosses a byte boundary, so
// every chunk is one shift and one mask away from the frame byte it lives in.
package layout

import (
	"fmt"

	"github.com/MultiTechSystems/can-signal-schema/schema"
)

const lastByte = schema.FrameSize - 1

// Chunk is a run of signal bits inside one frame byte.
type Chunk struct {
	// ByteIndex is the frame byte, 0..7.
	ByteIndex int `cbor:"byte"`
	// Shift is the position of the chunk's lowest bit within the byte.
	Shift int `cbor:"shift"`
	// Width is the number of bits, 1..8.
	Width int `cbor:"width"`
	// ValueShift is where the chunk's lowest bit lands in the raw value.
	ValueShift int `cbor:"value_shift"`
	// Rank orders chunks by significance, 0 being the most significant.
	Rank int `cbor:"rank"`
}

// Mask returns the in-byte mask of the chunk, already shifted.
func (c Chunk) Mask() byte {
	return byte((1<<c.Width)-1) << c.Shift
}

// ValueMask returns the mask of the chunk's bits before shifting.
func (c Chunk) ValueMask() uint64 {
	return (1 << c.Width) - 1
}

func (c Chunk) String() string {
	return fmt.Sprintf("{byte %d, shift %d, width %d}", c.ByteIndex, c.Shift, c.Width)
}

// Layout is the resolved placement of one signal.
type Layout struct {
	StartBit int
	Length   int
	Order    schema.ByteOrder
	// Chunks are in generation order: least significant first for
	// LittleEndian, most significant first for BigEndian.
	Chunks []Chunk
	// Overflow is set when the signal would run past byte 7. Chunks then
	// hold only the bits inside the frame.
	Overflow bool
	// Covered is the number of bits the chunks hold.
	Covered int
}

// Mask returns the frame occupancy of the layout; bit byte*8+n is set for
// every frame bit the signal owns.
func (l Layout) Mask() uint64 {
	var m uint64
	for _, c := range l.Chunks {
		m |= uint64(c.Mask()) << (8 * c.ByteIndex)
	}
	return m
}

// MostSignificantFirst returns the chunks ordered by Rank.
func (l Layout) MostSignificantFirst() []Chunk {
	out := make([]Chunk, len(l.Chunks))
	for _, c := range l.Chunks {
		out[c.Rank] = c
	}
	return out
}

// Resolve computes the chunk list of a signal. It never produces a chunk
// outside bytes 0..7; a signal that would leave the frame is truncated and
// flagged with Overflow.
func Resolve(startBit, length int, order schema.ByteOrder) Layout {
	l := Layout{StartBit: startBit, Length: length, Order: order}
	if length <= 0 {
		return l
	}
	if startBit < 0 || startBit >= schema.FrameBits {
		l.Overflow = true
		return l
	}

	switch order {
	case schema.BigEndian:
		l.Chunks, l.Overflow = resolveMotorola(startBit, length)
	default:
		l.Chunks, l.Overflow = resolveIntel(startBit, length)
	}

	n := len(l.Chunks)
	covered := 0
	for i := range l.Chunks {
		covered += l.Chunks[i].Width
		switch order {
		case schema.BigEndian:
			l.Chunks[i].ValueShift = length - covered
			l.Chunks[i].Rank = i
		default:
			l.Chunks[i].ValueShift = covered - l.Chunks[i].Width
			l.Chunks[i].Rank = n - 1 - i
		}
	}
	l.Covered = covered
	return l
}

func resolveIntel(startBit, length int) ([]Chunk, bool) {
	var chunks []Chunk
	cursor := startBit
	remaining := length

	for remaining > 0 {
		byteIdx := cursor / 8
		if byteIdx > lastByte {
			return chunks, true
		}
		bitInByte := cursor % 8
		take := min(remaining, 8-bitInByte)

		chunks = append(chunks, Chunk{ByteIndex: byteIdx, Shift: bitInByte, Width: take})
		cursor += take
		remaining -= take
	}
	return chunks, false
}

func resolveMotorola(startBit, length int) ([]Chunk, bool) {
	var chunks []Chunk
	byteIdx := startBit / 8
	bitInByte := startBit % 8
	remaining := length

	for remaining > 0 {
		take := min(remaining, bitInByte+1)
		chunks = append(chunks, Chunk{
			ByteIndex: byteIdx,
			Shift:     bitInByte - take + 1,
			Width:     take,
		})
		remaining -= take
		if remaining == 0 {
			break
		}
		byteIdx++
		if byteIdx > lastByte {
			return chunks, true
		}
		bitInByte = 7
	}
	return chunks, false
}

// ResolveSignal resolves the layout of a schema signal.
func ResolveSignal(sig *schema.Signal) Layout {
	return Resolve(sig.StartBit, sig.Length, sig.ByteOrder)
}
