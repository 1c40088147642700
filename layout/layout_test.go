// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package layout

import (
	"reflect"
	"testing"

	"github.com/MultiTechSystems/can-signal-schema/schema"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		length   int
		order    schema.ByteOrder
		want     []Chunk
		overflow bool
	}{
		{
			name:   "intel byte aligned",
			start:  0,
			length: 8,
			order:  schema.LittleEndian,
			want:   []Chunk{{ByteIndex: 0, Shift: 0, Width: 8, ValueShift: 0, Rank: 0}},
		},
		{
			name:   "intel nibble",
			start:  12,
			length: 4,
			order:  schema.LittleEndian,
			want:   []Chunk{{ByteIndex: 1, Shift: 4, Width: 4, ValueShift: 0, Rank: 0}},
		},
		{
			name:   "intel crossing two bytes",
			start:  4,
			length: 12,
			order:  schema.LittleEndian,
			want: []Chunk{
				{ByteIndex: 0, Shift: 4, Width: 4, ValueShift: 0, Rank: 1},
				{ByteIndex: 1, Shift: 0, Width: 8, ValueShift: 4, Rank: 0},
			},
		},
		{
			name:   "intel 32 bits unaligned",
			start:  3,
			length: 32,
			order:  schema.LittleEndian,
			want: []Chunk{
				{ByteIndex: 0, Shift: 3, Width: 5, ValueShift: 0, Rank: 4},
				{ByteIndex: 1, Shift: 0, Width: 8, ValueShift: 5, Rank: 3},
				{ByteIndex: 2, Shift: 0, Width: 8, ValueShift: 13, Rank: 2},
				{ByteIndex: 3, Shift: 0, Width: 8, ValueShift: 21, Rank: 1},
				{ByteIndex: 4, Shift: 0, Width: 3, ValueShift: 29, Rank: 0},
			},
		},
		{
			name:   "motorola 16 bits from bit 7",
			start:  7,
			length: 16,
			order:  schema.BigEndian,
			want: []Chunk{
				{ByteIndex: 0, Shift: 0, Width: 8, ValueShift: 8, Rank: 0},
				{ByteIndex: 1, Shift: 0, Width: 8, ValueShift: 0, Rank: 1},
			},
		},
		{
			name:   "motorola within one byte",
			start:  5,
			length: 3,
			order:  schema.BigEndian,
			want:   []Chunk{{ByteIndex: 0, Shift: 3, Width: 3, ValueShift: 0, Rank: 0}},
		},
		{
			name:   "motorola sawtooth",
			start:  3,
			length: 12,
			order:  schema.BigEndian,
			want: []Chunk{
				{ByteIndex: 0, Shift: 0, Width: 4, ValueShift: 8, Rank: 0},
				{ByteIndex: 1, Shift: 0, Width: 8, ValueShift: 0, Rank: 1},
			},
		},
		{
			name:   "motorola ending mid byte",
			start:  1,
			length: 6,
			order:  schema.BigEndian,
			want: []Chunk{
				{ByteIndex: 0, Shift: 0, Width: 2, ValueShift: 4, Rank: 0},
				{ByteIndex: 1, Shift: 4, Width: 4, ValueShift: 0, Rank: 1},
			},
		},
		{
			name:     "intel overflow",
			start:    60,
			length:   16,
			order:    schema.LittleEndian,
			want:     []Chunk{{ByteIndex: 7, Shift: 4, Width: 4, ValueShift: 0, Rank: 0}},
			overflow: true,
		},
		{
			name:     "motorola overflow",
			start:    59,
			length:   12,
			order:    schema.BigEndian,
			want:     []Chunk{{ByteIndex: 7, Shift: 0, Width: 4, ValueShift: 8, Rank: 0}},
			overflow: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.start, tt.length, tt.order)
			if !reflect.DeepEqual(got.Chunks, tt.want) {
				t.Errorf("Resolve() chunks = %v, want %v", got.Chunks, tt.want)
			}
			if got.Overflow != tt.overflow {
				t.Errorf("Resolve() overflow = %v, want %v", got.Overflow, tt.overflow)
			}
		})
	}
}

func TestResolveCoverage(t *testing.T) {
	for _, order := range []schema.ByteOrder{schema.LittleEndian, schema.BigEndian} {
		for start := 0; start < schema.FrameBits; start++ {
			for length := 1; length <= schema.MaxSignalBits; length++ {
				l := Resolve(start, length, order)
				sum := 0
				for _, c := range l.Chunks {
					if c.ByteIndex < 0 || c.ByteIndex > 7 {
						t.Fatalf("%v start=%d len=%d: chunk byte %d out of frame", order, start, length, c.ByteIndex)
					}
					if c.Shift < 0 || c.Shift+c.Width > 8 {
						t.Fatalf("%v start=%d len=%d: chunk %v crosses byte", order, start, length, c)
					}
					sum += c.Width
				}
				if sum != l.Covered {
					t.Fatalf("%v start=%d len=%d: covered %d, chunk sum %d", order, start, length, l.Covered, sum)
				}
				if !l.Overflow && sum != length {
					t.Fatalf("%v start=%d len=%d: chunk widths sum to %d", order, start, length, sum)
				}
				if l.Overflow && sum >= length {
					t.Fatalf("%v start=%d len=%d: overflow flagged but all bits covered", order, start, length)
				}
			}
		}
	}
}

func TestResolveIntelOverflowBoundary(t *testing.T) {
	if l := Resolve(56, 8, schema.LittleEndian); l.Overflow {
		t.Error("last byte should fit")
	}
	if l := Resolve(57, 8, schema.LittleEndian); !l.Overflow {
		t.Error("one bit past the frame should overflow")
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		name   string
		start  int
		length int
		order  schema.ByteOrder
		want   uint64
	}{
		{"intel low byte", 0, 8, schema.LittleEndian, 0xFF},
		{"intel crossing", 4, 8, schema.LittleEndian, 0xFF0},
		{"motorola 16", 7, 16, schema.BigEndian, 0xFFFF},
		{"motorola sawtooth", 3, 12, schema.BigEndian, 0xFF0F},
		{"last nibble", 60, 4, schema.LittleEndian, 0xF000000000000000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.start, tt.length, tt.order).Mask()
			if got != tt.want {
				t.Errorf("Mask() = %#x, want %#x", got, tt.want)
			}
		})
	}
}

func TestMostSignificantFirst(t *testing.T) {
	l := Resolve(4, 12, schema.LittleEndian)
	got := l.MostSignificantFirst()
	if got[0].ByteIndex != 1 || got[1].ByteIndex != 0 {
		t.Errorf("MostSignificantFirst() = %v", got)
	}
}

func TestMotorolaFromSequential(t *testing.T) {
	tests := []struct {
		seq  int
		want int
	}{
		{0, 7},
		{7, 0},
		{8, 15},
		{12, 11},
		{63, 56},
	}
	for _, tt := range tests {
		if got := schema.MotorolaFromSequential(tt.seq); got != tt.want {
			t.Errorf("MotorolaFromSequential(%d) = %d, want %d", tt.seq, got, tt.want)
		}
		if back := schema.MotorolaFromSequential(schema.MotorolaFromSequential(tt.seq)); back != tt.seq {
			t.Errorf("MotorolaFromSequential is not an involution at %d: %d", tt.seq, back)
		}
	}
}
