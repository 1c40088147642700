// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Binary signal table constants
const (
	BinaryVersion1 = 0x01

	binaryHeaderSize  = 2
	binaryMessageSize = 5
	binarySignalSize  = 16

	binaryExtendedFlag = 1 << 31
)

// Signal flag bits for binary format
const (
	BinFlagSigned    = 0x01
	BinFlagBigEndian = 0x02
	binRoleShift     = 2
	binRoleMask      = 0x0C
)

// EncodeBinarySchema encodes a schema to the compact signal table read by
// firmware-side interpreters. Names, units and descriptions are not carried;
// gain and offset are narrowed to float32.
//
// Format v1: header(2) + per message: id(4) + signal_count(1) + signals(16*n)
// Header: version(1) + message_count(1)
// Signal: start(1) + length(1) + flags(1) + reserved(1) + role_value(4) +
// gain(4) + offset(4), multi-byte fields little-endian
func EncodeBinarySchema(s *Schema) ([]byte, error) {
	if len(s.Messages) > 255 {
		return nil, fmt.Errorf("too many messages for binary schema: %d (max 255)", len(s.Messages))
	}

	size := binaryHeaderSize
	for _, m := range s.Messages {
		if len(m.Signals) > 255 {
			return nil, fmt.Errorf("too many signals in %s for binary schema: %d (max 255)", m.Name, len(m.Signals))
		}
		size += binaryMessageSize + binarySignalSize*len(m.Signals)
	}

	data := make([]byte, size)
	data[0] = BinaryVersion1
	data[1] = byte(len(s.Messages))

	pos := binaryHeaderSize
	for _, m := range s.Messages {
		id := m.ID
		if m.Extended {
			id |= binaryExtendedFlag
		}
		binary.LittleEndian.PutUint32(data[pos:pos+4], id)
		data[pos+4] = byte(len(m.Signals))
		pos += binaryMessageSize

		for _, sig := range m.Signals {
			if sig.Role.Value > math.MaxUint32 {
				return nil, fmt.Errorf("%s.%s: role value 0x%X does not fit binary schema", m.Name, sig.Label(), sig.Role.Value)
			}
			gain := sig.Gain
			if gain == 0 {
				gain = 1
			}
			data[pos] = byte(sig.StartBit)
			data[pos+1] = byte(sig.Length)
			data[pos+2] = signalFlags(sig)
			binary.LittleEndian.PutUint32(data[pos+4:pos+8], uint32(sig.Role.Value))
			binary.LittleEndian.PutUint32(data[pos+8:pos+12], math.Float32bits(float32(gain)))
			binary.LittleEndian.PutUint32(data[pos+12:pos+16], math.Float32bits(float32(sig.Offset)))
			pos += binarySignalSize
		}
	}

	return data, nil
}

// ParseBinarySchema parses a binary signal table into a sealed Schema.
// Messages are named msg_<id> and signals msg_<id>_<n>, so reused signals
// never collide across messages.
func ParseBinarySchema(data []byte) (*Schema, error) {
	if len(data) < binaryHeaderSize {
		return nil, fmt.Errorf("binary schema too short")
	}
	if data[0] != BinaryVersion1 {
		return nil, fmt.Errorf("unsupported binary schema version: %d", data[0])
	}

	msgCount := int(data[1])
	s := &Schema{Messages: make([]Message, 0, msgCount)}

	pos := binaryHeaderSize
	for i := 0; i < msgCount; i++ {
		if len(data) < pos+binaryMessageSize {
			return nil, fmt.Errorf("binary schema truncated in message %d header", i)
		}
		rawID := binary.LittleEndian.Uint32(data[pos : pos+4])
		sigCount := int(data[pos+4])
		pos += binaryMessageSize

		expected := pos + sigCount*binarySignalSize
		if len(data) < expected {
			return nil, fmt.Errorf("binary schema truncated: expected %d bytes, got %d", expected, len(data))
		}

		m := Message{
			ID:       rawID &^ binaryExtendedFlag,
			Extended: rawID&binaryExtendedFlag != 0,
			Signals:  make([]Signal, 0, sigCount),
		}
		m.Name = fmt.Sprintf("msg_%X", m.ID)

		for j := 0; j < sigCount; j++ {
			flags := data[pos+2]
			sig := Signal{
				StartBit: int(data[pos]),
				Length:   int(data[pos+1]),
				Signed:   flags&BinFlagSigned != 0,
				Gain:     float64(math.Float32frombits(binary.LittleEndian.Uint32(data[pos+8 : pos+12]))),
				Offset:   float64(math.Float32frombits(binary.LittleEndian.Uint32(data[pos+12 : pos+16]))),
				Role: Role{
					Kind:  RoleKind((flags & binRoleMask) >> binRoleShift),
					Value: uint64(binary.LittleEndian.Uint32(data[pos+4 : pos+8])),
				},
			}
			if flags&BinFlagBigEndian != 0 {
				sig.ByteOrder = BigEndian
			}
			if sig.Role.Kind != RoleConstant {
				sig.Name = fmt.Sprintf("%s_%d", m.Name, j)
			}
			m.Signals = append(m.Signals, sig)
			pos += binarySignalSize
		}
		s.Messages = append(s.Messages, m)
	}

	s.Seal()
	return s, nil
}

func signalFlags(sig Signal) byte {
	var flags byte
	if sig.Signed {
		flags |= BinFlagSigned
	}
	if sig.ByteOrder == BigEndian {
		flags |= BinFlagBigEndian
	}
	flags |= byte(sig.Role.Kind) << binRoleShift & binRoleMask
	return flags
}
