// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package codec

import (
	"errors"
	"fmt"
)

var (
	ErrFrameLength    = errors.New("codec: frame is not 8 bytes")
	ErrFrameID        = errors.New("codec: frame ID does not match message")
	ErrUnknownMessage = errors.New("codec: no message for frame")
)

// Decode reads the message's signals from f into values. The selector and
// unconditioned signals are always decoded; multiplexed signals only when the
// decoded selector matches their dispatch value. Entries for inactive
// signals are left as they were. Constants are never read.
func (p *MessagePlan) Decode(f Frame, values map[string]Value) {
	var selector uint64
	haveSelector := false

	for i := range p.DecodeOps {
		op := &p.DecodeOps[i]
		if op.Muxed {
			continue
		}
		raw := ExtractRaw(f, op.Chunks)
		values[op.Target] = op.value(raw)
		if op.Selector {
			selector = raw
			haveSelector = true
		}
	}
	if !haveSelector {
		return
	}

	for i := range p.DecodeOps {
		op := &p.DecodeOps[i]
		if !op.Muxed || op.DispatchValue != selector {
			continue
		}
		values[op.Target] = op.value(ExtractRaw(f, op.Chunks))
	}
}

func (op *DecodeOp) value(raw uint64) Value {
	return Value{
		Type:     op.Type,
		Raw:      raw,
		Physical: Physical(raw, op.Length, op.SignExtend, op.Gain, op.Offset),
		Unit:     op.Unit,
	}
}

// Encode writes the message into f. Constants are always written. Signals
// absent from values are not written. Multiplexed signals are written only
// for the branch chosen by the selector's own value in values; with no
// selector value no branch is written.
func (p *MessagePlan) Encode(values map[string]float64, f *Frame) {
	var selector uint64
	haveSelector := false

	for i := range p.EncodeOps {
		op := &p.EncodeOps[i]
		if op.Constant {
			InsertRaw(f, op.Chunks, op.Length, op.Literal)
			continue
		}
		if op.Muxed {
			continue
		}
		v, ok := values[op.Source]
		if !ok {
			continue
		}
		raw := RawFromPhysical(v, op.Length, op.Gain, op.Offset)
		InsertRaw(f, op.Chunks, op.Length, raw)
		if op.Selector {
			selector = raw
			haveSelector = true
		}
	}
	if !haveSelector {
		return
	}

	for i := range p.EncodeOps {
		op := &p.EncodeOps[i]
		if !op.Muxed || op.DispatchValue != selector {
			continue
		}
		v, ok := values[op.Source]
		if !ok {
			continue
		}
		InsertRaw(f, op.Chunks, op.Length, RawFromPhysical(v, op.Length, op.Gain, op.Offset))
	}
}

// Branch returns the mux branch for a selector value.
func (p *MessagePlan) Branch(value uint64) (MuxBranch, bool) {
	for _, b := range p.MuxTable {
		if b.Value == value {
			return b, true
		}
	}
	return MuxBranch{}, false
}

// DecodeFrame checks the frame against the message's DLC and identifier
// and decodes it into a fresh map. A standard and an extended frame with the
// same numeric identifier are different frames.
func (p *MessagePlan) DecodeFrame(id uint32, extended bool, data []byte) (map[string]Value, error) {
	if id != p.ID || extended != p.Extended {
		return nil, fmt.Errorf("%w: %s is not %s (%s)", ErrFrameID, frameID(id, extended), p.Name, frameID(p.ID, p.Extended))
	}
	f, err := FrameFromBytes(data)
	if err != nil {
		return nil, err
	}
	values := make(map[string]Value, len(p.DecodeOps))
	p.Decode(f, values)
	return values, nil
}

// Message returns the plan of the message with the given identifier and
// frame format.
func (pl *Plan) Message(id uint32, extended bool) (*MessagePlan, bool) {
	for i := range pl.Messages {
		if pl.Messages[i].ID == id && pl.Messages[i].Extended == extended {
			return &pl.Messages[i], true
		}
	}
	return nil, false
}

// MessageByName returns the plan of the named message.
func (pl *Plan) MessageByName(name string) (*MessagePlan, bool) {
	for i := range pl.Messages {
		if pl.Messages[i].Name == name {
			return &pl.Messages[i], true
		}
	}
	return nil, false
}

// DecodeFrame finds the message for id and decodes data with it.
func (pl *Plan) DecodeFrame(id uint32, extended bool, data []byte) (*MessagePlan, map[string]Value, error) {
	mp, ok := pl.Message(id, extended)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownMessage, frameID(id, extended))
	}
	values, err := mp.DecodeFrame(id, extended, data)
	if err != nil {
		return mp, nil, err
	}
	return mp, values, nil
}

// EncodeFrame encodes the named message from physical values into a zeroed
// frame and returns its identifier.
func (pl *Plan) EncodeFrame(name string, values map[string]float64) (uint32, Frame, error) {
	var f Frame
	mp, ok := pl.MessageByName(name)
	if !ok {
		return 0, f, fmt.Errorf("%w: %q", ErrUnknownMessage, name)
	}
	mp.Encode(values, &f)
	return mp.ID, f, nil
}

func frameID(id uint32, extended bool) string {
	if extended {
		return fmt.Sprintf("0x%X (extended)", id)
	}
	return fmt.Sprintf("0x%X", id)
}
