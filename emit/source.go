// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package emit

import (
	"fmt"
	"strings"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

// language renders the statements of one target. Statements read from the
// frame in decode functions and write to it in encode functions; the selector
// raw value is held in "sel" and every other encoded value in "raw".
type language interface {
	typeName(t schema.PhysicalType) string
	messageName(mp *codec.MessagePlan) string
	constName(typeName string) string
	fieldName(name, fallback string) string

	raw(chunks []layout.Chunk) string
	decode(op *codec.DecodeOp, field, raw string) string
	// encodeValue returns the raw expression of a field and whether it
	// needs rounding support.
	encodeValue(op *codec.EncodeOp, field string) (string, bool)
	// maskBits keeps the low bits of an encoded value.
	maskBits(v string, bits int) string
	assign(dst, v string) string
	selectorAssign(v string) string
	store(c layout.Chunk, v string) string
	storeConst(c layout.Chunk, part byte) string
	comment(s string) string
}

type srcField struct {
	Name    string
	Type    string
	Comment string
}

type srcBranch struct {
	Value  uint64
	Decode []string
	Encode []string
}

type srcMessage struct {
	Type        string
	Const       string
	ID          uint32
	Extended    bool
	Name        string
	Description string
	Fields      []srcField
	Decode      []string
	Encode      []string
	Mux         bool
	Branches    []srcBranch
	NeedRaw     bool
	NeedMath    bool
}

func buildMessages(plan *codec.Plan, lang language) ([]*srcMessage, error) {
	types := make(map[string]string)
	out := make([]*srcMessage, 0, len(plan.Messages))

	for i := range plan.Messages {
		mp := &plan.Messages[i]
		m := &srcMessage{
			Type:        lang.messageName(mp),
			ID:          mp.ID,
			Extended:    mp.Extended,
			Name:        lang.comment(mp.Name),
			Description: lang.comment(mp.Description),
			Mux:         mp.Multiplexed(),
		}
		m.Const = lang.constName(m.Type)
		if prev, ok := types[m.Type]; ok {
			return nil, fmt.Errorf("messages %q and %q both generate %s", prev, mp.Name, m.Type)
		}
		types[m.Type] = mp.Name

		fields, err := buildFields(m, mp, lang)
		if err != nil {
			return nil, err
		}
		buildDecode(m, mp, lang, fields)
		buildEncode(m, mp, lang, fields)
		out = append(out, m)
	}
	return out, nil
}

// buildFields declares one field per decoded signal and returns the field
// name of each signal.
func buildFields(m *srcMessage, mp *codec.MessagePlan, lang language) (map[string]string, error) {
	fields := make(map[string]string, len(mp.DecodeOps))
	owners := make(map[string]string, len(mp.DecodeOps))

	for j := range mp.DecodeOps {
		op := &mp.DecodeOps[j]
		name := lang.fieldName(op.Target, fmt.Sprintf("Signal%d", j))
		if prev, ok := owners[name]; ok {
			return nil, fmt.Errorf("%s: signals %q and %q both generate field %s", mp.Name, prev, op.Target, name)
		}
		owners[name] = op.Target
		fields[op.Target] = name

		var notes []string
		switch {
		case op.Selector:
			notes = append(notes, "mux selector")
		case op.Muxed:
			notes = append(notes, fmt.Sprintf("mux %d", op.DispatchValue))
		}
		if op.Unit != "" {
			notes = append(notes, op.Unit)
		}
		m.Fields = append(m.Fields, srcField{
			Name:    name,
			Type:    lang.typeName(op.Type),
			Comment: lang.comment(strings.Join(notes, ", ")),
		})
	}
	return fields, nil
}

func buildDecode(m *srcMessage, mp *codec.MessagePlan, lang language, fields map[string]string) {
	selBits := 0
	for j := range mp.DecodeOps {
		op := &mp.DecodeOps[j]
		if op.Muxed {
			continue
		}
		raw := lang.raw(op.Chunks)
		if op.Selector {
			selBits = op.Length
			m.Decode = append(m.Decode, lang.selectorAssign(raw))
			raw = "sel"
		}
		m.Decode = append(m.Decode, lang.decode(op, fields[op.Target], raw))
	}
	if !m.Mux {
		return
	}

	for _, mb := range mp.MuxTable {
		if selBits < 64 && mb.Value >= 1<<selBits {
			// The selector can never hold this value.
			continue
		}
		b := srcBranch{Value: mb.Value}
		for j := range mp.DecodeOps {
			op := &mp.DecodeOps[j]
			if op.Muxed && op.DispatchValue == mb.Value {
				b.Decode = append(b.Decode, lang.decode(op, fields[op.Target], lang.raw(op.Chunks)))
			}
		}
		m.Branches = append(m.Branches, b)
	}
}

func buildEncode(m *srcMessage, mp *codec.MessagePlan, lang language, fields map[string]string) {
	branchOf := make(map[uint64]int, len(m.Branches))
	for i, b := range m.Branches {
		branchOf[b.Value] = i
	}

	for j := range mp.EncodeOps {
		op := &mp.EncodeOps[j]
		if len(op.Chunks) == 0 {
			continue
		}

		if op.Constant {
			for _, c := range op.Chunks {
				part := byte((op.Literal>>c.ValueShift)&c.ValueMask()) << c.Shift
				m.Encode = append(m.Encode, lang.storeConst(c, part))
			}
			continue
		}

		v, needMath := lang.encodeValue(op, fields[op.Source])

		var stmts []string
		dst := "raw"
		if op.Selector {
			// Branches dispatch on the selector bits the frame keeps.
			dst = "sel"
			if op.Length < 32 {
				v = lang.maskBits(v, op.Length)
			}
			stmts = append(stmts, lang.selectorAssign(v))
		} else {
			stmts = append(stmts, lang.assign(dst, v))
		}
		for _, c := range op.Chunks {
			stmts = append(stmts, lang.store(c, dst))
		}

		if !op.Muxed {
			m.Encode = append(m.Encode, stmts...)
		} else if i, ok := branchOf[op.DispatchValue]; ok {
			m.Branches[i].Encode = append(m.Branches[i].Encode, stmts...)
		} else {
			continue
		}
		m.NeedMath = m.NeedMath || needMath
		m.NeedRaw = m.NeedRaw || !op.Selector
	}
}
