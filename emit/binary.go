// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package emit

import (
	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

// Binary renders plan as the compact signal table read by firmware-side
// interpreters. Reserved signals are already gone from the plan, so the table
// only carries what the generated code would touch.
func Binary(plan *codec.Plan) ([]byte, error) {
	return schema.EncodeBinarySchema(SchemaOf(plan))
}

// SchemaOf rebuilds the accepted schema a plan was generated from, without
// names of constants and with types as planned.
func SchemaOf(plan *codec.Plan) *schema.Schema {
	s := &schema.Schema{
		Name:     plan.Schema,
		Version:  plan.Version,
		Messages: make([]schema.Message, 0, len(plan.Messages)),
	}
	for i := range plan.Messages {
		mp := &plan.Messages[i]
		m := schema.Message{
			ID:          mp.ID,
			Extended:    mp.Extended,
			Name:        mp.Name,
			Description: mp.Description,
			Signals:     make([]schema.Signal, 0, len(mp.EncodeOps)),
		}
		units := make(map[string]string, len(mp.DecodeOps))
		for _, op := range mp.DecodeOps {
			units[op.Target] = op.Unit
		}

		for _, op := range mp.EncodeOps {
			sig := schema.Signal{
				StartBit:  op.StartBit,
				Length:    op.Length,
				Gain:      op.Gain,
				Offset:    op.Offset,
				Signed:    op.Signed,
				ByteOrder: op.Order,
				Type:      op.Type,
			}
			switch {
			case op.Constant:
				sig.Role = schema.Constant(op.Literal)
			case op.Selector:
				sig.Name = op.Source
				sig.Role = schema.Selector()
			case op.Muxed:
				sig.Name = op.Source
				sig.Role = schema.Muxed(op.DispatchValue)
			default:
				sig.Name = op.Source
				sig.Role = schema.Plain()
			}
			sig.Unit = units[sig.Name]
			m.Signals = append(m.Signals, sig)
		}
		s.Messages = append(s.Messages, m)
	}
	return s
}
