// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package codec turns a validated schema into per-message decode and encode
// operation lists, and runs them against frames.
//
// A Plan is the intermediate form an emitter templates into C, Go or any
// other target: every operation carries the byte-aligned chunks of its
// signal, so extraction and insertion are one shift and one mask per chunk.
package codec

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
	"github.com/MultiTechSystems/can-signal-schema/validate"
)

// DecodeOp reads one signal out of a frame.
type DecodeOp struct {
	Target     string              `cbor:"target"`
	StartBit   int                 `cbor:"start"`
	Order      schema.ByteOrder    `cbor:"order"`
	Chunks     []layout.Chunk      `cbor:"chunks"`
	Length     int                 `cbor:"length"`
	SignExtend bool                `cbor:"sign_extend"`
	Gain       float64             `cbor:"gain"`
	Offset     float64             `cbor:"offset"`
	Type       schema.PhysicalType `cbor:"type"`
	Unit       string              `cbor:"unit,omitempty"`
	Selector   bool                `cbor:"selector,omitempty"`
	// Muxed ops apply only when the selector equals DispatchValue.
	Muxed         bool   `cbor:"muxed,omitempty"`
	DispatchValue uint64 `cbor:"dispatch,omitempty"`
}

// EncodeOp writes one signal, or one constant, into a frame.
type EncodeOp struct {
	// Source is the signal name; for constants it is the literal's label.
	Source   string              `cbor:"source"`
	Constant bool                `cbor:"constant,omitempty"`
	Literal  uint64              `cbor:"literal,omitempty"`
	StartBit int                 `cbor:"start"`
	Order    schema.ByteOrder    `cbor:"order"`
	Chunks   []layout.Chunk      `cbor:"chunks"`
	Length   int                 `cbor:"length"`
	Signed   bool                `cbor:"signed,omitempty"`
	Gain     float64             `cbor:"gain"`
	Offset   float64             `cbor:"offset"`
	Type     schema.PhysicalType `cbor:"type"`
	Selector bool                `cbor:"selector,omitempty"`

	Muxed         bool   `cbor:"muxed,omitempty"`
	DispatchValue uint64 `cbor:"dispatch,omitempty"`
}

// MuxBranch lists the signals active for one selector value.
type MuxBranch struct {
	Value   uint64   `cbor:"value"`
	Signals []string `cbor:"signals"`
}

// MessagePlan is the generated codec of one message.
type MessagePlan struct {
	ID          uint32 `cbor:"id"`
	Extended    bool   `cbor:"extended,omitempty"`
	Name        string `cbor:"name"`
	Description string `cbor:"description,omitempty"`
	// Selector names the multiplexor signal; empty when not multiplexed.
	Selector  string             `cbor:"selector,omitempty"`
	DecodeOps []DecodeOp         `cbor:"decode"`
	EncodeOps []EncodeOp         `cbor:"encode"`
	MuxTable  []MuxBranch        `cbor:"mux,omitempty"`
	Warnings  []validate.Warning `cbor:"warnings,omitempty"`
}

// Multiplexed reports whether the message has a selector.
func (p *MessagePlan) Multiplexed() bool { return p.Selector != "" }

// Plan is the generated codec of a whole schema.
type Plan struct {
	Schema   string             `cbor:"schema"`
	Version  int                `cbor:"version"`
	Messages []MessagePlan      `cbor:"messages"`
	Warnings []validate.Warning `cbor:"warnings,omitempty"`
}

// Options controls Build.
type Options struct {
	Validate validate.Options
	// Workers bounds concurrent message planning; 0 means GOMAXPROCS.
	Workers int
	Logger  *slog.Logger
}

// Build validates s and plans every message. A *schema.SchemaError aborts
// before any message is planned, so a Plan is never partial. Messages are
// planned independently and may run in parallel; ctx is checked between
// messages.
func Build(ctx context.Context, s *schema.Schema, opts Options) (*Plan, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	res, err := validate.Validate(s, opts.Validate)
	if err != nil {
		return nil, err
	}
	logger.Debug("schema accepted",
		"schema", s.Name,
		"messages", len(res.Schema.Messages),
		"signals", res.Context.Signals(),
		"dropped", res.Context.Dropped())

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	msgs := res.Schema.Messages
	plans := make([]MessagePlan, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range msgs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = planMessage(&msgs[i])
			logger.Debug("message planned",
				"message", msgs[i].Name,
				"id", fmt.Sprintf("0x%X", msgs[i].ID),
				"decode_ops", len(plans[i].DecodeOps),
				"encode_ops", len(plans[i].EncodeOps))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	plan := &Plan{
		Schema:   s.Name,
		Version:  s.Version,
		Messages: plans,
	}

	// Validation warnings first, then resolution warnings in message order.
	plan.Warnings = append(plan.Warnings, res.Warnings...)
	for i := range plans {
		for _, w := range res.Warnings {
			if w.MessageName == plans[i].Name {
				plans[i].Warnings = append(plans[i].Warnings, w)
			}
		}
	}
	for i := range plans {
		for _, w := range plans[i].Warnings {
			if w.Kind == validate.WarnLayoutOverflow {
				plan.Warnings = append(plan.Warnings, w)
			}
		}
	}
	for _, w := range plan.Warnings {
		logger.Warn(w.Text, "kind", string(w.Kind), "message", w.MessageName, "signal", w.Signal)
	}

	return plan, nil
}

func planMessage(m *schema.Message) MessagePlan {
	p := MessagePlan{
		ID:          m.ID,
		Extended:    m.Extended,
		Name:        m.Name,
		Description: m.Description,
	}
	branches := make(map[uint64][]string)

	for i := range m.Signals {
		sig := &m.Signals[i]
		l := layout.ResolveSignal(sig)
		if l.Overflow {
			p.Warnings = append(p.Warnings, validate.Warning{
				Kind:        validate.WarnLayoutOverflow,
				MessageID:   m.ID,
				MessageName: m.Name,
				Signal:      sig.Label(),
				Text: fmt.Sprintf("start bit %d, %d bits (%s) leaves the frame; %d bits kept",
					sig.StartBit, sig.Length, sig.ByteOrder, l.Covered),
			})
		}

		switch sig.Role.Kind {
		case schema.RoleConstant:
			p.EncodeOps = append(p.EncodeOps, EncodeOp{
				Source:   sig.Label(),
				Constant: true,
				Literal:  sig.Role.Value & lengthMask(sig.Length),
				StartBit: sig.StartBit,
				Order:    sig.ByteOrder,
				Chunks:   l.Chunks,
				Length:   sig.Length,
				Gain:     1,
				Type:     schema.InferType(sig.Length, false, 1, 0),
			})
			continue

		case schema.RoleSelector:
			p.Selector = sig.Name

		case schema.RoleMuxed:
			branches[sig.Role.Value] = append(branches[sig.Role.Value], sig.Name)

		case schema.RolePlain:
		}

		muxed := sig.Role.Kind == schema.RoleMuxed
		selector := sig.Role.Kind == schema.RoleSelector
		p.DecodeOps = append(p.DecodeOps, DecodeOp{
			Target:        sig.Name,
			StartBit:      sig.StartBit,
			Order:         sig.ByteOrder,
			Chunks:        l.Chunks,
			Length:        sig.Length,
			SignExtend:    sig.Signed,
			Gain:          sig.Gain,
			Offset:        sig.Offset,
			Type:          sig.Type,
			Unit:          sig.Unit,
			Selector:      selector,
			Muxed:         muxed,
			DispatchValue: dispatchValue(sig),
		})
		p.EncodeOps = append(p.EncodeOps, EncodeOp{
			Source:        sig.Name,
			StartBit:      sig.StartBit,
			Order:         sig.ByteOrder,
			Chunks:        l.Chunks,
			Length:        sig.Length,
			Signed:        sig.Signed,
			Gain:          sig.Gain,
			Offset:        sig.Offset,
			Type:          sig.Type,
			Selector:      selector,
			Muxed:         muxed,
			DispatchValue: dispatchValue(sig),
		})
	}

	for v, names := range branches {
		p.MuxTable = append(p.MuxTable, MuxBranch{Value: v, Signals: names})
	}
	sort.Slice(p.MuxTable, func(i, j int) bool { return p.MuxTable[i].Value < p.MuxTable[j].Value })

	return p
}

func dispatchValue(sig *schema.Signal) uint64 {
	if sig.Role.Kind == schema.RoleMuxed {
		return sig.Role.Value
	}
	return 0
}
