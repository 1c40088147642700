// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package validate checks a schema for cross-message consistency before any
// code is generated. The first hard error aborts; warnings are collected and
// returned with the accepted schema.
package validate

import (
	"fmt"
	"strings"

	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

// DefaultReservedMarkers are the case-insensitive name fragments of
// placeholder signals that are dropped before generation.
var DefaultReservedMarkers = []string{"reserved", "spare", "unused", "padding"}

// WarningKind classifies a non-fatal finding.
type WarningKind string

const (
	WarnLayoutOverflow     WarningKind = "layout_overflow"
	WarnSignednessMismatch WarningKind = "signedness_mismatch"
	WarnSignalOverlap      WarningKind = "signal_overlap"
)

// Warning is a non-fatal finding tied to one signal of one message.
type Warning struct {
	Kind        WarningKind `cbor:"kind"`
	MessageID   uint32      `cbor:"message_id"`
	MessageName string      `cbor:"message"`
	Signal      string      `cbor:"signal"`
	Text        string      `cbor:"text"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s (0x%X).%s: %s", w.Kind, w.MessageName, w.MessageID, w.Signal, w.Text)
}

// Options tunes validation.
type Options struct {
	// ReservedMarkers replaces DefaultReservedMarkers when non-nil.
	ReservedMarkers []string
}

// SignalUse records the first occurrence of a signal name.
type SignalUse struct {
	MessageName string
	Length      int
	Type        schema.PhysicalType
	Signed      bool
}

// Context accumulates what validation has seen so far. It is threaded
// explicitly through each message rather than held in package state.
type Context struct {
	messageNames map[string]bool
	signals      map[string]SignalUse
	dropped      int
}

// NewContext returns a context primed with the schema's message names.
func NewContext(s *schema.Schema) *Context {
	ctx := &Context{
		messageNames: make(map[string]bool, len(s.Messages)),
		signals:      make(map[string]SignalUse),
	}
	for _, m := range s.Messages {
		ctx.messageNames[m.Name] = true
	}
	return ctx
}

// Lookup returns the first recorded use of a signal name.
func (c *Context) Lookup(name string) (SignalUse, bool) {
	u, ok := c.signals[name]
	return u, ok
}

// Signals returns the number of distinct signal names seen.
func (c *Context) Signals() int { return len(c.signals) }

// Dropped returns the number of reserved signals filtered out.
func (c *Context) Dropped() int { return c.dropped }

// Result is an accepted schema.
type Result struct {
	// Schema is a sealed copy without reserved signals. The input schema is
	// left untouched.
	Schema   *schema.Schema
	Context  *Context
	Warnings []Warning
}

// Validate checks s and returns the accepted, filtered schema. A
// *schema.SchemaError is returned for the first fatal problem.
func Validate(s *schema.Schema, opts Options) (*Result, error) {
	markers := opts.ReservedMarkers
	if markers == nil {
		markers = DefaultReservedMarkers
	}

	out := s.Clone()
	out.Seal()
	if err := out.CheckMessages(); err != nil {
		return nil, err
	}

	ctx := NewContext(out)
	var warnings []Warning

	for i := range out.Messages {
		m := &out.Messages[i]
		kept, err := filterMessage(ctx, m, markers)
		if err != nil {
			return nil, err
		}
		m.Signals = kept
		if err := m.Check(); err != nil {
			return nil, err
		}
		w, err := checkReuse(ctx, m)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
		warnings = append(warnings, checkOverlap(m)...)
	}

	return &Result{Schema: out, Context: ctx, Warnings: warnings}, nil
}

// filterMessage rejects signals named like a message and drops reserved
// placeholders.
func filterMessage(ctx *Context, m *schema.Message, markers []string) ([]schema.Signal, error) {
	kept := make([]schema.Signal, 0, len(m.Signals))
	for _, sig := range m.Signals {
		if sig.Name != "" && ctx.messageNames[sig.Name] {
			return nil, &schema.SchemaError{
				Code:        schema.ErrNameCollision,
				Message:     fmt.Sprintf("signal %q has the same name as a message", sig.Name),
				MessageName: m.Name,
				Signal:      sig.Name,
			}
		}

		if IsReserved(sig.Name, markers) {
			ctx.dropped++
			continue
		}
		kept = append(kept, sig)
	}
	return kept, nil
}

// checkReuse compares each named signal against its first use in an earlier
// message. Length and type class must match; signedness may differ.
func checkReuse(ctx *Context, m *schema.Message) ([]Warning, error) {
	var warnings []Warning

	for _, sig := range m.Signals {
		if sig.IsConstant() || sig.Name == "" {
			continue
		}

		prev, seen := ctx.signals[sig.Name]
		if !seen {
			ctx.signals[sig.Name] = SignalUse{
				MessageName: m.Name,
				Length:      sig.Length,
				Type:        sig.Type,
				Signed:      sig.Signed,
			}
			continue
		}
		if prev.Length != sig.Length || prev.Type.Class() != sig.Type.Class() {
			return nil, &schema.SchemaError{
				Code: schema.ErrWidthMismatch,
				Message: fmt.Sprintf("signal %q is %d bits (%s) here but %d bits (%s) in %s",
					sig.Name, sig.Length, sig.Type, prev.Length, prev.Type, prev.MessageName),
				MessageName: m.Name,
				Signal:      sig.Name,
			}
		}
		if prev.Signed != sig.Signed {
			warnings = append(warnings, Warning{
				Kind:        WarnSignednessMismatch,
				MessageID:   m.ID,
				MessageName: m.Name,
				Signal:      sig.Name,
				Text:        fmt.Sprintf("signed=%v here but signed=%v in %s", sig.Signed, prev.Signed, prev.MessageName),
			})
		}
	}
	return warnings, nil
}

// IsReserved reports whether name contains any marker, ignoring case.
func IsReserved(name string, markers []string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, mk := range markers {
		if mk != "" && strings.Contains(lower, strings.ToLower(mk)) {
			return true
		}
	}
	return false
}

// checkOverlap reports signals sharing frame bits. Muxed signals in
// different branches may share bits freely.
func checkOverlap(m *schema.Message) []Warning {
	masks := make([]uint64, len(m.Signals))
	for i := range m.Signals {
		masks[i] = layout.ResolveSignal(&m.Signals[i]).Mask()
	}

	var warnings []Warning
	for i := range m.Signals {
		for j := i + 1; j < len(m.Signals); j++ {
			a, b := &m.Signals[i], &m.Signals[j]
			shared := masks[i] & masks[j]
			if shared == 0 || exclusiveBranches(a.Role, b.Role) {
				continue
			}
			warnings = append(warnings, Warning{
				Kind:        WarnSignalOverlap,
				MessageID:   m.ID,
				MessageName: m.Name,
				Signal:      b.Label(),
				Text:        fmt.Sprintf("shares frame bits %#016x with %s", shared, a.Label()),
			})
		}
	}
	return warnings
}

func exclusiveBranches(a, b schema.Role) bool {
	return a.Kind == schema.RoleMuxed && b.Kind == schema.RoleMuxed && a.Value != b.Value
}
