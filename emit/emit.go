// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package emit renders a codec.Plan as source text or as the compact binary
// signal table. Every expression it writes is derived from the plan's chunk
// lists; nothing here re-resolves a layout.
package emit

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/layout"
)

// Target selects the artifact kind.
type Target string

const (
	TargetGo     Target = "go"
	TargetC      Target = "c"
	TargetBinary Target = "binary"
)

// ParseTarget accepts a target name from configuration or flags.
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetGo, TargetC, TargetBinary:
		return t, nil
	case "golang":
		return TargetGo, nil
	case "bin":
		return TargetBinary, nil
	}
	return "", fmt.Errorf("unknown target %q (want go, c or binary)", s)
}

// Artifact is one generated file.
type Artifact struct {
	Name string
	Data []byte
}

// Options controls generation.
type Options struct {
	// Package is the Go package name, or the C file basename.
	Package string
}

// Generate renders plan for target.
func Generate(plan *codec.Plan, target Target, opts Options) ([]Artifact, error) {
	switch target {
	case TargetGo:
		pkg := opts.Package
		if pkg == "" {
			pkg = "candecode"
		}
		src, err := Go(plan, pkg)
		if err != nil {
			return nil, err
		}
		return []Artifact{{Name: pkg + ".go", Data: src}}, nil

	case TargetC:
		base := opts.Package
		if base == "" {
			base = "canDecodeAuto"
		}
		h, c, err := C(plan, base)
		if err != nil {
			return nil, err
		}
		return []Artifact{{Name: base + ".h", Data: h}, {Name: base + ".c", Data: c}}, nil

	case TargetBinary:
		data, err := Binary(plan)
		if err != nil {
			return nil, err
		}
		name := plan.Schema
		if name == "" {
			name = "schema"
		}
		return []Artifact{{Name: name + ".bin", Data: data}}, nil
	}
	return nil, fmt.Errorf("unknown target %q", target)
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Identifier strips everything but letters, digits and underscores from
// name. An empty result falls back to fallback.
func Identifier(name, fallback string) string {
	id := nonIdent.ReplaceAllString(name, "")
	if id == "" {
		id = fallback
	}
	if id != "" && unicode.IsDigit(rune(id[0])) {
		id = "_" + id
	}
	return id
}

// MessageIdentifier names a message, falling back to Msg_<ID>.
func MessageIdentifier(mp *codec.MessagePlan) string {
	return Identifier(mp.Name, fmt.Sprintf("Msg_%X", mp.ID))
}

// exported turns an identifier into an exported Go name.
func exported(id string) string {
	id = strings.TrimLeft(id, "_")
	if id == "" {
		return "X"
	}
	if unicode.IsDigit(rune(id[0])) {
		return "N" + id
	}
	return strings.ToUpper(id[:1]) + id[1:]
}

// chunkTerm renders one chunk as a byte read shifted into place. cast wraps
// the byte in the raw integer type.
func chunkTerm(frame string, c layout.Chunk, cast func(string) string) string {
	expr := fmt.Sprintf("%s[%d]", frame, c.ByteIndex)
	if c.Shift > 0 {
		expr = fmt.Sprintf("(%s >> %d)", expr, c.Shift)
	}
	if c.Shift+c.Width < 8 {
		expr = fmt.Sprintf("(%s & 0x%X)", expr, c.ValueMask())
	}
	expr = cast(expr)
	if c.ValueShift > 0 {
		expr = fmt.Sprintf("(%s << %d)", expr, c.ValueShift)
	}
	return expr
}

// rawExpr ORs the chunk terms together, most significant first.
func rawExpr(frame string, chunks []layout.Chunk, cast func(string) string) string {
	if len(chunks) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(chunks))
	for _, c := range (layout.Layout{Chunks: chunks}).MostSignificantFirst() {
		parts = append(parts, chunkTerm(frame, c, cast))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " | ") + ")"
}

// floatLit formats a float so it always parses as a floating literal.
func floatLit(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// scaled appends "* gain + offset" to expr, skipping identity terms.
func scaled(expr string, gain, offset float64, suffix string) string {
	if gain != 1.0 {
		expr = fmt.Sprintf("%s * %s%s", expr, floatLit(gain), suffix)
	}
	switch {
	case offset > 0:
		expr = fmt.Sprintf("%s + %s%s", expr, floatLit(offset), suffix)
	case offset < 0:
		expr = fmt.Sprintf("%s - %s%s", expr, floatLit(-offset), suffix)
	}
	return expr
}

// inverse renders (value - offset) / gain.
func inverse(value string, gain, offset float64, suffix string) string {
	expr := value
	switch {
	case offset > 0:
		expr = fmt.Sprintf("(%s - %s%s)", expr, floatLit(offset), suffix)
	case offset < 0:
		expr = fmt.Sprintf("(%s + %s%s)", expr, floatLit(-offset), suffix)
	}
	if gain != 1.0 {
		expr = fmt.Sprintf("%s / %s%s", expr, floatLit(gain), suffix)
	}
	return expr
}
