// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package emit

import (
	"bytes"
	"fmt"
	"go/format"
	"strings"
	"text/template"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

var goTypes = map[schema.PhysicalType]string{
	schema.TypeU8:    "uint8",
	schema.TypeS8:    "int8",
	schema.TypeU16:   "uint16",
	schema.TypeS16:   "int16",
	schema.TypeU32:   "uint32",
	schema.TypeS32:   "int32",
	schema.TypeFloat: "float64",
}

var goTemplate = template.Must(template.New("go").Parse(`// Code generated by cansig from schema {{.Schema}}{{if .Version}} v{{.Version}}{{end}}. DO NOT EDIT.

package {{.Package}}

import (
	"errors"
{{- if .NeedMath}}
	"math"
{{- end}}
)

var (
	ErrFrameLength = errors.New("{{.Package}}: frame is not 8 bytes")
	ErrFrameID     = errors.New("{{.Package}}: frame ID does not match message")
)
{{range .Messages}}
// {{.Const}} is the CAN identifier of {{.Type}}.
const {{.Const}} = 0x{{printf "%X" .ID}}

// {{.Type}} {{if .Description}}{{.Description}}{{else}}is message 0x{{printf "%X" .ID}}.{{end}}
type {{.Type}} struct {
{{- range .Fields}}
	{{.Name}} {{.Type}}{{if .Comment}} // {{.Comment}}{{end}}
{{- end}}
}

// Decode{{.Type}} decodes an 8-byte {{.Type}} frame into m.
{{- if .Mux}} Signals of inactive mux branches keep their previous values.{{end}}
func Decode{{.Type}}(id uint32, data []byte, m *{{.Type}}) error {
	if len(data) != 8 {
		return ErrFrameLength
	}
	if id != {{.Const}} {
		return ErrFrameID
	}
{{- range .Decode}}
	{{.}}
{{- end}}
{{- if .Mux}}
	switch sel {
{{- range .Branches}}
	case {{.Value}}:
{{- range .Decode}}
		{{.}}
{{- end}}
{{- end}}
	default:
	}
{{- end}}
	return nil
}

// Encode{{.Type}} packs m into a frame.
func Encode{{.Type}}(m *{{.Type}}) [8]byte {
	var f [8]byte
{{- if .NeedRaw}}
	var raw uint32
{{- end}}
{{- range .Encode}}
	{{.}}
{{- end}}
{{- if .Mux}}
	switch sel {
{{- range .Branches}}
	case {{.Value}}:
{{- range .Encode}}
		{{.}}
{{- end}}
{{- end}}
	default:
	}
{{- end}}
	return f
}
{{end}}`))

type goFile struct {
	Schema   string
	Version  int
	Package  string
	NeedMath bool
	Messages []*srcMessage
}

// Go renders plan as a Go source file in package pkg, formatted with
// go/format.
func Go(plan *codec.Plan, pkg string) ([]byte, error) {
	file := goFile{Schema: plan.Schema, Version: plan.Version, Package: pkg}
	lang := goLang{}

	msgs, err := buildMessages(plan, lang)
	if err != nil {
		return nil, err
	}
	file.Messages = msgs
	for _, m := range msgs {
		file.NeedMath = file.NeedMath || m.NeedMath
	}

	var buf bytes.Buffer
	if err := goTemplate.Execute(&buf, file); err != nil {
		return nil, fmt.Errorf("failed to render Go source: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("generated Go source does not parse: %w", err)
	}
	return src, nil
}

// goLang writes Go expressions over data []byte and f [8]byte.
type goLang struct{}

func (goLang) typeName(t schema.PhysicalType) string { return goTypes[t] }

func (goLang) messageName(mp *codec.MessagePlan) string { return exported(MessageIdentifier(mp)) }

func (goLang) constName(typeName string) string { return typeName + "ID" }

func (goLang) fieldName(name, fallback string) string { return exported(Identifier(name, fallback)) }

func (goLang) raw(chunks []layout.Chunk) string {
	return rawExpr("data", chunks, func(s string) string { return "uint32(" + s + ")" })
}

func (l goLang) decode(op *codec.DecodeOp, field, raw string) string {
	v := raw
	if op.SignExtend {
		if n := 32 - op.Length; n > 0 {
			v = fmt.Sprintf("int32(%s<<%d) >> %d", raw, n, n)
		} else {
			v = fmt.Sprintf("int32(%s)", raw)
		}
	}
	if op.Type.IsFloat() {
		return fmt.Sprintf("m.%s = %s", field, scaled("float64("+v+")", op.Gain, op.Offset, ""))
	}
	return fmt.Sprintf("m.%s = %s(%s)", field, l.typeName(op.Type), v)
}

func (goLang) encodeValue(op *codec.EncodeOp, field string) (string, bool) {
	if op.Type.IsFloat() {
		return fmt.Sprintf("uint32(int64(math.Round(%s)))", inverse("m."+field, op.Gain, op.Offset, "")), true
	}
	return fmt.Sprintf("uint32(m.%s)", field), false
}

func (goLang) maskBits(v string, bits int) string {
	return fmt.Sprintf("%s & 0x%X", v, uint32(1)<<bits-1)
}

func (goLang) assign(dst, v string) string { return dst + " = " + v }

func (goLang) selectorAssign(v string) string { return "sel := " + v }

func (goLang) store(c layout.Chunk, v string) string {
	part := v
	if c.ValueShift > 0 {
		part = fmt.Sprintf("%s>>%d", v, c.ValueShift)
	}
	part = "byte(" + part + ")"
	if c.Width < 8 {
		part = fmt.Sprintf("%s&0x%X", part, c.ValueMask())
	}
	if c.Shift > 0 {
		part = fmt.Sprintf("%s<<%d", part, c.Shift)
	}
	if c.Mask() == 0xFF {
		return fmt.Sprintf("f[%d] = %s", c.ByteIndex, part)
	}
	return fmt.Sprintf("f[%d] = f[%d]&^0x%02X | %s", c.ByteIndex, c.ByteIndex, c.Mask(), part)
}

func (goLang) storeConst(c layout.Chunk, part byte) string {
	if c.Mask() == 0xFF {
		return fmt.Sprintf("f[%d] = 0x%02X", c.ByteIndex, part)
	}
	return fmt.Sprintf("f[%d] = f[%d]&^0x%02X | 0x%02X", c.ByteIndex, c.ByteIndex, c.Mask(), part)
}

func (goLang) comment(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
