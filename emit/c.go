// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package emit

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/MultiTechSystems/can-signal-schema/codec"
	"github.com/MultiTechSystems/can-signal-schema/layout"
	"github.com/MultiTechSystems/can-signal-schema/schema"
)

var cTypes = map[schema.PhysicalType]string{
	schema.TypeU8:    "uint8_t",
	schema.TypeS8:    "int8_t",
	schema.TypeU16:   "uint16_t",
	schema.TypeS16:   "int16_t",
	schema.TypeU32:   "uint32_t",
	schema.TypeS32:   "int32_t",
	schema.TypeFloat: "float",
}

var cFuncs = template.FuncMap{"upper": strings.ToUpper}

var cHeaderTemplate = template.Must(template.New("h").Funcs(cFuncs).Parse(`/* Generated by cansig from schema {{.Schema}}{{if .Version}} v{{.Version}}{{end}}. Do not edit. */
#ifndef {{.Guard}}
#define {{.Guard}}

#include <stdint.h>
#include "esp_err.h"
#include "can.h"

{{range .Messages}}#define {{upper .Type}}_ID 0x{{printf "%X" .ID}}
{{end}}
{{- range .Messages}}
/* {{.Name}} (0x{{printf "%X" .ID}}){{if .Description}}: {{.Description}}{{end}} */
typedef struct
{
{{- range .Fields}}
    {{.Type}} {{.Name}};{{if .Comment}} /* {{.Comment}} */{{end}}
{{- end}}
{{- if not .Fields}}
    uint8_t byUnused;
{{- end}}
} {{.Type}}_t;

esp_err_t {{.Type}}(CAN_frame_t stFrame, {{.Type}}_t *pstMsg);
void {{.Type}}_Encode(const {{.Type}}_t *pstMsg, CAN_frame_t *pstFrame);
{{end}}
#endif
`))

var cSourceTemplate = template.Must(template.New("c").Funcs(cFuncs).Parse(`/* Generated by cansig from schema {{.Schema}}{{if .Version}} v{{.Version}}{{end}}. Do not edit. */
#include <string.h>
{{- if .NeedMath}}
#include <math.h>
{{- end}}
#include "{{.Base}}.h"
{{range .Messages}}
/*
 * {{.Type}}
 * Message: {{.Name}} (0x{{printf "%X" .ID}})
{{- if .Description}}
 * Description: {{.Description}}
{{- end}}
 * Returns: ESP_OK if successful, ESP_ERR_INVALID_SIZE for a short frame,
 *          ESP_ERR_INVALID_ARG for another identifier.
 */
esp_err_t {{.Type}}(CAN_frame_t stFrame, {{.Type}}_t *pstMsg)
{
    if (stFrame.byDLC != 8)
    {
        return ESP_ERR_INVALID_SIZE;
    }
    if (stFrame.dwID != {{upper .Type}}_ID)
    {
        return ESP_ERR_INVALID_ARG;
    }
{{- range .Decode}}
    {{.}}
{{- end}}
{{- if .Mux}}
    switch (sel)
    {
{{- range .Branches}}
    case {{.Value}}u:
{{- range .Decode}}
        {{.}}
{{- end}}
        break;
{{- end}}
    default:
        break;
    }
{{- end}}
    return ESP_OK;
}

void {{.Type}}_Encode(const {{.Type}}_t *pstMsg, CAN_frame_t *pstFrame)
{
{{- if .NeedRaw}}
    uint32_t raw;
{{- end}}
    pstFrame->dwID = {{upper .Type}}_ID;
    pstFrame->byDLC = 8;
    memset(pstFrame->abData, 0, 8);
{{- range .Encode}}
    {{.}}
{{- end}}
{{- if .Mux}}
    switch (sel)
    {
{{- range .Branches}}
    case {{.Value}}u:
{{- range .Encode}}
        {{.}}
{{- end}}
        break;
{{- end}}
    default:
        break;
    }
{{- end}}
}
{{end}}`))

type cFile struct {
	Schema   string
	Version  int
	Base     string
	Guard    string
	NeedMath bool
	Messages []*srcMessage
}

// C renders plan as a header and source pair for firmware built against a
// CAN_frame_t {dwID, byDLC, abData[8]} driver and esp_err_t results. Decode
// functions reject frames whose DLC is not 8 or whose identifier differs.
func C(plan *codec.Plan, base string) (header, source []byte, err error) {
	msgs, err := buildMessages(plan, cLang{})
	if err != nil {
		return nil, nil, err
	}
	file := cFile{
		Schema:   plan.Schema,
		Version:  plan.Version,
		Base:     base,
		Guard:    strings.ToUpper(Identifier(base, "CAN_DECODE")) + "_H",
		Messages: msgs,
	}
	for _, m := range msgs {
		file.NeedMath = file.NeedMath || m.NeedMath
	}

	var h, c bytes.Buffer
	if err := cHeaderTemplate.Execute(&h, file); err != nil {
		return nil, nil, fmt.Errorf("failed to render C header: %w", err)
	}
	if err := cSourceTemplate.Execute(&c, file); err != nil {
		return nil, nil, fmt.Errorf("failed to render C source: %w", err)
	}
	return h.Bytes(), c.Bytes(), nil
}

// cLang writes C statements over stFrame.abData and pstFrame->abData.
type cLang struct{}

func (cLang) typeName(t schema.PhysicalType) string { return cTypes[t] }

func (cLang) messageName(mp *codec.MessagePlan) string { return MessageIdentifier(mp) }

func (cLang) constName(typeName string) string { return strings.ToUpper(typeName) + "_ID" }

func (cLang) fieldName(name, fallback string) string { return Identifier(name, fallback) }

func (cLang) raw(chunks []layout.Chunk) string {
	return rawExpr("stFrame.abData", chunks, func(s string) string { return "((uint32_t)" + s + ")" })
}

func (l cLang) decode(op *codec.DecodeOp, field, raw string) string {
	v := raw
	if op.SignExtend {
		if n := 32 - op.Length; n > 0 {
			v = fmt.Sprintf("((int32_t)(%s << %d) >> %d)", raw, n, n)
		} else {
			v = fmt.Sprintf("((int32_t)%s)", raw)
		}
	}
	if op.Type.IsFloat() {
		return fmt.Sprintf("pstMsg->%s = %s;", field, scaled("(float)"+v, op.Gain, op.Offset, "f"))
	}
	return fmt.Sprintf("pstMsg->%s = (%s)%s;", field, l.typeName(op.Type), v)
}

func (cLang) encodeValue(op *codec.EncodeOp, field string) (string, bool) {
	if op.Type.IsFloat() {
		return fmt.Sprintf("(uint32_t)(int64_t)roundf(%s)", inverse("pstMsg->"+field, op.Gain, op.Offset, "f")), true
	}
	return fmt.Sprintf("(uint32_t)pstMsg->%s", field), false
}

func (cLang) maskBits(v string, bits int) string {
	return fmt.Sprintf("(%s & 0x%Xu)", v, uint32(1)<<bits-1)
}

func (cLang) assign(dst, v string) string { return dst + " = " + v + ";" }

func (cLang) selectorAssign(v string) string { return "uint32_t sel = " + v + ";" }

func (cLang) store(c layout.Chunk, v string) string {
	part := v
	if c.ValueShift > 0 {
		part = fmt.Sprintf("(%s >> %d)", v, c.ValueShift)
	}
	if c.Width < 8 {
		part = fmt.Sprintf("(%s & 0x%Xu)", part, c.ValueMask())
	}
	if c.Shift > 0 {
		part = fmt.Sprintf("(%s << %d)", part, c.Shift)
	}
	dst := fmt.Sprintf("pstFrame->abData[%d]", c.ByteIndex)
	if c.Mask() == 0xFF {
		return fmt.Sprintf("%s = (uint8_t)%s;", dst, part)
	}
	return fmt.Sprintf("%s = (uint8_t)((%s & 0x%02Xu) | %s);", dst, dst, ^c.Mask(), part)
}

func (cLang) storeConst(c layout.Chunk, part byte) string {
	dst := fmt.Sprintf("pstFrame->abData[%d]", c.ByteIndex)
	if c.Mask() == 0xFF {
		return fmt.Sprintf("%s = 0x%02Xu;", dst, part)
	}
	return fmt.Sprintf("%s = (uint8_t)((%s & 0x%02Xu) | 0x%02Xu);", dst, dst, ^c.Mask(), part)
}

func (cLang) comment(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.ReplaceAll(s, "*/", "* /")
}
