// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

// Package capture reads recorded CAN traffic: candump log lines and
// SavvyCAN CSV exports.
package capture

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Format is a capture file layout.
type Format int

const (
	FormatUnknown Format = iota
	// FormatCandump is "(timestamp) iface ID#PAYLOAD".
	FormatCandump
	// FormatCSV is "Time Stamp,ID,Extended,Dir,Bus,LEN,D1..D8".
	FormatCSV
)

func (f Format) String() string {
	switch f {
	case FormatCandump:
		return "candump"
	case FormatCSV:
		return "csv"
	}
	return "unknown"
}

// Frame is one captured frame.
type Frame struct {
	// Timestamp is in seconds; zero when the line carried none.
	Timestamp float64
	ID        uint32
	Extended  bool
	Data      []byte
}

// ParseCandumpLine parses "(1436509052.249713) vcan0 123#DEADBEEF". The
// timestamp and interface are optional.
func ParseCandumpLine(line string) (Frame, error) {
	var f Frame

	hash := strings.Index(line, "#")
	if hash == -1 {
		return f, fmt.Errorf("no # separator found")
	}
	idPart := strings.TrimSpace(line[:hash])

	if start, end := strings.Index(idPart, "("), strings.LastIndex(idPart, ")"); start != -1 && end > start {
		ts, err := strconv.ParseFloat(idPart[start+1:end], 64)
		if err != nil {
			return f, fmt.Errorf("invalid timestamp: %w", err)
		}
		f.Timestamp = ts
		idPart = strings.TrimSpace(idPart[end+1:])
	}
	if i := strings.LastIndex(idPart, " "); i != -1 {
		idPart = idPart[i+1:]
	}

	id, err := strconv.ParseUint(idPart, 16, 32)
	if err != nil {
		return f, fmt.Errorf("invalid id %q: %w", idPart, err)
	}
	f.ID = uint32(id)
	// candump writes 3 hex digits for standard frames and 8 for extended.
	f.Extended = len(idPart) > 3

	payload := strings.ReplaceAll(strings.TrimSpace(line[hash+1:]), " ", "")
	if f.Data, err = hex.DecodeString(payload); err != nil {
		return f, fmt.Errorf("invalid payload: %w", err)
	}
	return f, nil
}

// ParseCSVLine parses one SavvyCAN CSV row. Timestamps are microseconds.
func ParseCSVLine(line string) (Frame, error) {
	var f Frame

	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return f, fmt.Errorf("not enough fields: got %d, need at least 6", len(fields))
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	if fields[0] != "" {
		us, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return f, fmt.Errorf("invalid timestamp: %w", err)
		}
		f.Timestamp = us / 1e6
	}

	id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(fields[1]), "0x"), 16, 32)
	if err != nil {
		return f, fmt.Errorf("invalid id %q: %w", fields[1], err)
	}
	f.ID = uint32(id)
	f.Extended = strings.EqualFold(fields[2], "true")

	length, err := strconv.Atoi(fields[5])
	if err != nil || length < 0 || length > 8 {
		return f, fmt.Errorf("invalid length %q", fields[5])
	}
	if len(fields) < 6+length {
		return f, fmt.Errorf("not enough data fields: got %d, need %d", len(fields)-6, length)
	}
	f.Data = make([]byte, length)
	for i := 0; i < length; i++ {
		b, err := strconv.ParseUint(fields[6+i], 16, 8)
		if err != nil {
			return f, fmt.Errorf("invalid data byte D%d %q", i+1, fields[6+i])
		}
		f.Data[i] = byte(b)
	}
	return f, nil
}

// Reader yields frames from a capture stream. The format is detected from
// the first non-blank line and then held for the rest of the stream.
type Reader struct {
	scanner *bufio.Scanner
	format  Format
	line    int
	skipped int
}

// NewReader reads frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Format returns the detected format, FormatUnknown before the first frame.
func (r *Reader) Format() Format { return r.format }

// Skipped returns the number of lines that could not be parsed.
func (r *Reader) Skipped() int { return r.skipped }

// Next returns the next frame, or io.EOF at the end of the stream. Lines
// that do not parse are skipped and counted.
func (r *Reader) Next() (Frame, error) {
	for r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		r.line++
		if line == "" {
			continue
		}

		if r.format == FormatUnknown {
			r.format = detect(line)
			if r.format == FormatCSV && isCSVHeader(line) {
				continue
			}
		}

		var (
			f   Frame
			err error
		)
		switch r.format {
		case FormatCSV:
			f, err = ParseCSVLine(line)
		default:
			f, err = ParseCandumpLine(line)
		}
		if err != nil {
			r.skipped++
			continue
		}
		return f, nil
	}
	if err := r.scanner.Err(); err != nil {
		return Frame{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	return Frame{}, io.EOF
}

func detect(line string) Format {
	if isCSVHeader(line) || strings.Contains(line, ",") && !strings.Contains(line, "#") {
		return FormatCSV
	}
	return FormatCandump
}

func isCSVHeader(line string) bool {
	return strings.Contains(line, "Time Stamp") || strings.Contains(line, "ID,Extended")
}
