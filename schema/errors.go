// Copyright (c) 2024-2026 Multitech Systems, Inc.
// Author: Jason Reiss
// SPDX-License-Identifier: MIT

package schema

import "fmt"

// ErrorCode classifies a fatal schema error.
type ErrorCode int

const (
	// ErrInvalid is a structural problem inside a single message.
	ErrInvalid ErrorCode = iota + 1
	// ErrNameCollision is a signal named like a message.
	ErrNameCollision
	// ErrWidthMismatch is a signal reused with a different length or type.
	ErrWidthMismatch
	// ErrParse is a schema document that could not be read at all.
	ErrParse
)

func (c ErrorCode) String() string {
	switch c {
	case ErrInvalid:
		return "invalid"
	case ErrNameCollision:
		return "name collision"
	case ErrWidthMismatch:
		return "width mismatch"
	case ErrParse:
		return "parse"
	default:
		return fmt.Sprintf("code %d", int(c))
	}
}

// SchemaError aborts a whole generation run. No output is produced for a
// schema that yields one.
type SchemaError struct {
	Code        ErrorCode
	Message     string
	MessageName string
	Signal      string
}

func (e *SchemaError) Error() string {
	switch {
	case e.MessageName != "" && e.Signal != "":
		return fmt.Sprintf("schema %s: %s.%s: %s", e.Code, e.MessageName, e.Signal, e.Message)
	case e.MessageName != "":
		return fmt.Sprintf("schema %s: %s: %s", e.Code, e.MessageName, e.Message)
	default:
		return fmt.Sprintf("schema %s: %s", e.Code, e.Message)
	}
}

// Is matches another *SchemaError by code, so callers can write
// errors.Is(err, &SchemaError{Code: ErrNameCollision}).
func (e *SchemaError) Is(target error) bool {
	t, ok := target.(*SchemaError)
	return ok && t.Code == e.Code
}

func invalidf(m *Message, sig *Signal, format string, args ...any) error {
	e := &SchemaError{Code: ErrInvalid, Message: fmt.Sprintf(format, args...)}
	if m != nil {
		e.MessageName = m.Name
	}
	if sig != nil {
		e.Signal = sig.Label()
	}
	return e
}
