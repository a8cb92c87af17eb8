// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

package pptask

import "time"

// ValueKind discriminates the representation carried by a Value.
type ValueKind int

// Value kinds a preprocessing step chain can observe or produce.
const (
	ValueNone ValueKind = iota
	ValueFloat
	ValueUint64
	ValueText
	ValueLog
)

func (k ValueKind) String() string {
	switch k {
	case ValueFloat:
		return "float"
	case ValueUint64:
		return "uint64"
	case ValueText:
		return "text"
	case ValueLog:
		return "log"
	default:
		return "none"
	}
}

// LogMeta carries the metadata that accompanies a log-typed Value.
type LogMeta struct {
	Source    string
	Severity  int
	EventID   uint64
	Timestamp time.Time
}

// Value is the discriminated sample carried between preprocessing steps.
// Exactly one of Float/Uint64/Text is meaningful, selected by Kind; ValueLog
// additionally populates Log, and ValueNone means "no value" (error or
// discard) and carries none of the payload fields.
type Value struct {
	Kind      ValueKind
	Float     float64
	Uint64    uint64
	Text      string
	Log       LogMeta
	Timestamp time.Time
}

// NoneValue returns the "no value" sample stamped with ts, used for errors
// and for the result of a pipeline that discarded its input.
func NoneValue(ts time.Time) Value {
	return Value{Kind: ValueNone, Timestamp: ts}
}

// FloatValue returns a numeric sample.
func FloatValue(v float64, ts time.Time) Value {
	return Value{Kind: ValueFloat, Float: v, Timestamp: ts}
}

// Uint64Value returns an unsigned integer sample.
func Uint64Value(v uint64, ts time.Time) Value {
	return Value{Kind: ValueUint64, Uint64: v, Timestamp: ts}
}

// TextValue returns a text sample.
func TextValue(v string, ts time.Time) Value {
	return Value{Kind: ValueText, Text: v, Timestamp: ts}
}

// IsNone reports whether the value carries no payload.
func (v Value) IsNone() bool { return v.Kind == ValueNone }
