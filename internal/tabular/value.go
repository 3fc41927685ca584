package tabular

// value.go provides the scalar cell model and best-effort type inference.
//
// Inference mirrors what browser CSV parsers do with dynamic typing:
//   - empty cells become Null
//   - true/TRUE/True and false/FALSE/False become Bool
//   - integers, decimals and scientific notation inside the safe-integer
//     range become Number
//   - everything else stays a String
//
// Every inferred value keeps its original lexeme in Raw so that exporting
// never rewrites "1.50" as "1.5".

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindAbsent marks a key that was never present in the source row.
	KindAbsent Kind = iota
	KindNull
	KindString
	KindNumber
	KindBool
)

// String returns the kind name used in JSON snapshots and logs.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a single cell.
type Value struct {
	Kind Kind
	Raw  string
	Num  float64
	Bool bool
}

// maxSafeInteger is the largest integer a float64 holds without rounding.
const maxSafeInteger = 1<<53 - 1

// numberRegex accepts integers, decimals and scientific notation with
// optional surrounding whitespace.
var numberRegex = regexp.MustCompile(`^\s*-?(\d+\.?|\.\d+|\d+\.\d+)([eE][-+]?\d+)?\s*$`)

// Absent returns the explicit marker for a column missing from a row.
func Absent() Value { return Value{Kind: KindAbsent} }

// Null returns an empty-cell value.
func Null() Value { return Value{Kind: KindNull} }

// StringValue wraps s without inference.
func StringValue(s string) Value { return Value{Kind: KindString, Raw: s} }

// NumberValue wraps f. Raw is left empty and formatted on demand.
func NumberValue(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Infer converts a raw cell into the most specific scalar it represents.
func Infer(raw string) Value {
	if raw == "" {
		return Null()
	}

	switch raw {
	case "true", "TRUE", "True":
		return Value{Kind: KindBool, Raw: raw, Bool: true}
	case "false", "FALSE", "False":
		return Value{Kind: KindBool, Raw: raw, Bool: false}
	}

	if numberRegex.MatchString(raw) {
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err == nil && math.Abs(f) <= maxSafeInteger {
			return Value{Kind: KindNumber, Raw: raw, Num: f}
		}
	}

	return StringValue(raw)
}

// IsAbsent reports whether v is the absent marker.
func (v Value) IsAbsent() bool { return v.Kind == KindAbsent }

// Text returns the serialized form of the value. Absent and Null cells
// serialize as the empty string.
func (v Value) Text() string {
	switch v.Kind {
	case KindAbsent, KindNull:
		return ""
	case KindNumber:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		if v.Raw != "" {
			return v.Raw
		}
		return strconv.FormatBool(v.Bool)
	default:
		return v.Raw
	}
}

// Interface returns the Go value for v: nil, string, float64 or bool.
func (v Value) Interface() any {
	switch v.Kind {
	case KindString:
		return v.Raw
	case KindNumber:
		return v.Num
	case KindBool:
		return v.Bool
	default:
		return nil
	}
}

// MarshalJSON encodes the value as its natural JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// Equal reports whether two values hold the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindAbsent, KindNull:
		return true
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	default:
		return v.Raw == o.Raw
	}
}
