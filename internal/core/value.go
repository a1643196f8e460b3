package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType tags the variant held by a Value.
type ValueType uint8

const (
	TypeUndefined ValueType = iota
	TypeNull
	TypeNumber
	TypeString
	TypeBoolean
	TypeArray
	TypeFunction
	TypeObject
)

var typeNames = [...]string{
	TypeUndefined: "undefined",
	TypeNull:      "null",
	TypeNumber:    "number",
	TypeString:    "string",
	TypeBoolean:   "boolean",
	TypeArray:     "array",
	TypeFunction:  "function",
	TypeObject:    "object",
}

func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseValueType maps the tag produced by guest-side inspection back to
// a ValueType. Unknown tags map to TypeObject.
func ParseValueType(s string) ValueType {
	for i, name := range typeNames {
		if name == s {
			return ValueType(i)
		}
	}
	return TypeObject
}

// Value is a host-side snapshot of a guest value. Only the field that
// matches Type is meaningful. Functions and objects are opaque: Str
// holds their display text.
type Value struct {
	Type  ValueType
	Num   float64
	Str   string
	Bool  bool
	Elems []Value
}

// Undefined is the zero Value.
var Undefined = Value{}

// Number returns a guest number.
func Number(f float64) Value { return Value{Type: TypeNumber, Num: f} }

// Integer returns a guest number holding n.
func Integer(n int) Value { return Value{Type: TypeNumber, Num: float64(n)} }

// String returns a guest string.
func String(s string) Value { return Value{Type: TypeString, Str: s} }

// Bool returns a guest boolean.
func Bool(b bool) Value { return Value{Type: TypeBoolean, Bool: b} }

// Array returns a guest array holding elems in order.
func Array(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Type: TypeArray, Elems: elems}
}

// IsInteger reports whether v is a finite number with no fractional part.
func (v Value) IsInteger() bool {
	return v.Type == TypeNumber && !math.IsInf(v.Num, 0) && !math.IsNaN(v.Num) && v.Num == math.Trunc(v.Num)
}

// IsNumericArray reports whether v is an array whose elements are all numbers.
func (v Value) IsNumericArray() bool {
	if v.Type != TypeArray {
		return false
	}
	for _, e := range v.Elems {
		if e.Type != TypeNumber {
			return false
		}
	}
	return true
}

// Int converts a guest number to int, truncating toward zero like the
// engines' integer accessors. NaN, infinities and values outside the
// int range are rejected.
func (v Value) Int() (int, error) {
	if v.Type != TypeNumber {
		return 0, fmt.Errorf("expected number, got %s", v.Type)
	}
	if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
		return 0, fmt.Errorf("non-finite number %s", formatNumber(v.Num))
	}
	t := math.Trunc(v.Num)
	if t < math.MinInt64 || t >= math.MaxInt64 {
		return 0, fmt.Errorf("number %s out of integer range", formatNumber(v.Num))
	}
	return int(t), nil
}

// String renders v the way a guest would display it.
func (v Value) String() string {
	switch v.Type {
	case TypeUndefined:
		return "undefined"
	case TypeNull:
		return "null"
	case TypeNumber:
		return formatNumber(v.Num)
	case TypeString:
		return v.Str
	case TypeBoolean:
		return strconv.FormatBool(v.Bool)
	case TypeArray:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			if e.Type != TypeUndefined && e.Type != TypeNull {
				parts[i] = e.String()
			}
		}
		return strings.Join(parts, ",")
	default:
		if v.Str != "" {
			return v.Str
		}
		return "[" + v.Type.String() + "]"
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// MarshalJSON encodes v as a JSON literal that JSON.parse turns back into
// the same guest value. Only data variants are encodable.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Type {
	case TypeNull:
		return []byte("null"), nil
	case TypeNumber:
		if math.IsNaN(v.Num) || math.IsInf(v.Num, 0) {
			return nil, fmt.Errorf("non-finite number %s has no JSON form", formatNumber(v.Num))
		}
		return []byte(strconv.FormatFloat(v.Num, 'g', -1, 64)), nil
	case TypeString:
		return json.Marshal(v.Str)
	case TypeBoolean:
		return []byte(strconv.FormatBool(v.Bool)), nil
	case TypeArray:
		elems := v.Elems
		if elems == nil {
			elems = []Value{}
		}
		return json.Marshal(elems)
	default:
		return nil, fmt.Errorf("%s cannot be passed to the guest", v.Type)
	}
}

// exported is the tagged wire form produced by guest-side inspection.
type exported struct {
	T string     `json:"t"`
	N *float64   `json:"n,omitempty"`
	S string     `json:"s,omitempty"`
	B bool       `json:"b,omitempty"`
	A []exported `json:"a,omitempty"`
}

// DecodeExported parses the tagged JSON tree emitted by ExportJS.
func DecodeExported(data string) (Value, error) {
	var w exported
	if err := json.Unmarshal([]byte(data), &w); err != nil {
		return Undefined, fmt.Errorf("decoding exported value: %w", err)
	}
	return w.value()
}

func (w exported) value() (Value, error) {
	t := ParseValueType(w.T)
	switch t {
	case TypeNumber:
		if w.N != nil {
			return Number(*w.N), nil
		}
		f, err := strconv.ParseFloat(w.S, 64)
		if err != nil {
			return Undefined, fmt.Errorf("bad number %q: %w", w.S, err)
		}
		return Number(f), nil
	case TypeBoolean:
		return Bool(w.B), nil
	case TypeArray:
		elems := make([]Value, len(w.A))
		for i, a := range w.A {
			e, err := a.value()
			if err != nil {
				return Undefined, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = e
		}
		return Value{Type: TypeArray, Elems: elems}, nil
	default:
		return Value{Type: t, Str: w.S}, nil
	}
}

// ExportJS is a guest function expression that turns any guest value into
// the tagged JSON accepted by DecodeExported. Arrays are walked by index so
// holes come back as undefined.
const ExportJS = `(function __jscall_export(v, depth) {
	depth = depth || 0;
	if (depth > 64) throw new RangeError("value nesting too deep");
	if (v === undefined) return {t: "undefined"};
	if (v === null) return {t: "null"};
	if (Array.isArray(v)) {
		var a = new Array(v.length);
		for (var i = 0; i < v.length; i++) a[i] = __jscall_export(v[i], depth + 1);
		return {t: "array", a: a};
	}
	switch (typeof v) {
	case "number":
		return isFinite(v) ? {t: "number", n: v} : {t: "number", s: String(v)};
	case "string":
		return {t: "string", s: v};
	case "boolean":
		return {t: "boolean", b: v};
	case "function":
		return {t: "function", s: "function " + (v.name || "anonymous")};
	}
	var s;
	try { s = String(v); } catch (e) { s = "[object]"; }
	return {t: "object", s: s};
})`

// TypeOfJS is a guest function expression returning the ValueType tag of
// its argument.
const TypeOfJS = `(function(v) {
	if (v === undefined) return "undefined";
	if (v === null) return "null";
	if (Array.isArray(v)) return "array";
	var t = typeof v;
	if (t === "number" || t === "string" || t === "boolean" || t === "function") return t;
	return "object";
})`
