package core

import "fmt"

// Arg is a host argument that knows how to become a guest value.
type Arg interface {
	GuestValue() (Value, error)
}

// MaxSafeInteger is the largest magnitude a guest number holds exactly.
const MaxSafeInteger = 1<<53 - 1

// Int is an integer argument, passed to the guest as a number. Values
// beyond ±MaxSafeInteger are rejected rather than rounded.
type Int int

func (n Int) GuestValue() (Value, error) {
	if err := checkSafe(int(n)); err != nil {
		return Undefined, err
	}
	return Integer(int(n)), nil
}

// Ints is an integer list argument, passed to the guest as an array of
// numbers with the same order and indices.
type Ints []int

func (xs Ints) GuestValue() (Value, error) {
	elems := make([]Value, len(xs))
	for i, x := range xs {
		if err := checkSafe(x); err != nil {
			return Undefined, fmt.Errorf("element [%d]: %w", i, err)
		}
		elems[i] = Integer(x)
	}
	return Array(elems...), nil
}

func checkSafe(n int) error {
	if x := int64(n); x > MaxSafeInteger || x < -MaxSafeInteger {
		return fmt.Errorf("integer %d cannot be represented exactly as a guest number", n)
	}
	return nil
}

// Raw passes an already built Value through unchanged.
type Raw Value

func (r Raw) GuestValue() (Value, error) { return Value(r), nil }

// Shape is the guest-level form a caller expects back.
type Shape uint8

const (
	ShapeAny Shape = iota
	ShapeNumber
	ShapeArray
	ShapeMatrix
)

func (s Shape) String() string {
	switch s {
	case ShapeNumber:
		return "number"
	case ShapeArray:
		return "array"
	case ShapeMatrix:
		return "array of arrays"
	default:
		return "any"
	}
}

// Check reports whether v has shape s. ShapeArray only looks at the outer
// value; element types are checked while decoding.
func (s Shape) Check(v Value) bool {
	switch s {
	case ShapeNumber:
		return v.Type == TypeNumber
	case ShapeArray:
		return v.Type == TypeArray
	case ShapeMatrix:
		if v.Type != TypeArray {
			return false
		}
		for _, row := range v.Elems {
			if row.Type != TypeArray {
				return false
			}
		}
		return true
	default:
		return true
	}
}

// Decoder converts a returned guest value of a known shape into T.
type Decoder[T any] struct {
	Shape  Shape
	Decode func(Value) (T, error)
}

// DecodeValue returns the guest value untouched, whatever its shape.
var DecodeValue = Decoder[Value]{
	Shape:  ShapeAny,
	Decode: func(v Value) (Value, error) { return v, nil },
}

// DecodeInt expects a number.
var DecodeInt = Decoder[int]{
	Shape:  ShapeNumber,
	Decode: func(v Value) (int, error) { return v.Int() },
}

// DecodeInts expects a flat array of numbers.
var DecodeInts = Decoder[[]int]{
	Shape:  ShapeArray,
	Decode: decodeInts,
}

// DecodeIntMatrix expects an array of arrays of numbers. Rows may have
// different lengths.
var DecodeIntMatrix = Decoder[[][]int]{
	Shape:  ShapeMatrix,
	Decode: decodeIntMatrix,
}

func decodeInts(v Value) ([]int, error) {
	out := make([]int, len(v.Elems))
	for i, e := range v.Elems {
		n, err := e.Int()
		if err != nil {
			return nil, fmt.Errorf("element [%d]: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

func decodeIntMatrix(v Value) ([][]int, error) {
	out := make([][]int, len(v.Elems))
	for i, row := range v.Elems {
		if row.Type != TypeArray {
			return nil, fmt.Errorf("element [%d]: expected array, got %s", i, row.Type)
		}
		inner := make([]int, len(row.Elems))
		for j, e := range row.Elems {
			n, err := e.Int()
			if err != nil {
				return nil, fmt.Errorf("element [%d][%d]: %w", i, j, err)
			}
			inner[j] = n
		}
		out[i] = inner
	}
	return out, nil
}
