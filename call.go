// Package jscall embeds a JavaScript engine in a Go process, calls named
// functions defined by script files and converts their results into Go
// values.
//
// The default build uses QuickJS (modernc.org/quickjs, no cgo). Building
// with -tags v8 switches to V8 through github.com/tommie/v8go.
//
//	p, err := jscall.InitPlatform()
//	...
//	e, err := jscall.NewEngine(p, jscall.DefaultConfig())
//	...
//	defer e.Close()
//	idx, err := jscall.CallInts(ctx, e, "two_sum.js", "two_sum", jscall.Ints{1, 2, 3, 4, 5}, jscall.Int(9))
package jscall

import (
	"context"

	"github.com/cryguy/jscall/internal/core"
)

// Call runs fn from the script at path with args and decodes the result
// with dec. Every call gets a fresh global scope: nothing defined by one
// call is visible to the next.
func Call[T any](ctx context.Context, e *Engine, path, fn string, dec Decoder[T], args ...Arg) (T, error) {
	var zero T
	val, err := e.Invoke(ctx, Request{Path: path, Function: fn, Args: args}, dec.Shape)
	if err != nil {
		return zero, err
	}
	out, err := dec.Decode(val)
	if err != nil {
		return zero, &core.Error{
			Kind:     core.KindElementConversion,
			Path:     path,
			Function: fn,
			Message:  err.Error(),
		}
	}
	return out, nil
}

// CallInt calls a function that returns a number.
func CallInt(ctx context.Context, e *Engine, path, fn string, args ...Arg) (int, error) {
	return Call(ctx, e, path, fn, DecodeInt, args...)
}

// CallInts calls a function that returns an array of numbers.
func CallInts(ctx context.Context, e *Engine, path, fn string, args ...Arg) ([]int, error) {
	return Call(ctx, e, path, fn, DecodeInts, args...)
}

// CallIntMatrix calls a function that returns an array of arrays of
// numbers.
func CallIntMatrix(ctx context.Context, e *Engine, path, fn string, args ...Arg) ([][]int, error) {
	return Call(ctx, e, path, fn, DecodeIntMatrix, args...)
}
