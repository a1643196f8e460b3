package jscall

import "github.com/cryguy/jscall/internal/core"

// Type aliases re-exporting internal/core types so callers can use
// jscall.Value, jscall.Ints, etc. without importing the internal package.

type Config = core.EngineConfig
type SourceLoader = core.SourceLoader
type Request = core.Request
type Value = core.Value
type ValueType = core.ValueType
type Arg = core.Arg
type Int = core.Int
type Ints = core.Ints
type Raw = core.Raw
type Shape = core.Shape
type Decoder[T any] = core.Decoder[T]
type Error = core.Error
type ErrorKind = core.ErrorKind
type GuestError = core.GuestError

// Value types re-exported from core.
const (
	TypeUndefined = core.TypeUndefined
	TypeNull      = core.TypeNull
	TypeNumber    = core.TypeNumber
	TypeString    = core.TypeString
	TypeBoolean   = core.TypeBoolean
	TypeArray     = core.TypeArray
	TypeFunction  = core.TypeFunction
	TypeObject    = core.TypeObject
)

// Shapes re-exported from core.
const (
	ShapeAny    = core.ShapeAny
	ShapeNumber = core.ShapeNumber
	ShapeArray  = core.ShapeArray
	ShapeMatrix = core.ShapeMatrix
)

// Error kinds re-exported from core.
const (
	KindPlatform          = core.KindPlatform
	KindEngineClosed      = core.KindEngineClosed
	KindSourceRead        = core.KindSourceRead
	KindCompile           = core.KindCompile
	KindRun               = core.KindRun
	KindArgument          = core.KindArgument
	KindFunctionNotFound  = core.KindFunctionNotFound
	KindNotCallable       = core.KindNotCallable
	KindInvocation        = core.KindInvocation
	KindEmptyReturn       = core.KindEmptyReturn
	KindUnexpectedShape   = core.KindUnexpectedShape
	KindElementConversion = core.KindElementConversion
	KindInterrupted       = core.KindInterrupted
)

// Sentinels for errors.Is, re-exported from core.
var (
	ErrPlatform          = core.ErrPlatform
	ErrEngineClosed      = core.ErrEngineClosed
	ErrSourceRead        = core.ErrSourceRead
	ErrCompile           = core.ErrCompile
	ErrRun               = core.ErrRun
	ErrArgument          = core.ErrArgument
	ErrFunctionNotFound  = core.ErrFunctionNotFound
	ErrNotCallable       = core.ErrNotCallable
	ErrInvocation        = core.ErrInvocation
	ErrEmptyReturn       = core.ErrEmptyReturn
	ErrUnexpectedShape   = core.ErrUnexpectedShape
	ErrElementConversion = core.ErrElementConversion
	ErrInterrupted       = core.ErrInterrupted
)

// Decoders and helpers re-exported from core.
var (
	DecodeValue     = core.DecodeValue
	DecodeInt       = core.DecodeInt
	DecodeInts      = core.DecodeInts
	DecodeIntMatrix = core.DecodeIntMatrix
	KindOf          = core.KindOf
	Number          = core.Number
	Integer         = core.Integer
	String          = core.String
	Bool            = core.Bool
	Array           = core.Array
)
