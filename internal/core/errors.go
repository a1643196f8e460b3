package core

import (
	"errors"
	"strings"
)

// ErrorKind identifies the invocation step that failed.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPlatform
	KindEngineClosed
	KindSourceRead
	KindCompile
	KindRun
	KindArgument
	KindFunctionNotFound
	KindNotCallable
	KindInvocation
	KindEmptyReturn
	KindUnexpectedShape
	KindElementConversion
	KindInterrupted
)

var kindNames = [...]string{
	KindUnknown:           "unknown",
	KindPlatform:          "platform",
	KindEngineClosed:      "engine-closed",
	KindSourceRead:        "source-read",
	KindCompile:           "compile-error",
	KindRun:               "top-level-run-error",
	KindArgument:          "argument-conversion-error",
	KindFunctionNotFound:  "function-not-found",
	KindNotCallable:       "not-callable",
	KindInvocation:        "invocation-exception",
	KindEmptyReturn:       "empty-return",
	KindUnexpectedShape:   "unexpected-return-shape",
	KindElementConversion: "element-conversion-error",
	KindInterrupted:       "interrupted",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// Error is the structured failure returned by every invocation step.
// Message holds the guest's own diagnostic when the failure originated
// inside guest code.
type Error struct {
	Kind     ErrorKind
	Path     string
	Function string
	Message  string
	Stack    string
	Err      error
}

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrPlatform          = &Error{Kind: KindPlatform}
	ErrEngineClosed      = &Error{Kind: KindEngineClosed}
	ErrSourceRead        = &Error{Kind: KindSourceRead}
	ErrCompile           = &Error{Kind: KindCompile}
	ErrRun               = &Error{Kind: KindRun}
	ErrArgument          = &Error{Kind: KindArgument}
	ErrFunctionNotFound  = &Error{Kind: KindFunctionNotFound}
	ErrNotCallable       = &Error{Kind: KindNotCallable}
	ErrInvocation        = &Error{Kind: KindInvocation}
	ErrEmptyReturn       = &Error{Kind: KindEmptyReturn}
	ErrUnexpectedShape   = &Error{Kind: KindUnexpectedShape}
	ErrElementConversion = &Error{Kind: KindElementConversion}
	ErrInterrupted       = &Error{Kind: KindInterrupted}
)

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" || e.Function != "" {
		b.WriteString(" [")
		b.WriteString(e.Path)
		if e.Function != "" {
			if e.Path != "" {
				b.WriteByte(' ')
			}
			b.WriteString(e.Function)
			b.WriteString("()")
		}
		b.WriteByte(']')
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		if e.Message == "" {
			b.WriteString(": ")
		} else {
			b.WriteString(" (")
		}
		b.WriteString(e.Err.Error())
		if e.Message != "" {
			b.WriteByte(')')
		}
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds an Error of the given kind with a plain message.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// WrapError builds an Error of the given kind around cause. Guest
// exceptions carried by cause become the diagnostic message.
func WrapError(kind ErrorKind, cause error) *Error {
	e := &Error{Kind: kind}
	var ge *GuestError
	if errors.As(cause, &ge) {
		e.Message = ge.Message
		e.Stack = ge.Stack
		return e
	}
	e.Err = cause
	return e
}

// KindOf returns the kind of err, or KindUnknown if err is not an *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// GuestError is a JavaScript exception captured at the host boundary.
// Message is the exception value converted to a string, the same text a
// guest would get from String(e).
type GuestError struct {
	Message string
	Stack   string
}

func (g *GuestError) Error() string {
	if g.Message == "" {
		return "guest exception"
	}
	return g.Message
}
