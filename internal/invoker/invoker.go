// Package invoker runs one named guest function inside a fresh execution
// context: load, compile, run, convert arguments, look up, call, validate.
// It is shared by every engine backend.
package invoker

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jscall/internal/core"
	"github.com/cryguy/jscall/internal/source"
)

// Invoker holds what stays constant across calls.
type Invoker struct {
	loader core.SourceLoader
	target string
	logger *zap.Logger
}

// New returns an Invoker reading sources through loader. target is the
// optional esbuild down-level target.
func New(loader core.SourceLoader, target string, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invoker{loader: loader, target: target, logger: logger}
}

// Invoke executes req in a new context of iso and returns the exported
// return value once it matches shape. The context and every handle made
// in it are released before Invoke returns, on success or failure.
func (inv *Invoker) Invoke(iso core.Isolate, req core.Request, shape core.Shape) (val core.Value, err error) {
	start := time.Now()
	defer func() {
		if err == nil {
			return
		}
		var e *core.Error
		if errors.As(err, &e) {
			if e.Path == "" {
				e.Path = req.Path
			}
			if e.Function == "" {
				e.Function = req.Function
			}
		}
		inv.logger.Debug("invocation step failed",
			zap.String("path", req.Path),
			zap.String("function", req.Function),
			zap.Stringer("kind", core.KindOf(err)),
			zap.Duration("elapsed", time.Since(start)))
	}()

	rt, err := iso.NewContext()
	if err != nil {
		return core.Undefined, asError(core.KindEngineClosed, err)
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil {
			inv.logger.Warn("closing execution context", zap.Error(cerr))
		}
	}()

	src, err := inv.loader.Load(req.Path)
	if err != nil {
		return core.Undefined, asError(core.KindSourceRead, err)
	}
	src, err = source.Prepare(req.Path, src, inv.target)
	if err != nil {
		return core.Undefined, asError(core.KindCompile, err)
	}

	script, err := rt.Compile(req.Path, src)
	if err != nil {
		return core.Undefined, asError(core.KindCompile, err)
	}
	if err := script.Run(); err != nil {
		return core.Undefined, asError(core.KindRun, err)
	}

	args := make([]core.Handle, len(req.Args))
	for i, a := range req.Args {
		h, err := toGuest(rt, a)
		if err != nil {
			e := asError(core.KindArgument, err)
			e.Message = prefix(fmt.Sprintf("argument %d", i), e.Message)
			return core.Undefined, e
		}
		args[i] = h
	}

	fn, err := rt.Global(req.Function)
	if err != nil {
		return core.Undefined, asError(core.KindFunctionNotFound, err)
	}
	switch t := fn.Type(); t {
	case core.TypeFunction:
	case core.TypeUndefined:
		return core.Undefined, core.NewError(core.KindFunctionNotFound,
			fmt.Sprintf("%q is not defined on the global object", req.Function))
	default:
		return core.Undefined, core.NewError(core.KindNotCallable,
			fmt.Sprintf("%q is a %s, not a function", req.Function, t))
	}

	ret, err := rt.Call(fn, args)
	if err != nil {
		return core.Undefined, asError(core.KindInvocation, err)
	}
	if ret == nil || ret.Type() == core.TypeUndefined {
		return core.Undefined, core.NewError(core.KindEmptyReturn, "function returned undefined")
	}

	val, err = rt.Export(ret)
	if err != nil {
		return core.Undefined, asError(core.KindElementConversion, err)
	}
	if !shape.Check(val) {
		return core.Undefined, core.NewError(core.KindUnexpectedShape,
			fmt.Sprintf("expected %s, got %s", shape, describe(val)))
	}

	inv.logger.Debug("invocation complete",
		zap.String("path", req.Path),
		zap.String("function", req.Function),
		zap.Stringer("type", val.Type),
		zap.Duration("elapsed", time.Since(start)))
	return val, nil
}

// toGuest converts one argument. Numeric arrays take the runtime's bulk
// path when it has one.
func toGuest(rt core.JSRuntime, a core.Arg) (core.Handle, error) {
	if a == nil {
		return nil, errors.New("nil argument")
	}
	v, err := a.GuestValue()
	if err != nil {
		return nil, err
	}
	if bt, ok := rt.(core.BinaryTransferer); ok && v.IsNumericArray() {
		nums := make([]float64, len(v.Elems))
		for i, e := range v.Elems {
			nums[i] = e.Num
		}
		return bt.ToGuestNumbers(nums)
	}
	return rt.ToGuest(v)
}

// asError copies an existing *core.Error and wraps anything else as kind.
// The copy is what gets Path, Function and prefixes filled in, so errors
// owned by callers, such as the exported sentinels, are never written to.
func asError(kind core.ErrorKind, err error) *core.Error {
	var e *core.Error
	if errors.As(err, &e) {
		c := *e
		return &c
	}
	return core.WrapError(kind, err)
}

func prefix(p, msg string) string {
	if msg == "" {
		return p
	}
	return p + ": " + msg
}

// describe names the shape of v for diagnostics.
func describe(v core.Value) string {
	if v.Type != core.TypeArray {
		return v.Type.String()
	}
	for _, e := range v.Elems {
		if e.Type != core.TypeArray {
			return "array containing " + e.Type.String()
		}
	}
	return "array of arrays"
}
