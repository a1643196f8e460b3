//go:build v8

package v8engine

import (
	"errors"
	"fmt"
	"math"

	"github.com/cryguy/jscall/internal/core"
	v8 "github.com/tommie/v8go"
)

// maxExportDepth bounds recursion when exporting nested arrays.
const maxExportDepth = 64

// v8Runtime implements core.JSRuntime for one V8 context.
type v8Runtime struct {
	owner *Isolate
	iso   *v8.Isolate
	ctx   *v8.Context

	arrayFn *v8.Function // cached Array constructor
	closed  bool
}

var _ core.JSRuntime = (*v8Runtime)(nil)

// v8Handle is a live V8 value.
type v8Handle struct {
	val *v8.Value
}

func (h *v8Handle) Type() core.ValueType { return typeOf(h.val) }

// v8Script is an unbound script waiting to run in the runtime's context.
type v8Script struct {
	rt     *v8Runtime
	script *v8.UnboundScript
}

// Compile compiles source without running it.
func (r *v8Runtime) Compile(origin, source string) (core.Script, error) {
	if err := r.cacheArray(); err != nil {
		return nil, err
	}
	script, err := r.iso.CompileUnboundScript(source, origin, v8.CompileOptions{})
	if err != nil {
		return nil, guestError(err)
	}
	return &v8Script{rt: r, script: script}, nil
}

// Run executes the script's top level in the runtime's context.
func (s *v8Script) Run() error {
	if _, err := s.script.Run(s.rt.ctx); err != nil {
		return guestError(err)
	}
	return nil
}

// ToGuest builds v natively: numbers become Smi or heap numbers, arrays
// are created with their final length and filled index by index.
func (r *v8Runtime) ToGuest(v core.Value) (core.Handle, error) {
	val, err := r.toV8(v)
	if err != nil {
		return nil, err
	}
	return &v8Handle{val: val}, nil
}

func (r *v8Runtime) toV8(v core.Value) (*v8.Value, error) {
	switch v.Type {
	case core.TypeUndefined:
		return v8.Undefined(r.iso), nil
	case core.TypeNull:
		return v8.Null(r.iso), nil
	case core.TypeNumber:
		if v.IsInteger() && v.Num >= math.MinInt32 && v.Num <= math.MaxInt32 {
			return v8.NewValue(r.iso, int32(v.Num))
		}
		return v8.NewValue(r.iso, v.Num)
	case core.TypeString:
		return v8.NewValue(r.iso, v.Str)
	case core.TypeBoolean:
		return v8.NewValue(r.iso, v.Bool)
	case core.TypeArray:
		return r.newArray(v.Elems)
	default:
		return nil, fmt.Errorf("%s cannot be passed to the guest", v.Type)
	}
}

// cacheArray captures the pristine Array constructor before guest code
// gets a chance to replace it.
func (r *v8Runtime) cacheArray() error {
	if r.arrayFn != nil {
		return nil
	}
	ctor, err := r.ctx.Global().Get("Array")
	if err != nil {
		return guestError(err)
	}
	fn, err := ctor.AsFunction()
	if err != nil {
		return fmt.Errorf("Array constructor: %w", err)
	}
	r.arrayFn = fn
	return nil
}

func (r *v8Runtime) newArray(elems []core.Value) (*v8.Value, error) {
	if err := r.cacheArray(); err != nil {
		return nil, err
	}

	length, err := v8.NewValue(r.iso, uint32(len(elems)))
	if err != nil {
		return nil, err
	}
	arr, err := r.arrayFn.Call(r.ctx.Global(), length)
	if err != nil {
		return nil, guestError(err)
	}
	obj, err := arr.AsObject()
	if err != nil {
		return nil, err
	}
	for i, e := range elems {
		ev, err := r.toV8(e)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		if err := obj.SetIdx(uint32(i), ev); err != nil {
			return nil, fmt.Errorf("failed to add index %d to array: %w", i, guestError(err))
		}
	}
	return arr, nil
}

// Global returns the named property of the context's global object.
func (r *v8Runtime) Global(name string) (core.Handle, error) {
	val, err := r.ctx.Global().Get(name)
	if err != nil {
		return nil, guestError(err)
	}
	return &v8Handle{val: val}, nil
}

// Call invokes fn with the global object as receiver.
func (r *v8Runtime) Call(fn core.Handle, args []core.Handle) (core.Handle, error) {
	fh, err := own(fn)
	if err != nil {
		return nil, err
	}
	f, err := fh.val.AsFunction()
	if err != nil {
		return nil, err
	}
	vals := make([]v8.Valuer, len(args))
	for i, a := range args {
		ah, err := own(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		vals[i] = ah.val
	}
	ret, err := f.Call(r.ctx.Global(), vals...)
	if err != nil {
		return nil, guestError(err)
	}
	return &v8Handle{val: ret}, nil
}

// Export walks the value behind h.
func (r *v8Runtime) Export(h core.Handle) (core.Value, error) {
	vh, err := own(h)
	if err != nil {
		return core.Undefined, err
	}
	return exportValue(vh.val, 0)
}

func exportValue(val *v8.Value, depth int) (core.Value, error) {
	if depth > maxExportDepth {
		return core.Undefined, errors.New("value nesting too deep")
	}
	switch t := typeOf(val); t {
	case core.TypeUndefined:
		return core.Undefined, nil
	case core.TypeNull:
		return core.Value{Type: core.TypeNull}, nil
	case core.TypeNumber:
		return core.Number(val.Number()), nil
	case core.TypeString:
		return core.String(val.String()), nil
	case core.TypeBoolean:
		return core.Bool(val.Boolean()), nil
	case core.TypeArray:
		obj, err := val.AsObject()
		if err != nil {
			return core.Undefined, err
		}
		lengthVal, err := obj.Get("length")
		if err != nil {
			return core.Undefined, guestError(err)
		}
		n := lengthVal.Uint32()
		elems := make([]core.Value, n)
		for i := uint32(0); i < n; i++ {
			ev, err := obj.GetIdx(i)
			if err != nil {
				return core.Undefined, guestError(err)
			}
			elems[i], err = exportValue(ev, depth+1)
			if err != nil {
				return core.Undefined, fmt.Errorf("index %d: %w", i, err)
			}
		}
		return core.Value{Type: core.TypeArray, Elems: elems}, nil
	case core.TypeFunction:
		return core.Value{Type: core.TypeFunction, Str: "function"}, nil
	default:
		return core.Value{Type: t, Str: val.DetailString()}, nil
	}
}

// Close closes the context. It is safe to call more than once.
func (r *v8Runtime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.ctx.Close()
	r.owner.release()
	return nil
}

func typeOf(val *v8.Value) core.ValueType {
	switch {
	case val == nil, val.IsUndefined():
		return core.TypeUndefined
	case val.IsNull():
		return core.TypeNull
	case val.IsArray():
		return core.TypeArray
	case val.IsNumber():
		return core.TypeNumber
	case val.IsString():
		return core.TypeString
	case val.IsBoolean():
		return core.TypeBoolean
	case val.IsFunction():
		return core.TypeFunction
	default:
		return core.TypeObject
	}
}

func own(h core.Handle) (*v8Handle, error) {
	vh, ok := h.(*v8Handle)
	if !ok {
		return nil, fmt.Errorf("handle %T does not belong to this runtime", h)
	}
	return vh, nil
}

// guestError turns a V8 exception into a *core.GuestError. Other errors
// pass through unchanged.
func guestError(err error) error {
	var jsErr *v8.JSError
	if errors.As(err, &jsErr) {
		return &core.GuestError{Message: jsErr.Message, Stack: jsErr.StackTrace}
	}
	return err
}
