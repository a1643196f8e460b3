//go:build !v8

package quickjs

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
	"unsafe"

	"github.com/cryguy/jscall/internal/core"
	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// slotsName is the global holding guest values referenced by handles. It
// is defined non-enumerable and read-only, so guest code does not see it
// in Object.keys(globalThis) and cannot replace it.
const (
	slotsName   = "__jscall_slots"
	slotsJS     = "globalThis." + slotsName
	initSlotsJS = `Object.defineProperty(globalThis, "` + slotsName + `", {value: Object.create(null)}), undefined`
)

// qjsRuntime implements core.JSRuntime on top of one QuickJS VM.
// Guest values are kept alive as properties of the slots holder, keyed by
// their handle; they go away with the VM.
type qjsRuntime struct {
	vm  *quickjs.VM
	iso *Isolate

	tls *libc.TLS // cached from VM internals for direct C API access
	ctx uintptr   // cached JSContext pointer for direct C API access

	// useFallback is set when the C API pointers could not be extracted
	// (e.g. modernc.org/quickjs changed its unexported struct layout).
	useFallback bool

	nextRef int
	closed  bool
}

var _ core.JSRuntime = (*qjsRuntime)(nil)
var _ core.BinaryTransferer = (*qjsRuntime)(nil)

// qjsHandle names a global slot holding a guest value.
type qjsHandle struct {
	ref string
	typ core.ValueType
}

func (h *qjsHandle) Type() core.ValueType { return h.typ }

// qjsScript is a program compiled to bytecode but not yet evaluated.
type qjsScript struct {
	rt       *qjsRuntime
	bytecode []byte
}

// envelope is the JSON reply of every guarded evaluation.
type envelope struct {
	T string          `json:"t"`
	V json.RawMessage `json:"v"`
	X bool            `json:"x"`
	M string          `json:"m"`
	S string          `json:"s"`
}

// guardJS evaluates an expression, stores it in a slot and replies
// with its type tag. A guest throw is converted to a string inside the
// guest so the host always sees the exception's own text.
const guardJS = `(function() {
	try {
		var v = (%s);
		` + slotsJS + `[%s] = v;
		return JSON.stringify({t: %s(v)});
	} catch (e) {
		var m = "exception", s = "";
		try { m = String(e); } catch (_) {}
		try { if (e && e.stack) s = String(e.stack); } catch (_) {}
		return JSON.stringify({x: true, m: m, s: s});
	}
})()`

const exportJS = `(function() {
	try {
		return JSON.stringify({v: %s(` + slotsJS + `[%s])});
	} catch (e) {
		var m = "exception";
		try { m = String(e); } catch (_) {}
		return JSON.stringify({x: true, m: m});
	}
})()`

// Compile parses source as global code without evaluating it. Script-only
// rules such as no top-level return are enforced here.
func (r *qjsRuntime) Compile(_, source string) (core.Script, error) {
	if err := r.iso.checkInterrupted(); err != nil {
		return nil, err
	}
	bc, err := r.vm.Compile(source, quickjs.EvalGlobal)
	if err != nil {
		return nil, &core.GuestError{Message: strings.TrimSpace(err.Error())}
	}
	return &qjsScript{rt: r, bytecode: bc}, nil
}

// Run evaluates the program's top level in the global scope so its
// function declarations land on the global object.
func (s *qjsScript) Run() error {
	if err := s.rt.iso.checkInterrupted(); err != nil {
		return err
	}
	v, err := s.rt.vm.EvalBytecodeValue(s.bytecode)
	if err != nil {
		return &core.GuestError{Message: strings.TrimSpace(err.Error())}
	}
	v.Free()
	return nil
}

// ToGuest materializes v through JSON.parse.
func (r *qjsRuntime) ToGuest(v core.Value) (core.Handle, error) {
	if v.Type == core.TypeUndefined {
		return r.bind("undefined")
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", v.Type, err)
	}
	return r.bind(fmt.Sprintf("JSON.parse(%s)", jsString(string(data))))
}

// Global returns globalThis[name].
func (r *qjsRuntime) Global(name string) (core.Handle, error) {
	return r.bind(fmt.Sprintf("globalThis[%s]", jsString(name)))
}

// Call applies fn to args with globalThis as receiver.
func (r *qjsRuntime) Call(fn core.Handle, args []core.Handle) (core.Handle, error) {
	f, err := r.own(fn)
	if err != nil {
		return nil, err
	}
	refs := make([]string, len(args))
	for i, a := range args {
		h, err := r.own(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		refs[i] = slotsJS + "[" + jsString(h.ref) + "]"
	}
	return r.bind(fmt.Sprintf("Function.prototype.apply.call(%s[%s], globalThis, [%s])",
		slotsJS, jsString(f.ref), strings.Join(refs, ", ")))
}

// Export snapshots the value behind h.
func (r *qjsRuntime) Export(h core.Handle) (core.Value, error) {
	qh, err := r.own(h)
	if err != nil {
		return core.Undefined, err
	}
	env, err := r.eval(fmt.Sprintf(exportJS, core.ExportJS, jsString(qh.ref)))
	if err != nil {
		return core.Undefined, err
	}
	return core.DecodeExported(string(env.V))
}

// Close releases the VM. It is safe to call more than once.
func (r *qjsRuntime) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.iso.release(r.vm) {
		r.vm.Close()
	}
	return nil
}

// bind evaluates expr under guardJS into a fresh slot.
func (r *qjsRuntime) bind(expr string) (*qjsHandle, error) {
	r.nextRef++
	ref := fmt.Sprintf("ref_%d", r.nextRef)
	env, err := r.eval(fmt.Sprintf(guardJS, expr, jsString(ref), core.TypeOfJS))
	if err != nil {
		return nil, err
	}
	return &qjsHandle{ref: ref, typ: core.ParseValueType(env.T)}, nil
}

// eval runs a guarded script and decodes its envelope.
func (r *qjsRuntime) eval(js string) (*envelope, error) {
	if err := r.iso.checkInterrupted(); err != nil {
		return nil, err
	}
	result, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return nil, err
	}
	s, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("expected string reply, got %T", result)
	}
	var env envelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		return nil, fmt.Errorf("decoding guest reply: %w", err)
	}
	if env.X {
		return nil, &core.GuestError{Message: env.M, Stack: env.S}
	}
	return &env, nil
}

func (r *qjsRuntime) own(h core.Handle) (*qjsHandle, error) {
	qh, ok := h.(*qjsHandle)
	if !ok {
		return nil, fmt.Errorf("handle %T does not belong to this runtime", h)
	}
	return qh, nil
}

// jsString quotes s as a JavaScript string literal. JSON string syntax is
// a subset of JavaScript's, and encoding/json escapes U+2028/U+2029.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Bulk numeric transfer.

// initSlots installs the slots holder before any guest code runs.
func (r *qjsRuntime) initSlots() error {
	if _, err := r.vm.Eval(initSlotsJS, quickjs.EvalGlobal); err != nil {
		return fmt.Errorf("installing value slots: %w", err)
	}
	return nil
}

// initBinaryTransfer resolves the C-level handles ToGuestNumbers needs to
// hand a float64 buffer to QuickJS without formatting it as text. When
// they cannot be resolved, numeric arrays go through JSON like any other
// argument.
func (r *qjsRuntime) initBinaryTransfer() {
	if err := r.resolveCHandles(); err != nil {
		r.useFallback = true
	}
}

// resolveCHandles reads the JSContext and libc.TLS out of the VM, which
// modernc.org/quickjs keeps unexported. The layout it relies on is
// VM{cContext uintptr, ..., runtime *runtime} and
// runtime{cRuntime uintptr, tls *libc.TLS}; a missing field or a nil
// pointer disables the fast path.
func (r *qjsRuntime) resolveCHandles() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("reading VM layout: %v", p)
		}
	}()

	base := uintptr(unsafe.Pointer(r.vm))
	vmType := reflect.TypeOf(r.vm).Elem()

	if f, ok := vmType.FieldByName("cContext"); !ok || f.Offset != 0 {
		return fmt.Errorf("quickjs.VM has no leading cContext field")
	}
	r.ctx = *(*uintptr)(unsafe.Pointer(base))
	if r.ctx == 0 {
		return fmt.Errorf("VM has no context")
	}

	rtField, ok := vmType.FieldByName("runtime")
	if !ok {
		return fmt.Errorf("quickjs.VM has no runtime field")
	}
	rtPtr := *(*uintptr)(unsafe.Pointer(base + rtField.Offset))
	if rtPtr == 0 {
		return fmt.Errorf("VM has no runtime")
	}

	r.tls = *(**libc.TLS)(unsafe.Pointer(rtPtr + unsafe.Sizeof(uintptr(0))))
	if r.tls == nil {
		return fmt.Errorf("runtime has no TLS")
	}
	return nil
}

// ToGuestNumbers copies nums into an ArrayBuffer with one
// JS_NewArrayBufferCopy, parks it in the slots holder and expands it into
// a plain array in the guest. The buffer slot is removed by the same
// evaluation that reads it.
func (r *qjsRuntime) ToGuestNumbers(nums []float64) (core.Handle, error) {
	if len(nums) == 0 || r.useFallback {
		elems := make([]core.Value, len(nums))
		for i, n := range nums {
			elems[i] = core.Number(n)
		}
		return r.ToGuest(core.Array(elems...))
	}
	for _, n := range nums {
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("non-finite number in array")
		}
	}

	data := make([]byte, 8*len(nums))
	for i, n := range nums {
		binary.NativeEndian.PutUint64(data[8*i:], math.Float64bits(n))
	}

	r.nextRef++
	key := fmt.Sprintf("buf_%d", r.nextRef)
	if err := r.park(key, data); err != nil {
		return nil, err
	}

	return r.bind(fmt.Sprintf(
		"(function(h, k) { var b = h[k]; delete h[k]; return Array.prototype.slice.call(new Float64Array(b)); })(%s, %s)",
		slotsJS, jsString(key)))
}

// park stores a copy of data as an ArrayBuffer under key in the slots
// holder.
func (r *qjsRuntime) park(key string, data []byte) error {
	cHolder, err := libc.CString(slotsName)
	if err != nil {
		return fmt.Errorf("allocating holder name: %w", err)
	}
	defer libc.Xfree(r.tls, cHolder)
	cKey, err := libc.CString(key)
	if err != nil {
		return fmt.Errorf("allocating slot name: %w", err)
	}
	defer libc.Xfree(r.tls, cKey)

	glob := lib.XJS_GetGlobalObject(r.tls, r.ctx)
	holder := lib.XJS_GetPropertyStr(r.tls, r.ctx, glob, cHolder)
	lib.XFreeValue(r.tls, r.ctx, glob)
	defer lib.XFreeValue(r.tls, r.ctx, holder)

	buf := lib.XJS_NewArrayBufferCopy(r.tls, r.ctx, uintptr(unsafe.Pointer(&data[0])), lib.Tsize_t(len(data)))
	// JS_SetPropertyStr takes ownership of buf, even on failure.
	if lib.XJS_SetPropertyStr(r.tls, r.ctx, holder, cKey, buf) < 0 {
		return fmt.Errorf("storing %q in value slots", key)
	}
	return nil
}
