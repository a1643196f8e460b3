//go:build v8

package v8engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryguy/jscall/internal/core"
)

func newTestIsolate(t *testing.T) *Isolate {
	t.Helper()
	p := NewPlatform()
	require.NoError(t, p.Initialize(core.PlatformOptions{}))
	iso, err := p.NewIsolate(core.IsolateConfig{MemoryLimitMB: 64})
	require.NoError(t, err)
	t.Cleanup(func() { _ = iso.Dispose() })
	return iso.(*Isolate)
}

func load(t *testing.T, iso *Isolate, src string) core.JSRuntime {
	t.Helper()
	rt, err := iso.NewContext()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	script, err := rt.Compile("test.js", src)
	require.NoError(t, err)
	require.NoError(t, script.Run())
	return rt
}

func TestRuntimeRoundTrip(t *testing.T) {
	rt := load(t, newTestIsolate(t), `function identity(x) { return x; }`)

	in := core.Array(core.Integer(1), core.Number(-2.5), core.Integer(1<<40), core.Array(core.String("s"), core.Bool(false)), core.Value{Type: core.TypeNull})
	arg, err := rt.ToGuest(in)
	require.NoError(t, err)
	fn, err := rt.Global("identity")
	require.NoError(t, err)
	require.Equal(t, core.TypeFunction, fn.Type())

	ret, err := rt.Call(fn, []core.Handle{arg})
	require.NoError(t, err)
	out, err := rt.Export(ret)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRuntimeSurvivesReplacedArrayConstructor(t *testing.T) {
	rt := load(t, newTestIsolate(t), `
Array = function() { throw new Error("hijacked"); };
function length(a) { return a.length; }`)

	arg, err := rt.ToGuest(core.Array(core.Integer(1), core.Integer(2)))
	require.NoError(t, err)
	fn, err := rt.Global("length")
	require.NoError(t, err)
	ret, err := rt.Call(fn, []core.Handle{arg})
	require.NoError(t, err)
	out, err := rt.Export(ret)
	require.NoError(t, err)
	assert.Equal(t, core.Integer(2), out)
}

func TestRuntimeErrors(t *testing.T) {
	iso := newTestIsolate(t)

	rt, err := iso.NewContext()
	require.NoError(t, err)
	_, err = rt.Compile("bad.js", "function broken(x {")
	var ge *core.GuestError
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, ge.Message, "SyntaxError")
	require.NoError(t, rt.Close())

	rt = load(t, iso, `function fails() { throw new RangeError("too far"); }`)
	fn, err := rt.Global("fails")
	require.NoError(t, err)
	_, err = rt.Call(fn, nil)
	require.ErrorAs(t, err, &ge)
	assert.Contains(t, ge.Message, "RangeError: too far")
}

func TestIsolateFreshGlobals(t *testing.T) {
	iso := newTestIsolate(t)
	rt, err := iso.NewContext()
	require.NoError(t, err)
	script, err := rt.Compile("a.js", `var leaked = 1;`)
	require.NoError(t, err)
	require.NoError(t, script.Run())
	require.NoError(t, rt.Close())

	rt = load(t, iso, `function probe() { return typeof leaked; }`)
	h, err := rt.Global("leaked")
	require.NoError(t, err)
	assert.Equal(t, core.TypeUndefined, h.Type())
}

func TestIsolateDisposeRefusesOpenContexts(t *testing.T) {
	iso := newTestIsolate(t)
	rt, err := iso.NewContext()
	require.NoError(t, err)

	assert.ErrorIs(t, iso.Dispose(), core.ErrEngineClosed)
	require.NoError(t, rt.Close())
	assert.NoError(t, iso.Dispose())
}

func TestIsolateInterrupt(t *testing.T) {
	iso := newTestIsolate(t)
	rt := load(t, iso, `function spin() { for (;;) {} }`)
	fn, err := rt.Global("spin")
	require.NoError(t, err)

	timer := time.AfterFunc(50*time.Millisecond, iso.Interrupt)
	defer timer.Stop()

	_, err = rt.Call(fn, nil)
	assert.Error(t, err)
}
