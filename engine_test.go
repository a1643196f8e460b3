package jscall

import (
	"context"
	"errors"
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func script(name string) string { return filepath.Join("testdata", name) }

func newTestEngine(t *testing.T, mutate ...func(*Config)) *Engine {
	t.Helper()
	p, err := InitPlatform()
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MemoryLimitMB = 64
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(p, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestTwoSum(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	nums := Ints{1, 2, 3, 4, 5}

	got, err := CallInts(ctx, e, script("two_sum.js"), "two_sum", nums, Int(9))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)

	got, err = CallInts(ctx, e, script("two_sum.js"), "two_sum", nums, Int(20))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestTwoSumProperty(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 25; round++ {
		nums := make(Ints, rng.Intn(12))
		for i := range nums {
			nums[i] = rng.Intn(41) - 20
		}
		target := rng.Intn(41) - 20

		got, err := CallInts(ctx, e, script("two_sum.js"), "two_sum", nums, Int(target))
		require.NoError(t, err)
		if len(got) == 0 {
			for i := range nums {
				for j := i + 1; j < len(nums); j++ {
					assert.NotEqual(t, target, nums[i]+nums[j], "missed pair %d,%d in %v", i, j, nums)
				}
			}
			continue
		}
		require.Len(t, got, 2)
		assert.NotEqual(t, got[0], got[1])
		assert.Equal(t, target, nums[got[0]]+nums[got[1]])
	}
}

func TestTwoSumTypeScript(t *testing.T) {
	e := newTestEngine(t)
	got, err := CallInts(context.Background(), e, script("two_sum.ts"), "two_sum", Ints{1, 2, 3, 4, 5}, Int(9))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)
}

func TestTwoSumDownLevelled(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Target = "es2015" })
	got, err := CallInts(context.Background(), e, script("two_sum.js"), "two_sum", Ints{1, 2, 3, 4, 5}, Int(9))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)
}

func TestQuickselect(t *testing.T) {
	e := newTestEngine(t)
	nums := Ints{1, 2, 3, 4, 5}
	got, err := CallInt(context.Background(), e, script("quickselect.js"), "quickselect", nums, Int(0), Int(len(nums)-1), Int(2))
	require.NoError(t, err)
	assert.Equal(t, 3, got)

	got, err = CallInt(context.Background(), e, script("quickselect.js"), "quickselect", Ints{9, 4, 7, 1}, Int(0), Int(3), Int(0))
	require.NoError(t, err)
	assert.Equal(t, 1, got)
}

func TestSubarrays(t *testing.T) {
	e := newTestEngine(t)
	nums := []int{1, 2, 3, 4, 5}
	got, err := CallIntMatrix(context.Background(), e, script("subarrays.js"), "gen_subarrays", Ints(nums))
	require.NoError(t, err)
	require.Len(t, got, 15)

	var want [][]int
	for start := 0; start < len(nums); start++ {
		for end := start + 1; end <= len(nums); end++ {
			want = append(want, nums[start:end])
		}
	}
	assert.Equal(t, want, got)
}

func TestRaggedMatrix(t *testing.T) {
	e := newTestEngine(t)
	got, err := CallIntMatrix(context.Background(), e, script("shapes.js"), "ragged")
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1}, {2, 3, 4}, {}, {5, 6}}, got)
}

func TestIntsRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	for n := 0; n <= 40; n++ {
		in := make(Ints, n)
		for i := range in {
			in[i] = (i*37)%101 - 50
		}
		got, err := CallInts(context.Background(), e, script("shapes.js"), "identity", in)
		require.NoError(t, err)
		assert.Equal(t, []int(in), got, "length %d", n)
	}
}

func TestCallsAreIndependent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		n, err := CallInt(ctx, e, script("shapes.js"), "bump")
		require.NoError(t, err)
		assert.Equal(t, 1, n, "call %d", i)
	}

	n, err := CallInt(ctx, e, script("leak.js"), "define_global")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = CallInt(ctx, e, script("leak.js"), "read_global")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReceiverAndArguments(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n, err := CallInt(ctx, e, script("shapes.js"), "receiver_is_global")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = CallInt(ctx, e, script("shapes.js"), "arg_count", Int(1), Ints{2}, Int(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = CallInt(ctx, e, script("shapes.js"), "sum", Ints{1, 2, 3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 15, n)
}

func TestNumberTruncation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	n, err := CallInt(ctx, e, script("shapes.js"), "fraction")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = CallInt(ctx, e, script("shapes.js"), "negative_fraction")
	require.NoError(t, err)
	assert.Equal(t, -2, n)
}

func TestCallErrors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		fn       string
		call     func(ctx context.Context, e *Engine, path, fn string) error
		kind     ErrorKind
		sentinel error
		contains string
	}{
		{name: "missing file", path: "testdata/nope.js", fn: "f", kind: KindSourceRead, sentinel: ErrSourceRead},
		{name: "syntax error", path: "syntax_error.js", fn: "broken", kind: KindCompile, sentinel: ErrCompile, contains: "SyntaxError"},
		{name: "top-level return", path: "top_level_return.js", fn: "early", kind: KindCompile, sentinel: ErrCompile},
		{name: "unsafe integer", path: "shapes.js", fn: "identity", kind: KindArgument, sentinel: ErrArgument, contains: "element [1]",
			call: func(ctx context.Context, e *Engine, path, fn string) error {
				_, err := CallInts(ctx, e, path, fn, Ints{1, 1<<53 + 1})
				return err
			}},
		{name: "top-level throw", path: "throws_at_top.js", fn: "unreachable", kind: KindRun, sentinel: ErrRun, contains: "boom at load"},
		{name: "function not found", path: "two_sum.js", fn: "three_sum", kind: KindFunctionNotFound, sentinel: ErrFunctionNotFound, contains: "three_sum"},
		{name: "not callable", path: "shapes.js", fn: "not_callable", kind: KindNotCallable, sentinel: ErrNotCallable},
		{name: "guest throw", path: "shapes.js", fn: "fails", kind: KindInvocation, sentinel: ErrInvocation, contains: "Error: kaboom",
			call: func(ctx context.Context, e *Engine, path, fn string) error {
				_, err := Call(ctx, e, path, fn, DecodeValue, Raw(String("kaboom")))
				return err
			}},
		{name: "thrown string", path: "shapes.js", fn: "fails_with_string", kind: KindInvocation, sentinel: ErrInvocation, contains: "plain string"},
		{name: "empty return", path: "shapes.js", fn: "nothing", kind: KindEmptyReturn, sentinel: ErrEmptyReturn},
		{name: "number expected", path: "shapes.js", fn: "text", kind: KindUnexpectedShape, sentinel: ErrUnexpectedShape, contains: "expected number, got string"},
		{name: "array expected", path: "shapes.js", fn: "fraction", kind: KindUnexpectedShape, sentinel: ErrUnexpectedShape,
			call: func(ctx context.Context, e *Engine, path, fn string) error {
				_, err := CallInts(ctx, e, path, fn)
				return err
			}},
		{name: "matrix expected", path: "shapes.js", fn: "mixed_rows", kind: KindUnexpectedShape, sentinel: ErrUnexpectedShape, contains: "array containing number",
			call: func(ctx context.Context, e *Engine, path, fn string) error {
				_, err := CallIntMatrix(ctx, e, path, fn)
				return err
			}},
		{name: "NaN", path: "shapes.js", fn: "not_a_number", kind: KindElementConversion, sentinel: ErrElementConversion, contains: "NaN"},
	}

	e := newTestEngine(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if filepath.Dir(path) == "." {
				path = script(path)
			}
			call := tt.call
			if call == nil {
				call = func(ctx context.Context, e *Engine, path, fn string) error {
					_, err := CallInt(ctx, e, path, fn)
					return err
				}
			}

			err := call(context.Background(), e, path, tt.fn)
			require.Error(t, err)
			assert.Equal(t, tt.kind, KindOf(err), err.Error())
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), tt.contains)

			var jerr *Error
			require.ErrorAs(t, err, &jerr)
			assert.Equal(t, path, jerr.Path)
			assert.Equal(t, tt.fn, jerr.Function)

			got, err := CallInts(context.Background(), e, script("two_sum.js"), "two_sum", Ints{1, 2, 3, 4, 5}, Int(9))
			require.NoError(t, err, "engine must stay usable")
			assert.Equal(t, []int{3, 4}, got)
		})
	}
}

func TestCompileErrorCarriesDiagnostic(t *testing.T) {
	e := newTestEngine(t)
	_, err := CallInt(context.Background(), e, script("syntax_error.js"), "broken")
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, KindCompile, jerr.Kind)
	assert.NotEmpty(t, jerr.Message)
}

func TestTimeoutInterruptsAndEngineRecovers(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.ExecutionTimeout = 100 * time.Millisecond })
	before := e.Isolate()

	start := time.Now()
	_, err := CallInt(context.Background(), e, script("shapes.js"), "spin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.NotSame(t, before, e.Isolate())

	got, err := CallInts(context.Background(), e, script("two_sum.js"), "two_sum", Ints{1, 2, 3, 4, 5}, Int(9))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 4}, got)
}

func TestContextCancellation(t *testing.T) {
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := CallInt(ctx, e, script("shapes.js"), "bump")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, errors.Is(err, context.Canceled))

	ctx, cancel = context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = CallInt(ctx, e, script("shapes.js"), "spin")
	assert.ErrorIs(t, err, ErrInterrupted)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	n, err := CallInt(context.Background(), e, script("shapes.js"), "bump")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestEngineClose(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := CallInt(context.Background(), e, script("shapes.js"), "bump")
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	p, err := InitPlatform()
	require.NoError(t, err)

	_, err = NewEngine(p, Config{MemoryLimitMB: -1})
	assert.Error(t, err)
	_, err = NewEngine(p, Config{Target: "es3"})
	assert.Error(t, err)
	_, err = NewEngine(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrPlatform)
}

type memLoader map[string]string

func (m memLoader) Load(path string) (string, error) {
	if src, ok := m[path]; ok {
		return src, nil
	}
	return "", errors.New("not in memory")
}

func TestCustomLoader(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Loader = memLoader{"mem://double": "function double(xs) { return xs.map(function (x) { return x * 2; }); }"}
	})
	got, err := CallInts(context.Background(), e, "mem://double", "double", Ints{1, -2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{2, -4, 6}, got)

	_, err = CallInts(context.Background(), e, "mem://missing", "double")
	assert.ErrorIs(t, err, ErrSourceRead)
}

type sentinelLoader struct{}

func (sentinelLoader) Load(string) (string, error) { return "", ErrSourceRead }

func TestLoaderSentinelIsNotModified(t *testing.T) {
	e := newTestEngine(t, func(c *Config) { c.Loader = sentinelLoader{} })

	for _, path := range []string{"a.js", "b.js"} {
		_, err := CallInt(context.Background(), e, path, "f")
		assert.ErrorIs(t, err, ErrSourceRead)
		var jerr *Error
		require.ErrorAs(t, err, &jerr)
		assert.Equal(t, path, jerr.Path)
		assert.NotSame(t, ErrSourceRead, jerr)
	}

	assert.Equal(t, "source-read", ErrSourceRead.Error())
	assert.Empty(t, ErrSourceRead.Path)
	assert.Empty(t, ErrSourceRead.Function)
}

func TestEngineLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	e := newTestEngine(t, func(c *Config) { c.Logger = zap.New(core) })

	_, err := CallInt(context.Background(), e, script("two_sum.js"), "missing")
	require.Error(t, err)

	failed := logs.FilterMessage("call failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "function-not-found", failed[0].ContextMap()["kind"])
}

func TestPlatformShutdownRefusedWhileEngineOpen(t *testing.T) {
	p, err := openPlatform(newPlatform(), platformOptions{})
	require.NoError(t, err)

	e, err := NewEngine(p, DefaultConfig())
	require.NoError(t, err)

	err = p.Shutdown()
	assert.ErrorIs(t, err, ErrPlatform)
	assert.Contains(t, err.Error(), "1 engine(s) still open")

	require.NoError(t, e.Close())
	require.NoError(t, p.Shutdown())
	require.NoError(t, p.Shutdown())

	_, err = NewEngine(p, DefaultConfig())
	assert.ErrorIs(t, err, ErrPlatform)
}

func TestInitPlatformIsIdempotent(t *testing.T) {
	a, err := InitPlatform()
	require.NoError(t, err)
	b, err := InitPlatform(WithV8Flags("--max-lazy"))
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.NotEmpty(t, a.Engine())
	assert.NotEmpty(t, a.Version())
}
