//go:build v8

package v8engine

import (
	"sync"

	"github.com/cryguy/jscall/internal/core"
	v8 "github.com/tommie/v8go"
)

// Isolate wraps one V8 isolate. Contexts created from it share the heap
// but each has its own global object.
type Isolate struct {
	iso *v8.Isolate

	mu       sync.Mutex
	live     int
	disposed bool
}

var _ core.Isolate = (*Isolate)(nil)

// NewContext creates a V8 context with a fresh global object.
func (i *Isolate) NewContext() (core.JSRuntime, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil, core.NewError(core.KindEngineClosed, "isolate has been disposed")
	}
	i.live++
	ctx := v8.NewContext(i.iso)
	return &v8Runtime{owner: i, iso: i.iso, ctx: ctx}, nil
}

// Interrupt terminates the JavaScript currently running in the isolate.
func (i *Isolate) Interrupt() {
	i.iso.TerminateExecution()
}

// Dispose releases the isolate. Open contexts are a caller bug and are
// reported instead of crashing V8.
func (i *Isolate) Dispose() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil
	}
	if i.live > 0 {
		return core.NewError(core.KindEngineClosed, "isolate still has open contexts")
	}
	i.disposed = true
	i.iso.Dispose()
	return nil
}

func (i *Isolate) release() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.live--
}
