//go:build !v8

package quickjs

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cryguy/jscall/internal/core"
	"modernc.org/quickjs"
)

// Isolate is the QuickJS implementation of core.Isolate. A quickjs.VM
// couples a runtime with a single context, so every NewContext builds a
// fresh VM under the isolate's memory limit; the isolate tracks the one
// that is live so Interrupt can reach it.
type Isolate struct {
	cfg core.IsolateConfig

	mu       sync.Mutex
	current  *quickjs.VM
	disposed bool

	// interrupted stays set once Interrupt is called. The VM clears its
	// own flag at the start of every evaluation, so an interrupt that
	// lands between two evaluations is only seen through this one.
	interrupted atomic.Bool
}

var _ core.Isolate = (*Isolate)(nil)

// NewContext creates a VM with a clean global object.
func (i *Isolate) NewContext() (core.JSRuntime, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil, core.NewError(core.KindEngineClosed, "isolate has been disposed")
	}
	if i.current != nil {
		return nil, core.NewError(core.KindEngineClosed, "isolate already has an active context")
	}

	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if i.cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(i.cfg.MemoryLimitMB) * 1024 * 1024)
	}

	rt := &qjsRuntime{vm: vm, iso: i}
	if err := rt.initSlots(); err != nil {
		vm.Close()
		return nil, err
	}
	rt.initBinaryTransfer()
	i.current = vm
	return rt, nil
}

// Interrupt aborts whatever the live VM is running and makes every later
// evaluation on this isolate fail.
func (i *Isolate) Interrupt() {
	i.interrupted.Store(true)
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current != nil {
		i.current.Interrupt()
	}
}

func (i *Isolate) checkInterrupted() error {
	if i.interrupted.Load() {
		return &core.GuestError{Message: "InternalError: interrupted"}
	}
	return nil
}

// Dispose closes the live VM, if any, and rejects new contexts.
func (i *Isolate) Dispose() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.disposed {
		return nil
	}
	i.disposed = true
	if i.current != nil {
		i.current.Close()
		i.current = nil
	}
	return nil
}

// release forgets vm once its context is closed. It reports false when
// Dispose already closed the VM.
func (i *Isolate) release(vm *quickjs.VM) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.current != vm {
		return false
	}
	i.current = nil
	return true
}
