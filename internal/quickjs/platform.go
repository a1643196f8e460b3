//go:build !v8

package quickjs

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/cryguy/jscall/internal/core"
	"modernc.org/quickjs"
)

// Platform is the QuickJS implementation of core.Platform. QuickJS has no
// process-wide state of its own, so Initialize only proves that a VM can
// be created and evaluate code.
type Platform struct {
	once        sync.Once
	initErr     error
	mu          sync.Mutex
	initialized bool
	shutdown    bool
}

var _ core.Platform = (*Platform)(nil)

// NewPlatform returns an uninitialized QuickJS platform.
func NewPlatform() *Platform {
	return &Platform{}
}

// Name returns "quickjs".
func (p *Platform) Name() string { return "quickjs" }

// Version returns the linked modernc.org/quickjs module version.
func (p *Platform) Version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "modernc.org/quickjs" {
				return dep.Version
			}
		}
	}
	return "unknown"
}

// Initialize runs a probe VM once. Later calls return the first result.
func (p *Platform) Initialize(core.PlatformOptions) error {
	p.once.Do(func() {
		p.initErr = probe()
		p.mu.Lock()
		p.initialized = p.initErr == nil
		p.mu.Unlock()
	})
	return p.initErr
}

func probe() error {
	vm, err := quickjs.NewVM()
	if err != nil {
		return fmt.Errorf("creating QuickJS VM: %w", err)
	}
	defer vm.Close()

	result, err := vm.Eval("1 + 1", quickjs.EvalGlobal)
	if err != nil {
		return fmt.Errorf("evaluating probe script: %w", err)
	}
	if fmt.Sprint(result) != "2" {
		return fmt.Errorf("probe script returned %v", result)
	}
	return nil
}

// NewIsolate returns an isolate bound to cfg's memory limit.
func (p *Platform) NewIsolate(cfg core.IsolateConfig) (core.Isolate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized || p.shutdown {
		return nil, core.NewError(core.KindPlatform, "quickjs platform is not initialized")
	}
	return &Isolate{cfg: cfg}, nil
}

// Shutdown marks the platform unusable for new isolates.
func (p *Platform) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	return nil
}
