//go:build v8

package v8engine

import (
	"sync"

	"github.com/cryguy/jscall/internal/core"
	v8 "github.com/tommie/v8go"
)

// Platform is the V8 implementation of core.Platform. v8go sets up the V8
// platform and thread pool when the package loads; Initialize applies
// command-line flags, which V8 only honours before the first isolate.
type Platform struct {
	once        sync.Once
	mu          sync.Mutex
	initialized bool
	shutdown    bool
}

var _ core.Platform = (*Platform)(nil)

// NewPlatform returns an uninitialized V8 platform.
func NewPlatform() *Platform {
	return &Platform{}
}

// Name returns "v8".
func (p *Platform) Name() string { return "v8" }

// Version returns the embedded V8 version.
func (p *Platform) Version() string { return v8.Version() }

// Initialize applies opts.Flags once.
func (p *Platform) Initialize(opts core.PlatformOptions) error {
	p.once.Do(func() {
		if len(opts.Flags) > 0 {
			v8.SetFlags(opts.Flags...)
		}
		p.mu.Lock()
		p.initialized = true
		p.mu.Unlock()
	})
	return nil
}

// NewIsolate creates a V8 isolate. A memory limit becomes the isolate's
// resource constraints: half for the initial heap, all of it as maximum.
func (p *Platform) NewIsolate(cfg core.IsolateConfig) (core.Isolate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized || p.shutdown {
		return nil, core.NewError(core.KindPlatform, "v8 platform is not initialized")
	}

	var iso *v8.Isolate
	if cfg.MemoryLimitMB > 0 {
		heapSize := uint64(cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	return &Isolate{iso: iso}, nil
}

// Shutdown marks the platform unusable for new isolates. v8go owns the
// V8 platform itself and tears it down at process exit.
func (p *Platform) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shutdown = true
	return nil
}
