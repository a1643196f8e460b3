package jscall

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cryguy/jscall/internal/core"
)

// Platform is the process-wide engine support every Engine is created
// from. Obtain it once with InitPlatform and pass it to NewEngine.
type Platform struct {
	impl   core.Platform
	logger *zap.Logger

	mu       sync.Mutex
	engines  int
	shutdown bool
}

// PlatformOption configures InitPlatform.
type PlatformOption func(*platformOptions)

type platformOptions struct {
	flags  []string
	logger *zap.Logger
}

// WithV8Flags passes command-line flags to V8. QuickJS builds ignore them.
func WithV8Flags(flags ...string) PlatformOption {
	return func(o *platformOptions) { o.flags = append(o.flags, flags...) }
}

// WithPlatformLogger sets the logger used for platform lifecycle events.
func WithPlatformLogger(l *zap.Logger) PlatformOption {
	return func(o *platformOptions) { o.logger = l }
}

var (
	platformOnce sync.Once
	platform     *Platform
	platformErr  error
)

// InitPlatform initializes the JavaScript engine for this process. Only
// the first call does any work; later calls return the same handle (or
// the same error) and ignore their options.
func InitPlatform(opts ...PlatformOption) (*Platform, error) {
	platformOnce.Do(func() {
		var o platformOptions
		for _, opt := range opts {
			opt(&o)
		}
		platform, platformErr = openPlatform(newPlatform(), o)
	})
	return platform, platformErr
}

func openPlatform(impl core.Platform, o platformOptions) (*Platform, error) {
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := impl.Initialize(core.PlatformOptions{Flags: o.flags}); err != nil {
		o.logger.Error("platform initialization failed", zap.String("engine", impl.Name()), zap.Error(err))
		return nil, &core.Error{Kind: core.KindPlatform, Message: "initializing " + impl.Name(), Err: err}
	}
	o.logger.Info("platform initialized",
		zap.String("engine", impl.Name()),
		zap.String("version", impl.Version()))
	return &Platform{impl: impl, logger: o.logger}, nil
}

// Engine returns the backend name: "quickjs" or "v8".
func (p *Platform) Engine() string { return p.impl.Name() }

// Version returns the backend's version string.
func (p *Platform) Version() string { return p.impl.Version() }

// Shutdown tears the platform down. Every Engine must be closed first.
// Calling it again is a no-op.
func (p *Platform) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil
	}
	if p.engines > 0 {
		return core.NewError(core.KindPlatform, fmt.Sprintf("%d engine(s) still open", p.engines))
	}
	if err := p.impl.Shutdown(); err != nil {
		return &core.Error{Kind: core.KindPlatform, Message: "shutting down " + p.impl.Name(), Err: err}
	}
	p.shutdown = true
	p.logger.Info("platform shut down", zap.String("engine", p.impl.Name()))
	return nil
}

// newIsolate creates an isolate unless the platform is shut down.
func (p *Platform) newIsolate(cfg core.IsolateConfig) (core.Isolate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil, core.NewError(core.KindPlatform, "platform has been shut down")
	}
	return p.impl.NewIsolate(cfg)
}

func (p *Platform) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return core.NewError(core.KindPlatform, "platform has been shut down")
	}
	p.engines++
	return nil
}

func (p *Platform) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engines--
}
