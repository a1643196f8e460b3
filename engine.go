package jscall

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/jscall/internal/core"
	"github.com/cryguy/jscall/internal/invoker"
	"github.com/cryguy/jscall/internal/source"
)

// Engine owns one isolate and runs guest calls in it one at a time.
// Calls from several goroutines are serialized.
type Engine struct {
	platform *Platform
	cfg      Config
	logger   *zap.Logger
	invoker  *invoker.Invoker

	mu     sync.Mutex
	iso    core.Isolate
	closed bool
}

// NewEngine creates an engine on p. cfg is validated first; a nil Loader
// reads sources from disk and a nil Logger disables logging.
func NewEngine(p *Platform, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, core.NewError(core.KindPlatform, "platform is not initialized")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Loader == nil {
		cfg.Loader = &source.FileLoader{MaxSizeKB: cfg.MaxScriptSizeKB}
	}

	if err := p.acquire(); err != nil {
		return nil, err
	}
	iso, err := p.newIsolate(core.IsolateConfig{MemoryLimitMB: cfg.MemoryLimitMB})
	if err != nil {
		p.release()
		return nil, asPlatformError(err)
	}

	cfg.Logger.Info("engine created",
		zap.String("engine", p.Engine()),
		zap.Int("memory_limit_mb", cfg.MemoryLimitMB),
		zap.String("timeout", timeoutString(cfg.ExecutionTimeout)))

	return &Engine{
		platform: p,
		cfg:      cfg,
		logger:   cfg.Logger,
		invoker:  invoker.New(cfg.Loader, cfg.Target, cfg.Logger),
		iso:      iso,
	}, nil
}

// Isolate returns the isolate calls currently run in. It changes after
// an interrupted call.
func (e *Engine) Isolate() core.Isolate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.iso
}

// Close disposes the isolate. Calling it again is a no-op.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.platform.release()

	if err := e.iso.Dispose(); err != nil {
		return fmt.Errorf("disposing isolate: %w", err)
	}
	e.logger.Info("engine closed", zap.String("engine", e.platform.Engine()))
	return nil
}

// Invoke runs req and returns the exported result once it matches shape.
// The call is interrupted when ctx is cancelled or the configured
// ExecutionTimeout elapses.
func (e *Engine) Invoke(ctx context.Context, req Request, shape Shape) (val Value, err error) {
	if err := ctx.Err(); err != nil {
		return core.Undefined, &core.Error{Kind: core.KindInterrupted, Path: req.Path, Function: req.Function,
			Message: "context done before call", Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return core.Undefined, &core.Error{Kind: core.KindEngineClosed, Path: req.Path, Function: req.Function,
			Message: "engine is closed"}
	}

	start := time.Now()
	iso := e.iso

	var timedOut, cancelled atomic.Bool
	timeout := e.cfg.ExecutionTimeout
	var watchdog *time.Timer
	if timeout > 0 {
		watchdog = time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			iso.Interrupt()
		})
	}
	stopCtx := context.AfterFunc(ctx, func() {
		cancelled.Store(true)
		iso.Interrupt()
	})

	defer func() {
		stopCtx()
		if watchdog != nil {
			watchdog.Stop()
		}
		if r := recover(); r != nil {
			err = core.NewError(core.KindInvocation, fmt.Sprintf("engine panic: %v", r))
			e.replaceIsolate("panic")
		}

		// An interrupt that lands after the call returned may still be
		// pending, so the isolate is replaced even on success.
		switch {
		case timedOut.Load():
			if err != nil {
				err = interrupted(req, fmt.Sprintf("execution timed out (limit: %v)", timeout), err)
			}
			e.replaceIsolate("timeout")
		case cancelled.Load():
			if err != nil {
				err = interrupted(req, "context done during call", errors.Join(err, ctx.Err()))
			}
			e.replaceIsolate("cancelled")
		}
		if err != nil {
			val = core.Undefined
			e.logger.Warn("call failed",
				zap.String("path", req.Path),
				zap.String("function", req.Function),
				zap.Stringer("kind", core.KindOf(err)),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
			return
		}
		e.logger.Debug("call finished",
			zap.String("path", req.Path),
			zap.String("function", req.Function),
			zap.Duration("elapsed", time.Since(start)))
	}()

	return e.invoker.Invoke(iso, req, shape)
}

// replaceIsolate swaps in a fresh isolate after the current one was
// interrupted or panicked. Caller holds e.mu.
func (e *Engine) replaceIsolate(reason string) {
	old := e.iso
	fresh, err := e.platform.newIsolate(core.IsolateConfig{MemoryLimitMB: e.cfg.MemoryLimitMB})
	if err != nil {
		e.logger.Error("replacing isolate", zap.String("reason", reason), zap.Error(err))
		return
	}
	e.iso = fresh
	if err := old.Dispose(); err != nil {
		e.logger.Warn("disposing interrupted isolate", zap.Error(err))
	}
	e.logger.Warn("isolate replaced", zap.String("reason", reason))
}

func interrupted(req Request, msg string, cause error) *core.Error {
	return &core.Error{Kind: core.KindInterrupted, Path: req.Path, Function: req.Function, Message: msg, Err: cause}
}

func asPlatformError(err error) error {
	var e *core.Error
	if errors.As(err, &e) {
		return e
	}
	return core.WrapError(core.KindPlatform, err)
}
