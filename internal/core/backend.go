package core

// Platform is the process-wide engine support that must be initialized
// before any isolate exists. The QuickJS and V8 backends each provide
// one; the root package picks it by build tag.
type Platform interface {
	Name() string
	Version() string
	Initialize(opts PlatformOptions) error
	NewIsolate(cfg IsolateConfig) (Isolate, error)
	Shutdown() error
}

// Isolate is one guest virtual machine. Only one goroutine may use it at
// a time.
type Isolate interface {
	// NewContext creates a fresh global scope.
	NewContext() (JSRuntime, error)

	// Interrupt aborts guest code currently running in the isolate. It is
	// safe to call from any goroutine.
	Interrupt()

	// Dispose releases the isolate. Contexts must be closed first.
	Dispose() error
}

// PlatformOptions tunes one-time engine initialization.
type PlatformOptions struct {
	Flags []string // V8 command-line flags; ignored by QuickJS
}

// IsolateConfig holds per-isolate limits.
type IsolateConfig struct {
	MemoryLimitMB int // 0 means the engine default
}
