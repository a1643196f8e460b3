package core

// JSRuntime abstracts one guest execution context (V8 context or QuickJS
// VM) behind the operations the invoker needs. A JSRuntime is created for
// a single invocation and closed when it returns.
type JSRuntime interface {
	// Compile parses source without running it. Syntax errors come back
	// as *GuestError.
	Compile(origin, source string) (Script, error)

	// ToGuest materializes v inside the context.
	ToGuest(v Value) (Handle, error)

	// Global returns the named property of the global object.
	Global(name string) (Handle, error)

	// Call invokes fn with the global object as receiver. A guest throw
	// comes back as *GuestError.
	Call(fn Handle, args []Handle) (Handle, error)

	// Export snapshots a guest value into a host Value.
	Export(h Handle) (Value, error)

	// Close releases the context and every handle created in it.
	Close() error
}

// Script is a compiled guest program bound to the JSRuntime that
// compiled it.
type Script interface {
	// Run executes the program's top level once.
	Run() error
}

// Handle is a reference to a value living inside a JSRuntime. It is only
// valid until the runtime is closed.
type Handle interface {
	Type() ValueType
}

// BinaryTransferer is an optional interface that JSRuntime implementations
// can provide to move numeric arrays without per-element conversion.
type BinaryTransferer interface {
	// ToGuestNumbers materializes nums as a plain guest array of numbers.
	ToGuestNumbers(nums []float64) (Handle, error)
}
