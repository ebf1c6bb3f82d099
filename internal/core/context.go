package core

// ScriptContext is one isolated engine instance with the script loaded.
// A context is owned by exactly one worker goroutine and must never be
// called from any other goroutine, with the single exception of Interrupt.
type ScriptContext interface {
	// Handle invokes the script's fetch handler for req. Script exceptions
	// come back as *ScriptError{Kind: Thrown}; engine faults as Internal.
	Handle(req *Request) (*Response, []LogEntry, error)

	// Interrupt asks the engine to abort the running invocation at its next
	// safe point. It is the only method that may be called from another
	// goroutine. The context must be closed after an interrupted call.
	Interrupt()

	// Close releases the engine instance.
	Close()
}

// ContextFactory creates script contexts. Implementations are provided by
// the engine backends.
type ContextFactory interface {
	// New compiles source into a fresh context. A *CompileError is returned
	// when the source is invalid or registers no handler.
	New(source string) (ScriptContext, error)

	// Name identifies the engine, e.g. "quickjs".
	Name() string
}
