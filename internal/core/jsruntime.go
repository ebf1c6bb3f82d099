package core

// JSRuntime is the engine surface the Web API glue and the event loop are
// written against. Both backends implement it; every method must be called
// on the goroutine that owns the engine.
type JSRuntime interface {
	// Eval runs js in the global scope.
	Eval(js string) error

	// EvalString, EvalBool and EvalInt run js and convert its completion
	// value.
	EvalString(js string) (string, error)
	EvalBool(js string) (bool, error)
	EvalInt(js string) (int, error)

	// RegisterFunc installs fn as a global function. A non-nil error
	// result is thrown into the script as a TypeError.
	RegisterFunc(name string, fn any) error

	// SetGlobal assigns a Go string, number or bool to a global.
	SetGlobal(name string, value any) error

	// RunMicrotasks runs queued promise reactions until none remain.
	RunMicrotasks()
}
