package webapi

import (
	"fmt"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// SetupFunc installs one group of globals into a fresh runtime.
type SetupFunc func(rt core.JSRuntime, el *eventloop.EventLoop) error

// Setups returns the setup functions every context runs, in dependency
// order. Console output is captured into logs.
func Setups(logs *core.LogBuffer) []SetupFunc {
	return []SetupFunc{
		SetupEncoding,
		SetupGlobals,
		SetupConsole(logs),
		SetupTimers,
		SetupWebAPIs,
		SetupFetchEvent,
	}
}

// Install runs fns against rt in order.
func Install(rt core.JSRuntime, el *eventloop.EventLoop, fns []SetupFunc) error {
	for _, setup := range fns {
		if err := setup(rt, el); err != nil {
			return fmt.Errorf("setup: %w", err)
		}
	}
	return nil
}

// Load evaluates the script body in rt and checks that it registered a
// fetch handler. Failures are reported as *core.CompileError.
func Load(rt core.JSRuntime, source string) error {
	if err := rt.Eval(WrapESModule(source)); err != nil {
		return &core.CompileError{Err: err}
	}
	rt.RunMicrotasks()
	ok, err := HasFetchHandler(rt)
	if err != nil {
		return &core.CompileError{Err: err}
	}
	if !ok {
		return &core.CompileError{Err: core.ErrNoHandler}
	}
	return nil
}
