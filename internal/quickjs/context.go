//go:build !v8

package quickjs

import (
	"fmt"
	"sync/atomic"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
	"github.com/cryguy/winter/internal/webapi"
	"modernc.org/quickjs"
)

// Factory builds QuickJS script contexts.
type Factory struct {
	cfg core.EngineConfig
}

var _ core.ContextFactory = (*Factory)(nil)

// NewFactory returns a factory whose contexts share cfg.
func NewFactory(cfg core.EngineConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Name implements core.ContextFactory.
func (f *Factory) Name() string { return "quickjs" }

// New creates a VM, installs the Web APIs and loads source into it.
func (f *Factory) New(source string) (core.ScriptContext, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if f.cfg.MemoryLimitMB > 0 {
		vm.SetMemoryLimit(uintptr(f.cfg.MemoryLimitMB) * 1024 * 1024)
	}

	c := &scriptContext{
		vm:   vm,
		rt:   newVMRuntime(vm),
		loop: eventloop.New(),
		cfg:  f.cfg,
	}
	if err := webapi.Install(c.rt, c.loop, webapi.Setups(&c.logs)); err != nil {
		vm.Close()
		return nil, err
	}
	if err := webapi.Load(c.rt, source); err != nil {
		vm.Close()
		return nil, err
	}
	// Output from top-level script code belongs to no request.
	c.logs.Take()
	c.loop.Reset()
	return c, nil
}

// scriptContext is one QuickJS VM with the script loaded.
type scriptContext struct {
	vm          *quickjs.VM
	rt          *vmRuntime
	loop        *eventloop.EventLoop
	logs        core.LogBuffer
	cfg         core.EngineConfig
	interrupted atomic.Bool
}

// Handle implements core.ScriptContext.
func (c *scriptContext) Handle(req *core.Request) (*core.Response, []core.LogEntry, error) {
	resp, err := webapi.Invoke(c.rt, c.loop, webapi.Invocation{
		Request:          req,
		Vars:             c.cfg.Vars,
		MaxResponseBytes: c.cfg.MaxResponseBytes,
		Interrupted:      c.interrupted.Load,
	})
	logs := c.logs.Take()
	if c.interrupted.Load() {
		return nil, logs, &core.ScriptError{Kind: core.Timeout, Message: "execution interrupted", Err: webapi.ErrInterrupted}
	}
	return resp, logs, err
}

// Interrupt makes the running evaluation throw at the next interrupt check.
func (c *scriptContext) Interrupt() {
	c.interrupted.Store(true)
	c.vm.Interrupt()
}

// Close releases the VM.
func (c *scriptContext) Close() {
	c.vm.Close()
}
