//go:build v8

package v8engine

import (
	"sync/atomic"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
	"github.com/cryguy/winter/internal/webapi"
	v8 "github.com/tommie/v8go"
)

// Factory builds V8 script contexts, one isolate each.
type Factory struct {
	cfg core.EngineConfig
}

var _ core.ContextFactory = (*Factory)(nil)

// NewFactory returns a factory whose contexts share cfg.
func NewFactory(cfg core.EngineConfig) *Factory {
	return &Factory{cfg: cfg}
}

// Name implements core.ContextFactory.
func (f *Factory) Name() string { return "v8" }

// New creates an isolate and context, installs the Web APIs and loads
// source into it.
func (f *Factory) New(source string) (core.ScriptContext, error) {
	var iso *v8.Isolate
	if f.cfg.MemoryLimitMB > 0 {
		heapSize := uint64(f.cfg.MemoryLimitMB) * 1024 * 1024
		iso = v8.NewIsolate(v8.WithResourceConstraints(heapSize/2, heapSize))
	} else {
		iso = v8.NewIsolate()
	}
	ctx := v8.NewContext(iso)

	c := &scriptContext{
		iso:  iso,
		ctx:  ctx,
		rt:   &isoRuntime{iso: iso, ctx: ctx},
		loop: eventloop.New(),
		cfg:  f.cfg,
	}
	if err := webapi.Install(c.rt, c.loop, webapi.Setups(&c.logs)); err != nil {
		c.Close()
		return nil, err
	}
	if err := webapi.Load(c.rt, source); err != nil {
		c.Close()
		return nil, err
	}
	c.logs.Take()
	c.loop.Reset()
	return c, nil
}

// scriptContext is one V8 isolate with the script loaded.
type scriptContext struct {
	iso         *v8.Isolate
	ctx         *v8.Context
	rt          *isoRuntime
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
		return nil, logs, &core.ScriptError{Kind: core.Timeout, Message: "execution terminated", Err: webapi.ErrInterrupted}
	}
	return resp, logs, err
}

// Interrupt terminates the script running on the isolate. V8 allows this
// from any goroutine.
func (c *scriptContext) Interrupt() {
	c.interrupted.Store(true)
	c.iso.TerminateExecution()
}

// Close disposes the context and its isolate.
func (c *scriptContext) Close() {
	c.ctx.Close()
	c.iso.Dispose()
}
