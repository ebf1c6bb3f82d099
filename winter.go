// Package winter serves a single JavaScript fetch handler over HTTP. A
// fixed pool of workers, each owning one engine context, executes the
// script; the bridge turns HTTP requests into pool jobs and maps their
// results back to responses.
package winter

import (
	"context"
	"net/http"

	"github.com/cryguy/winter/internal/bridge"
	"github.com/cryguy/winter/internal/pool"
	"github.com/cryguy/winter/internal/server"
)

// NewFactory returns the context factory for the engine compiled into the
// binary: QuickJS by default, V8 when built with -tags v8.
func NewFactory(cfg EngineConfig) ContextFactory {
	return newFactory(cfg)
}

// NewPool starts a worker pool running source on the compiled-in engine.
func NewPool(cfg PoolConfig, engine EngineConfig, source string, opts ...PoolOption) (*Pool, error) {
	return pool.New(cfg, source, NewFactory(engine), opts...)
}

// NewHandler returns an http.Handler that serves every request through p.
func NewHandler(p *Pool, opts ...BridgeOption) *Bridge {
	return bridge.New(p, opts...)
}

// Serve listens on addr and serves h until ctx is cancelled, then drains
// open connections. The pool behind h is left running; shut it down once
// Serve returns.
func Serve(ctx context.Context, addr string, h http.Handler, opts ...ServerOption) error {
	r, err := server.NewRunner(addr, h, opts...)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
