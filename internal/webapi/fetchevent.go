package webapi

import (
	"fmt"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// fetchEventJS supports both handler styles: module workers exporting
// fetch(request, env, ctx) and service-worker scripts calling
// addEventListener('fetch', ...) with respondWith.
const fetchEventJS = `
(function() {
	const listeners = {};

	globalThis.__waitUntilPromises = [];

	class ExecutionContext {
		waitUntil(p) { globalThis.__waitUntilPromises.push(Promise.resolve(p)); }
		passThroughOnException() {}
	}

	class FetchEvent {
		constructor(request) {
			this.type = 'fetch';
			this.request = request;
			this._response = undefined;
			this._responded = false;
		}
		respondWith(r) {
			if (this._responded) throw new Error('respondWith() already called');
			this._responded = true;
			this._response = r;
		}
		waitUntil(p) { globalThis.__waitUntilPromises.push(Promise.resolve(p)); }
		passThroughOnException() {}
	}

	globalThis.addEventListener = function(type, fn) {
		if (typeof fn !== 'function') return;
		(listeners[type] || (listeners[type] = [])).push(fn);
	};
	globalThis.removeEventListener = function(type, fn) {
		if (!listeners[type]) return;
		listeners[type] = listeners[type].filter(f => f !== fn);
	};

	globalThis.__hasFetchHandler = function() {
		const m = globalThis.__worker_module__;
		if (m && typeof m.fetch === 'function') return true;
		return !!(listeners.fetch && listeners.fetch.length > 0);
	};

	globalThis.__dispatchFetch = function(request, env, ctx) {
		const m = globalThis.__worker_module__;
		if (m && typeof m.fetch === 'function') return m.fetch(request, env, ctx);
		const ev = new FetchEvent(request);
		for (const fn of listeners.fetch || []) {
			fn.call(globalThis, ev);
			if (ev._responded) break;
		}
		if (!ev._responded) throw new Error('fetch event listener did not call respondWith()');
		return ev._response;
	};

	globalThis.ExecutionContext = ExecutionContext;
	globalThis.FetchEvent = FetchEvent;
})();
`

// SetupFetchEvent installs handler registration and dispatch.
func SetupFetchEvent(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	if err := rt.Eval(fetchEventJS); err != nil {
		return fmt.Errorf("evaluating fetchevent.js: %w", err)
	}
	return nil
}

// HasFetchHandler reports whether the loaded script registered a handler.
func HasFetchHandler(rt core.JSRuntime) (bool, error) {
	return rt.EvalBool("globalThis.__hasFetchHandler()")
}
