package webapi

import (
	"fmt"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// globalsJS defines the small global APIs: queueMicrotask, structuredClone,
// performance and navigator.
const globalsJS = `
globalThis.queueMicrotask = function(fn) {
	if (typeof fn !== 'function') throw new TypeError('queueMicrotask requires a function');
	Promise.resolve().then(fn);
};

globalThis.structuredClone = function(value) {
	const seen = new Map();
	function clone(v) {
		if (v === null || typeof v !== 'object') {
			if (typeof v === 'function' || typeof v === 'symbol') throw new TypeError('value could not be cloned');
			return v;
		}
		if (seen.has(v)) return seen.get(v);
		let out;
		if (v instanceof Date) out = new Date(v.getTime());
		else if (v instanceof RegExp) out = new RegExp(v.source, v.flags);
		else if (v instanceof ArrayBuffer) out = v.slice(0);
		else if (ArrayBuffer.isView(v)) out = new v.constructor(v.buffer.slice(v.byteOffset, v.byteOffset + v.byteLength));
		else if (v instanceof Map) { out = new Map(); seen.set(v, out); v.forEach((x, k) => out.set(clone(k), clone(x))); return out; }
		else if (v instanceof Set) { out = new Set(); seen.set(v, out); v.forEach(x => out.add(clone(x))); return out; }
		else if (Array.isArray(v)) { out = []; seen.set(v, out); for (const x of v) out.push(clone(x)); return out; }
		else { out = {}; seen.set(v, out); for (const k of Object.keys(v)) out[k] = clone(v[k]); return out; }
		seen.set(v, out);
		return out;
	}
	return clone(value);
};

globalThis.performance = {
	timeOrigin: __timeOrigin,
	now: function() { return __performanceNow(); },
};

globalThis.navigator = { userAgent: 'winter' };
`

// SetupGlobals registers queueMicrotask, structuredClone, performance and
// navigator.
func SetupGlobals(rt core.JSRuntime, _ *eventloop.EventLoop) error {
	start := time.Now()
	if err := rt.RegisterFunc("__performanceNow", func() float64 {
		return float64(time.Since(start).Nanoseconds()) / 1e6
	}); err != nil {
		return err
	}
	if err := rt.SetGlobal("__timeOrigin", float64(start.UnixMilli())); err != nil {
		return err
	}
	if err := rt.Eval(globalsJS); err != nil {
		return fmt.Errorf("evaluating globals.js: %w", err)
	}
	return nil
}
