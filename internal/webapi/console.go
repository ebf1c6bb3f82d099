package webapi

import (
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// consoleJS builds globalThis.console on top of the Go-backed __console.
// Objects are rendered as JSON where possible.
const consoleJS = `
(function() {
	function fmt(arg) {
		if (typeof arg === 'string') return arg;
		if (arg instanceof Error) return arg.stack ? String(arg.stack) : String(arg);
		if (typeof arg === 'object' && arg !== null) {
			try { return JSON.stringify(arg); } catch (e) { return String(arg); }
		}
		return String(arg);
	}
	function emit(level, args) {
		const parts = [];
		for (let i = 0; i < args.length; i++) parts.push(fmt(args[i]));
		__console(level, parts.join(' '));
	}
	const con = {};
	for (const lvl of ['log', 'info', 'warn', 'error', 'debug']) {
		con[lvl] = function() { emit(lvl, arguments); };
	}
	con.trace = function() { emit('debug', arguments); };
	con.assert = function(cond) {
		if (cond) return;
		const rest = Array.prototype.slice.call(arguments, 1);
		emit('error', ['Assertion failed'].concat(rest));
	};
	const counts = {};
	con.count = function(label) {
		const l = label === undefined ? 'default' : String(label);
		counts[l] = (counts[l] || 0) + 1;
		emit('info', [l + ': ' + counts[l]]);
	};
	const timers = {};
	con.time = function(label) { timers[label || 'default'] = performance.now(); };
	con.timeEnd = function(label) {
		const l = label || 'default';
		if (timers[l] === undefined) return;
		emit('info', [l + ': ' + (performance.now() - timers[l]).toFixed(3) + 'ms']);
		delete timers[l];
	};
	globalThis.console = con;
})();
`

// SetupConsole returns a setup function that installs a console whose
// output is captured into logs.
func SetupConsole(logs *core.LogBuffer) SetupFunc {
	return func(rt core.JSRuntime, _ *eventloop.EventLoop) error {
		if err := rt.RegisterFunc("__console", func(level, message string) {
			logs.Add(level, message)
		}); err != nil {
			return err
		}
		return rt.Eval(consoleJS)
	}
}
