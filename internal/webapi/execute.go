package webapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/eventloop"
)

// drainSlice bounds how long a single event loop drain may block before
// control returns to check promise state and interruption.
const drainSlice = 10 * time.Millisecond

var (
	// ErrInterrupted is returned when the owner interrupted the call.
	ErrInterrupted = errors.New("execution interrupted")

	// ErrStalled is returned when the handler's promise can no longer
	// settle: no microtasks or timers are left to run.
	ErrStalled = errors.New("handler promise never settled")
)

// Invocation carries the per-call inputs to Invoke.
type Invocation struct {
	Request          *core.Request
	Vars             map[string]string
	MaxResponseBytes int

	// Interrupted reports whether the call should be abandoned. It is
	// polled between event loop slices.
	Interrupted func() bool
}

func (inv *Invocation) interrupted() bool {
	return inv.Interrupted != nil && inv.Interrupted()
}

// perRequestCleanupJS removes the temporaries of one call. Script-defined
// globals are left alone so state persists across calls on a context.
const perRequestCleanupJS = `
(function() {
	var names = ['__req', '__env', '__ctx', '__call_result', '__awaited_result', '__awaited_state', '__waitUntilSettled'];
	for (var i = 0; i < names.length; i++) {
		try { delete globalThis[names[i]]; } catch (e) {}
	}
	var all = Object.getOwnPropertyNames(globalThis);
	for (var j = 0; j < all.length; j++) {
		if (all[j].indexOf('__tmp_') === 0) {
			try { delete globalThis[all[j]]; } catch (e) {}
		}
	}
	globalThis.__timerCallbacks = {};
	globalThis.__waitUntilPromises = [];
})();
`

// Invoke runs the script's fetch handler for one request on rt and
// converts the outcome. Script exceptions and rejected promises come back
// as *core.ScriptError{Kind: Thrown}; conversion faults as Internal.
// ErrInterrupted is returned unwrapped so the caller can classify it.
func Invoke(rt core.JSRuntime, el *eventloop.EventLoop, inv Invocation) (*core.Response, error) {
	defer func() {
		_ = rt.Eval(perRequestCleanupJS)
		el.Reset()
	}()

	if err := GoRequestToJS(rt, inv.Request); err != nil {
		return nil, core.NewInternal("building JS request: %w", err)
	}
	if err := BuildEnvObject(rt, inv.Vars); err != nil {
		return nil, core.NewInternal("building JS env: %w", err)
	}
	if err := BuildExecContext(rt); err != nil {
		return nil, core.NewInternal("building JS context: %w", err)
	}

	if err := rt.Eval("globalThis.__call_result = globalThis.__dispatchFetch(globalThis.__req, globalThis.__env, globalThis.__ctx);"); err != nil {
		if inv.interrupted() {
			return nil, ErrInterrupted
		}
		return nil, classify(err)
	}

	if err := AwaitValue(rt, "__call_result", el, inv.interrupted); err != nil {
		if errors.Is(err, ErrInterrupted) || inv.interrupted() {
			return nil, ErrInterrupted
		}
		return nil, classify(err)
	}

	resp, err := JsResponseToGo(rt, "__call_result")
	if err != nil {
		if inv.interrupted() {
			return nil, ErrInterrupted
		}
		return nil, err
	}

	if err := DrainWaitUntil(rt, el, inv.interrupted); err != nil {
		return nil, err
	}

	if inv.MaxResponseBytes > 0 && len(resp.Body) > inv.MaxResponseBytes {
		return nil, &core.ScriptError{
			Kind:    core.Thrown,
			Message: fmt.Sprintf("response body of %d bytes exceeds limit of %d", len(resp.Body), inv.MaxResponseBytes),
		}
	}
	return resp, nil
}

// classify maps an engine error to a ScriptError. Memory exhaustion is an
// engine fault; anything else the script raised itself.
func classify(err error) *core.ScriptError {
	var se *core.ScriptError
	if errors.As(err, &se) {
		return se
	}
	if strings.Contains(strings.ToLower(err.Error()), "out of memory") {
		return &core.ScriptError{Kind: core.Internal, Message: err.Error(), Err: err}
	}
	return core.NewThrown(err)
}

// GoRequestToJS builds a JS Request from req and stores it in
// globalThis.__req. The body travels as base64 so binary payloads survive.
func GoRequestToJS(rt core.JSRuntime, req *core.Request) error {
	headers := req.Headers
	if headers == nil {
		headers = http.Header{}
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("encoding headers: %w", err)
	}

	if err := rt.SetGlobal("__tmp_url", req.URL); err != nil {
		return err
	}
	if err := rt.SetGlobal("__tmp_method", req.Method); err != nil {
		return err
	}
	if err := rt.SetGlobal("__tmp_headers_json", string(headersJSON)); err != nil {
		return err
	}
	hasBody := len(req.Body) > 0 && req.Method != http.MethodGet && req.Method != http.MethodHead
	if hasBody {
		if err := rt.SetGlobal("__tmp_body", base64.StdEncoding.EncodeToString(req.Body)); err != nil {
			return err
		}
	}

	return rt.Eval(`(function() {
		var h = new Headers();
		var m = JSON.parse(globalThis.__tmp_headers_json);
		for (var k in m) {
			for (var i = 0; i < m[k].length; i++) h.append(k, m[k][i]);
		}
		var init = { method: globalThis.__tmp_method, headers: h };
		if (typeof globalThis.__tmp_body === 'string') init.body = __b64ToBytes(globalThis.__tmp_body);
		globalThis.__req = new Request(globalThis.__tmp_url, init);
	})()`)
}

// BuildEnvObject stores the configured vars in globalThis.__env, the
// second argument of a module fetch handler.
func BuildEnvObject(rt core.JSRuntime, vars map[string]string) error {
	if vars == nil {
		vars = map[string]string{}
	}
	data, err := json.Marshal(vars)
	if err != nil {
		return fmt.Errorf("encoding vars: %w", err)
	}
	return rt.Eval(fmt.Sprintf("globalThis.__env = Object.freeze(JSON.parse(%s));", core.JsEscape(string(data))))
}

// BuildExecContext stores a fresh ExecutionContext in globalThis.__ctx.
func BuildExecContext(rt core.JSRuntime) error {
	return rt.Eval("globalThis.__ctx = new ExecutionContext();")
}

// AwaitValue settles a possibly-promise value held in globalThis[globalVar]
// by pumping microtasks and the event loop. On success the global holds the
// resolved value. A rejection is reported as an error carrying the reason.
func AwaitValue(rt core.JSRuntime, globalVar string, el *eventloop.EventLoop, interrupted func() bool) error {
	isPromise, err := rt.EvalBool(fmt.Sprintf("globalThis.%s instanceof Promise", globalVar))
	if err != nil {
		return fmt.Errorf("checking promise: %w", err)
	}
	if !isPromise {
		return nil
	}

	if err := rt.Eval(fmt.Sprintf(`
		delete globalThis.__awaited_result;
		delete globalThis.__awaited_state;
		globalThis.%s.then(
			function(r) { globalThis.__awaited_result = r; globalThis.__awaited_state = 'fulfilled'; },
			function(e) { globalThis.__awaited_result = e; globalThis.__awaited_state = 'rejected'; }
		);
	`, globalVar)); err != nil {
		return fmt.Errorf("setting up promise await: %w", err)
	}

	for {
		rt.RunMicrotasks()

		state, err := rt.EvalString("String(globalThis.__awaited_state)")
		if err != nil {
			return fmt.Errorf("checking promise state: %w", err)
		}
		if state == "rejected" {
			reason, _ := rt.EvalString(`(function(e) {
				if (e instanceof Error) return e.name + ': ' + e.message;
				return String(e);
			})(globalThis.__awaited_result)`)
			return fmt.Errorf("promise rejected: %s", reason)
		}
		if state == "fulfilled" {
			break
		}
		if interrupted != nil && interrupted() {
			return ErrInterrupted
		}
		if !el.HasPending() {
			return ErrStalled
		}
		el.Drain(rt, time.Now().Add(drainSlice))
	}

	return rt.Eval(fmt.Sprintf("globalThis.%s = globalThis.__awaited_result;", globalVar))
}

// DrainWaitUntil runs the promises registered through ctx.waitUntil or
// event.waitUntil until they settle or can make no further progress.
// Rejections are reported through console.error.
func DrainWaitUntil(rt core.JSRuntime, el *eventloop.EventLoop, interrupted func() bool) error {
	if err := rt.Eval(`
		if (globalThis.__waitUntilPromises.length > 0) {
			globalThis.__waitUntilSettled = false;
			Promise.allSettled(globalThis.__waitUntilPromises).then(function(results) {
				for (var i = 0; i < results.length; i++) {
					if (results[i].status === 'rejected') console.error('waitUntil promise rejected:', results[i].reason);
				}
				globalThis.__waitUntilSettled = true;
			});
			globalThis.__waitUntilPromises = [];
		} else {
			globalThis.__waitUntilSettled = true;
		}
	`); err != nil {
		return core.NewInternal("draining waitUntil: %w", err)
	}

	for {
		rt.RunMicrotasks()
		settled, err := rt.EvalBool("!!globalThis.__waitUntilSettled")
		if err != nil {
			return core.NewInternal("draining waitUntil: %w", err)
		}
		if settled || !el.HasPending() {
			return nil
		}
		if interrupted != nil && interrupted() {
			return ErrInterrupted
		}
		el.Drain(rt, time.Now().Add(drainSlice))
	}
}

// JsResponseToGo converts the JS Response in globalThis[globalVar].
// A handler that produced anything other than a Response is a script
// error.
func JsResponseToGo(rt core.JSRuntime, globalVar string) (*core.Response, error) {
	resultJSON, err := rt.EvalString(fmt.Sprintf(`(function() {
		var r = globalThis.%s;
		if (!(r instanceof Response)) {
			var what = r === null ? 'null' : typeof r;
			if (what === 'object' && r.constructor && r.constructor.name) what = r.constructor.name;
			return JSON.stringify({ error: what });
		}
		var body = '';
		var bodyType = 'string';
		if (r._body !== null && r._body !== undefined) {
			if (typeof r._body === 'string') {
				body = r._body;
			} else {
				body = __bytesToB64(r._body);
				bodyType = 'base64';
			}
		}
		return JSON.stringify({ status: r.status, headers: r.headers._map, body: body, bodyType: bodyType });
	})()`, globalVar))
	if err != nil {
		return nil, core.NewInternal("extracting response: %w", err)
	}

	var resp struct {
		Status   int                 `json:"status"`
		Headers  map[string][]string `json:"headers"`
		Body     string              `json:"body"`
		BodyType string              `json:"bodyType"`
		Error    string              `json:"error"`
	}
	if err := json.Unmarshal([]byte(resultJSON), &resp); err != nil {
		return nil, core.NewInternal("parsing response JSON: %w", err)
	}
	if resp.Error != "" {
		return nil, &core.ScriptError{
			Kind:    core.Thrown,
			Message: fmt.Sprintf("handler returned %s instead of a Response", resp.Error),
		}
	}

	headers := make(http.Header, len(resp.Headers))
	for k, vs := range resp.Headers {
		for _, v := range vs {
			headers.Add(k, v)
		}
	}

	var body []byte
	switch resp.BodyType {
	case "base64":
		body, err = base64.StdEncoding.DecodeString(resp.Body)
		if err != nil {
			return nil, core.NewInternal("decoding base64 body: %w", err)
		}
	default:
		if resp.Body != "" {
			body = []byte(resp.Body)
		}
	}

	return &core.Response{StatusCode: resp.Status, Headers: headers, Body: body}, nil
}
