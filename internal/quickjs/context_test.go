//go:build !v8

package quickjs

import (
	"net/http"
	"testing"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T, cfg core.EngineConfig, source string) core.ScriptContext {
	t.Helper()
	sc, err := NewFactory(cfg).New(source)
	require.NoError(t, err)
	t.Cleanup(sc.Close)
	return sc
}

func call(t *testing.T, sc core.ScriptContext, method, url, body string) (*core.Response, []core.LogEntry, error) {
	t.Helper()
	req := &core.Request{
		ID:      "test",
		Method:  method,
		URL:     url,
		Headers: http.Header{"X-Test": {"yes"}},
	}
	if body != "" {
		req.Body = []byte(body)
	}
	return sc.Handle(req)
}

func mustCall(t *testing.T, sc core.ScriptContext, method, url, body string) *core.Response {
	t.Helper()
	resp, _, err := call(t, sc, method, url, body)
	require.NoError(t, err)
	require.NotNil(t, resp)
	return resp
}

func TestFactoryName(t *testing.T) {
	assert.Equal(t, "quickjs", NewFactory(core.EngineConfig{}).Name())
}

func TestEchoUppercase(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  async fetch(request) {
    const text = await request.text();
    return new Response(text.toUpperCase(), { headers: { "content-type": "text/plain" } });
  }
};`)

	resp := mustCall(t, sc, "POST", "http://localhost/", "hello winter")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "HELLO WINTER", string(resp.Body))
	assert.Equal(t, "text/plain", resp.Headers.Get("Content-Type"))
}

func TestGlobalsPersistAcrossCalls(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
let count = 0;
export default {
  fetch() {
    count++;
    return new Response(String(count));
  }
};`)

	for _, want := range []string{"1", "2", "3"} {
		assert.Equal(t, want, string(mustCall(t, sc, "GET", "http://localhost/", "").Body))
	}
}

func TestAddEventListenerStyle(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
addEventListener("fetch", (event) => {
  const url = new URL(event.request.url);
  event.respondWith(new Response("path=" + url.pathname + " q=" + url.searchParams.get("q")));
});`)

	resp := mustCall(t, sc, "GET", "http://localhost/hello?q=1", "")
	assert.Equal(t, "path=/hello q=1", string(resp.Body))
}

func TestNamedFetchExport(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export function fetch(request) {
  return new Response(request.method + " " + request.headers.get("x-test"));
}`)

	assert.Equal(t, "PUT yes", string(mustCall(t, sc, "PUT", "http://localhost/", "x").Body))
}

func TestAsyncHandlerWithTimer(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  async fetch() {
    const start = Date.now();
    await new Promise((resolve) => setTimeout(resolve, 20));
    return new Response("waited", { status: 201, headers: { "x-elapsed": String(Date.now() - start >= 15) } });
  }
};`)

	resp := mustCall(t, sc, "GET", "http://localhost/", "")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "waited", string(resp.Body))
	assert.Equal(t, "true", resp.Headers.Get("X-Elapsed"))
}

func TestThrownErrorKeepsContextUsable(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
let calls = 0;
export default {
  fetch(request) {
    calls++;
    if (new URL(request.url).pathname === "/fail") throw new Error("boom");
    return new Response("calls=" + calls);
  }
};`)

	_, _, err := call(t, sc, "GET", "http://localhost/fail", "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.Thrown), "got %v", err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, "calls=2", string(mustCall(t, sc, "GET", "http://localhost/", "").Body))
}

func TestRejectedPromiseIsThrown(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  async fetch() {
    await null;
    throw new TypeError("nope");
  }
};`)

	_, _, err := call(t, sc, "GET", "http://localhost/", "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.Thrown))
	assert.Contains(t, err.Error(), "nope")
}

func TestNonResponseIsThrown(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `export default { fetch() { return "plain string"; } };`)

	_, _, err := call(t, sc, "GET", "http://localhost/", "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.Thrown))
	assert.Contains(t, err.Error(), "instead of a Response")
}

func TestCompileFailure(t *testing.T) {
	_, err := NewFactory(core.EngineConfig{}).New(`export default { fetch( {`)
	var compile *core.CompileError
	require.ErrorAs(t, err, &compile)
}

func TestMissingHandler(t *testing.T) {
	_, err := NewFactory(core.EngineConfig{}).New(`const x = 1;`)
	var compile *core.CompileError
	require.ErrorAs(t, err, &compile)
	assert.ErrorIs(t, err, core.ErrNoHandler)
}

func TestInterruptStopsInfiniteLoop(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `export default { fetch() { while (true) {} } };`)

	done := make(chan error, 1)
	go func() {
		_, _, err := call(t, sc, "GET", "http://localhost/", "")
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	sc.Interrupt()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, core.IsKind(err, core.Timeout), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("interrupt did not stop the script")
	}
}

func TestEnvVars(t *testing.T) {
	sc := newContext(t, core.EngineConfig{Vars: map[string]string{"GREETING": "hi"}}, `
export default {
  fetch(request, env) {
    return Response.json({ greeting: env.GREETING, frozen: Object.isFrozen(env) });
  }
};`)

	resp := mustCall(t, sc, "GET", "http://localhost/", "")
	assert.JSONEq(t, `{"greeting":"hi","frozen":true}`, string(resp.Body))
	assert.Equal(t, "application/json", resp.Headers.Get("Content-Type"))
}

func TestBinaryBody(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  async fetch(request) {
    const buf = await request.arrayBuffer();
    return new Response(new Uint8Array(buf).reverse());
  }
};`)

	resp := mustCall(t, sc, "POST", "http://localhost/", string([]byte{0, 1, 2, 255}))
	assert.Equal(t, []byte{255, 2, 1, 0}, resp.Body)
}

func TestBinaryBodyWithInteriorNUL(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  fetch(request) {
    const path = new URL(request.url).pathname;
    if (path === "/string") return new Response("a\u0000b");
    return new Response(new Uint8Array([65, 0, 66, 0]));
  }
};`)

	assert.Equal(t, []byte{65, 0, 66, 0}, mustCall(t, sc, "GET", "http://localhost/", "").Body)
	assert.Equal(t, []byte{97, 0, 98}, mustCall(t, sc, "GET", "http://localhost/string", "").Body)
}

func TestBinaryBodyRoundTripsEveryByte(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  async fetch(request) {
    return new Response(await request.arrayBuffer());
  }
};`)

	all := make([]byte, 0, 256*3)
	for i := 0; i < 3; i++ {
		for b := 0; b < 256; b++ {
			all = append(all, byte(b))
		}
	}
	for _, n := range []int{0, 1, 2, 3, 4, 255, len(all)} {
		resp, _, err := sc.Handle(&core.Request{ID: "test", Method: "POST", URL: "http://localhost/", Body: all[:n]})
		require.NoError(t, err)
		if n == 0 {
			assert.Empty(t, resp.Body)
			continue
		}
		assert.Equal(t, all[:n], resp.Body, "length %d", n)
	}
}

func TestConsoleCapturedPerRequest(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
console.log("loading");
export default {
  fetch() {
    console.log("hello", 42, { a: 1 });
    console.error("bad");
    return new Response("ok");
  }
};`)

	_, logs, err := call(t, sc, "GET", "http://localhost/", "")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "log", logs[0].Level)
	assert.Equal(t, `hello 42 {"a":1}`, logs[0].Message)
	assert.Equal(t, "error", logs[1].Level)

	_, logs, err = call(t, sc, "GET", "http://localhost/", "")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestWaitUntilRunsBeforeReturn(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
let flushed = 0;
export default {
  fetch(request, env, ctx) {
    if (new URL(request.url).pathname === "/count") return new Response(String(flushed));
    ctx.waitUntil(new Promise((resolve) => setTimeout(() => { flushed++; resolve(); }, 5)));
    return new Response("queued");
  }
};`)

	assert.Equal(t, "queued", string(mustCall(t, sc, "GET", "http://localhost/", "").Body))
	assert.Equal(t, "1", string(mustCall(t, sc, "GET", "http://localhost/count", "").Body))
}

func TestWaitUntilRejectionIsLogged(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  fetch(request, env, ctx) {
    ctx.waitUntil(Promise.resolve("fine"));
    ctx.waitUntil(Promise.reject(new Error("late failure")));
    return new Response("ok");
  }
};`)

	resp, logs, err := call(t, sc, "GET", "http://localhost/", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))
	require.Len(t, logs, 1)
	assert.Equal(t, "error", logs[0].Level)
	assert.Contains(t, logs[0].Message, "waitUntil promise rejected")
	assert.Contains(t, logs[0].Message, "late failure")
}

func TestMaxResponseBytes(t *testing.T) {
	sc := newContext(t, core.EngineConfig{MaxResponseBytes: 4}, `
export default { fetch(request) { return new Response(new URL(request.url).pathname.slice(1)); } };`)

	assert.Equal(t, "tiny", string(mustCall(t, sc, "GET", "http://localhost/tiny", "").Body))

	_, _, err := call(t, sc, "GET", "http://localhost/toolong", "")
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.Thrown))
}

func TestPerRequestTemporariesRemoved(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  fetch() {
    return new Response(typeof globalThis.__req + "," + typeof globalThis.__env);
  }
};`)

	// The temporaries exist during the call.
	assert.Equal(t, "object,object", string(mustCall(t, sc, "GET", "http://localhost/", "").Body))

	qc := sc.(*scriptContext)
	leftover, err := qc.rt.EvalString(`typeof globalThis.__req + "," + typeof globalThis.__env`)
	require.NoError(t, err)
	assert.Equal(t, "undefined,undefined", leftover)
}

func TestEncodingGlobals(t *testing.T) {
	sc := newContext(t, core.EngineConfig{}, `
export default {
  fetch() {
    let bad = "";
    try { atob("*"); } catch (e) { bad = e.name; }
    const bytes = new TextEncoder().encode("héllo");
    return Response.json({
      b64: btoa("hello"),
      back: atob("aGVsbG8"),
      len: bytes.length,
      text: new TextDecoder().decode(bytes),
      bad,
    });
  }
};`)

	resp := mustCall(t, sc, "GET", "http://localhost/", "")
	assert.JSONEq(t, `{"b64":"aGVsbG8=","back":"hello","len":6,"text":"héllo","bad":"TypeError"}`, string(resp.Body))
}
