package server

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cryguy/winter/internal/bridge"
	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/metrics"
	"github.com/cryguy/winter/internal/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
)

var quiet = slog.New(slog.DiscardHandler)

var payload = strings.Repeat("winter is coming. ", 200)

func textHandler(status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	})
}

// staleLengthHandler declares a Content-Length that only holds for the
// uncompressed body; Compress has to drop it.
func staleLengthHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = io.WriteString(w, body)
	})
}

func get(t *testing.T, h http.Handler, acceptEncoding string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if acceptEncoding != "" {
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCompressBrotli(t *testing.T) {
	rec := get(t, Compress(staleLengthHandler(payload)), "gzip, br")

	assert.Equal(t, "br", rec.Header().Get("Content-Encoding"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	assert.Less(t, rec.Body.Len(), len(payload))

	out, err := io.ReadAll(brotli.NewReader(rec.Body))
	require.NoError(t, err)
	assert.Equal(t, payload, string(out))
}

func TestCompressGzip(t *testing.T) {
	rec := get(t, Compress(staleLengthHandler(payload)), "gzip")

	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	assert.Empty(t, rec.Header().Get("Content-Length"))
	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, payload, string(out))
}

func TestCompressPassThrough(t *testing.T) {
	t.Run("no accept-encoding", func(t *testing.T) {
		rec := get(t, Compress(textHandler(http.StatusOK, payload)), "")
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, rec.Body.String())
	})

	t.Run("already encoded", func(t *testing.T) {
		h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "identity")
			_, _ = io.WriteString(w, payload)
		})
		rec := get(t, Compress(h), "br")
		assert.Equal(t, "identity", rec.Header().Get("Content-Encoding"))
		assert.Equal(t, payload, rec.Body.String())
	})

	t.Run("no content", func(t *testing.T) {
		rec := get(t, Compress(textHandler(http.StatusNoContent, "")), "br")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get("Content-Encoding"))
	})
}

func TestRequestIDAssignedAndKept(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(RequestIDHeader)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "given")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "given", seen)
	assert.Equal(t, "given", rec.Header().Get(RequestIDHeader))
}

func TestNewRunnerValidates(t *testing.T) {
	_, err := NewRunner("", http.NotFoundHandler())
	assert.Error(t, err)
	_, err = NewRunner(":0", nil)
	assert.Error(t, err)
	_, err = NewRunner(":0", http.NotFoundHandler(), WithMaxConns(-1))
	assert.Error(t, err)

	r, err := NewRunner(":0", http.NotFoundHandler(), WithName("script"))
	require.NoError(t, err)
	assert.Equal(t, "server.Runner[script]", r.String())
	assert.Equal(t, ":0", r.Addr())
}

func startRunner(t *testing.T, h http.Handler, opts ...Option) *Runner {
	t.Helper()
	opts = append([]Option{WithLogger(quiet), WithDrainTimeout(time.Second)}, opts...)
	r, err := NewRunner("127.0.0.1:0", h, opts...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-errCh)
	})

	select {
	case <-r.Ready():
	case err := <-errCh:
		t.Fatalf("runner exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not start")
	}
	return r
}

func TestRunnerServesHTTP1(t *testing.T) {
	r := startRunner(t, textHandler(http.StatusOK, "hi"))

	resp, err := http.Get("http://" + r.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))
	assert.Equal(t, 1, resp.ProtoMajor)
}

func TestRunnerServesH2C(t *testing.T) {
	r := startRunner(t, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, _ = io.WriteString(w, req.Proto)
	}))

	client := &http.Client{Transport: &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}}
	resp, err := client.Get("http://" + r.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.ProtoMajor)
	assert.Equal(t, "HTTP/2.0", string(body))
}

func TestRunnerStop(t *testing.T) {
	r, err := NewRunner("127.0.0.1:0", http.NotFoundHandler(), WithLogger(quiet))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(context.Background()) }()
	<-r.Ready()

	r.Stop()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRunnerReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	r, err := NewRunner(ln.Addr().String(), http.NotFoundHandler(), WithLogger(quiet))
	require.NoError(t, err)
	err = r.Run(context.Background())
	assert.ErrorContains(t, err, "listening on")
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	failing := func() error { return errors.New("no workers left") }
	healthHandler(failing).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "no workers left")
}

func TestNewAdmin(t *testing.T) {
	routes, err := AdminRoutes(metrics.New(), nil)
	require.NoError(t, err)
	assert.Len(t, routes, 2)

	admin, err := NewAdmin("127.0.0.1:0", metrics.New(), nil)
	require.NoError(t, err)
	assert.NotNil(t, admin)
}

// upperFactory serves an uppercase echo for every request.
type upperFactory struct{}

func (upperFactory) Name() string { return "upper" }

func (upperFactory) New(string) (core.ScriptContext, error) { return upperContext{}, nil }

type upperContext struct{}

func (upperContext) Handle(req *core.Request) (*core.Response, []core.LogEntry, error) {
	return &core.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/plain"}},
		Body:       bytes.ToUpper(req.Body),
	}, nil, nil
}

func (upperContext) Interrupt() {}
func (upperContext) Close()     {}

func TestEndToEnd(t *testing.T) {
	p, err := pool.New(pool.Config{Workers: 2, QueueSize: 8}, "", upperFactory{}, pool.WithLogger(quiet))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m := metrics.New()
	b := bridge.New(p, bridge.WithLogger(quiet), bridge.WithMaxBodyBytes(int64(len(payload))))
	srv := httptest.NewServer(Chain(b, m, true))
	t.Cleanup(srv.Close)

	t.Run("plain", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader("hello"))
		require.NoError(t, err)
		req.Header.Set("Accept-Encoding", "identity")
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "HELLO", string(body))
		assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
	})

	t.Run("compressed", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/", strings.NewReader(payload))
		require.NoError(t, err)
		req.Header.Set("Accept-Encoding", "br")
		resp, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, "br", resp.Header.Get("Content-Encoding"))
		body, err := io.ReadAll(brotli.NewReader(resp.Body))
		require.NoError(t, err)
		assert.Equal(t, strings.ToUpper(payload), string(body))
	})

	t.Run("oversize body", func(t *testing.T) {
		resp, err := srv.Client().Post(srv.URL+"/", "text/plain", strings.NewReader(payload+"!"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
}
