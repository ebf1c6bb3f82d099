package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/robbyt/go-supervisor/supervisor"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/net/netutil"
)

var _ supervisor.Runnable = (*Runner)(nil)

// Runner serves the script handler on one TCP listener under the
// supervisor. It owns the listener so it can cap connections and speak
// cleartext HTTP/2.
type Runner struct {
	name    string
	addr    string
	handler http.Handler
	logger  *slog.Logger

	h2c               bool
	maxConns          int
	readHeaderTimeout time.Duration
	idleTimeout       time.Duration
	drainTimeout      time.Duration

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	ready    chan struct{}
}

// NewRunner creates a Runner for addr. The listener is opened by Run.
func NewRunner(addr string, handler http.Handler, opts ...Option) (*Runner, error) {
	if addr == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}

	r := &Runner{
		name:              "http",
		addr:              addr,
		handler:           handler,
		logger:            slog.Default().WithGroup("server"),
		h2c:               true,
		readHeaderTimeout: 10 * time.Second,
		idleTimeout:       2 * time.Minute,
		drainTimeout:      30 * time.Second,
		ready:             make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.maxConns < 0 {
		return nil, fmt.Errorf("max connections must not be negative, got %d", r.maxConns)
	}
	return r, nil
}

func (r *Runner) String() string {
	return fmt.Sprintf("server.Runner[%s]", r.name)
}

// Run listens and serves until ctx is cancelled or Stop is called.
func (r *Runner) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.addr, err)
	}
	if r.maxConns > 0 {
		ln = netutil.LimitListener(ln, r.maxConns)
	}

	handler := r.handler
	if r.h2c {
		handler = h2c.NewHandler(handler, &http2.Server{IdleTimeout: r.idleTimeout})
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: r.readHeaderTimeout,
		IdleTimeout:       r.idleTimeout,
		ErrorLog:          slog.NewLogLogger(r.logger.Handler(), slog.LevelWarn),
	}

	r.mu.Lock()
	r.server = srv
	r.listener = ln
	r.mu.Unlock()
	close(r.ready)

	r.logger.Info("listening", "address", ln.Addr().String(), "h2c", r.h2c, "max_conns", r.maxConns)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		r.shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", r.addr, err)
	}
}

// Stop drains open connections and stops the server.
func (r *Runner) Stop() {
	r.shutdown()
}

func (r *Runner) shutdown() {
	r.mu.Lock()
	srv := r.server
	r.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		r.logger.Warn("forcing connections closed", "error", err)
		_ = srv.Close()
	}
	r.logger.Info("stopped")
}

// Ready is closed once the listener is open.
func (r *Runner) Ready() <-chan struct{} {
	return r.ready
}

// Addr returns the bound address, or the configured one before Run.
func (r *Runner) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}
