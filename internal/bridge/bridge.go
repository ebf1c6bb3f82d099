package bridge

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/pool"
)

// Submitter admits jobs for execution. *pool.Pool implements it.
type Submitter interface {
	Submit(job *pool.Job) error
}

// Bridge turns a request into a pool job, waits for its result without
// holding any lock, and maps the outcome to an HTTP response.
type Bridge struct {
	pool   Submitter
	logger *slog.Logger

	exposeErrors bool
	maxBodyBytes int64
	retryAfter   time.Duration
}

// New creates a Bridge submitting to p.
func New(p Submitter, opts ...Option) *Bridge {
	b := &Bridge{
		pool:         p,
		logger:       slog.Default().WithGroup("bridge"),
		maxBodyBytes: DefaultMaxBodyBytes,
		retryAfter:   time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Serve runs req on the pool and returns the response to send. It never
// returns nil. When ctx ends first the job is detached: the worker still
// runs it, and the bridge answers for a caller that is no longer reading.
func (b *Bridge) Serve(ctx context.Context, req *core.Request) *core.Response {
	job := pool.NewJob(req)
	if err := b.pool.Submit(job); err != nil {
		return b.rejected(req, err)
	}

	select {
	case res := <-job.Done():
		return b.respond(ctx, req, res)
	case <-ctx.Done():
		if res := job.Detach(); res != nil {
			return b.respond(ctx, req, res)
		}
		b.logger.Debug("caller went away before the script finished",
			"request_id", req.ID, "cause", context.Cause(ctx))
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errorResponse(http.StatusGatewayTimeout, "gateway timeout")
		}
		return errorResponse(http.StatusServiceUnavailable, "request cancelled")
	}
}

func (b *Bridge) rejected(req *core.Request, err error) *core.Response {
	reason := "overloaded"
	if errors.Is(err, core.ErrPoolClosed) {
		reason = "closed"
	}
	b.logger.Warn("request rejected", "request_id", req.ID, "reason", reason)

	resp := errorResponse(http.StatusServiceUnavailable, "service busy")
	secs := int(b.retryAfter.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	resp.Headers.Set("Retry-After", strconv.Itoa(secs))
	return resp
}

func (b *Bridge) respond(ctx context.Context, req *core.Request, res *core.Result) *core.Response {
	b.forwardLogs(ctx, req, res)

	if res.Error == nil {
		if res.Response == nil {
			b.logger.Error("worker returned neither response nor error", "request_id", req.ID)
			return errorResponse(http.StatusInternalServerError, "internal error")
		}
		return res.Response
	}
	// Jobs still queued when the pool loses its last worker never ran.
	if errors.Is(res.Error, core.ErrPoolClosed) || errors.Is(res.Error, core.ErrOverloaded) {
		return b.rejected(req, res.Error)
	}

	status, message := http.StatusInternalServerError, "internal error"
	level := slog.LevelError
	switch {
	case core.IsKind(res.Error, core.Timeout):
		status, message = http.StatusGatewayTimeout, "execution timed out"
		level = slog.LevelWarn
	case core.IsKind(res.Error, core.Thrown):
		level = slog.LevelWarn
	}

	b.logger.Log(ctx, level, "script failed",
		"request_id", req.ID,
		"worker_id", res.WorkerID,
		"duration", res.Duration,
		"error", res.Error,
	)

	if b.exposeErrors {
		message += ": " + res.Error.Error()
	}
	return errorResponse(status, message)
}

// forwardLogs writes the script's console output to the process logger.
func (b *Bridge) forwardLogs(ctx context.Context, req *core.Request, res *core.Result) {
	for _, e := range res.Logs {
		b.logger.Log(ctx, consoleLevel(e.Level), e.Message,
			"source", "console",
			"request_id", req.ID,
			"worker_id", res.WorkerID,
		)
	}
}

func consoleLevel(level string) slog.Level {
	switch level {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug", "trace":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

func errorResponse(status int, message string) *core.Response {
	return &core.Response{
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:       []byte(message + "\n"),
	}
}
