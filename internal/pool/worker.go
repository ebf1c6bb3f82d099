package pool

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cryguy/winter/internal/core"
	"github.com/google/uuid"
)

// State is a worker's lifecycle state.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Worker owns one script context and runs jobs against it serially on a
// goroutine locked to its OS thread. Only that goroutine touches the
// context; the watchdog may call Interrupt.
type Worker struct {
	id     string
	index  int
	pool   *Pool
	logger *slog.Logger

	state  atomic.Int32
	served atomic.Uint64
	faults atomic.Uint64

	sc core.ScriptContext
}

type startResult struct {
	index int
	err   error
}

func newWorker(p *Pool, index int) *Worker {
	id := uuid.NewString()
	return &Worker{
		id:     id,
		index:  index,
		pool:   p,
		logger: p.logger.With("worker", index, "worker_id", id),
	}
}

// ID returns the worker's unique identifier.
func (w *Worker) ID() string { return w.id }

// State returns the current lifecycle state.
func (w *Worker) State() State { return State(w.state.Load()) }

// Served returns the number of jobs the worker has finished.
func (w *Worker) Served() uint64 { return w.served.Load() }

// Faults returns the number of times the worker discarded its context.
func (w *Worker) Faults() uint64 { return w.faults.Load() }

func (w *Worker) setState(s State) { w.state.Store(int32(s)) }

// run is the worker goroutine. It reports startup on ready exactly once,
// then serves jobs until the intake closes or the fault policy retires it.
func (w *Worker) run(ready chan<- startResult) {
	defer w.pool.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	w.setState(StateStarting)
	sc, err := w.newContext()
	if err != nil {
		w.setState(StateStopped)
		ready <- startResult{index: w.index, err: err}
		return
	}
	w.sc = sc
	w.setState(StateReady)
	ready <- startResult{index: w.index}

	defer func() {
		if w.sc != nil {
			w.sc.Close()
			w.sc = nil
		}
		w.setState(StateStopped)
		w.logger.Debug("worker stopped", "served", w.Served())
	}()

	for job := range w.pool.intake {
		if !w.serve(job) {
			w.pool.retire(w)
			return
		}
	}
}

// newContext builds a context, converting a factory panic into an error.
func (w *Worker) newContext() (sc core.ScriptContext, err error) {
	defer func() {
		if p := recover(); p != nil {
			sc, err = nil, fmt.Errorf("creating script context: panic: %v", p)
		}
	}()
	return w.pool.factory.New(w.pool.source)
}

// serve runs one job and reports whether the worker can keep serving.
func (w *Worker) serve(job *Job) bool {
	w.setState(StateRunning)
	w.pool.busy.Add(1)
	w.pool.metrics.AddBusy(1)

	res, reset := w.execute(job)

	w.pool.busy.Add(-1)
	w.pool.metrics.AddBusy(-1)
	w.served.Add(1)
	w.deliver(job, res)

	if !reset {
		w.setState(StateReady)
		return true
	}
	return w.recycle(res.Error)
}

// execute calls into the context with the watchdog armed. A panic in the
// engine binding becomes an Internal error. reset is true when the
// context can no longer be trusted.
func (w *Worker) execute(job *Job) (res *core.Result, reset bool) {
	start := time.Now()
	res = &core.Result{WorkerID: w.id}
	timeout := w.pool.cfg.Timeout

	var watchdog *time.Timer
	fired := make(chan struct{})
	if timeout > 0 {
		sc := w.sc
		watchdog = time.AfterFunc(timeout, func() {
			defer close(fired)
			sc.Interrupt()
		})
	}

	defer func() {
		if watchdog != nil && !watchdog.Stop() {
			// The interrupt fired; even a successful call leaves the
			// engine's interrupt state set. Interrupt must have returned
			// before the context can be closed.
			<-fired
			reset = true
		}
		if p := recover(); p != nil {
			res.Response = nil
			res.Error = core.NewInternal("worker panic: %v", p)
			reset = true
		}
		res.Duration = time.Since(start)
		w.pool.metrics.RecordJob(outcome(res.Error), res.Duration, start.Sub(job.Submitted))
	}()

	resp, logs, err := w.sc.Handle(job.Request)
	res.Logs = logs
	if err != nil {
		var se *core.ScriptError
		if !errors.As(err, &se) {
			err = &core.ScriptError{Kind: core.Internal, Message: err.Error(), Err: err}
		}
		if core.IsKind(err, core.Timeout) {
			err = &core.ScriptError{
				Kind:    core.Timeout,
				Message: fmt.Sprintf("execution exceeded %v", timeout),
				Err:     err,
			}
		}
		res.Error = err
		return res, core.NeedsReset(err)
	}
	res.Response = resp
	return res, false
}

// deliver completes the job. A result for a caller that detached is
// logged instead of silently dropped.
func (w *Worker) deliver(job *Job, res *core.Result) {
	if !job.complete(res) {
		w.logger.Error("job completed more than once", "request_id", job.Request.ID)
		return
	}
	if job.claimOrphan() {
		w.pool.metrics.RecordDetached()
		w.logger.Debug("caller detached before result was delivered",
			"request_id", job.Request.ID,
			"outcome", outcome(res.Error),
			"duration", res.Duration,
		)
	}
}

// recycle discards the current context after a fault and applies the
// fault policy. It reports whether the worker stays in service.
func (w *Worker) recycle(cause error) bool {
	faults := w.faults.Add(1)
	kind := "timeout"
	if cause != nil {
		kind = outcome(cause)
	}
	w.pool.metrics.RecordContextReset(kind)
	w.logger.Warn("discarding script context", "kind", kind, "faults", faults, "error", cause)

	w.sc.Close()
	w.sc = nil

	if w.pool.cfg.FaultPolicy == FaultStop {
		w.logger.Warn("worker retired by fault policy", "policy", string(FaultStop))
		return false
	}

	sc, err := w.newContext()
	if err != nil {
		w.logger.Error("recreating script context failed, retiring worker", "error", err)
		return false
	}
	w.sc = sc
	w.setState(StateReady)
	return true
}

// outcome labels an execution result for logs and metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case core.IsKind(err, core.Thrown):
		return core.Thrown.String()
	case core.IsKind(err, core.Timeout):
		return core.Timeout.String()
	default:
		return core.Internal.String()
	}
}
