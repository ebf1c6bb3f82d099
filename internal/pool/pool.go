package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cryguy/winter/internal/core"
	"github.com/cryguy/winter/internal/metrics"
)

// Pool is a fixed set of workers sharing one intake channel. Any idle
// worker may claim the next job; there is no ordering across jobs.
type Pool struct {
	cfg     Config
	source  string
	factory core.ContextFactory
	logger  *slog.Logger
	metrics *metrics.Metrics

	// mu guards closed and the close of intake against concurrent sends.
	mu      sync.RWMutex
	closed  bool
	intake  chan *Job
	workers []*Worker
	wg      sync.WaitGroup

	live atomic.Int32
	busy atomic.Int32
}

// New starts cfg.Workers workers, each loading source through factory, and
// waits until every one has reported. If any worker fails to start the
// others are stopped and a *core.StartupError is returned: all workers load
// the same source, so one failure means the source itself is bad.
func New(cfg Config, source string, factory core.ContextFactory, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &core.StartupError{Op: "validating pool config", Err: err}
	}
	if cfg.FaultPolicy == "" {
		cfg.FaultPolicy = FaultReset
	}

	p := &Pool{
		cfg:     cfg,
		source:  source,
		factory: factory,
		logger:  slog.Default().WithGroup("pool"),
		intake:  make(chan *Job, cfg.QueueSize),
	}
	for _, opt := range opts {
		opt(p)
	}

	ready := make(chan startResult, cfg.Workers)
	p.workers = make([]*Worker, cfg.Workers)
	for i := range p.workers {
		w := newWorker(p, i)
		p.workers[i] = w
		p.wg.Add(1)
		go w.run(ready)
	}

	var first *startResult
	failed := 0
	for range cfg.Workers {
		r := <-ready
		if r.err == nil {
			continue
		}
		failed++
		if first == nil || r.index < first.index {
			first = &r
		}
	}
	if first != nil {
		p.close()
		p.wg.Wait()
		p.logger.Error("worker pool failed to start",
			"engine", factory.Name(), "failed", failed, "workers", cfg.Workers, "error", first.err)
		return nil, &core.StartupError{
			Op:  fmt.Sprintf("starting worker %d of %d", first.index, cfg.Workers),
			Err: first.err,
		}
	}

	p.live.Store(int32(cfg.Workers))
	p.metrics.SetLive(cfg.Workers)
	p.logger.Info("worker pool started",
		"engine", factory.Name(),
		"workers", cfg.Workers,
		"queue_size", cfg.QueueSize,
		"timeout", cfg.Timeout,
		"fault_policy", string(cfg.FaultPolicy),
	)
	return p, nil
}

// Submit places job on the intake without blocking. It fails with
// core.ErrOverloaded when no worker is receiving and the queue is full,
// and with core.ErrPoolClosed once shutdown began.
func (p *Pool) Submit(job *Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.RecordRejected("closed")
		return core.ErrPoolClosed
	}
	select {
	case p.intake <- job:
		return nil
	default:
		p.metrics.RecordRejected("overloaded")
		return core.ErrOverloaded
	}
}

// Shutdown stops admission, lets the workers drain queued and in-flight
// jobs, and waits for them to close their contexts. It returns early with
// the context's error if draining outlasts ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.close() {
		p.logger.Info("worker pool shutting down", "queued", p.Queued(), "busy", p.Busy())
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining worker pool: %w", ctx.Err())
	}
}

// close stops admission. It reports whether this call closed the pool.
func (p *Pool) close() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	close(p.intake)
	return true
}

// retire removes a worker from service. When the last worker goes the pool
// closes and every job still queued fails with core.ErrPoolClosed.
func (p *Pool) retire(w *Worker) {
	live := p.live.Add(-1)
	p.metrics.SetLive(int(live))
	if live > 0 {
		p.logger.Warn("pool capacity reduced", "retired", w.index, "live", live, "workers", p.cfg.Workers)
		return
	}

	if p.close() {
		p.logger.Error("all workers retired, worker pool closed")
	}
	for job := range p.intake {
		res := &core.Result{Error: core.ErrPoolClosed}
		if job.complete(res) && job.claimOrphan() {
			p.metrics.RecordDetached()
		}
	}
}

// Size returns the configured worker count.
func (p *Pool) Size() int { return p.cfg.Workers }

// Capacity returns the number of workers still in service.
func (p *Pool) Capacity() int { return int(p.live.Load()) }

// Busy returns the number of workers executing a job.
func (p *Pool) Busy() int { return int(p.busy.Load()) }

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int { return len(p.intake) }

// Workers returns the pool's workers for inspection.
func (p *Pool) Workers() []*Worker {
	out := make([]*Worker, len(p.workers))
	copy(out, p.workers)
	return out
}

// Engine returns the name of the engine backing the pool.
func (p *Pool) Engine() string { return p.factory.Name() }
