package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/winter/internal/core"
)

// Job is one request waiting for, or being served by, a worker. It is
// completed exactly once; the result is buffered so the worker never blocks
// on a caller that went away.
type Job struct {
	Request   *core.Request
	Submitted time.Time

	done     chan *core.Result
	once     sync.Once
	detached atomic.Bool
	orphan   atomic.Bool
}

// NewJob wraps req in a job with a fresh completion channel.
func NewJob(req *core.Request) *Job {
	return &Job{
		Request:   req,
		Submitted: time.Now(),
		done:      make(chan *core.Result, 1),
	}
}

// Done delivers the job's single result.
func (j *Job) Done() <-chan *core.Result {
	return j.done
}

// complete delivers res. It reports false if the job was already completed.
func (j *Job) complete(res *core.Result) bool {
	delivered := false
	j.once.Do(func() {
		j.done <- res
		delivered = true
	})
	return delivered
}

// Detach marks the caller as gone. The worker still runs the job; its
// result is reported as orphaned instead of being read. If the result had
// already been delivered, Detach returns it so the caller can account for
// it.
func (j *Job) Detach() *core.Result {
	j.detached.Store(true)
	select {
	case res := <-j.done:
		if j.orphan.CompareAndSwap(false, true) {
			return res
		}
	default:
	}
	return nil
}

// Detached reports whether the caller detached.
func (j *Job) Detached() bool {
	return j.detached.Load()
}

// claimOrphan reports whether the worker is the one to report the result
// of a detached job. At most one of claimOrphan and Detach reports it.
func (j *Job) claimOrphan() bool {
	return j.detached.Load() && j.orphan.CompareAndSwap(false, true)
}
