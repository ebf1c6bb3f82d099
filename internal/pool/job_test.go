package pool

import (
	"sync"
	"testing"

	"github.com/cryguy/winter/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestJobCompletesOnce(t *testing.T) {
	job := NewJob(&core.Request{ID: "1"})
	first := &core.Result{WorkerID: "a"}

	assert.True(t, job.complete(first))
	assert.False(t, job.complete(&core.Result{WorkerID: "b"}))

	res := <-job.Done()
	assert.Same(t, first, res)
	assert.Empty(t, job.Done())
}

func TestDetachAfterDelivery(t *testing.T) {
	job := NewJob(&core.Request{ID: "1"})
	res := &core.Result{WorkerID: "a"}
	require.True(t, job.complete(res))

	assert.Same(t, res, job.Detach())
	assert.True(t, job.Detached())
	assert.False(t, job.claimOrphan(), "the caller already accounted for the result")
}

func TestDetachBeforeDelivery(t *testing.T) {
	job := NewJob(&core.Request{ID: "1"})
	assert.Nil(t, job.Detach())

	require.True(t, job.complete(&core.Result{}))
	assert.True(t, job.claimOrphan())
	assert.False(t, job.claimOrphan())
}

func TestClaimOrphanWithoutDetach(t *testing.T) {
	job := NewJob(&core.Request{ID: "1"})
	require.True(t, job.complete(&core.Result{}))
	assert.False(t, job.claimOrphan())
}

// Whatever the interleaving, a detached result is reported exactly once,
// either by the caller or by the worker.
func TestDetachedResultReportedOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		detachFirst := rapid.Bool().Draw(rt, "detachFirst")
		job := NewJob(&core.Request{ID: "1"})

		var callerSaw, workerSaw bool
		var wg sync.WaitGroup
		wg.Add(2)
		detach := func() {
			defer wg.Done()
			callerSaw = job.Detach() != nil
		}
		finish := func() {
			defer wg.Done()
			job.complete(&core.Result{})
			workerSaw = job.claimOrphan()
		}
		if detachFirst {
			go detach()
			go finish()
		} else {
			go finish()
			go detach()
		}
		wg.Wait()

		if callerSaw == workerSaw {
			rt.Fatalf("caller=%v worker=%v: want exactly one reporter", callerSaw, workerSaw)
		}
	})
}

func TestParseFaultPolicy(t *testing.T) {
	for in, want := range map[string]FaultPolicy{"": FaultReset, "reset": FaultReset, "stop": FaultStop} {
		got, err := ParseFaultPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFaultPolicy("restart")
	assert.ErrorContains(t, err, `unknown fault policy "restart"`)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{Workers: 1}.Validate())
	assert.NoError(t, Config{Workers: 4, QueueSize: 16, FaultPolicy: FaultStop}.Validate())

	err := Config{Workers: -1, Timeout: -1, FaultPolicy: "bogus"}.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, "workers must be positive")
	assert.ErrorContains(t, err, "timeout must not be negative")
	assert.ErrorContains(t, err, "unknown fault policy")
}
