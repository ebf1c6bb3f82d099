// Package eventloop schedules setTimeout and setInterval callbacks for one
// script context. Callbacks live in globalThis.__timerCallbacks on the JS
// side; the loop only tracks when each id is due.
package eventloop

import (
	"container/heap"
	"fmt"
	"sync"
	"time"

	"github.com/cryguy/winter/internal/core"
)

// minInterval is the shortest period accepted for setInterval.
const minInterval = 10 * time.Millisecond

const fireJS = `(function(id) {
	var entry = globalThis.__timerCallbacks[id];
	if (!entry) return;
	if (!entry.interval) delete globalThis.__timerCallbacks[id];
	entry.fn.apply(null, entry.args || []);
})(%d)`

type timer struct {
	id       int
	due      time.Time
	interval time.Duration
	index    int
}

// timerHeap orders live timers by due time, then id.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].id < h[j].id
	}
	return h[i].due.Before(h[j].due)
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *timerHeap) Push(x any) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() any {
	old := *h
	t := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	t.index = -1
	return t
}

// EventLoop holds the timers of one context. Timers only fire inside
// Drain, on the goroutine that owns the runtime. Register and Clear are
// called from Go functions the script invokes, so they take the lock too.
type EventLoop struct {
	mu     sync.Mutex
	queue  timerHeap
	byID   map[int]*timer
	nextID int
}

func New() *EventLoop {
	return &EventLoop{byID: make(map[int]*timer)}
}

// RegisterTimer schedules a timer after delay and returns its id.
// Intervals shorter than minInterval are raised to it.
func (el *EventLoop) RegisterTimer(delay time.Duration, isInterval bool) int {
	el.mu.Lock()
	defer el.mu.Unlock()
	delay = max(delay, 0)
	el.nextID++
	t := &timer{id: el.nextID, due: time.Now().Add(delay)}
	if isInterval {
		t.interval = max(delay, minInterval)
	}
	heap.Push(&el.queue, t)
	el.byID[t.id] = t
	return t.id
}

// ClearTimer cancels id. Unknown ids are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if t, ok := el.byID[id]; ok {
		heap.Remove(&el.queue, t.index)
		delete(el.byID, id)
	}
}

// due pops the earliest timer if it is due by now, or reports when the
// earliest one will be.
func (el *EventLoop) due(now time.Time) (id int, wait time.Duration, ok bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	if len(el.queue) == 0 {
		return 0, 0, false
	}
	t := el.queue[0]
	if t.due.After(now) {
		return 0, t.due.Sub(now), true
	}
	if t.interval > 0 {
		t.due = now.Add(t.interval)
		heap.Fix(&el.queue, t.index)
	} else {
		heap.Pop(&el.queue)
		delete(el.byID, t.id)
	}
	return t.id, 0, true
}

// Drain fires due timers, sleeping between them, until no timer is left or
// deadline passes. Microtasks run after every callback.
func (el *EventLoop) Drain(rt core.JSRuntime, deadline time.Time) {
	for {
		now := time.Now()
		if !now.Before(deadline) {
			return
		}
		id, wait, ok := el.due(now)
		if !ok {
			return
		}
		if wait > 0 {
			time.Sleep(min(wait, deadline.Sub(now)))
			continue
		}
		_ = rt.Eval(fmt.Sprintf(fireJS, id))
		rt.RunMicrotasks()
	}
}

// HasPending reports whether any timer is scheduled.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.queue) > 0
}

// Reset drops every timer so nothing scheduled by one request fires during
// the next.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.queue = nil
	el.byID = make(map[int]*timer)
	el.nextID = 0
}
