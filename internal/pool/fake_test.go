package pool

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/winter/internal/core"
)

// fakeFactory builds in-memory contexts whose behaviour is selected by the
// request URL. It stands in for an engine so pool semantics can be tested
// without a JavaScript runtime.
type fakeFactory struct {
	mu      sync.Mutex
	created int
	closed  int
	failOn  func(n int) error
	order   []string
	events  []string
	release chan struct{}

	// interruptLag keeps Interrupt running after the handler has been
	// released.
	interruptLag time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{release: make(chan struct{})}
}

func (f *fakeFactory) Name() string { return "fake" }

func (f *fakeFactory) New(source string) (core.ScriptContext, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created++
	if f.failOn != nil {
		if err := f.failOn(f.created); err != nil {
			return nil, err
		}
	}
	return &fakeContext{f: f, gen: f.created, interrupt: make(chan struct{})}, nil
}

func (f *fakeFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeFactory) Closed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeFactory) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func (f *fakeFactory) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeFactory) event(e string) {
	f.mu.Lock()
	f.events = append(f.events, e)
	f.mu.Unlock()
}

func (f *fakeFactory) Release() { close(f.release) }

type fakeContext struct {
	f       *fakeFactory
	gen     int
	counter int

	interrupt chan struct{}
	once      sync.Once
}

func (c *fakeContext) Handle(req *core.Request) (*core.Response, []core.LogEntry, error) {
	n := c.f.active.Add(1)
	defer c.f.active.Add(-1)
	for {
		m := c.f.maxActive.Load()
		if n <= m || c.f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	c.f.mu.Lock()
	c.f.order = append(c.f.order, req.ID)
	c.f.mu.Unlock()

	logs := []core.LogEntry{{Level: "log", Message: "handling " + req.ID, Time: time.Now()}}

	switch req.URL {
	case "/echo":
		return text(strings.ToUpper(string(req.Body))), logs, nil
	case "/count":
		c.counter++
		return text(strconv.Itoa(c.counter)), logs, nil
	case "/gen":
		return text(strconv.Itoa(c.gen)), logs, nil
	case "/sleep":
		time.Sleep(200 * time.Microsecond)
		return text("slept"), logs, nil
	case "/throw":
		return nil, logs, core.NewThrown(errors.New("Error: boom"))
	case "/internal":
		return nil, logs, core.NewInternal("engine fault")
	case "/plain":
		return nil, logs, errors.New("unclassified failure")
	case "/panic":
		panic("binding exploded")
	case "/hang":
		<-c.interrupt
		return nil, logs, &core.ScriptError{Kind: core.Timeout, Message: "execution interrupted"}
	case "/block":
		select {
		case <-c.f.release:
			return text("released"), logs, nil
		case <-c.interrupt:
			return nil, logs, &core.ScriptError{Kind: core.Timeout, Message: "execution interrupted"}
		}
	default:
		return nil, logs, core.NewThrown(fmt.Errorf("no route for %s", req.URL))
	}
}

func (c *fakeContext) Interrupt() {
	c.once.Do(func() {
		close(c.interrupt)
		if c.f.interruptLag > 0 {
			time.Sleep(c.f.interruptLag)
		}
		c.f.event(fmt.Sprintf("interrupted %d", c.gen))
	})
}

func (c *fakeContext) Close() {
	c.f.mu.Lock()
	c.f.closed++
	c.f.events = append(c.f.events, fmt.Sprintf("closed %d", c.gen))
	c.f.mu.Unlock()
}

func text(s string) *core.Response {
	return &core.Response{
		StatusCode: http.StatusOK,
		Headers:    http.Header{"Content-Type": {"text/plain"}},
		Body:       []byte(s),
	}
}
