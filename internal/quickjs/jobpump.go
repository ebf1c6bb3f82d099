//go:build !v8

package quickjs

import (
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// jobQueue is the C-level promise job queue of one VM. modernc.org/quickjs
// never runs JS_ExecutePendingJob itself, so awaiting a handler promise
// needs direct access to the runtime handle.
type jobQueue struct {
	runtime uintptr
	tls     *libc.TLS
}

// jobQueueOf resolves the queue for vm. The zero jobQueue is returned when
// the VM layout is not the one expected; draining it is a no-op.
func jobQueueOf(vm *quickjs.VM) jobQueue {
	runtime, tls, ok := runtimeHandle(vm)
	if !ok {
		return jobQueue{}
	}
	return jobQueue{runtime: runtime, tls: tls}
}

// drain runs pending jobs until the queue is empty or a job fails and
// returns how many ran.
func (q jobQueue) drain() int {
	if q.tls == nil {
		return 0
	}
	n := 0
	for lib.XJS_ExecutePendingJob(q.tls, q.runtime, 0) > 0 {
		n++
	}
	return n
}

// runtimeHandle reads the unexported runtime fields of a VM. Layout as of
// modernc.org/quickjs v0.17:
//
//	type VM struct {
//	    ...
//	    runtime *runtime // struct { cRuntime uintptr; tls *libc.TLS }
//	}
func runtimeHandle(vm *quickjs.VM) (uintptr, *libc.TLS, bool) {
	field := reflect.ValueOf(vm).Elem().FieldByName("runtime")
	if !field.IsValid() || field.IsNil() {
		return 0, nil, false
	}
	rt := reflect.NewAt(field.Type().Elem(), unsafe.Pointer(field.Pointer())).Elem()

	cRuntime := rt.FieldByName("cRuntime")
	tls := rt.FieldByName("tls")
	if !cRuntime.IsValid() || !tls.IsValid() || tls.IsNil() {
		return 0, nil, false
	}
	return uintptr(cRuntime.Uint()), (*libc.TLS)(unsafe.Pointer(tls.Pointer())), true
}
