//go:build !v8

package quickjs

import (
	"fmt"

	"github.com/cryguy/winter/internal/core"
	"modernc.org/quickjs"
)

// wrapGoFuncJS turns the array a multi-result Go function returns under
// QuickJS into a plain value, throwing when the error slot is set.
const wrapGoFuncJS = `
globalThis.__wrapGoFunc = function(raw, name) {
	return function() {
		var r = raw.apply(this, arguments);
		if (Array.isArray(r) && r.length === 2) {
			if (r[1] !== null && r[1] !== undefined) throw new TypeError('calling ' + name + ': ' + r[1]);
			return r[0];
		}
		return r;
	};
};
`

// vmRuntime adapts one QuickJS VM to core.JSRuntime.
type vmRuntime struct {
	vm   *quickjs.VM
	jobs jobQueue

	wrapperInstalled bool
}

var _ core.JSRuntime = (*vmRuntime)(nil)

func newVMRuntime(vm *quickjs.VM) *vmRuntime {
	return &vmRuntime{vm: vm, jobs: jobQueueOf(vm)}
}

func (r *vmRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return err
	}
	v.Free()
	return nil
}

func (r *vmRuntime) EvalString(js string) (string, error) {
	v, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return "", err
	}
	switch s := v.(type) {
	case nil:
		return "", nil
	case string:
		return s, nil
	default:
		return fmt.Sprint(s), nil
	}
}

func (r *vmRuntime) EvalBool(js string) (bool, error) {
	v, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("want bool from script, got %T", v)
	}
	return b, nil
}

func (r *vmRuntime) EvalInt(js string) (int, error) {
	v, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("want number from script, got %T", v)
	}
}

// RegisterFunc exposes fn as globalThis[name]. A (T, error) result is
// unwrapped so scripts see T, or a TypeError when the error is set.
func (r *vmRuntime) RegisterFunc(name string, fn any) error {
	if !r.wrapperInstalled {
		if err := r.Eval(wrapGoFuncJS); err != nil {
			return fmt.Errorf("installing Go function wrapper: %w", err)
		}
		r.wrapperInstalled = true
	}
	raw := "__go_" + name
	if err := r.vm.RegisterFunc(raw, fn, false); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	return r.Eval(fmt.Sprintf("globalThis[%[1]q] = __wrapGoFunc(globalThis[%[2]q], %[1]q); delete globalThis[%[2]q];", name, raw))
}

func (r *vmRuntime) SetGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("creating atom %q: %w", name, err)
	}
	global := r.vm.GlobalObject()
	defer global.Free()
	return global.SetProperty(atom, value)
}

// RunMicrotasks runs queued promise reactions.
func (r *vmRuntime) RunMicrotasks() {
	r.jobs.drain()
}
