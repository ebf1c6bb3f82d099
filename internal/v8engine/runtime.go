//go:build v8

package v8engine

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/cryguy/winter/internal/core"
	v8 "github.com/tommie/v8go"
)

// scriptOrigin names every chunk evaluated by the runtime in stack traces.
const scriptOrigin = "winter.js"

// isoRuntime adapts one V8 isolate and its context to core.JSRuntime.
type isoRuntime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

var _ core.JSRuntime = (*isoRuntime)(nil)

func (r *isoRuntime) run(js string) (*v8.Value, error) {
	return r.ctx.RunScript(js, scriptOrigin)
}

func (r *isoRuntime) Eval(js string) error {
	_, err := r.run(js)
	return err
}

func (r *isoRuntime) EvalString(js string) (string, error) {
	v, err := r.run(js)
	if err != nil || v == nil {
		return "", err
	}
	return v.String(), nil
}

func (r *isoRuntime) EvalBool(js string) (bool, error) {
	v, err := r.run(js)
	if err != nil || v == nil {
		return false, err
	}
	return v.Boolean(), nil
}

func (r *isoRuntime) EvalInt(js string) (int, error) {
	v, err := r.run(js)
	if err != nil || v == nil {
		return 0, err
	}
	return int(v.Integer()), nil
}

// RegisterFunc exposes fn as a global function. Parameters and results may
// be string, int, int64, float64 or bool; a trailing error result throws.
// Panics inside fn surface as JS exceptions and never unwind through V8.
func (r *isoRuntime) RegisterFunc(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return fmt.Errorf("registering %s: want a function, got %T", name, fn)
	}
	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		v, err := r.callGo(fv, info.Args())
		if err != nil {
			r.throw(fmt.Sprintf("calling %s: %v", name, err))
			return nil
		}
		return v
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *isoRuntime) callGo(fv reflect.Value, args []*v8.Value) (ret *v8.Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			ret, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()

	ft := fv.Type()
	if len(args) < ft.NumIn() {
		return nil, fmt.Errorf("want %d argument(s), got %d", ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, ft.NumIn())
	for i := range in {
		in[i] = fromJS(args[i], ft.In(i))
	}

	out := fv.Call(in)
	if len(out) == 2 && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return toJS(r.iso, out[0]), nil
}

func (r *isoRuntime) throw(msg string) {
	v, _ := v8.NewValue(r.iso, msg)
	r.iso.ThrowException(v)
}

func (r *isoRuntime) SetGlobal(name string, value any) error {
	v, err := r.valueOf(value)
	if err != nil {
		return fmt.Errorf("converting global %q: %w", name, err)
	}
	return r.ctx.Global().Set(name, v)
}

func (r *isoRuntime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// valueOf converts a Go value for SetGlobal. Values without a direct V8
// representation travel as JSON.
func (r *isoRuntime) valueOf(value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(r.iso), nil
	case *v8.Value:
		return v, nil
	case *v8.Object:
		return v.Value, nil
	case string, bool, float64, int32:
		return v8.NewValue(r.iso, v)
	case int:
		return number(r.iso, int64(v))
	case int64:
		return number(r.iso, v)
	default:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return r.run("JSON.parse(" + core.JsEscape(string(data)) + ")")
	}
}

// number keeps small integers as V8 int32 and widens the rest to float64.
func number(iso *v8.Isolate, n int64) (*v8.Value, error) {
	if n >= math.MinInt32 && n <= math.MaxInt32 {
		return v8.NewValue(iso, int32(n))
	}
	return v8.NewValue(iso, float64(n))
}

func fromJS(v *v8.Value, t reflect.Type) reflect.Value {
	switch t.Kind() {
	case reflect.String:
		return reflect.ValueOf(v.String())
	case reflect.Int:
		return reflect.ValueOf(int(v.Integer()))
	case reflect.Int64:
		return reflect.ValueOf(v.Integer())
	case reflect.Float64:
		return reflect.ValueOf(v.Number())
	case reflect.Bool:
		return reflect.ValueOf(v.Boolean())
	default:
		return reflect.Zero(t)
	}
}

func toJS(iso *v8.Isolate, v reflect.Value) *v8.Value {
	var (
		out *v8.Value
		err error
	)
	switch v.Kind() {
	case reflect.String:
		out, err = v8.NewValue(iso, v.String())
	case reflect.Int, reflect.Int32, reflect.Int64:
		out, err = number(iso, v.Int())
	case reflect.Float32, reflect.Float64:
		out, err = v8.NewValue(iso, v.Float())
	case reflect.Bool:
		out, err = v8.NewValue(iso, v.Bool())
	default:
		return nil
	}
	if err != nil {
		return nil
	}
	return out
}
