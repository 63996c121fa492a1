package jsengine

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// setupDriverBindings exposes the live session to hook scripts.
//
//	execute('mobile: queryAppState', {bundleId: 'x'})
//	mobile('queryAppState', {bundleId: 'x'})
//	queryAppState('x')
//	acceptAlert()
//	source()
//	platform()
func (e *Engine) setupDriverBindings() {
	e.runtime.Set("execute", func(call goja.FunctionCall) goja.Value {
		d := e.mustDriver("execute")
		script := argString(call, 0)
		if script == "" {
			panic(e.runtime.NewTypeError("execute requires a script"))
		}
		v, err := d.Execute(script, argMap(call, 1))
		return e.result(v, err)
	})

	e.runtime.Set("mobile", func(call goja.FunctionCall) goja.Value {
		d := e.mustDriver("mobile")
		command := strings.TrimPrefix(argString(call, 0), "mobile: ")
		if command == "" {
			panic(e.runtime.NewTypeError("mobile requires a command"))
		}
		v, err := d.ExecuteMobile(command, argMap(call, 1))
		return e.result(v, err)
	})

	e.runtime.Set("queryAppState", func(call goja.FunctionCall) goja.Value {
		d := e.mustDriver("queryAppState")
		v, err := verify.QueryAppState(d, argString(call, 0))
		return e.result(v, err)
	})

	e.runtime.Set("acceptAlert", func(call goja.FunctionCall) goja.Value {
		d := e.mustDriver("acceptAlert")
		return e.result(nil, d.AcceptAlert())
	})

	e.runtime.Set("source", func(call goja.FunctionCall) goja.Value {
		d := e.mustDriver("source")
		src, err := d.Source()
		return e.result(src, err)
	})

	e.runtime.Set("platform", func(call goja.FunctionCall) goja.Value {
		if e.driver == nil {
			return goja.Undefined()
		}
		return e.runtime.ToValue(e.driver.Platform())
	})
}

func (e *Engine) mustDriver(name string) verify.Driver {
	if e.driver == nil {
		panic(e.runtime.NewGoError(fmt.Errorf("%s: no active session", name)))
	}
	return e.driver
}

// result turns a Go error into a thrown JS error so try/catch works in hooks.
func (e *Engine) result(v interface{}, err error) goja.Value {
	if err != nil {
		panic(e.runtime.NewGoError(err))
	}
	if v == nil {
		return goja.Undefined()
	}
	return e.runtime.ToValue(v)
}

func argString(call goja.FunctionCall, i int) string {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func argMap(call goja.FunctionCall, i int) map[string]interface{} {
	v := call.Argument(i)
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	m, _ := v.Export().(map[string]interface{})
	return m
}
