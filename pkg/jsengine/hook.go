package jsengine

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/appium-compat/pkg/verify"
)

// Check reports syntax errors in a hook script without running it.
func Check(name, script string) error {
	if _, err := goja.Compile(name, script, false); err != nil {
		return fmt.Errorf("hook %s: %w", name, err)
	}
	return nil
}

// Hook turns a script into a session hook. Every invocation runs on a
// fresh engine seeded with vars, so hooks of parallel scenarios share no
// state. Whatever the script wrote to `output` is kept in env.Artifacts,
// also when the script failed.
func Hook(script string, vars map[string]interface{}) func(ctx context.Context, env *verify.Env) error {
	return func(ctx context.Context, env *verify.Env) error {
		e := New()
		e.SetVariables(vars)
		err := e.Run(ctx, env.Driver, script)
		if env.Artifacts != nil {
			env.Artifacts.AddOutput(e.GetOutput())
		}
		return err
	}
}
