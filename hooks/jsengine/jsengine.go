// Package jsengine implements the embedded-scripting option for the Hook
// Dispatcher (spec §4.H, SPEC_FULL.md §4 Domain Stack) using
// github.com/dop251/goja, a pure-Go JavaScript runtime, grounded on
// r3e-network-service_layer's system/tee/script_engine.go gojaScriptEngine
// pattern: a fresh *goja.Runtime per call for isolation, a console shim,
// input injected as a global, and the entry-point function's return value
// exported back to Go.
package jsengine

import (
	"fmt"

	"github.com/dop251/goja"
)

// Engine compiles and runs hook scripts whose entry point is
// `function execute(context) { return "ALLOW"|"DENY"|"WARN" }` (spec
// §4.H).
type Engine struct{}

// New constructs a jsengine.Engine.
func New() *Engine { return &Engine{} }

// Context is the value passed to a hook script's execute function:
// {event, config, helpers} (spec §4.H: "context provides the event,
// config view, and helpers").
type Context struct {
	Event   map[string]any
	Config  map[string]any
	Helpers map[string]any
}

// Run compiles script and calls its "execute" entry point with context,
// returning the script's string return value ("ALLOW"/"DENY"/"WARN") or
// an error if the script fails to compile, run, or does not return a
// string.
func (e *Engine) Run(script string, ctx Context) (string, error) {
	vm := goja.New()

	console := vm.NewObject()
	_ = console.Set("log", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = vm.Set("console", console)

	_ = vm.Set("notify", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = vm.Set("context", map[string]any{
		"event":   ctx.Event,
		"config":  ctx.Config,
		"helpers": ctx.Helpers,
	})

	if _, err := vm.RunString(script); err != nil {
		return "", fmt.Errorf("jsengine: compile: %w", err)
	}

	execute, ok := goja.AssertFunction(vm.Get("execute"))
	if !ok {
		return "", fmt.Errorf("jsengine: script does not define an execute(context) function")
	}

	result, err := execute(goja.Undefined(), vm.Get("context"))
	if err != nil {
		return "", fmt.Errorf("jsengine: execute: %w", err)
	}

	verdict, ok := result.Export().(string)
	if !ok {
		return "", fmt.Errorf("jsengine: execute() must return a string verdict, got %T", result.Export())
	}
	return verdict, nil
}
