package jsengine

import "github.com/subagentctl/subagentctl/hooks"

// Adapter satisfies hooks.Engine over a jsengine.Engine, keeping
// package hooks decoupled from goja.
type Adapter struct {
	engine *Engine
}

// NewAdapter wraps a jsengine.Engine as a hooks.Engine.
func NewAdapter(e *Engine) *Adapter {
	if e == nil {
		e = New()
	}
	return &Adapter{engine: e}
}

// Run implements hooks.Engine.
func (a *Adapter) Run(script string, ctx hooks.ScriptContext) (string, error) {
	return a.engine.Run(script, Context{Event: ctx.Event, Config: ctx.Config, Helpers: ctx.Helpers})
}
