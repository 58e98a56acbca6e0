// Package hooks implements the Hook Dispatcher (spec §4.H): discovers
// pre-agent-invocation/post-agent-invocation/on-error scripts, runs each
// under a 1s wall-clock timeout with independent error isolation, and
// interprets the ALLOW/DENY/WARN verdict. A pre-hook DENY cancels the
// action and the dispatcher emits agent.blocked; post-hooks run
// asynchronously; on-error hooks run on agent.failed.
package hooks

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/telemetry"
)

// Verdict is a hook script's outcome.
type Verdict string

const (
	Allow Verdict = "ALLOW"
	Deny  Verdict = "DENY"
	Warn  Verdict = "WARN"
)

// Stage names the discovery directory a hook script lives under (spec
// §4.H).
type Stage string

const (
	StagePreAgentInvocation  Stage = "pre-agent-invocation"
	StagePostAgentInvocation Stage = "post-agent-invocation"
	StageOnError             Stage = "on-error"
)

// Script is one discovered hook.
type Script struct {
	Path string
	Body string
}

// Engine runs one compiled hook script against a Context and returns its
// verdict. jsengine.Engine.Run satisfies this via a small adapter in
// hooks/jsengine (kept decoupled so Dispatcher has no direct goja
// dependency).
type Engine interface {
	Run(script string, ctx ScriptContext) (string, error)
}

// ScriptContext is what a hook script receives (spec §4.H: "context
// provides the event, config view, and helpers").
type ScriptContext struct {
	Event   map[string]any
	Config  map[string]any
	Helpers map[string]any
}

// NoopEngine always returns ALLOW without running anything, matching the
// fail-open stance spec.md §9 calls for when no scripts are discovered
// (SPEC_FULL.md §4.H).
type NoopEngine struct{}

// Run implements Engine.
func (NoopEngine) Run(string, ScriptContext) (string, error) { return string(Allow), nil }

// Dispatcher discovers and runs hook scripts per stage.
type Dispatcher struct {
	dir     string
	engine  Engine
	b       bus.Bus
	log     telemetry.Logger
	timeout time.Duration
	config  map[string]any
}

// Option configures a Dispatcher at construction.
type Option func(*Dispatcher)

// WithLogger injects a telemetry.Logger for hook-error reporting.
func WithLogger(l telemetry.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithConfig sets the config view passed into every hook's context.
func WithConfig(cfg map[string]any) Option {
	return func(d *Dispatcher) { d.config = cfg }
}

// New constructs a Dispatcher rooted at dir (hooks/ by default). A nil
// engine defaults to NoopEngine (fail-open when no scripting backend is
// wired).
func New(dir string, engine Engine, b bus.Bus, opts ...Option) *Dispatcher {
	if engine == nil {
		engine = NoopEngine{}
	}
	d := &Dispatcher{
		dir:     dir,
		engine:  engine,
		b:       b,
		log:     telemetry.NoopLogger{},
		timeout: time.Second,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover lists scripts under dir/<stage>, sorted by filename for
// deterministic execution order.
func (d *Dispatcher) Discover(stage Stage) ([]Script, error) {
	dirPath := filepath.Join(d.dir, string(stage))
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	scripts := make([]Script, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dirPath, name)
		body, err := os.ReadFile(path)
		if err != nil {
			d.log.Warn(context.Background(), "hooks: failed reading script", "path", path, "error", err.Error())
			continue
		}
		scripts = append(scripts, Script{Path: path, Body: string(body)})
	}
	return scripts, nil
}

// RunPre runs every pre-agent-invocation hook synchronously before the
// effective agent work begins. Any DENY verdict cancels the action; the
// caller is responsible for not proceeding when ok is false, and the
// dispatcher itself emits agent.blocked.
func (d *Dispatcher) RunPre(ctx context.Context, sessionID, agentID string, event map[string]any) (ok bool, reason string) {
	scripts, err := d.Discover(StagePreAgentInvocation)
	if err != nil {
		d.log.Warn(ctx, "hooks: discover pre-agent-invocation failed", "error", err.Error())
		return true, ""
	}
	for _, s := range scripts {
		verdict, err := d.runOne(ctx, s, event)
		if err != nil {
			d.log.Warn(ctx, "hooks: pre-hook error, isolated", "path", s.Path, "error", err.Error())
			continue
		}
		if Verdict(verdict) == Deny {
			if d.b != nil {
				d.b.Publish(ctx, bus.NewEvent(bus.EventAgentBlocked, sessionID, map[string]any{
					"agent_id": agentID, "hook": s.Path,
				}))
			}
			return false, "blocked by " + s.Path
		}
	}
	return true, ""
}

// RunPost runs every post-agent-invocation hook asynchronously (spec
// §4.H: "Post-hooks run asynchronously").
func (d *Dispatcher) RunPost(ctx context.Context, event map[string]any) {
	scripts, err := d.Discover(StagePostAgentInvocation)
	if err != nil {
		d.log.Warn(ctx, "hooks: discover post-agent-invocation failed", "error", err.Error())
		return
	}
	for _, s := range scripts {
		go func(s Script) {
			if _, err := d.runOne(ctx, s, event); err != nil {
				d.log.Warn(ctx, "hooks: post-hook error, isolated", "path", s.Path, "error", err.Error())
			}
		}(s)
	}
}

// RunOnError runs every on-error hook (triggered by agent.failed, spec
// §4.H).
func (d *Dispatcher) RunOnError(ctx context.Context, event map[string]any) {
	scripts, err := d.Discover(StageOnError)
	if err != nil {
		d.log.Warn(ctx, "hooks: discover on-error failed", "error", err.Error())
		return
	}
	for _, s := range scripts {
		if _, err := d.runOne(ctx, s, event); err != nil {
			d.log.Warn(ctx, "hooks: on-error hook error, isolated", "path", s.Path, "error", err.Error())
		}
	}
}

// HandleEvent implements bus.Handler, running on-error hooks on
// agent.failed and post-hooks on agent.completed.
func (d *Dispatcher) HandleEvent(ctx context.Context, e bus.Event) error {
	switch e.Type() {
	case bus.EventAgentFailed:
		d.RunOnError(ctx, e.Payload())
	case bus.EventAgentCompleted:
		d.RunPost(ctx, e.Payload())
	}
	return nil
}

// runOne runs one script under the 1s wall-clock timeout, isolating
// errors from other hooks (spec §4.H).
func (d *Dispatcher) runOne(ctx context.Context, s Script, event map[string]any) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type result struct {
		verdict string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		verdict, err := d.engine.Run(s.Body, ScriptContext{Event: event, Config: d.config, Helpers: map[string]any{}})
		done <- result{verdict: verdict, err: err}
	}()

	select {
	case r := <-done:
		return r.verdict, r.err
	case <-timeoutCtx.Done():
		return "", timeoutCtx.Err()
	}
}
