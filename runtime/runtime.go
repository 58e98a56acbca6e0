// Package runtime wires every control-plane component into a single
// Runtime handle via explicit dependency injection: the bus, schema
// registry, session/agent/task/approval stores, budget/permission/router,
// workflow engine, metrics aggregator, snapshot manager, log writer,
// analytics ingester, trigger subscribers, cost tracker, hook dispatcher,
// and quality-gate runner. Package controlplane implements the external
// surface as methods on *Runtime.
package runtime

import (
	"context"
	"path/filepath"
	"time"

	"github.com/subagentctl/subagentctl/agentreg"
	"github.com/subagentctl/subagentctl/analytics"
	"github.com/subagentctl/subagentctl/approval"
	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/config"
	"github.com/subagentctl/subagentctl/cost"
	"github.com/subagentctl/subagentctl/hooks"
	"github.com/subagentctl/subagentctl/hooks/jsengine"
	"github.com/subagentctl/subagentctl/logwriter"
	"github.com/subagentctl/subagentctl/metrics"
	"github.com/subagentctl/subagentctl/permission"
	"github.com/subagentctl/subagentctl/quality"
	"github.com/subagentctl/subagentctl/retention"
	"github.com/subagentctl/subagentctl/router"
	"github.com/subagentctl/subagentctl/schema"
	"github.com/subagentctl/subagentctl/session"
	"github.com/subagentctl/subagentctl/snapshot"
	"github.com/subagentctl/subagentctl/task"
	"github.com/subagentctl/subagentctl/telemetry"
	"github.com/subagentctl/subagentctl/trigger"
	"github.com/subagentctl/subagentctl/workflow"
	"github.com/subagentctl/subagentctl/workflow/inmemengine"
)

// Runtime is the single construction point combining every control-plane
// component. Every field is exported so controlplane (and tests) can reach
// the constituent packages directly when a thin passthrough is all that's
// needed.
type Runtime struct {
	Config *config.Config
	Bus    bus.Bus
	Log    telemetry.Logger
	Schema *schema.Registry

	Sessions  *session.Store
	Agents    *agentreg.Registry
	Tasks     *task.Store
	Approvals *approval.Store

	Permission *permission.Manager
	Proxy      *permission.Proxy
	Router     *router.Router
	Workflow   workflow.Engine

	Metrics   *metrics.Aggregator
	Snapshot  *snapshot.Manager
	Logs      *logwriter.Writer
	Analytics *analytics.Ingester
	Cost      *cost.Tracker
	Hooks     *hooks.Dispatcher
	Quality   *quality.Runner

	SnapshotTrigger       *trigger.SnapshotTrigger
	ReferenceCheckTrigger *trigger.ReferenceCheckTrigger
	RouterSubscriber      *router.Subscriber

	Retention *retention.Sweeper
}

// Options lets a caller override any dependency the zero-config New()
// would otherwise construct; every unset field falls back to the default
// wiring below. Supplying AnalyticsStore lets callers plug a
// real Postgres-backed analytics.Store without New needing to know about
// database/sql.
type Options struct {
	Config         *config.Config
	Bus            bus.Bus
	Log            telemetry.Logger
	ProjectRoot    string
	AgentStore     agentreg.Store
	AnalyticsStore analytics.Store
	RouterConfig   *router.Config
	JSEngine       hooks.Engine
	Requirements   trigger.RequirementSource
	RenderPrompt   trigger.ReferencePromptRenderer
	ModelPrices    map[string]cost.ModelPricing
	Budget         *cost.Budget

	// RetentionSweepInterval sets how often the log/snapshot retention
	// sweeper runs (default 1h).
	RetentionSweepInterval time.Duration
}

// New constructs a fully-wired Runtime. Every component that reads or
// writes the on-disk layout (spec §6) is rooted under opts.Config.DataDir
// (default "./.subagent/" via config.Default()).
func New(opts Options) *Runtime {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = telemetry.NoopLogger{}
	}
	b := opts.Bus
	if b == nil {
		b = bus.New(bus.WithLogger(log))
	}
	schemaRegistry := schema.NewRegistry()
	b = schema.NewValidatingBus(b, schemaRegistry, log)

	dataDir := cfg.DataDir

	sessions := session.NewStore(filepath.Join(dataDir, "sessions"), b)

	agentStore := opts.AgentStore
	if agentStore == nil {
		agentStore = agentreg.NewFileStore(filepath.Join(dataDir, "state", "agents.json"))
	}
	agents := agentreg.New(agentStore, b, agentreg.WithLogger(log))

	tasks := task.New(filepath.Join(dataDir, "tasks", "tasks.json"), b)
	approvals := approval.New(filepath.Join(dataDir, "state", "approvals.json"), b)

	projectRoot := opts.ProjectRoot
	if projectRoot == "" {
		projectRoot = "."
	}
	permMgr := permission.New(projectRoot)
	proxy := permission.NewProxy(permMgr, approvals, b)
	proxy.ApprovalsEnabled = cfg.Approvals.Enabled
	if cfg.Approvals.Threshold > 0 {
		proxy.ApprovalThreshold = cfg.Approvals.Threshold
	}

	routerCfg := router.DefaultConfig()
	if opts.RouterConfig != nil {
		routerCfg = *opts.RouterConfig
	}
	mdlRouter := router.New(routerCfg)
	routerSub := router.NewSubscriber(mdlRouter, b)
	b.Subscribe(bus.EventAgentInvoked, routerSub, bus.NonBlocking)
	b.Subscribe(bus.EventAgentFailed, routerSub, bus.NonBlocking)

	wfEngine := workflow.Engine(inmemengine.New())

	windowSizes := []time.Duration{time.Minute, time.Hour, 24 * time.Hour}
	agg := metrics.NewAggregator(windowSizes, time.Second, 256)
	b.Subscribe(bus.WildcardEventType, agg, bus.NonBlocking)

	snapMgr := snapshot.New(filepath.Join(dataDir, "state"), b, cfg.Snapshot.Compression)

	logs := logwriter.New(filepath.Join(dataDir, "logs"), cfg.ActivityLog.BufferSize, cfg.ActivityLog.Compression, logwriter.WithLogger(log))
	if cfg.ActivityLog.Enabled {
		b.Subscribe(bus.WildcardEventType, logs, bus.Blocking)
	}

	var analyticsIngester *analytics.Ingester
	if cfg.Analytics.Enabled && opts.AnalyticsStore != nil {
		analyticsIngester = analytics.New(opts.AnalyticsStore, cfg.Analytics.BatchSize, analytics.WithLogger(log))
		b.Subscribe(bus.WildcardEventType, analyticsIngester, bus.Blocking)
	}

	snapshotAction := func(ctx context.Context, reason string) error {
		sess, err := sessions.Current()
		sessionID := ""
		if err == nil {
			sessionID = sess.SessionID
		}
		agentRecs, err := agents.List(ctx, agentreg.Filter{SessionID: sessionID})
		if err != nil {
			return err
		}
		tokenCount := 0
		for _, rec := range agentRecs {
			tokenCount += rec.Metrics.TokensUsed
		}
		_, err = snapMgr.Create(ctx, sessionID, reason, len(agentRecs), tokenCount, nil, "", nil)
		return err
	}
	snapTrigger := trigger.NewSnapshotTrigger(cfg.Snapshot.TriggerAgentCount, snapshotAction, b, log)
	if cfg.Snapshot.Enabled {
		b.Subscribe(bus.EventAgentInvoked, snapTrigger, bus.NonBlocking)
		b.Subscribe(bus.EventSessionTokenWarning, snapTrigger, bus.NonBlocking)
	}

	referenceTrigger := trigger.NewReferenceCheckTrigger(cfg.Snapshot.TriggerAgentCount, cfg.Snapshot.TriggerTokenCount, 5, opts.Requirements, opts.RenderPrompt, b, log)
	b.Subscribe(bus.EventAgentInvoked, referenceTrigger, bus.NonBlocking)
	b.Subscribe(bus.EventToolUsed, referenceTrigger, bus.NonBlocking)
	b.Subscribe(bus.EventAgentCompleted, referenceTrigger, bus.NonBlocking)

	prices := opts.ModelPrices
	if prices == nil {
		prices = cost.DefaultPriceTable()
	}
	budget := cost.DefaultBudget()
	if opts.Budget != nil {
		budget = *opts.Budget
	}
	costTracker := cost.New(prices, budget, b, cost.WithLogger(log))
	b.Subscribe(bus.EventAgentCompleted, costTracker, bus.NonBlocking)

	jsEngine := opts.JSEngine
	if jsEngine == nil {
		jsEngine = &jsengine.Engine{}
	}
	dispatcher := hooks.New(filepath.Join(dataDir, "hooks"), jsEngine, b, hooks.WithLogger(log))
	b.Subscribe(bus.EventAgentFailed, dispatcher, bus.NonBlocking)
	b.Subscribe(bus.EventAgentCompleted, dispatcher, bus.NonBlocking)

	qualityRunner := quality.New(b, log)

	sweepEvery := opts.RetentionSweepInterval
	if sweepEvery <= 0 {
		sweepEvery = time.Hour
	}
	sweeper := retention.New(logs, cfg.ActivityLog.RetentionCount, snapMgr, cfg.Snapshot.RetentionDays, sweepEvery, retention.WithLogger(log))
	sweeper.Start()

	rt := &Runtime{
		Config:                cfg,
		Bus:                   b,
		Log:                   log,
		Schema:                schemaRegistry,
		Sessions:              sessions,
		Agents:                agents,
		Tasks:                 tasks,
		Approvals:             approvals,
		Permission:            permMgr,
		Proxy:                 proxy,
		Router:                mdlRouter,
		Workflow:              wfEngine,
		Metrics:               agg,
		Snapshot:              snapMgr,
		Logs:                  logs,
		Analytics:             analyticsIngester,
		Cost:                  costTracker,
		Hooks:                 dispatcher,
		Quality:               qualityRunner,
		RouterSubscriber:      routerSub,
		SnapshotTrigger:       snapTrigger,
		ReferenceCheckTrigger: referenceTrigger,
		Retention:             sweeper,
	}
	return rt
}

// Close stops background components (currently only the retention
// sweeper) started by New. Safe to call once at shutdown.
func (r *Runtime) Close() {
	if r.Retention != nil {
		r.Retention.Stop()
	}
}
