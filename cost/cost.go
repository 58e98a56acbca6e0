// Package cost implements the Cost Tracker Subscriber (spec §4.G): a
// bus.Handler subscribed to agent.completed that prices each run against
// a model price table, rolls per-session/model/agent totals and
// per-hour/day buckets (no weekly bucket is kept), and publishes cost.budget_warning once per
// (window, threshold) pair (spec §5 ordering, SPEC_FULL.md Open Question
// 4: the de-dup set lives in memory only and is lost on restart).
package cost

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/subagentctl/subagentctl/bus"
	"github.com/subagentctl/subagentctl/router"
	"github.com/subagentctl/subagentctl/telemetry"
)

// ModelPricing is one model's per-million-token rates, matching the
// provider price sheets the pack's model clients target (Anthropic,
// OpenAI, Bedrock — features/model/{anthropic,openai,bedrock}).
type ModelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// DefaultPriceTable seeds a representative price table across the
// provider families the pack's model clients target. Unknown models cost
// 0 and log a warning (spec §4.G).
func DefaultPriceTable() map[string]ModelPricing {
	return map[string]ModelPricing{
		"claude-opus-4":    {InputPerMTok: 15.00, OutputPerMTok: 75.00},
		"claude-sonnet-4":  {InputPerMTok: 3.00, OutputPerMTok: 15.00},
		"claude-haiku-4":   {InputPerMTok: 0.80, OutputPerMTok: 4.00},
		"gpt-5":            {InputPerMTok: 10.00, OutputPerMTok: 30.00},
		"gpt-4o":           {InputPerMTok: 2.50, OutputPerMTok: 10.00},
		"bedrock-titan-premier": {InputPerMTok: 1.20, OutputPerMTok: 3.60},
		"ollama-llama3":    {InputPerMTok: 0, OutputPerMTok: 0},
	}
}

// Budget caps hourly/daily spend and configures warning thresholds
// (default 50/70/90%, spec §4.G).
type Budget struct {
	HourlyCapUSD float64
	DailyCapUSD  float64
	Thresholds   []int // percentages, e.g. [50, 70, 90]
}

// DefaultBudget returns the spec-default threshold set with no caps
// configured (zero caps mean the budget check is skipped for that
// window).
func DefaultBudget() Budget {
	return Budget{Thresholds: []int{50, 70, 90}}
}

type totals struct {
	mu          sync.Mutex
	bySession   map[string]float64
	byModel     map[string]float64
	byAgent     map[string]float64
	hourBuckets map[int64]float64 // unix-hour -> cost
	dayBuckets  map[int64]float64 // unix-day -> cost
}

func newTotals() *totals {
	return &totals{
		bySession:   make(map[string]float64),
		byModel:     make(map[string]float64),
		byAgent:     make(map[string]float64),
		hourBuckets: make(map[int64]float64),
		dayBuckets:  make(map[int64]float64),
	}
}

// Tracker is the Cost Tracker Subscriber.
type Tracker struct {
	prices map[string]ModelPricing
	budget Budget
	b      bus.Bus
	log    telemetry.Logger

	totals *totals

	alertMu sync.Mutex
	alerted map[string]bool // "(window, threshold)" dedup key

	modelUsage map[string]float64 // per-model lifetime spend, for Optimize
	modelMu    sync.Mutex

	lastModelByAgent map[string]string
	lastModelMu      sync.Mutex
}

// Option configures a Tracker at construction.
type Option func(*Tracker)

// WithLogger injects a telemetry.Logger for unknown-model warnings.
func WithLogger(l telemetry.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// New constructs a Tracker. A nil prices map uses DefaultPriceTable.
func New(prices map[string]ModelPricing, budget Budget, b bus.Bus, opts ...Option) *Tracker {
	if prices == nil {
		prices = DefaultPriceTable()
	}
	t := &Tracker{
		prices:           prices,
		budget:           budget,
		b:                b,
		log:              telemetry.NoopLogger{},
		totals:           newTotals(),
		alerted:          make(map[string]bool),
		modelUsage:       make(map[string]float64),
		lastModelByAgent: make(map[string]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HandleEvent implements bus.Handler, subscribed to agent.completed (spec
// §4.G).
func (t *Tracker) HandleEvent(ctx context.Context, e bus.Event) error {
	if e.Type() != bus.EventAgentCompleted {
		return nil
	}
	model := stringField(e, "model")
	agentID := stringField(e, "agent_id")
	inputTokens := floatField(e, "input_tokens")
	outputTokens := floatField(e, "output_tokens")

	price, known := t.prices[model]
	if !known {
		t.log.Warn(ctx, "cost: unknown model, costing 0", "model", model)
	}
	usd := inputTokens/1e6*price.InputPerMTok + outputTokens/1e6*price.OutputPerMTok

	t.record(e.SessionID(), model, agentID, usd, e.Timestamp())

	if t.b != nil {
		t.b.Publish(ctx, bus.NewEvent(bus.EventCostTracked, e.SessionID(), map[string]any{
			"agent_id": agentID, "model": model, "cost_usd": usd,
		}))
	}

	t.evaluateBudget(ctx, e.SessionID(), e.Timestamp())
	return nil
}

func (t *Tracker) record(sessionID, model, agentID string, usd float64, at time.Time) {
	t.totals.mu.Lock()
	t.totals.bySession[sessionID] += usd
	t.totals.byModel[model] += usd
	t.totals.byAgent[agentID] += usd
	t.totals.hourBuckets[at.Truncate(time.Hour).Unix()] += usd
	t.totals.dayBuckets[at.Truncate(24*time.Hour).Unix()] += usd
	t.totals.mu.Unlock()

	t.modelMu.Lock()
	t.modelUsage[model] += usd
	t.modelMu.Unlock()

	t.lastModelMu.Lock()
	t.lastModelByAgent[agentID] = model
	t.lastModelMu.Unlock()
}

func (t *Tracker) bucketTotal(at time.Time, window time.Duration) float64 {
	t.totals.mu.Lock()
	defer t.totals.mu.Unlock()
	if window == time.Hour {
		return t.totals.hourBuckets[at.Truncate(time.Hour).Unix()]
	}
	return t.totals.dayBuckets[at.Truncate(24*time.Hour).Unix()]
}

func (t *Tracker) evaluateBudget(ctx context.Context, sessionID string, at time.Time) {
	t.checkWindow(ctx, sessionID, "hourly", t.bucketTotal(at, time.Hour), t.budget.HourlyCapUSD)
	t.checkWindow(ctx, sessionID, "daily", t.bucketTotal(at, 24*time.Hour), t.budget.DailyCapUSD)
}

func (t *Tracker) checkWindow(ctx context.Context, sessionID, window string, spend, cap float64) {
	if cap <= 0 {
		return
	}
	pct := int(spend / cap * 100)
	for _, threshold := range t.budget.Thresholds {
		if pct < threshold {
			continue
		}
		key := fmt.Sprintf("%s|%d", window, threshold)
		t.alertMu.Lock()
		already := t.alerted[key]
		if !already {
			t.alerted[key] = true
		}
		t.alertMu.Unlock()
		if already {
			continue
		}
		if t.b != nil {
			t.b.Publish(ctx, bus.NewEvent(bus.EventCostBudgetWarning, sessionID, map[string]any{
				"window": window, "threshold": threshold, "spend_usd": spend, "cap_usd": cap,
			}))
		}
	}
}

func stringField(e bus.Event, key string) string {
	v, ok := e.Get(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func floatField(e bus.Event, key string) float64 {
	v, ok := e.Get(key)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}

// Suggestion is one cost-optimization recommendation (SPEC_FULL.md §9.2).
type Suggestion struct {
	AgentID        string
	CurrentModel   string
	SuggestedModel string
	EstSavingsUSD  float64
}

// Optimize flags agents whose current model's lifetime spend exceeds
// spendThreshold and suggests a cheaper tier's cheapest model, grounded on
// model_router.py's tier-downgrade heuristics (SPEC_FULL.md §9.2). Every
// suggestion publishes cost.optimization_opportunity.
func (t *Tracker) Optimize(cfg router.Config, spendThreshold float64) []Suggestion {
	t.lastModelMu.Lock()
	agents := make(map[string]string, len(t.lastModelByAgent))
	for k, v := range t.lastModelByAgent {
		agents[k] = v
	}
	t.lastModelMu.Unlock()

	t.modelMu.Lock()
	usage := make(map[string]float64, len(t.modelUsage))
	for k, v := range t.modelUsage {
		usage[k] = v
	}
	t.modelMu.Unlock()

	var out []Suggestion
	agentIDs := make([]string, 0, len(agents))
	for id := range agents {
		agentIDs = append(agentIDs, id)
	}
	sort.Strings(agentIDs)

	for _, agentID := range agentIDs {
		model := agents[agentID]
		if usage[model] < spendThreshold {
			continue
		}
		tier := tierOf(cfg, model)
		if tier == "" {
			continue
		}
		downgraded := router.DowngradeTier(tier)
		if downgraded == tier {
			continue
		}
		cheapest, ok := cheapestIn(cfg, downgraded)
		if !ok || cheapest.Name == model {
			continue
		}
		suggestion := Suggestion{
			AgentID:        agentID,
			CurrentModel:   model,
			SuggestedModel: cheapest.Name,
			EstSavingsUSD:  usage[model] * t.savingsFraction(model, cheapest.Name),
		}
		out = append(out, suggestion)
		if t.b != nil {
			t.b.Publish(context.Background(), bus.NewEvent(bus.EventCostOptimizationOpportunity, "", map[string]any{
				"agent_id":        suggestion.AgentID,
				"current_model":   suggestion.CurrentModel,
				"suggested_model": suggestion.SuggestedModel,
				"est_savings_usd": suggestion.EstSavingsUSD,
			}))
		}
	}
	return out
}

// savingsFraction estimates the fraction of model's spend saved by
// switching to alternative, based on each model's blended per-token price
// in the tracker's own price table (not the router's CostMultiplier,
// which the default config leaves at zero for several entries).
func (t *Tracker) savingsFraction(model, alternative string) float64 {
	from, fromOK := t.prices[model]
	to, toOK := t.prices[alternative]
	if !fromOK || !toOK {
		return 0
	}
	fromBlended := from.InputPerMTok + from.OutputPerMTok
	toBlended := to.InputPerMTok + to.OutputPerMTok
	if fromBlended <= 0 {
		return 0
	}
	if toBlended >= fromBlended {
		return 0
	}
	return 1 - toBlended/fromBlended
}

func tierOf(cfg router.Config, model string) router.Tier {
	for tier, tc := range cfg.Tiers {
		for _, m := range tc.Models {
			if m.Name == model {
				return tier
			}
		}
	}
	return ""
}

func cheapestIn(cfg router.Config, tier router.Tier) (router.ModelEntry, bool) {
	tc, ok := cfg.Tiers[tier]
	if !ok || len(tc.Models) == 0 {
		return router.ModelEntry{}, false
	}
	best := tc.Models[0]
	for _, m := range tc.Models[1:] {
		if m.CostMultiplier < best.CostMultiplier {
			best = m
		}
	}
	return best, true
}

