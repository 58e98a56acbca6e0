// Package router implements the model router from spec §4.L: a
// complexity scorer plus tier selection with tiered fallback, grounded on
// original_source/src/orchestration/model_router.py translated to a Go
// value type (SPEC_FULL.md §4.L) and on the pack's provider naming
// (anthropic/openai/bedrock, per features/model/*).
package router

import "sort"

// Tier is a bucket of models ranked by capability/cost (spec Glossary).
type Tier string

const (
	TierWeak   Tier = "weak"
	TierBase   Tier = "base"
	TierStrong Tier = "strong"
)

// Task describes one unit of work to be routed to a model.
type Task struct {
	Type          string
	ContextTokens int
	Files         []string
}

// ModelEntry is one model available within a Tier.
type ModelEntry struct {
	Name            string
	Priority        int // lower sorts first
	CostMultiplier  float64
	IsFree          bool
}

// TierConfig lists the models available for one tier, highest-priority
// first once sorted.
type TierConfig struct {
	Models []ModelEntry
}

// Config is the full routing table (spec §6 config/model_tiers.yaml).
type Config struct {
	Tiers          map[Tier]TierConfig
	ForceStrongFor map[string]bool
	PreferFreeTier bool
}

// DefaultConfig seeds a routing table from the pack's provider names
// (anthropic/openai/bedrock) so the router is usable without an external
// config/model_tiers.yaml.
func DefaultConfig() Config {
	return Config{
		PreferFreeTier: true,
		Tiers: map[Tier]TierConfig{
			TierWeak: {Models: []ModelEntry{
				{Name: "claude-haiku-4", Priority: 1},
				{Name: "ollama-llama3", Priority: 2, CostMultiplier: 0, IsFree: true},
			}},
			TierBase: {Models: []ModelEntry{
				{Name: "claude-sonnet-4", Priority: 1},
				{Name: "gpt-4o", Priority: 2},
				{Name: "bedrock-titan-premier", Priority: 3},
			}},
			TierStrong: {Models: []ModelEntry{
				{Name: "claude-opus-4", Priority: 1},
				{Name: "gpt-5", Priority: 2},
			}},
		},
	}
}

// taskComplexityMap mirrors model_router.py's task_complexity_map.
var taskComplexityMap = map[string]int{
	"log_summary":     1,
	"file_scan":       1,
	"syntax_check":    1,
	"data_extraction": 1,
	"documentation":   2,

	"code_implementation": 3,
	"refactoring":         3,
	"bug_fix":             3,
	"test_writing":        4,
	"code_review":         4,
	"api_integration":     5,

	"debugging_complex":        6,
	"performance_optimization": 7,
	"planning":                 7,

	"architecture_design":  9,
	"security_review":      9,
	"strategic_decision":   10,
	"production_critical":  10,
}

// Score computes the four-factor complexity score (1-10) from spec §4.L:
// context window (0-3), task-type base complexity (1-4), file count
// (0-2), historical weak-tier failure (0-1, via hasFailedWithWeakTier).
func Score(t Task, hasFailedWithWeakTier bool) int {
	score := 0

	switch {
	case t.ContextTokens > 100000:
		score += 3
	case t.ContextTokens > 50000:
		score += 2
	case t.ContextTokens > 10000:
		score += 1
	}

	base, ok := taskComplexityMap[t.Type]
	if !ok {
		base = 3 // default: medium, matching the Python fallback
	}
	if base > 4 {
		base = 4
	}
	score += base

	switch {
	case len(t.Files) > 10:
		score += 2
	case len(t.Files) > 3:
		score += 1
	}

	if hasFailedWithWeakTier {
		score++
	}

	if score > 10 {
		score = 10
	}
	return score
}

// SelectionResult is the outcome of Select.
type SelectionResult struct {
	Model           string
	Tier            Tier
	ComplexityScore int
	RoutingReason   string
	FreeTierUsed    bool
}

// Router scores tasks and selects a (tier, model) pair (spec §4.L).
type Router struct {
	cfg Config
}

// New constructs a Router over cfg.
func New(cfg Config) *Router { return &Router{cfg: cfg} }

// Select scores task, picks a tier (honoring ForceStrongFor), and picks a
// model within that tier (preferring free-tier entries when configured,
// otherwise the highest-priority paid model).
func (r *Router) Select(task Task, hasFailedWithWeakTier bool) SelectionResult {
	score := Score(task, hasFailedWithWeakTier)
	tier := r.selectTier(score, task)
	model, free := r.selectModel(tier)
	return SelectionResult{
		Model:           model,
		Tier:            tier,
		ComplexityScore: score,
		RoutingReason:   routingReason(score, tier),
		FreeTierUsed:    free,
	}
}

func (r *Router) selectTier(score int, task Task) Tier {
	if r.cfg.ForceStrongFor[task.Type] {
		return TierStrong
	}
	switch {
	case score <= 3:
		return TierWeak
	case score <= 7:
		return TierBase
	default:
		return TierStrong
	}
}

func (r *Router) selectModel(tier Tier) (string, bool) {
	tc, ok := r.cfg.Tiers[tier]
	if !ok || len(tc.Models) == 0 {
		return "claude-sonnet-4", false
	}
	models := append([]ModelEntry(nil), tc.Models...)
	sort.Slice(models, func(i, j int) bool { return models[i].Priority < models[j].Priority })

	if r.cfg.PreferFreeTier {
		for _, m := range models {
			if m.IsFree || m.CostMultiplier == 0 {
				return m.Name, true
			}
		}
	}
	return models[0].Name, false
}

// TierOf reports which tier cfg places model in, for callers that select a
// model outside of Select (e.g. a manual model switch) and still need to
// publish a tier alongside it.
func (r *Router) TierOf(model string) (Tier, bool) {
	for tier, tc := range r.cfg.Tiers {
		for _, m := range tc.Models {
			if m.Name == model {
				return tier, true
			}
		}
	}
	return "", false
}

func routingReason(score int, tier Tier) string {
	switch {
	case score <= 3:
		return "simple task"
	case score <= 7:
		return "standard task"
	default:
		return "complex task"
	}
}

// UpgradeTier advances weak->base->strong, saturating at strong (spec §4.L).
func UpgradeTier(current Tier) Tier {
	switch current {
	case TierWeak:
		return TierBase
	case TierBase:
		return TierStrong
	default:
		return TierStrong
	}
}

// DowngradeTier reverses strong->base->weak, saturating at weak (spec §4.L).
func DowngradeTier(current Tier) Tier {
	switch current {
	case TierStrong:
		return TierBase
	case TierBase:
		return TierWeak
	default:
		return TierWeak
	}
}
