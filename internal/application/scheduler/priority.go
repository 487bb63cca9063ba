// Package scheduler implements the Auto-Scheduler / APIL (C1, priority.go,
// conflict.go, scheduler.go) and the Forecast/Slot Oracle (C2, forecast.go).
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/clipcast/engine/internal/domain"
)

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// platformMultiplier is used by PredictedVirality (spec.md §4.1).
func platformMultiplier(p domain.Platform) float64 {
	switch p {
	case domain.PlatformTikTok:
		return 1.3
	case domain.PlatformInstagram:
		return 1.1
	case domain.PlatformYouTube:
		return 1.0
	default:
		return 1.0
	}
}

// PredictedVirality implements spec.md §4.1:
// clamp(visual_score * 0.6 * platform_multiplier, 0, 100).
func PredictedVirality(visualScore float64, platform domain.Platform) float64 {
	return clamp(visualScore*0.6*platformMultiplier(platform), 0, 100)
}

// DelayPenalty implements spec.md §4.1's age-banded penalty.
func DelayPenalty(age time.Duration) float64 {
	hours := age.Hours()
	switch {
	case hours <= 24:
		return 0
	case hours <= 48:
		return 5
	case hours <= 72:
		return 10
	default:
		return 20
	}
}

// ComputePriority implements spec.md §4.1's weighted priority formula,
// capped at 100. age is the elapsed time since the clip's source content
// became available to the scheduler (requestedAt - clip creation, or the
// caller's own notion of age).
func ComputePriority(clip *domain.Clip, associations []domain.CampaignAssociation, platform domain.Platform, age time.Duration) float64 {
	visual := clamp(clip.VisualScore, 0, 100)
	engagement := clamp(clip.EngagementScore(), 0, 100)
	virality := PredictedVirality(visual, platform)
	campaignWeight := domain.CampaignWeight(associations)
	penalty := DelayPenalty(age)

	priority := 0.4*visual + 0.3*engagement + 0.2*virality + 0.1*campaignWeight + penalty
	return clamp(priority, 0, 100)
}

// DefaultPriorityFormula is spec.md §4.1's weighted sum, expressed as an
// expr-lang program so an operator can override it (e.g. to weight
// engagement more heavily for a given tenant) without a binary redeploy.
const DefaultPriorityFormula = `0.4*visual_score + 0.3*engagement_score + 0.2*predicted_virality + 0.1*campaign_weight + delay_penalty`

// FormulaEvaluator compiles and caches priority-formula expressions, the
// same compile-once/cache-forever shape as the teacher's ConditionEvaluator
// (internal/application/executor/conditions.go), here applied to a numeric
// formula instead of a boolean edge condition.
type FormulaEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewFormulaEvaluator() *FormulaEvaluator {
	return &FormulaEvaluator{cache: make(map[string]*vm.Program)}
}

func (e *FormulaEvaluator) compile(formula string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[formula]
	e.mu.RUnlock()
	if ok {
		return program, nil
	}

	program, err := expr.Compile(formula, expr.Env(map[string]any{
		"visual_score":        0.0,
		"engagement_score":    0.0,
		"predicted_virality":  0.0,
		"campaign_weight":     0.0,
		"delay_penalty":       0.0,
	}))
	if err != nil {
		return nil, fmt.Errorf("compiling priority formula %q: %w", formula, err)
	}

	e.mu.Lock()
	e.cache[formula] = program
	e.mu.Unlock()
	return program, nil
}

// Evaluate runs formula against the standard priority environment and
// clamps the result to [0,100], matching ComputePriority's contract.
func (e *FormulaEvaluator) Evaluate(formula string, clip *domain.Clip, associations []domain.CampaignAssociation, platform domain.Platform, age time.Duration) (float64, error) {
	program, err := e.compile(formula)
	if err != nil {
		return 0, err
	}

	visual := clamp(clip.VisualScore, 0, 100)
	env := map[string]any{
		"visual_score":       visual,
		"engagement_score":   clamp(clip.EngagementScore(), 0, 100),
		"predicted_virality": PredictedVirality(visual, platform),
		"campaign_weight":    domain.CampaignWeight(associations),
		"delay_penalty":      DelayPenalty(age),
	}

	out, err := expr.Run(program, env)
	if err != nil {
		return 0, fmt.Errorf("evaluating priority formula: %w", err)
	}
	result, ok := out.(float64)
	if !ok {
		if i, ok := out.(int); ok {
			result = float64(i)
		} else {
			return 0, fmt.Errorf("priority formula must evaluate to a number, got %T", out)
		}
	}
	return clamp(result, 0, 100), nil
}
