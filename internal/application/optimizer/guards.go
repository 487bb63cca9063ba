package optimizer

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Guard is one predicate in the seven-guard stack (spec.md §4.9). Keeping
// the expressions as data rather than hardcoded Go conditionals, grounded
// on the teacher's ConditionEvaluator (internal/application/executor/conditions.go),
// lets an operator retune a single guard via config without a rebuild.
type Guard struct {
	ReasonCode string
	Expression string
}

// DefaultGuards is spec.md §4.9's stack, evaluated strictly in order; the
// first failing guard aborts the rest.
var DefaultGuards = []Guard{
	{"embargo", "campaign_age_hours >= embargo_hours"},
	{"min_data", "spend_usd >= min_spend_usd && impressions >= min_impressions"},
	{"confidence", "confidence >= required_confidence"},
	{"change_cap", `action_type == "pause" || approved || amount_pct_abs <= max_change_pct`},
	{"cooldown", "has_prior_action == false || hours_since_last_action >= cooldown_hours"},
	{"per_run_caps", "actions_this_campaign < max_per_campaign && actions_this_run < max_per_run"},
	// spec.md §4.9 says "not emergency_stop or critical"; the domain has no
	// critical ComponentStatus, so this checks offline instead.
	{"system_health", `system_status != "emergency_stop" && system_status != "offline"`},
}

// GuardEvaluator compiles and caches guard expressions, the same
// compile-once-by-source-string shape as scheduler.FormulaEvaluator.
type GuardEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewGuardEvaluator() *GuardEvaluator {
	return &GuardEvaluator{cache: make(map[string]*vm.Program)}
}

func (g *GuardEvaluator) compile(source string) (*vm.Program, error) {
	g.mu.RLock()
	if p, ok := g.cache[source]; ok {
		g.mu.RUnlock()
		return p, nil
	}
	g.mu.RUnlock()

	program, err := expr.Compile(source, expr.Env(map[string]any{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile guard expression %q: %w", source, err)
	}

	g.mu.Lock()
	g.cache[source] = program
	g.mu.Unlock()
	return program, nil
}

// GuardResult records one guard's outcome, preserved in the action's
// GuardSnapshot. Only the outcome is kept, not the values the guard's
// expression was evaluated against.
type GuardResult struct {
	ReasonCode string `json:"reason_code"`
	Passed     bool   `json:"passed"`
}

// EvaluateStack runs guards in order against env, stopping at the first
// failure. It returns every guard evaluated so far (for the snapshot) plus
// the reason code of the first failure, or "" if every guard passed.
func (g *GuardEvaluator) EvaluateStack(guards []Guard, env map[string]any) ([]GuardResult, string, error) {
	results := make([]GuardResult, 0, len(guards))
	for _, guard := range guards {
		program, err := g.compile(guard.Expression)
		if err != nil {
			return results, "", err
		}
		out, err := expr.Run(program, env)
		if err != nil {
			return results, "", fmt.Errorf("run guard %q: %w", guard.ReasonCode, err)
		}
		passed, _ := out.(bool)
		results = append(results, GuardResult{ReasonCode: guard.ReasonCode, Passed: passed})
		if !passed {
			return results, guard.ReasonCode, nil
		}
	}
	return results, "", nil
}
