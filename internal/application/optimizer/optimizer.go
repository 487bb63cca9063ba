// Package optimizer implements the Optimization Loop (C9): an hourly tick
// that classifies ads into scale/pause/reallocate candidates, gates each
// behind a seven-guard stack, and executes the ones that pass in auto mode
// (spec.md §4.9).
package optimizer

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
	"github.com/clipcast/engine/internal/infrastructure/provider"
)

// Loop is the Optimization Loop (C9).
type Loop struct {
	store  domain.Storage
	ads    provider.AdsProvider
	guards *GuardEvaluator
	cfg    Config

	// cooldowns caches each target's last-executed timestamp to avoid a
	// store round trip on every guard evaluation within a tick; the store
	// (via LastExecutedActionForTarget) remains the source of truth and
	// backfills the cache on a miss. Lock-free for the same read-heavy,
	// partitioned-goroutine reason as worker.CircuitBreakerRegistry.
	cooldowns *xsync.MapOf[string, time.Time]

	systemStatus func() domain.ComponentStatus
	isStopped    func() bool
	log          *slog.Logger
}

func New(store domain.Storage, ads provider.AdsProvider, cfg Config, systemStatus func() domain.ComponentStatus, isStopped func() bool, log *slog.Logger) *Loop {
	return &Loop{
		store:        store,
		ads:          ads,
		guards:       NewGuardEvaluator(),
		cfg:          cfg,
		cooldowns:    xsync.NewMapOf[string, time.Time](),
		systemStatus: systemStatus,
		isStopped:    isStopped,
		log:          log,
	}
}

// TickResult summarizes one Tick's outcome for logging/observability.
type TickResult struct {
	Suggested int
	Executed  int
	Refused   int
}

// Tick implements spec.md §4.9's full cycle: fetch, classify, guard, and
// (in auto mode) execute.
func (l *Loop) Tick(ctx context.Context) (TickResult, error) {
	var result TickResult
	if l.isStopped != nil && l.isStopped() {
		return result, nil
	}

	campaigns, err := l.store.ListActiveCampaigns(ctx)
	if err != nil {
		return result, err
	}

	actionsThisRun := 0
	lookback := time.Duration(l.cfg.LookbackWindow) * time.Hour
	now := time.Now().UTC()

	for _, campaign := range campaigns {
		if actionsThisRun >= l.cfg.MaxPerRun {
			break
		}
		ads, err := l.store.ListAdsByCampaign(ctx, campaign.ID)
		if err != nil {
			return result, err
		}

		metricsByAd := make(map[string]adMetrics, len(ads))
		for _, ad := range ads {
			if ad.ExternalID == nil {
				continue
			}
			insights, err := l.ads.GetInsights(ctx, *ad.ExternalID, lookback)
			if err != nil {
				l.log.Warn("insights fetch failed", "ad_id", ad.ID.String(), "error", err)
				continue
			}
			impressions := int64(insights["impressions"])
			metricsByAd[ad.ID.String()] = adMetrics{
				roas:        insights["roas"],
				ctr:         insights["ctr"],
				spendUSD:    insights["spend"],
				impressions: impressions,
				confidence:  confidenceFor(impressions, l.cfg.MinImpressions),
			}
		}

		actionsThisCampaign := 0
		campaignAgeHours := now.Sub(campaign.CreatedAt).Hours()

		for _, ad := range ads {
			if actionsThisCampaign >= l.cfg.MaxPerCampaign || actionsThisRun >= l.cfg.MaxPerRun {
				break
			}
			m, ok := metricsByAd[ad.ID.String()]
			if !ok {
				continue
			}
			actionType, amountPct, ok := classifyAd(l.cfg, m)
			if !ok {
				continue
			}
			action := domain.NewOptimizationAction(domain.TargetAd, ad.ID, actionType, amountPct,
				"", m.roas, m.confidence, nil)
			if err := l.store.SaveOptimizationAction(ctx, action); err != nil {
				return result, err
			}
			_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
				domain.EventOptimizationSuggested, "optimization_action", action.ID.String(), domain.SeverityInfo,
				map[string]any{"action_type": string(actionType), "amount_pct": amountPct, "roas": m.roas},
			))
			result.Suggested++
			actionsThisCampaign++
			actionsThisRun++

			if l.cfg.Mode == ModeAuto && actionType != domain.ActionReallocate {
				if l.autoExecute(ctx, action, campaignAgeHours, m, actionsThisCampaign, actionsThisRun) {
					result.Executed++
				} else {
					result.Refused++
				}
			}
		}

		if plan, ok := reallocationPlan(l.cfg, ads, metricsByAd); ok {
			action := domain.NewOptimizationAction(domain.TargetCampaign, campaign.ID, domain.ActionReallocate, 0,
				"", 0, 1, nil)
			action.ReallocationPlan = plan
			if err := l.store.SaveOptimizationAction(ctx, action); err != nil {
				return result, err
			}
			_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
				domain.EventOptimizationSuggested, "optimization_action", action.ID.String(), domain.SeverityInfo,
				map[string]any{"action_type": "reallocate", "plan": plan},
			))
			result.Suggested++
			actionsThisRun++
		}
	}

	return result, nil
}

// buildGuardEnv assembles the expr environment for the seven-guard stack,
// using auto-mode's stricter confidence/change-cap thresholds when auto is
// true (spec.md §4.9: "for auto-execute raise to auto_confidence"/"halved").
// auto is false only on the operator's approve_action path (spec.md §6/§8.5):
// a human has already exercised judgment on the magnitude, so change_cap is
// waived for that call — embargo, min_data, confidence, cooldown, per-run
// caps, and system health are not, and still run ahead of change_cap in the
// stack.
func (l *Loop) buildGuardEnv(ctx context.Context, action *domain.OptimizationAction, campaignAgeHours float64, m adMetrics, actionsThisCampaign, actionsThisRun int, auto bool) map[string]any {
	requiredConfidence := l.cfg.MinConfidence
	maxChangePct := l.cfg.MaxDailyChangePct
	if auto {
		requiredConfidence = l.cfg.AutoConfidence
		maxChangePct = l.cfg.AutoMaxChangePct
	}

	lastExecuted, hasPrior := l.lastExecutedAt(ctx, action.TargetLevel, action.TargetID)
	hoursSince := math.Inf(1)
	if hasPrior {
		hoursSince = time.Since(lastExecuted).Hours()
	}

	return map[string]any{
		"campaign_age_hours":      campaignAgeHours,
		"spend_usd":               m.spendUSD,
		"impressions":             m.impressions,
		"confidence":              action.Confidence,
		"action_type":             string(action.ActionType),
		"amount_pct_abs":          math.Abs(action.AmountPct),
		"has_prior_action":        hasPrior,
		"hours_since_last_action": hoursSince,
		"actions_this_campaign":   actionsThisCampaign,
		"actions_this_run":        actionsThisRun,
		"system_status":           string(l.systemStatus()),
		"approved":                !auto,

		"embargo_hours":       l.cfg.EmbargoHours,
		"min_spend_usd":       l.cfg.MinSpendUSD,
		"min_impressions":     l.cfg.MinImpressions,
		"required_confidence": requiredConfidence,
		"max_change_pct":      maxChangePct,
		"cooldown_hours":      l.cfg.CooldownHours,
		"max_per_campaign":    l.cfg.MaxPerCampaign,
		"max_per_run":         l.cfg.MaxPerRun,
	}
}

func (l *Loop) lastExecutedAt(ctx context.Context, level domain.TargetLevel, targetID uuid.UUID) (time.Time, bool) {
	key := string(level) + "|" + targetID.String()
	if t, ok := l.cooldowns.Load(key); ok {
		return t, true
	}
	last, err := l.store.LastExecutedActionForTarget(ctx, level, targetID)
	if err != nil || last == nil || last.ExecutedAt == nil {
		return time.Time{}, false
	}
	l.cooldowns.Store(key, *last.ExecutedAt)
	return *last.ExecutedAt, true
}

// autoExecute re-runs the guard stack with auto thresholds and executes on
// a full pass; any failure leaves the action in `suggested` and records the
// refusal reason.
func (l *Loop) autoExecute(ctx context.Context, action *domain.OptimizationAction, campaignAgeHours float64, m adMetrics, actionsThisCampaign, actionsThisRun int) bool {
	results, failedReason, err := l.guards.EvaluateStack(DefaultGuards, l.buildGuardEnv(ctx, action, campaignAgeHours, m, actionsThisCampaign, actionsThisRun, true))
	action.GuardSnapshot = snapshotOf(results, true)
	if err != nil || failedReason != "" {
		reason := failedReason
		if reason == "" {
			reason = err.Error()
		}
		_ = l.store.SaveOptimizationAction(ctx, action)
		_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventOptimizationGuardRefused, "optimization_action", action.ID.String(), domain.SeverityInfo,
			map[string]any{"reason_code": reason},
		))
		return false
	}
	if err := l.execute(ctx, action); err != nil {
		l.log.Error("auto-execute failed", "action_id", action.ID.String(), "error", err)
		return false
	}
	return true
}

// ApproveAndExecute implements the operator's approve_action path (spec.md
// §6): a human approval re-runs the guard stack at the base (non-auto)
// thresholds, since a human has already exercised judgment on it, and waives
// change_cap specifically (spec.md §8.5's large-scale-up-requires-approval
// scenario would otherwise be unsatisfiable: its 0.75 scale-up clears neither
// the halved auto cap nor the base cap, so the action could never execute by
// any path). Embargo, min_data, confidence, cooldown, per-run caps, and
// system health still gate the approval the same as an auto-execution would;
// min_data is checked against insights fetched at approval time.
func (l *Loop) ApproveAndExecute(ctx context.Context, actionID uuid.UUID) (*domain.OptimizationAction, error) {
	action, err := l.store.GetOptimizationAction(ctx, actionID)
	if err != nil {
		return nil, err
	}
	if err := action.Approve(); err != nil {
		return nil, err
	}
	if err := l.store.SaveOptimizationAction(ctx, action); err != nil {
		return nil, err
	}

	m := adMetrics{confidence: action.Confidence, roas: action.ROASValue}
	var campaignAgeHours float64
	if campaign, err := l.campaignForAction(ctx, action); err == nil && campaign != nil {
		campaignAgeHours = time.Since(campaign.CreatedAt).Hours()
		// min_data is checked against current insights: the target ad's, or
		// the sum over the campaign's ads for a campaign-level action.
		if ads, err := l.store.ListAdsByCampaign(ctx, campaign.ID); err == nil {
			lookback := time.Duration(l.cfg.LookbackWindow) * time.Hour
			for _, ad := range ads {
				if ad.ExternalID == nil || (action.TargetLevel == domain.TargetAd && ad.ID != action.TargetID) {
					continue
				}
				if insights, err := l.ads.GetInsights(ctx, *ad.ExternalID, lookback); err == nil {
					m.spendUSD += insights["spend"]
					m.impressions += int64(insights["impressions"])
				}
			}
		}
	}

	results, failedReason, err := l.guards.EvaluateStack(DefaultGuards, l.buildGuardEnv(ctx, action, campaignAgeHours, m, 0, 0, false))
	action.GuardSnapshot = snapshotOf(results, false)
	if err != nil {
		return nil, err
	}
	if failedReason != "" {
		_ = l.store.SaveOptimizationAction(ctx, action)
		_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventOptimizationGuardRefused, "optimization_action", action.ID.String(), domain.SeverityInfo,
			map[string]any{"reason_code": failedReason},
		))
		return action, domainerrors.NewGuardRailError(failedReason, "approved action failed guard re-check at execution time")
	}
	if err := l.execute(ctx, action); err != nil {
		return nil, err
	}
	return action, nil
}

func (l *Loop) campaignForAction(ctx context.Context, action *domain.OptimizationAction) (*domain.Campaign, error) {
	if action.TargetLevel == domain.TargetCampaign {
		return l.store.GetCampaign(ctx, action.TargetID)
	}
	ad, err := l.store.GetAd(ctx, action.TargetID)
	if err != nil {
		return nil, err
	}
	adSet, err := l.store.GetAdSet(ctx, ad.AdSetID)
	if err != nil {
		return nil, err
	}
	return l.store.GetCampaign(ctx, adSet.CampaignID)
}

func snapshotOf(results []GuardResult, auto bool) map[string]any {
	return map[string]any{"guard_results": results, "auto": auto, "evaluated_at": time.Now().UTC()}
}

// execute translates an approved/auto-passed action into provider calls
// (spec.md §4.9's "execution" stage) and records the outcome.
func (l *Loop) execute(ctx context.Context, action *domain.OptimizationAction) error {
	if err := action.BeginExecuting(); err != nil {
		return err
	}
	if err := l.store.SaveOptimizationAction(ctx, action); err != nil {
		return err
	}

	var result map[string]any
	var execErr error

	switch action.ActionType {
	case domain.ActionScaleUp, domain.ActionScaleDown:
		result, execErr = l.executeScale(ctx, action)
	case domain.ActionPause:
		result, execErr = l.executePause(ctx, action)
	case domain.ActionReallocate:
		result, execErr = l.executeReallocate(ctx, action)
	}

	if execErr != nil {
		_ = action.MarkFailed(execErr.Error())
		_ = l.store.SaveOptimizationAction(ctx, action)
		_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventOptimizationFailed, "optimization_action", action.ID.String(), domain.SeverityError,
			map[string]any{"error": execErr.Error()},
		))
		return execErr
	}

	if err := action.MarkExecuted(result); err != nil {
		return err
	}
	if err := l.store.SaveOptimizationAction(ctx, action); err != nil {
		return err
	}
	l.cooldowns.Store(string(action.TargetLevel)+"|"+action.TargetID.String(), *action.ExecutedAt)
	_ = l.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventOptimizationExecuted, "optimization_action", action.ID.String(), domain.SeverityInfo, result,
	))
	return nil
}

func (l *Loop) executeScale(ctx context.Context, action *domain.OptimizationAction) (map[string]any, error) {
	ad, err := l.store.GetAd(ctx, action.TargetID)
	if err != nil {
		return nil, err
	}
	if ad.ExternalID == nil {
		return nil, domainerrors.NewValidationError("ad", "ad has no external id")
	}
	newBudget := int64(math.Round(float64(ad.BudgetCents) * (1 + action.AmountPct)))
	if err := l.ads.UpdateBudget(ctx, *ad.ExternalID, newBudget); err != nil {
		return nil, err
	}
	ad.BudgetCents = newBudget
	if err := l.store.SaveAd(ctx, ad); err != nil {
		return nil, err
	}
	return map[string]any{"new_budget_cents": newBudget}, nil
}

func (l *Loop) executePause(ctx context.Context, action *domain.OptimizationAction) (map[string]any, error) {
	ad, err := l.store.GetAd(ctx, action.TargetID)
	if err != nil {
		return nil, err
	}
	if ad.ExternalID == nil {
		return nil, domainerrors.NewValidationError("ad", "ad has no external id")
	}
	if err := l.ads.PauseEntity(ctx, *ad.ExternalID); err != nil {
		return nil, err
	}
	ad.Status = domain.AdsEntityPaused
	if err := l.store.SaveAd(ctx, ad); err != nil {
		return nil, err
	}
	return map[string]any{"paused": true}, nil
}

func (l *Loop) executeReallocate(ctx context.Context, action *domain.OptimizationAction) (map[string]any, error) {
	for adIDStr, newBudget := range action.ReallocationPlan {
		adID, err := uuid.Parse(adIDStr)
		if err != nil {
			continue
		}
		ad, err := l.store.GetAd(ctx, adID)
		if err != nil {
			return nil, err
		}
		if ad.ExternalID == nil {
			continue
		}
		if err := l.ads.UpdateBudget(ctx, *ad.ExternalID, newBudget); err != nil {
			return nil, err
		}
		ad.BudgetCents = newBudget
		if err := l.store.SaveAd(ctx, ad); err != nil {
			return nil, err
		}
	}
	return map[string]any{"plan": action.ReallocationPlan}, nil
}

// Run ticks on interval until ctx is cancelled, the standard
// component-goroutine shape (spec.md §5).
func (l *Loop) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := l.Tick(ctx)
			if err != nil {
				l.log.Error("optimization tick failed", "error", err)
				continue
			}
			l.log.Info("optimization tick complete", "suggested", result.Suggested, "executed", result.Executed, "refused", result.Refused)
		}
	}
}
