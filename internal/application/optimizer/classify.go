package optimizer

import (
	"math"

	"github.com/clipcast/engine/internal/domain"
)

// Config is spec.md §4.9's full set of configurable thresholds.
type Config struct {
	ScaleUpMin        float64 // default 2.0
	ScaleDownMax      float64 // default 1.5
	PauseThreshold    float64 // default 0.8
	ReallocateDiff    float64 // default 1.5
	MinConfidence     float64 // default 0.65
	AutoConfidence    float64 // default 0.75
	MaxDailyChangePct float64 // default 0.20
	AutoMaxChangePct  float64 // default 0.10
	EmbargoHours      float64 // default 48
	MinSpendUSD       float64 // default 100
	MinImpressions    int64   // default 1000
	CooldownHours     float64 // default 24
	MaxPerCampaign    int     // default 5
	MaxPerRun         int     // default 50
	LookbackWindow    float64 // hours, default 7*24
	Mode              Mode
}

type Mode string

const (
	ModeSuggest Mode = "suggest"
	ModeAuto    Mode = "auto"
)

func DefaultConfig() Config {
	return Config{
		ScaleUpMin:        2.0,
		ScaleDownMax:      1.5,
		PauseThreshold:    0.8,
		ReallocateDiff:    1.5,
		MinConfidence:     0.65,
		AutoConfidence:    0.75,
		MaxDailyChangePct: 0.20,
		AutoMaxChangePct:  0.10,
		EmbargoHours:      48,
		MinSpendUSD:       100,
		MinImpressions:    1000,
		CooldownHours:     24,
		MaxPerCampaign:    5,
		MaxPerRun:         50,
		LookbackWindow:    7 * 24,
		Mode:              ModeSuggest,
	}
}

// adMetrics is one ad's insights over the lookback window.
type adMetrics struct {
	roas        float64
	ctr         float64
	spendUSD    float64
	impressions int64
	confidence  float64
}

// scaleUpStep maps a qualifying ROAS into its step percentage (spec.md
// §4.9's band table).
func scaleUpStep(roas float64) float64 {
	switch {
	case roas >= 5:
		return 1.00
	case roas >= 4:
		return 0.75
	case roas >= 3.5:
		return 0.50
	case roas >= 3:
		return 0.25
	default: // [2,3)
		return 0.10
	}
}

// confidenceFor derives a [0,1] confidence score from sample size against
// the minimum-impressions threshold. spec.md leaves the confidence formula
// itself unspecified (only the thresholds it's compared against); this is a
// linear ramp, impressions / (2 * minImpressions) capped at 1: 0.5 at the
// minimum, 1 from twice the minimum on.
func confidenceFor(impressions int64, minImpressions int64) float64 {
	if minImpressions <= 0 {
		return 1
	}
	ratio := float64(impressions) / float64(2*minImpressions)
	return math.Min(1, ratio)
}

// classifyAd applies spec.md §4.9 step 2: single-ad scale/pause
// classification. Returns ok=false when no threshold is crossed.
func classifyAd(cfg Config, m adMetrics) (actionType domain.OptimizationActionType, amountPct float64, ok bool) {
	switch {
	case m.roas < cfg.PauseThreshold:
		return domain.ActionPause, 0, true
	case m.roas >= cfg.ScaleUpMin && m.confidence >= cfg.MinConfidence:
		return domain.ActionScaleUp, scaleUpStep(m.roas), true
	case m.roas <= cfg.ScaleDownMax:
		return domain.ActionScaleDown, -0.30, true
	default:
		return "", 0, false
	}
}

// reallocationPlan implements spec.md §4.9 step 3: proportional-to-
// (ROAS*confidence) budget redistribution across a campaign's ads,
// preserving the total campaign budget.
func reallocationPlan(cfg Config, ads []*domain.Ad, metricsByAd map[string]adMetrics) (plan map[string]int64, ok bool) {
	if len(ads) < 3 {
		return nil, false
	}

	var totalBudget int64
	var maxROAS, minROAS float64
	minROAS = math.Inf(1)
	weights := make(map[string]float64, len(ads))
	var totalWeight float64

	for _, ad := range ads {
		totalBudget += ad.BudgetCents
		m := metricsByAd[ad.ID.String()]
		if m.roas > maxROAS {
			maxROAS = m.roas
		}
		if m.roas < minROAS {
			minROAS = m.roas
		}
		weight := m.roas * m.confidence
		if weight < 0 {
			weight = 0
		}
		weights[ad.ID.String()] = weight
		totalWeight += weight
	}

	if minROAS <= 0 || maxROAS/minROAS <= cfg.ReallocateDiff {
		return nil, false
	}
	if totalWeight == 0 {
		return nil, false
	}

	plan = make(map[string]int64, len(ads))
	var allocated int64
	for i, ad := range ads {
		key := ad.ID.String()
		if i == len(ads)-1 {
			plan[key] = totalBudget - allocated // last one absorbs rounding remainder
			continue
		}
		share := int64(float64(totalBudget) * weights[key] / totalWeight)
		plan[key] = share
		allocated += share
	}
	return plan, true
}
