package domain

import "github.com/google/uuid"

// Clip is a derived short-form video candidate for publication. It is
// created by an external video pipeline and is immutable within the core.
type Clip struct {
	ID             uuid.UUID
	SourceVideoID  uuid.UUID
	DurationMS     int64
	VisualScore    float64 // clamped to [0,100] by the caller that produced it
	Params         map[string]any
}

// EngagementScore reads clip.params["engagement_score"], defaulting to 0 per
// the priority formula in spec.md §4.1.
func (c Clip) EngagementScore() float64 {
	if c.Params == nil {
		return 0
	}
	if v, ok := c.Params["engagement_score"]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// CampaignAssociation links a Campaign budget to a Clip. Multiple
// associations may exist per clip; their budgets sum to the clip's
// "campaign weight" (spec.md §3).
type CampaignAssociation struct {
	CampaignID uuid.UUID
	ClipID     uuid.UUID
	BudgetCents int64
}

// CampaignWeight sums the budgets of every association for a clip and maps
// the result to points in [0,100] per spec.md §4.1:
// min(100, budget_cents/50000 * 100).
func CampaignWeight(associations []CampaignAssociation) float64 {
	var total int64
	for _, a := range associations {
		total += a.BudgetCents
	}
	points := float64(total) / 50000.0 * 100.0
	if points > 100 {
		points = 100
	}
	return points
}
