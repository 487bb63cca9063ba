package optimizer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/clipcast/engine/internal/domain"
)

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, 1.0, confidenceFor(0, 0))
	assert.InDelta(t, 0.5, confidenceFor(1000, 1000), 0.0001)
	assert.InDelta(t, 1.0, confidenceFor(5000, 1000), 0.0001)
	assert.InDelta(t, 0.25, confidenceFor(500, 1000), 0.0001)
}

func TestScaleUpStep(t *testing.T) {
	assert.Equal(t, 1.00, scaleUpStep(5))
	assert.Equal(t, 0.75, scaleUpStep(4))
	assert.Equal(t, 0.50, scaleUpStep(3.5))
	assert.Equal(t, 0.25, scaleUpStep(3))
	assert.Equal(t, 0.10, scaleUpStep(2.1))
}

func TestClassifyAd(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("pause below threshold", func(t *testing.T) {
		action, _, ok := classifyAd(cfg, adMetrics{roas: 0.5, confidence: 1})
		assert.True(t, ok)
		assert.Equal(t, domain.ActionPause, action)
	})

	t.Run("scale up requires confidence", func(t *testing.T) {
		action, amount, ok := classifyAd(cfg, adMetrics{roas: 4.5, confidence: 0.9})
		assert.True(t, ok)
		assert.Equal(t, domain.ActionScaleUp, action)
		assert.Equal(t, 0.75, amount)
	})

	t.Run("high roas but low confidence does not scale up", func(t *testing.T) {
		_, _, ok := classifyAd(cfg, adMetrics{roas: 4.5, confidence: 0.1})
		assert.False(t, ok)
	})

	t.Run("scale down for weak but non-pausable roas", func(t *testing.T) {
		action, amount, ok := classifyAd(cfg, adMetrics{roas: 1.2, confidence: 1})
		assert.True(t, ok)
		assert.Equal(t, domain.ActionScaleDown, action)
		assert.Equal(t, -0.30, amount)
	})

	t.Run("no action in the dead zone", func(t *testing.T) {
		_, _, ok := classifyAd(cfg, adMetrics{roas: 1.8, confidence: 1})
		assert.False(t, ok)
	})
}

func newTestAd(budgetCents int64) *domain.Ad {
	return &domain.Ad{ID: uuid.New(), BudgetCents: budgetCents, Status: domain.AdsEntityActive}
}

func TestReallocationPlan(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("fewer than three ads never reallocates", func(t *testing.T) {
		ads := []*domain.Ad{newTestAd(1000), newTestAd(1000)}
		_, ok := reallocationPlan(cfg, ads, map[string]adMetrics{})
		assert.False(t, ok)
	})

	t.Run("insufficient roas spread skips reallocation", func(t *testing.T) {
		ads := []*domain.Ad{newTestAd(1000), newTestAd(1000), newTestAd(1000)}
		metrics := map[string]adMetrics{
			ads[0].ID.String(): {roas: 2.0, confidence: 1},
			ads[1].ID.String(): {roas: 2.1, confidence: 1},
			ads[2].ID.String(): {roas: 2.2, confidence: 1},
		}
		_, ok := reallocationPlan(cfg, ads, metrics)
		assert.False(t, ok)
	})

	t.Run("preserves total budget and weights by roas*confidence", func(t *testing.T) {
		ads := []*domain.Ad{newTestAd(10000), newTestAd(10000), newTestAd(10000)}
		metrics := map[string]adMetrics{
			ads[0].ID.String(): {roas: 5.0, confidence: 1},
			ads[1].ID.String(): {roas: 1.0, confidence: 1},
			ads[2].ID.String(): {roas: 1.0, confidence: 1},
		}
		plan, ok := reallocationPlan(cfg, ads, metrics)
		assert.True(t, ok)

		var total int64
		for _, v := range plan {
			total += v
		}
		assert.Equal(t, int64(30000), total)
		assert.Greater(t, plan[ads[0].ID.String()], plan[ads[1].ID.String()])
	})

	t.Run("zero weight total skips reallocation", func(t *testing.T) {
		ads := []*domain.Ad{newTestAd(1000), newTestAd(1000), newTestAd(1000)}
		metrics := map[string]adMetrics{
			ads[0].ID.String(): {roas: 0, confidence: 0},
			ads[1].ID.String(): {roas: 0, confidence: 0},
			ads[2].ID.String(): {roas: 5, confidence: 0},
		}
		_, ok := reallocationPlan(cfg, ads, metrics)
		assert.False(t, ok)
	})
}
