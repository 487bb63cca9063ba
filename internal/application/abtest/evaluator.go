// Package abtest implements the A/B Evaluator (C8): embargo-gated winner
// selection by composite score, a chi-square sanity check, and idempotent
// winner publication routed through the Auto-Scheduler (spec.md §4.8).
package abtest

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/application/scheduler"
	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
	"github.com/clipcast/engine/internal/infrastructure/provider"
)

// InsightsWindow is how far back each variant's metrics are pulled when an
// evaluation runs.
const InsightsWindow = 14 * 24 * time.Hour

// Evaluator is the A/B Evaluator (C8).
type Evaluator struct {
	store     domain.Storage
	ads       provider.AdsProvider
	scheduler *scheduler.Scheduler
}

func New(store domain.Storage, ads provider.AdsProvider, sched *scheduler.Scheduler) *Evaluator {
	return &Evaluator{store: store, ads: ads, scheduler: sched}
}

type variantMetrics struct {
	variant     domain.ABVariant
	ad          *domain.Ad
	impressions int64
	clicks      int64
	spend       float64
	revenue     float64
	roas        float64
	ctr         float64
	cpc         float64
	conversions float64
}

// Evaluate implements spec.md §4.8 end to end: pull each variant's
// insights, check the embargo, score variants, run the chi-square sanity
// check, and select a winner (or report needs_more_data).
func (e *Evaluator) Evaluate(ctx context.Context, testID uuid.UUID) (*domain.ABTest, error) {
	test, err := e.store.GetABTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := test.BeginEvaluating(); err != nil {
		return nil, err
	}

	metrics := make([]variantMetrics, 0, len(test.Variants))
	impressionsByClip := make(map[uuid.UUID]int64, len(test.Variants))
	for _, v := range test.Variants {
		ad, err := e.store.GetAd(ctx, v.AdID)
		if err != nil {
			return nil, err
		}
		vm := variantMetrics{variant: v, ad: ad}
		if ad.ExternalID != nil {
			insights, err := e.ads.GetInsights(ctx, *ad.ExternalID, InsightsWindow)
			if err != nil {
				return nil, err
			}
			vm.impressions = int64(insights["impressions"])
			vm.clicks = int64(insights["clicks"])
			vm.spend = insights["spend"]
			vm.revenue = insights["revenue"]
			vm.conversions = insights["conversions"]
			vm.roas = insights["roas"]
			vm.ctr = insights["ctr"]
			vm.cpc = insights["cpc"]
		}
		metrics = append(metrics, vm)
		impressionsByClip[v.ClipID] = vm.impressions
	}

	if !test.EmbargoPassed(time.Now().UTC(), impressionsByClip) {
		test.MarkNeedsMoreData()
		if err := e.store.SaveABTest(ctx, test); err != nil {
			return nil, err
		}
		_ = e.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventABTestNeedsMoreData, "ab_test", test.ID.String(), domain.SeverityInfo,
			map[string]any{"deficits": embargoDeficits(test, time.Now().UTC(), impressionsByClip)},
		))
		return test, nil
	}

	maxCPC := 0.0
	for _, m := range metrics {
		if m.cpc > maxCPC {
			maxCPC = m.cpc
		}
	}

	type scored struct {
		variantMetrics
		score float64
	}
	ranked := make([]scored, len(metrics))
	for i, m := range metrics {
		invCPCNormalized := 0.0
		if maxCPC > 0 {
			invCPCNormalized = math.Max(0, 1-m.cpc/maxCPC)
		}
		score := 0.5*m.roas + 0.3*m.ctr + 0.2*invCPCNormalized
		ranked[i] = scored{variantMetrics: m, score: score}
	}

	best := ranked[0]
	for _, r := range ranked[1:] {
		switch {
		case r.score > best.score:
			best = r
		case r.score == best.score && r.conversions > best.conversions:
			best = r
		case r.score == best.score && r.conversions == best.conversions && earlierAdID(r.ad.ID, best.ad.ID):
			best = r
		}
	}

	clicks := make([]int64, len(metrics))
	impressions := make([]int64, len(metrics))
	for i, m := range metrics {
		clicks[i] = m.clicks
		impressions[i] = m.impressions
	}
	chi2, pValue, df := chiSquareTest(clicks, impressions)
	significant := pValue < 0.05
	statisticalResults := map[string]any{
		"chi2":        chi2,
		"p_value":     pValue,
		"df":          df,
		"significant": significant,
	}

	snapshot := map[string]any{}
	for _, r := range ranked {
		snapshot[r.ad.ID.String()] = map[string]any{
			"clip_id":     r.variant.ClipID.String(),
			"score":       r.score,
			"roas":        r.roas,
			"ctr":         r.ctr,
			"cpc":         r.cpc,
			"conversions": r.conversions,
			"impressions": r.impressions,
		}
	}

	if err := test.SelectWinner(best.variant.ClipID, statisticalResults, snapshot); err != nil {
		return nil, err
	}
	if err := e.store.SaveABTest(ctx, test); err != nil {
		return nil, err
	}
	_ = e.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventABTestWinnerSelected, "ab_test", test.ID.String(), domain.SeverityInfo,
		map[string]any{"winner_clip_id": best.variant.ClipID.String(), "statistical_results": statisticalResults},
	))
	return test, nil
}

func earlierAdID(candidate, current uuid.UUID) bool {
	return candidate.String() < current.String()
}

func embargoDeficits(test *domain.ABTest, now time.Time, impressionsByClip map[uuid.UUID]int64) map[string]any {
	hoursShort := test.MinDurationHours - now.Sub(test.StartTime).Hours()
	if hoursShort < 0 {
		hoursShort = 0
	}
	impressionsShort := map[string]int64{}
	for _, v := range test.Variants {
		if d := test.MinImpressions - impressionsByClip[v.ClipID]; d > 0 {
			impressionsShort[v.ClipID.String()] = d
		}
	}
	return map[string]any{"hours_short": hoursShort, "impressions_short": impressionsShort}
}

// Run ticks a full scan of active tests on interval until ctx is
// cancelled, evaluating every test ListABTestsByStatus(active) returns and
// publishing the winner of any that completes on this pass. isStopped
// mirrors Master Control's emergency_stop gate (spec.md §4.12: "a
// process-wide flag that C1/C8 consult before writing new scheduled
// records") — PublishWinner is skipped, not Evaluate, since scoring a test
// doesn't write a PublishLog.
func (e *Evaluator) Run(ctx context.Context, interval time.Duration, isStopped func() bool, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = e.Tick(ctx, isStopped, log)
		}
	}
}

// Tick evaluates every active test once and publishes the winner of any
// that complete on this pass. It returns an error only when the initial
// listing fails; per-test evaluate/publish failures are logged and do not
// abort the remaining tests.
func (e *Evaluator) Tick(ctx context.Context, isStopped func() bool, log *slog.Logger) error {
	tests, err := e.store.ListABTestsByStatus(ctx, domain.ABTestStatusActive)
	if err != nil {
		log.Error("ab evaluator: failed to list active tests", "error", err)
		return err
	}
	for _, t := range tests {
		evaluated, err := e.Evaluate(ctx, t.ID)
		if err != nil {
			log.Error("ab evaluator: evaluate failed", "test_id", t.ID.String(), "error", err)
			continue
		}
		if evaluated.Status != domain.ABTestStatusCompleted || isStopped() {
			continue
		}
		if _, err := e.PublishWinner(ctx, evaluated.ID); err != nil {
			log.Error("ab evaluator: publish winner failed", "test_id", evaluated.ID.String(), "error", err)
		}
	}
	return nil
}

// PublishWinner implements spec.md §4.8's idempotent winner publication:
// a completed test's winner is scheduled through C1 (not written directly
// as a pending PublishLog) so platform windows and conflict resolution
// apply to it like any other publication.
func (e *Evaluator) PublishWinner(ctx context.Context, testID uuid.UUID) (*domain.PublishLog, error) {
	test, err := e.store.GetABTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if test.Status != domain.ABTestStatusCompleted {
		return nil, domainerrors.NewStateError(test.ID.String(), "only a completed test can publish a winner")
	}
	if test.PublishedWinnerLogID != nil {
		return e.store.GetPublishLog(ctx, *test.PublishedWinnerLogID)
	}

	log, err := e.scheduler.Schedule(ctx, scheduler.Request{
		ClipID:      *test.WinnerClipID,
		Platform:    test.Platform,
		AccountID:   test.AccountID,
		ScheduledBy: domain.ScheduledByABWinner,
	})
	if err != nil {
		return nil, err
	}
	log.SetABTestID(test.ID)
	if err := e.store.SavePublishLog(ctx, log); err != nil {
		return nil, err
	}
	log.MarkEventsCommitted()

	logID, err := test.RecordWinnerPublication(log.ID())
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveABTest(ctx, test); err != nil {
		return nil, err
	}
	_ = e.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventABTestWinnerPublished, "ab_test", test.ID.String(), domain.SeverityInfo,
		map[string]any{"publish_log_id": logID.String()},
	))
	return log, nil
}
