package abtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/engine/internal/application/scheduler"
	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/provider"
	"github.com/clipcast/engine/internal/infrastructure/storage"
)

// fakeInsightsProvider returns canned insights keyed by external ad id; every
// other AdsProvider method is unused by the evaluator and left a no-op.
type fakeInsightsProvider struct {
	insights map[string]provider.Insights
}

func newFakeInsightsProvider() *fakeInsightsProvider {
	return &fakeInsightsProvider{insights: map[string]provider.Insights{}}
}

func (f *fakeInsightsProvider) SupportsRealAPI() bool { return false }
func (f *fakeInsightsProvider) CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (string, error) {
	return "", nil
}
func (f *fakeInsightsProvider) CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (string, error) {
	return "", nil
}
func (f *fakeInsightsProvider) CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (string, error) {
	return "", nil
}
func (f *fakeInsightsProvider) CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (string, error) {
	return "", nil
}
func (f *fakeInsightsProvider) GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (provider.Insights, error) {
	return f.insights[entityExternalID], nil
}
func (f *fakeInsightsProvider) UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error {
	return nil
}
func (f *fakeInsightsProvider) PauseEntity(ctx context.Context, entityExternalID string) error { return nil }
func (f *fakeInsightsProvider) ResumeEntity(ctx context.Context, entityExternalID string) error { return nil }

var _ provider.AdsProvider = (*fakeInsightsProvider)(nil)

// seedVariant creates an Ad (with a fresh external id) under a fresh AdSet
// for the given clip id, and registers its insights in the fake provider.
func seedVariant(t *testing.T, store *storage.MemoryStore, ads *fakeInsightsProvider, clipID uuid.UUID, insights provider.Insights) domain.ABVariant {
	t.Helper()
	ctx := context.Background()

	externalID := "ad-" + uuid.NewString()
	ad := &domain.Ad{ID: uuid.New(), ExternalID: &externalID, Status: domain.AdsEntityActive, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveAd(ctx, ad))
	ads.insights[externalID] = insights

	return domain.ABVariant{ClipID: clipID, AdID: ad.ID}
}

func TestEvaluate_NeedsMoreDataBeforeEmbargoPasses(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	v1 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 500, "clicks": 20, "roas": 2.0, "ctr": 0.04, "cpc": 1.0})
	v2 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 500, "clicks": 15, "roas": 1.5, "ctr": 0.03, "cpc": 1.2})

	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{v1, v2}, nil, 1000, 72, time.Now().UTC().Add(-1*time.Hour), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))

	eval := New(store, ads, nil)
	result, err := eval.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ABTestStatusActive, result.Status)
	assert.Nil(t, result.WinnerClipID)
}

func TestEvaluate_SelectsHigherScoringVariantAsWinner(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	winnerClip := uuid.New()
	loserClip := uuid.New()
	vWinner := seedVariant(t, store, ads, winnerClip, provider.Insights{
		"impressions": 5000, "clicks": 400, "roas": 4.0, "ctr": 0.08, "cpc": 0.5, "conversions": 50,
	})
	vLoser := seedVariant(t, store, ads, loserClip, provider.Insights{
		"impressions": 5000, "clicks": 100, "roas": 1.0, "ctr": 0.02, "cpc": 2.0, "conversions": 5,
	})

	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{vWinner, vLoser}, nil, 1000, 72, time.Now().UTC().Add(-200*time.Hour), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))

	eval := New(store, ads, nil)
	result, err := eval.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ABTestStatusCompleted, result.Status)
	require.NotNil(t, result.WinnerClipID)
	assert.Equal(t, winnerClip, *result.WinnerClipID)
	assert.NotNil(t, result.StatisticalResults["p_value"])
}

func TestEvaluate_TieBreaksByConversionsThenByAdID(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	clipA := uuid.New()
	clipB := uuid.New()
	// Identical score inputs (roas, ctr, cpc) force a tie; B has more
	// conversions and must win regardless of ad id ordering.
	vA := seedVariant(t, store, ads, clipA, provider.Insights{"impressions": 2000, "clicks": 100, "roas": 2.0, "ctr": 0.05, "cpc": 1.0, "conversions": 5})
	vB := seedVariant(t, store, ads, clipB, provider.Insights{"impressions": 2000, "clicks": 100, "roas": 2.0, "ctr": 0.05, "cpc": 1.0, "conversions": 20})

	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{vA, vB}, nil, 1000, 72, time.Now().UTC().Add(-200*time.Hour), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))

	eval := New(store, ads, nil)
	result, err := eval.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)
	require.NotNil(t, result.WinnerClipID)
	assert.Equal(t, clipB, *result.WinnerClipID)
}

func TestEvaluate_RejectsArchivedTest(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	v1 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 2000, "roas": 2.0})
	v2 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 2000, "roas": 1.0})
	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{v1, v2}, nil, 1000, 72, time.Now().UTC().Add(-200*time.Hour), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	test.Status = domain.ABTestStatusArchived
	require.NoError(t, store.SaveABTest(context.Background(), test))

	eval := New(store, ads, nil)
	_, err = eval.Evaluate(context.Background(), test.ID)
	assert.Error(t, err)
}

func newSchedulerForTest(store domain.Storage) *scheduler.Scheduler {
	oracle := scheduler.NewOracle(map[domain.Platform]domain.PlatformWindow{
		domain.PlatformTikTok: {Platform: domain.PlatformTikTok, WindowStartHour: 8, WindowEndHour: 22, MinGapMinutes: 30},
	})
	return scheduler.New(store, oracle, 15*time.Minute, scheduler.DefaultSaturationLimits(), func() bool { return false })
}

func TestPublishWinner_SchedulesThroughAutoSchedulerAndIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	winnerClip := &domain.Clip{ID: uuid.New(), DurationMS: 15000, VisualScore: 80}
	store.SeedClip(winnerClip)

	v1 := seedVariant(t, store, ads, winnerClip.ID, provider.Insights{"impressions": 5000, "clicks": 400, "roas": 4.0, "ctr": 0.08, "cpc": 0.5, "conversions": 50})
	v2 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 5000, "clicks": 100, "roas": 1.0, "ctr": 0.02, "cpc": 2.0, "conversions": 5})

	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{v1, v2}, nil, 1000, 72, time.Now().UTC().Add(-200*time.Hour), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))

	sched := newSchedulerForTest(store)
	eval := New(store, ads, sched)

	_, err = eval.Evaluate(context.Background(), test.ID)
	require.NoError(t, err)

	log1, err := eval.PublishWinner(context.Background(), test.ID)
	require.NoError(t, err)
	require.NotNil(t, log1)

	log2, err := eval.PublishWinner(context.Background(), test.ID)
	require.NoError(t, err)
	assert.Equal(t, log1.ID(), log2.ID())
}

func TestPublishWinner_RefusesBeforeCompletion(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeInsightsProvider()

	v1 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 100})
	v2 := seedVariant(t, store, ads, uuid.New(), provider.Insights{"impressions": 100})
	test, err := domain.NewABTest(uuid.New(), []domain.ABVariant{v1, v2}, nil, 1000, 72, time.Now().UTC(), domain.PlatformTikTok, nil)
	require.NoError(t, err)
	require.NoError(t, store.SaveABTest(context.Background(), test))

	sched := newSchedulerForTest(store)
	eval := New(store, ads, sched)

	_, err = eval.PublishWinner(context.Background(), test.ID)
	assert.Error(t, err)
}
