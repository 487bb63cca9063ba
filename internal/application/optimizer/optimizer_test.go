package optimizer

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/provider"
	"github.com/clipcast/engine/internal/infrastructure/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdsProvider returns canned insights per external id and records every
// budget/pause call, so tests can assert on execution side effects without
// the simulator's randomness.
type fakeAdsProvider struct {
	insights       map[string]provider.Insights
	updatedBudgets map[string]int64
	paused         map[string]bool
}

func newFakeAdsProvider() *fakeAdsProvider {
	return &fakeAdsProvider{
		insights:       map[string]provider.Insights{},
		updatedBudgets: map[string]int64{},
		paused:         map[string]bool{},
	}
}

func (f *fakeAdsProvider) SupportsRealAPI() bool { return false }
func (f *fakeAdsProvider) CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (string, error) {
	return "", nil
}
func (f *fakeAdsProvider) GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (provider.Insights, error) {
	return f.insights[entityExternalID], nil
}
func (f *fakeAdsProvider) UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error {
	f.updatedBudgets[entityExternalID] = newBudgetCents
	return nil
}
func (f *fakeAdsProvider) PauseEntity(ctx context.Context, entityExternalID string) error {
	f.paused[entityExternalID] = true
	return nil
}
func (f *fakeAdsProvider) ResumeEntity(ctx context.Context, entityExternalID string) error {
	return nil
}

var _ provider.AdsProvider = (*fakeAdsProvider)(nil)

// seedCampaignWithAd sets up a Campaign -> AdSet -> Ad chain aged past the
// embargo window, with the given insights behind the Ad's external id.
func seedCampaignWithAd(t *testing.T, store *storage.MemoryStore, ads *fakeAdsProvider, insights provider.Insights) (*domain.Campaign, *domain.Ad) {
	t.Helper()
	ctx := context.Background()

	campaign, err := domain.NewCampaign("test-campaign", 100000)
	require.NoError(t, err)
	campaign.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, store.SaveCampaign(ctx, campaign))

	adSet := &domain.AdSet{ID: uuid.New(), CampaignID: campaign.ID, BudgetCents: 50000, ScheduleStart: campaign.CreatedAt, Status: domain.AdsEntityActive, CreatedAt: campaign.CreatedAt}
	require.NoError(t, store.SaveAdSet(ctx, adSet))

	externalID := "ad-" + uuid.NewString()
	ad := &domain.Ad{ID: uuid.New(), ExternalID: &externalID, AdSetID: adSet.ID, BudgetCents: 10000, Status: domain.AdsEntityActive, CreatedAt: campaign.CreatedAt}
	require.NoError(t, store.SaveAd(ctx, ad))

	ads.insights[externalID] = insights
	return campaign, ad
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinSpendUSD = 0
	cfg.MinImpressions = 100
	return cfg
}

func TestLoop_Tick_SuggestModeNeverExecutes(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	_, ad := seedCampaignWithAd(t, store, ads, provider.Insights{
		"roas": 5.0, "spend": 500, "impressions": 10000, "ctr": 0.05,
	})

	cfg := testConfig()
	cfg.Mode = ModeSuggest
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	result, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Suggested)
	assert.Equal(t, 0, result.Executed)

	actions, err := store.ListOptimizationActionsByTarget(context.Background(), domain.TargetAd, ad.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionStatusSuggested, actions[0].Status)
	assert.Empty(t, ads.updatedBudgets)
}

func TestLoop_Tick_AutoModeExecutesWhenGuardsPass(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	// roas in [2,3) keeps the scale-up step at 0.10, clearing auto mode's
	// halved 0.10 change cap; high impressions clear both confidence bars.
	_, ad := seedCampaignWithAd(t, store, ads, provider.Insights{
		"roas": 2.5, "spend": 500, "impressions": 10000, "ctr": 0.05,
	})

	cfg := testConfig()
	cfg.Mode = ModeAuto
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	result, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Suggested)
	assert.Equal(t, 1, result.Executed)

	got, err := store.GetAd(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Greater(t, got.BudgetCents, int64(10000))
	assert.Equal(t, *got.ExternalID, func() string {
		for id := range ads.updatedBudgets {
			return id
		}
		return ""
	}())
}

func TestLoop_Tick_AutoModeRefusesOnLowConfidence(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	// confidence = min(1, impressions/(2*min_impressions)) = 140/200 = 0.70:
	// clears the base MinConfidence (0.65) used at classification time but
	// falls short of auto mode's stricter AutoConfidence (0.75), so the
	// guard stack refuses at the confidence guard before change_cap is
	// ever reached.
	_, ad := seedCampaignWithAd(t, store, ads, provider.Insights{
		"roas": 2.5, "spend": 500, "impressions": 140, "ctr": 0.05,
	})

	cfg := testConfig()
	cfg.Mode = ModeAuto
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	result, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Suggested)
	assert.Equal(t, 0, result.Executed)
	assert.Equal(t, 1, result.Refused)

	actions, err := store.ListOptimizationActionsByTarget(context.Background(), domain.TargetAd, ad.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionStatusSuggested, actions[0].Status)
}

func TestLoop_Tick_StoppedSkipsEntirely(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	seedCampaignWithAd(t, store, ads, provider.Insights{"roas": 5.0, "spend": 500, "impressions": 10000})

	cfg := testConfig()
	cfg.Mode = ModeAuto
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return true }, testLogger())

	result, err := loop.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TickResult{}, result)
}

func TestLoop_ApproveAndExecute_RunsAtBaseThresholds(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	// roas in [2,3) keeps the scale-up step at 0.10; 150 impressions give
	// confidence 0.75, clearing the base MinConfidence (0.65) an operator
	// approval is checked against.
	_, ad := seedCampaignWithAd(t, store, ads, provider.Insights{"roas": 2.5, "spend": 500, "impressions": 150})

	cfg := testConfig()
	cfg.Mode = ModeSuggest
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	_, err := loop.Tick(context.Background())
	require.NoError(t, err)

	actions, err := store.ListOptimizationActionsByTarget(context.Background(), domain.TargetAd, ad.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	approved, err := loop.ApproveAndExecute(context.Background(), actions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusExecuted, approved.Status)
}

func TestLoop_ApproveAndExecute_BypassesChangeCapForLargeScaleUp(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	// roas=4.2 selects the 0.75 scale-up step, which does not clear auto
	// mode's halved cap (0.10) that an unapproved execution is checked
	// against. Suggest mode parks it as suggested; only approval, which
	// waives change_cap, can move it to executed.
	_, ad := seedCampaignWithAd(t, store, ads, provider.Insights{"roas": 4.2, "spend": 500, "impressions": 150})

	cfg := testConfig()
	cfg.Mode = ModeSuggest
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	_, err := loop.Tick(context.Background())
	require.NoError(t, err)

	actions, err := store.ListOptimizationActionsByTarget(context.Background(), domain.TargetAd, ad.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.InDelta(t, 0.75, actions[0].AmountPct, 0.001)

	approved, err := loop.ApproveAndExecute(context.Background(), actions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionStatusExecuted, approved.Status)
}

func TestLoop_ApproveAndExecute_AlreadyApprovedFails(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	seedCampaignWithAd(t, store, ads, provider.Insights{"roas": 2.5, "spend": 500, "impressions": 10000})

	cfg := testConfig()
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	_, err := loop.Tick(context.Background())
	require.NoError(t, err)

	actions, err := store.ListOptimizationActionsByStatus(context.Background(), domain.ActionStatusSuggested)
	require.NoError(t, err)
	require.Len(t, actions, 1)

	_, err = loop.ApproveAndExecute(context.Background(), actions[0].ID)
	require.NoError(t, err)

	_, err = loop.ApproveAndExecute(context.Background(), actions[0].ID)
	assert.Error(t, err)
}

func TestLoop_Tick_ReallocationNeverAutoExecutes(t *testing.T) {
	store := storage.NewMemoryStore()
	ads := newFakeAdsProvider()
	ctx := context.Background()

	campaign, err := domain.NewCampaign("realloc-campaign", 300000)
	require.NoError(t, err)
	campaign.CreatedAt = time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, store.SaveCampaign(ctx, campaign))

	adSet := &domain.AdSet{ID: uuid.New(), CampaignID: campaign.ID, BudgetCents: 30000, ScheduleStart: campaign.CreatedAt, Status: domain.AdsEntityActive, CreatedAt: campaign.CreatedAt}
	require.NoError(t, store.SaveAdSet(ctx, adSet))

	roasValues := []float64{5.0, 2.0, 2.0}
	for _, roas := range roasValues {
		externalID := "ad-" + uuid.NewString()
		ad := &domain.Ad{ID: uuid.New(), ExternalID: &externalID, AdSetID: adSet.ID, BudgetCents: 10000, Status: domain.AdsEntityActive, CreatedAt: campaign.CreatedAt}
		require.NoError(t, store.SaveAd(ctx, ad))
		ads.insights[externalID] = provider.Insights{"roas": roas, "spend": 500, "impressions": 10000, "ctr": 0.02}
	}

	cfg := testConfig()
	cfg.Mode = ModeAuto
	loop := New(store, ads, cfg, func() domain.ComponentStatus { return domain.ComponentOnline }, func() bool { return false }, testLogger())

	_, err = loop.Tick(ctx)
	require.NoError(t, err)

	actions, err := store.ListOptimizationActionsByTarget(ctx, domain.TargetCampaign, campaign.ID)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, domain.ActionReallocate, actions[0].ActionType)
	assert.Equal(t, domain.ActionStatusSuggested, actions[0].Status, "reallocation must never auto-execute")
}
