package ads

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/provider"
	"github.com/clipcast/engine/internal/infrastructure/storage"
)

// scriptedAdsProvider lets each saga step's provider call be independently
// forced to fail, to exercise failAndOrphan at every step of the saga.
type scriptedAdsProvider struct {
	failAt map[string]error
}

func newScriptedAdsProvider() *scriptedAdsProvider { return &scriptedAdsProvider{failAt: map[string]error{}} }

func (p *scriptedAdsProvider) SupportsRealAPI() bool { return false }

func (p *scriptedAdsProvider) CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (string, error) {
	if err, ok := p.failAt["create_campaign"]; ok {
		return "", err
	}
	return "camp-1", nil
}
func (p *scriptedAdsProvider) CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (string, error) {
	if err, ok := p.failAt["create_adset"]; ok {
		return "", err
	}
	return "adset-1", nil
}
func (p *scriptedAdsProvider) CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (string, error) {
	if err, ok := p.failAt["create_creative"]; ok {
		return "", err
	}
	return "creative-1", nil
}
func (p *scriptedAdsProvider) CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (string, error) {
	if err, ok := p.failAt["create_ad"]; ok {
		return "", err
	}
	return "ad-1", nil
}
func (p *scriptedAdsProvider) GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (provider.Insights, error) {
	if err, ok := p.failAt["get_insights"]; ok {
		return nil, err
	}
	return provider.Insights{"impressions": 0}, nil
}
func (p *scriptedAdsProvider) UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error {
	return nil
}
func (p *scriptedAdsProvider) PauseEntity(ctx context.Context, entityExternalID string) error { return nil }
func (p *scriptedAdsProvider) ResumeEntity(ctx context.Context, entityExternalID string) error { return nil }

var _ provider.AdsProvider = (*scriptedAdsProvider)(nil)

func testRequest(clipID uuid.UUID) domain.CampaignOrchestrationRequest {
	return domain.CampaignOrchestrationRequest{
		RequestID:        uuid.New(),
		Name:             "spring-push",
		DailyBudgetCents: 100000,
		Targeting:        map[string]any{"age_min": 18},
		AdSetBudgetCents: 50000,
		ScheduleStart:    time.Now().UTC(),
		ClipID:           clipID,
		Caption:          "check this out",
	}
}

func TestOrchestrateCampaign_FullSuccess(t *testing.T) {
	store := storage.NewMemoryStore()
	clip := &domain.Clip{ID: uuid.New(), DurationMS: 15000}
	store.SeedClip(clip)

	orch := New(store, newScriptedAdsProvider(), nil, func() bool { return false })
	result, err := orch.OrchestrateCampaign(context.Background(), testRequest(clip.ID))

	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	require.NotNil(t, result.Campaign)
	require.NotNil(t, result.AdSet)
	require.NotNil(t, result.Creative)
	require.NotNil(t, result.Ad)
	assert.Equal(t, domain.AdsEntityActive, result.Campaign.Status)
}

func TestOrchestrateCampaign_RepeatedRequestIDIsIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	clip := &domain.Clip{ID: uuid.New(), DurationMS: 15000}
	store.SeedClip(clip)

	orch := New(store, newScriptedAdsProvider(), nil, func() bool { return false })
	req := testRequest(clip.ID)

	first, err := orch.OrchestrateCampaign(context.Background(), req)
	require.NoError(t, err)

	second, err := orch.OrchestrateCampaign(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Campaign.ID, second.Campaign.ID)
	assert.Equal(t, first.Ad.ID, second.Ad.ID)
}

func TestOrchestrateCampaign_FailureOrphansPriorSteps(t *testing.T) {
	store := storage.NewMemoryStore()
	clip := &domain.Clip{ID: uuid.New(), DurationMS: 15000}
	store.SeedClip(clip)

	ads := newScriptedAdsProvider()
	ads.failAt["create_ad"] = errors.New("simulated ad creation failure")

	orch := New(store, ads, nil, func() bool { return false })
	result, err := orch.OrchestrateCampaign(context.Background(), testRequest(clip.ID))

	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, "create_ad", result.FailedStep)
	require.NotNil(t, result.Campaign)
	require.NotNil(t, result.AdSet)
	require.NotNil(t, result.Creative)
	assert.Nil(t, result.Ad)

	savedCampaign, err := store.GetCampaign(context.Background(), result.Campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdsEntityOrphanPendingCleanup, savedCampaign.Status)

	savedAdSet, err := store.GetAdSet(context.Background(), result.AdSet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AdsEntityOrphanPendingCleanup, savedAdSet.Status)
}

func TestOrchestrateCampaign_FailsBeforeAnyEntityPersisted(t *testing.T) {
	store := storage.NewMemoryStore()
	clip := &domain.Clip{ID: uuid.New(), DurationMS: 15000}
	store.SeedClip(clip)

	ads := newScriptedAdsProvider()
	ads.failAt["create_campaign"] = errors.New("simulated campaign creation failure")

	orch := New(store, ads, nil, func() bool { return false })
	result, err := orch.OrchestrateCampaign(context.Background(), testRequest(clip.ID))

	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, "create_campaign", result.FailedStep)
	assert.Nil(t, result.Campaign)
}

func TestOrchestrateCampaign_EmergencyStopRefuses(t *testing.T) {
	store := storage.NewMemoryStore()
	clip := &domain.Clip{ID: uuid.New(), DurationMS: 15000}
	store.SeedClip(clip)

	orch := New(store, newScriptedAdsProvider(), nil, func() bool { return true })
	_, err := orch.OrchestrateCampaign(context.Background(), testRequest(clip.ID))
	assert.Error(t, err)
}
