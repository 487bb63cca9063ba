package provider

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// SimulatedPlatformProvider stands in for a real platform API client
// (spec.md §1 Non-goals: "no real Meta/TikTok/YouTube/Ads API client").
// It never reports SupportsRealAPI()=true, so the Publishing Worker always
// routes through it unless a future real adapter is registered in its place.
type SimulatedPlatformProvider struct {
	platform       domain.Platform
	failureRate    float64
	rng            *rand.Rand
}

func NewSimulatedPlatformProvider(platform domain.Platform, failureRate float64, seed int64) *SimulatedPlatformProvider {
	return &SimulatedPlatformProvider{
		platform:    platform,
		failureRate: failureRate,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

func (s *SimulatedPlatformProvider) Platform() domain.Platform { return s.platform }
func (s *SimulatedPlatformProvider) SupportsRealAPI() bool     { return false }

func (s *SimulatedPlatformProvider) maybeFail(op string) error {
	if s.rng.Float64() >= s.failureRate {
		return nil
	}
	switch s.rng.Intn(4) {
	case 0:
		return domainerrors.NewProviderError(string(domain.ProviderErrorNetwork), op+": simulated network timeout", nil)
	case 1:
		return domainerrors.NewProviderError(string(domain.ProviderErrorRateLimit), op+": simulated rate limit", nil)
	case 2:
		return domainerrors.NewProviderError(string(domain.ProviderErrorServer), op+": simulated upstream 5xx", nil)
	default:
		return domainerrors.NewProviderError(string(domain.ProviderErrorAuth), op+": simulated auth failure", nil)
	}
}

func (s *SimulatedPlatformProvider) UploadCreative(ctx context.Context, clip *domain.Clip, metadata map[string]any) (CreativeRef, error) {
	if err := s.maybeFail("upload_creative"); err != nil {
		return CreativeRef{}, err
	}
	id := fmt.Sprintf("%s-creative-%s", s.platform, clip.ID)
	return CreativeRef{ExternalID: id, URL: "https://simulated." + string(s.platform) + ".example/creative/" + id}, nil
}

func (s *SimulatedPlatformProvider) PublishPost(ctx context.Context, externalCreativeID, caption string, hashtags []string) (PostRef, error) {
	if err := s.maybeFail("publish_post"); err != nil {
		return PostRef{}, err
	}
	id := fmt.Sprintf("%s-post-%d", s.platform, s.rng.Int63())
	return PostRef{ExternalPostID: id, ExternalURL: "https://simulated." + string(s.platform) + ".example/post/" + id}, nil
}

func (s *SimulatedPlatformProvider) GetInsights(ctx context.Context, entityID string, window time.Duration) (Insights, error) {
	if err := s.maybeFail("get_insights"); err != nil {
		return nil, err
	}
	impressions := 1000 + s.rng.Float64()*9000
	clicks := impressions * (0.01 + s.rng.Float64()*0.05)
	return Insights{
		"impressions": impressions,
		"clicks":      clicks,
		"ctr":         clicks / impressions,
	}, nil
}

// SimulatedAdsProvider stands in for the Ads API (spec.md §1 Non-goals).
type SimulatedAdsProvider struct {
	failureRate float64
	rng         *rand.Rand
}

func NewSimulatedAdsProvider(failureRate float64, seed int64) *SimulatedAdsProvider {
	return &SimulatedAdsProvider{failureRate: failureRate, rng: rand.New(rand.NewSource(seed))}
}

func (s *SimulatedAdsProvider) SupportsRealAPI() bool { return false }

func (s *SimulatedAdsProvider) maybeFail(op string) error {
	if s.rng.Float64() >= s.failureRate {
		return nil
	}
	return domainerrors.NewProviderError(string(domain.ProviderErrorServer), op+": simulated ads API failure", nil)
}

func (s *SimulatedAdsProvider) CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (string, error) {
	if err := s.maybeFail("create_campaign"); err != nil {
		return "", err
	}
	return fmt.Sprintf("camp-%d", s.rng.Int63()), nil
}

func (s *SimulatedAdsProvider) CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (string, error) {
	if err := s.maybeFail("create_adset"); err != nil {
		return "", err
	}
	return fmt.Sprintf("adset-%d", s.rng.Int63()), nil
}

func (s *SimulatedAdsProvider) CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (string, error) {
	if err := s.maybeFail("create_creative"); err != nil {
		return "", err
	}
	return fmt.Sprintf("creative-%s", clip.ID), nil
}

func (s *SimulatedAdsProvider) CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (string, error) {
	if err := s.maybeFail("create_ad"); err != nil {
		return "", err
	}
	return fmt.Sprintf("ad-%d", s.rng.Int63()), nil
}

func (s *SimulatedAdsProvider) GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (Insights, error) {
	if err := s.maybeFail("get_insights"); err != nil {
		return nil, err
	}
	spend := 50 + s.rng.Float64()*950
	revenue := spend * (0.5 + s.rng.Float64()*3.5)
	impressions := 1000 + s.rng.Float64()*19000
	clicks := impressions * (0.005 + s.rng.Float64()*0.04)
	conversions := clicks * (0.01 + s.rng.Float64()*0.05)
	return Insights{
		"spend":       spend,
		"revenue":     revenue,
		"roas":        revenue / spend,
		"impressions": impressions,
		"clicks":      clicks,
		"ctr":         clicks / impressions,
		"cpc":         spend / clicks,
		"conversions": conversions,
	}, nil
}

func (s *SimulatedAdsProvider) UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error {
	return s.maybeFail("update_budget")
}

func (s *SimulatedAdsProvider) PauseEntity(ctx context.Context, entityExternalID string) error {
	return s.maybeFail("pause_entity")
}

func (s *SimulatedAdsProvider) ResumeEntity(ctx context.Context, entityExternalID string) error {
	return s.maybeFail("resume_entity")
}
