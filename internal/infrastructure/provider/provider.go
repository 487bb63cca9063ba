// Package provider defines the external platform/Ads API collaborator
// interfaces (spec.md §6) and ships simulator implementations. Real API
// wire clients are explicitly out of scope (spec.md §1 Non-goals); every
// adapter here reports SupportsRealAPI()=false so the worker always routes
// through the simulator path, mirroring the teacher's node adapters'
// supports_real_api() gate.
package provider

import (
	"context"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// CreativeRef is what UploadCreative returns: the provider-side handle for
// a creative asset derived from a Clip.
type CreativeRef struct {
	ExternalID string
	URL        string
}

// PostRef is what PublishPost returns once a creative goes live.
type PostRef struct {
	ExternalPostID string
	ExternalURL    string
}

// Insights is the generic metrics bag GetInsights returns; callers read the
// keys they need (impressions, clicks, spend, conversions, revenue, roas, ctr, cpc).
type Insights map[string]float64

// PlatformProvider is the per-social-platform adapter the Publishing Worker
// (C4) calls (spec.md §6).
type PlatformProvider interface {
	Platform() domain.Platform
	SupportsRealAPI() bool
	UploadCreative(ctx context.Context, clip *domain.Clip, metadata map[string]any) (CreativeRef, error)
	PublishPost(ctx context.Context, externalCreativeID, caption string, hashtags []string) (PostRef, error)
	GetInsights(ctx context.Context, entityID string, window time.Duration) (Insights, error)
}

// AdsProvider is the Meta-like Ads API adapter the Ads Orchestrator (C7) and
// Optimization Loop (C9) execution stage call (spec.md §6, §4.7, §4.9).
type AdsProvider interface {
	SupportsRealAPI() bool
	CreateCampaign(ctx context.Context, name string, dailyBudgetCents int64) (externalID string, err error)
	CreateAdSet(ctx context.Context, campaignExternalID string, targeting map[string]any, budgetCents int64, start time.Time, end *time.Time) (externalID string, err error)
	CreateCreative(ctx context.Context, clip *domain.Clip, caption string, hashtags []string) (externalID string, err error)
	CreateAd(ctx context.Context, adSetExternalID, creativeExternalID string) (externalID string, err error)
	GetInsights(ctx context.Context, entityExternalID string, window time.Duration) (Insights, error)
	UpdateBudget(ctx context.Context, entityExternalID string, newBudgetCents int64) error
	PauseEntity(ctx context.Context, entityExternalID string) error
	ResumeEntity(ctx context.Context, entityExternalID string) error
}

// Registry resolves a PlatformProvider by platform, the same "lookup by
// enum key" pattern the teacher uses for its node-type builtin registry.
type Registry struct {
	platforms map[domain.Platform]PlatformProvider
}

func NewRegistry() *Registry {
	return &Registry{platforms: make(map[domain.Platform]PlatformProvider)}
}

func (r *Registry) Register(p PlatformProvider) {
	r.platforms[p.Platform()] = p
}

func (r *Registry) Resolve(platform domain.Platform) (PlatformProvider, bool) {
	p, ok := r.platforms[platform]
	return p, ok
}
