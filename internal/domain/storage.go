package domain

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by every repository's single-entity getters when
// no row matches, mirroring the teacher's repository.go sentinel.
var ErrNotFound = errors.New("entity not found")

// ClipRepository reads Clip and its campaign-budget associations. Clips are
// produced by an external video pipeline and are immutable within the core
// (spec.md §3), so this interface is read-only.
type ClipRepository interface {
	GetClip(ctx context.Context, id uuid.UUID) (*Clip, error)
	GetCampaignAssociations(ctx context.Context, clipID uuid.UUID) ([]CampaignAssociation, error)
}

// PublishLogRepository owns the PublishLog status machine's persisted
// truth, including its append-only event trail.
type PublishLogRepository interface {
	SavePublishLog(ctx context.Context, log *PublishLog) error
	GetPublishLog(ctx context.Context, id uuid.UUID) (*PublishLog, error)
	// GetPublishLogByExternalPostID must match either the authoritative
	// external_post_id column (set at MarkSuccess) or the provisional id a
	// worker stashed in extra_metadata before that commit landed, so a
	// webhook can find a log that crashed mid-transition (spec.md §4.5).
	GetPublishLogByExternalPostID(ctx context.Context, externalPostID string) (*PublishLog, error)
	ListNonTerminalByPartition(ctx context.Context, platform Platform, accountID *uuid.UUID) ([]*PublishLog, error)
	ListScheduledDue(ctx context.Context, before time.Time) ([]*PublishLog, error)
	ListByStatusBefore(ctx context.Context, statuses []PublishStatus, updatedBefore time.Time) ([]*PublishLog, error)
	FetchNextDue(ctx context.Context, platform Platform, accountID *uuid.UUID, now time.Time) (*PublishLog, error)
	ListPublishEvents(ctx context.Context, logID uuid.UUID) ([]PublishEvent, error)
	ListPublishLogs(ctx context.Context, filter PublishLogFilter) ([]*PublishLog, error)
}

// PublishLogFilter narrows ListPublishLogs for the read-only REST surface
// (SPEC_FULL §4's supplemented list/filter endpoints).
type PublishLogFilter struct {
	Status   *PublishStatus
	Platform *Platform
	ClipID   *uuid.UUID
	Limit    int
	Offset   int
}

// SocialAccountRepository persists platform accounts and their daily post
// counters.
type SocialAccountRepository interface {
	SaveSocialAccount(ctx context.Context, acct *SocialAccount) error
	GetSocialAccount(ctx context.Context, id uuid.UUID) (*SocialAccount, error)
	ListSocialAccountsByPlatform(ctx context.Context, platform Platform) ([]*SocialAccount, error)
}

// OptimizationActionRepository persists C9's proposed and executed actions.
type OptimizationActionRepository interface {
	SaveOptimizationAction(ctx context.Context, a *OptimizationAction) error
	GetOptimizationAction(ctx context.Context, id uuid.UUID) (*OptimizationAction, error)
	ListOptimizationActionsByStatus(ctx context.Context, status ActionStatus) ([]*OptimizationAction, error)
	ListOptimizationActionsByTarget(ctx context.Context, level TargetLevel, targetID uuid.UUID) ([]*OptimizationAction, error)
	LastExecutedActionForTarget(ctx context.Context, level TargetLevel, targetID uuid.UUID) (*OptimizationAction, error)
}

// ABTestRepository persists A/B experiments.
type ABTestRepository interface {
	SaveABTest(ctx context.Context, t *ABTest) error
	GetABTest(ctx context.Context, id uuid.UUID) (*ABTest, error)
	ListABTestsByStatus(ctx context.Context, status ABTestStatus) ([]*ABTest, error)
}

// AdsRepository persists the Campaign/AdSet/Ad/Creative saga entities.
type AdsRepository interface {
	SaveCampaign(ctx context.Context, c *Campaign) error
	SaveAdSet(ctx context.Context, a *AdSet) error
	SaveCreative(ctx context.Context, c *Creative) error
	SaveAd(ctx context.Context, a *Ad) error
	GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error)
	// GetCampaignByRequestID backs orchestrate_campaign's per-request-id
	// idempotency (spec.md §4.7): a retried request must resolve to the
	// same saga instead of creating a duplicate Campaign.
	GetCampaignByRequestID(ctx context.Context, requestID uuid.UUID) (*Campaign, error)
	GetAdSetByCampaign(ctx context.Context, campaignID uuid.UUID) (*AdSet, error)
	GetCreativeByClip(ctx context.Context, campaignID, clipID uuid.UUID) (*Creative, error)
	GetAdByAdSet(ctx context.Context, adSetID uuid.UUID) (*Ad, error)
	ListAdsByCampaign(ctx context.Context, campaignID uuid.UUID) ([]*Ad, error)
	ListActiveCampaigns(ctx context.Context) ([]*Campaign, error)
	GetAdSet(ctx context.Context, id uuid.UUID) (*AdSet, error)
	GetCreative(ctx context.Context, id uuid.UUID) (*Creative, error)
	GetAd(ctx context.Context, id uuid.UUID) (*Ad, error)
}

// IdentityRepository persists the identity pool, exclusively mutated by C10.
type IdentityRepository interface {
	SaveIdentity(ctx context.Context, id *Identity) error
	GetIdentityByAccount(ctx context.Context, accountID uuid.UUID) (*Identity, error)
	ListIdentitiesByClass(ctx context.Context, class IdentityClass) ([]*Identity, error)
	IsProxyInUse(ctx context.Context, proxyDescriptor string) (bool, error)
	IsFingerprintInUse(ctx context.Context, fingerprint string) (bool, error)
}

// LedgerRepository is the append-only sink for C11.
type LedgerRepository interface {
	AppendLedgerEvent(ctx context.Context, e LedgerEvent) error
	ListLedgerEvents(ctx context.Context, entityType, entityID string) ([]LedgerEvent, error)
}

// ComponentHealthRepository backs C12's heartbeat persistence (SPEC_FULL §4
// supplemented feature: health survives process restarts).
type ComponentHealthRepository interface {
	SaveComponentHealth(ctx context.Context, component string, status ComponentStatus, lastRunAt time.Time, errorRate24h float64) error
	GetComponentHealth(ctx context.Context, component string) (ComponentStatus, time.Time, float64, error)
	ListComponentHealth(ctx context.Context) (map[string]ComponentStatus, error)
}

// Storage is the combined repository surface every application component
// depends on, mirroring the teacher's top-level Storage interface in
// mbflow.go that composes its per-entity repositories into one handle.
type Storage interface {
	ClipRepository
	PublishLogRepository
	SocialAccountRepository
	OptimizationActionRepository
	ABTestRepository
	AdsRepository
	IdentityRepository
	LedgerRepository
	ComponentHealthRepository
}
