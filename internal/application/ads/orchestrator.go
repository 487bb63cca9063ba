// Package ads implements the Ads Orchestrator (C7): the five-step
// create-campaign saga against the simulated Ads provider (spec.md §4.7).
package ads

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
	"github.com/clipcast/engine/internal/infrastructure/provider"
)

// Orchestrator is the Ads Orchestrator (C7).
type Orchestrator struct {
	store    domain.Storage
	provider provider.AdsProvider
	captions *CaptionDrafter
	isStopped func() bool
}

func New(store domain.Storage, adsProvider provider.AdsProvider, captions *CaptionDrafter, isStopped func() bool) *Orchestrator {
	return &Orchestrator{store: store, provider: adsProvider, captions: captions, isStopped: isStopped}
}

// OrchestrateCampaign runs spec.md §4.7's five-step saga. Once a campaign
// has been persisted for a RequestID, repeating that RequestID returns the
// result rebuilt from the persisted rows (completed or orphaned) without
// re-issuing provider calls. A request that failed at create_campaign
// persisted nothing, so repeating it runs the saga again.
func (o *Orchestrator) OrchestrateCampaign(ctx context.Context, req domain.CampaignOrchestrationRequest) (domain.CampaignOrchestrationResult, error) {
	if o.isStopped != nil && o.isStopped() {
		return domain.CampaignOrchestrationResult{}, domainerrors.NewGuardRailError("emergency_stop", "ads orchestrator is halted by master control")
	}

	if existing, err := o.store.GetCampaignByRequestID(ctx, req.RequestID); err == nil {
		return o.reconstructResult(ctx, existing)
	} else if err != domain.ErrNotFound {
		return domain.CampaignOrchestrationResult{}, err
	}

	campaign, err := domain.NewCampaignForRequest(req.RequestID, req.Name, req.DailyBudgetCents)
	if err != nil {
		return domain.CampaignOrchestrationResult{}, err
	}

	result := domain.CampaignOrchestrationResult{}

	externalID, err := o.provider.CreateCampaign(ctx, req.Name, req.DailyBudgetCents)
	if err != nil {
		return o.fail(ctx, result, "create_campaign", err)
	}
	campaign.ExternalID = &externalID
	if err := o.store.SaveCampaign(ctx, campaign); err != nil {
		return domain.CampaignOrchestrationResult{}, err
	}
	result.Campaign = campaign
	o.emitCreated(ctx, "campaign", campaign.ID)

	adSetExternalID, err := o.provider.CreateAdSet(ctx, externalID, req.Targeting, req.AdSetBudgetCents, req.ScheduleStart, req.ScheduleEnd)
	if err != nil {
		return o.failAndOrphan(ctx, result, "create_adset", err)
	}
	adSet := &domain.AdSet{
		ID:            uuid.New(),
		ExternalID:    &adSetExternalID,
		CampaignID:    campaign.ID,
		Targeting:     req.Targeting,
		BudgetCents:   req.AdSetBudgetCents,
		ScheduleStart: req.ScheduleStart,
		ScheduleEnd:   req.ScheduleEnd,
		Status:        domain.AdsEntityActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := o.store.SaveAdSet(ctx, adSet); err != nil {
		return domain.CampaignOrchestrationResult{}, err
	}
	result.AdSet = adSet
	o.emitCreated(ctx, "ad_set", adSet.ID)

	clip, err := o.store.GetClip(ctx, req.ClipID)
	if err != nil {
		return o.failAndOrphan(ctx, result, "upload_creative", err)
	}
	caption := req.Caption
	if caption == "" && o.captions != nil {
		drafted, _ := o.captions.Draft(ctx, clip, "" /* platform-agnostic for ads copy */)
		caption = drafted
	}
	creativeExternalID, err := o.provider.CreateCreative(ctx, clip, caption, req.Hashtags)
	if err != nil {
		return o.failAndOrphan(ctx, result, "upload_creative", err)
	}
	creative := &domain.Creative{
		ID:         uuid.New(),
		ExternalID: &creativeExternalID,
		ClipID:     req.ClipID,
		Caption:    caption,
		Hashtags:   req.Hashtags,
		Status:     domain.AdsEntityActive,
		CreatedAt:  time.Now().UTC(),
	}
	if err := o.store.SaveCreative(ctx, creative); err != nil {
		return domain.CampaignOrchestrationResult{}, err
	}
	result.Creative = creative
	o.emitCreated(ctx, "creative", creative.ID)

	adExternalID, err := o.provider.CreateAd(ctx, adSetExternalID, creativeExternalID)
	if err != nil {
		return o.failAndOrphan(ctx, result, "create_ad", err)
	}
	ad := &domain.Ad{
		ID:          uuid.New(),
		ExternalID:  &adExternalID,
		AdSetID:     adSet.ID,
		CreativeID:  creative.ID,
		BudgetCents: adSet.BudgetCents,
		Status:      domain.AdsEntityActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := o.store.SaveAd(ctx, ad); err != nil {
		return domain.CampaignOrchestrationResult{}, err
	}
	result.Ad = ad
	o.emitCreated(ctx, "ad", ad.ID)

	// Step 5: sync initial insights. A failure here does not unwind the
	// saga — the campaign is live and serving; an empty insights window is
	// an acceptable starting state for C9 to pick up on its next tick.
	if _, err := o.provider.GetInsights(ctx, adExternalID, 0); err != nil {
		_ = o.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventAdsSagaCompleted, "campaign", campaign.ID.String(), domain.SeverityWarn,
			map[string]any{"initial_insights_sync_failed": err.Error()},
		))
		return result, nil
	}

	_ = o.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventAdsSagaCompleted, "campaign", campaign.ID.String(), domain.SeverityInfo, nil,
	))
	return result, nil
}

// fail handles a failure before any entity has been persisted.
func (o *Orchestrator) fail(ctx context.Context, result domain.CampaignOrchestrationResult, step string, cause error) (domain.CampaignOrchestrationResult, error) {
	result.FailedStep = step
	result.FailureReason = cause.Error()
	_ = o.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventAdsSagaOrphaned, "campaign", "", domain.SeverityError,
		map[string]any{"failed_step": step, "reason": cause.Error()},
	))
	return result, nil
}

// failAndOrphan marks every entity already persisted in result as
// orphan_pending_cleanup (spec.md §4.7: "not deleted") and reports a
// structured failure at the given step.
func (o *Orchestrator) failAndOrphan(ctx context.Context, result domain.CampaignOrchestrationResult, step string, cause error) (domain.CampaignOrchestrationResult, error) {
	if result.Campaign != nil {
		domain.MarkCampaignOrphaned(result.Campaign)
		_ = o.store.SaveCampaign(ctx, result.Campaign)
	}
	if result.AdSet != nil {
		domain.MarkAdSetOrphaned(result.AdSet)
		_ = o.store.SaveAdSet(ctx, result.AdSet)
	}
	if result.Creative != nil {
		domain.MarkCreativeOrphaned(result.Creative)
		_ = o.store.SaveCreative(ctx, result.Creative)
	}
	if result.Ad != nil {
		domain.MarkAdOrphaned(result.Ad)
		_ = o.store.SaveAd(ctx, result.Ad)
	}
	result.FailedStep = step
	result.FailureReason = cause.Error()
	_ = o.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventAdsSagaOrphaned, "campaign", orphanEntityID(result), domain.SeverityError,
		map[string]any{"failed_step": step, "reason": cause.Error()},
	))
	return result, nil
}

func orphanEntityID(result domain.CampaignOrchestrationResult) string {
	if result.Campaign != nil {
		return result.Campaign.ID.String()
	}
	return ""
}

func (o *Orchestrator) emitCreated(ctx context.Context, entityType string, id interface{ String() string }) {
	_ = o.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventAdsEntityCreated, entityType, id.String(), domain.SeverityInfo, nil,
	))
}

// reconstructResult re-derives a CampaignOrchestrationResult for a repeated
// request id from already-persisted rows, so the saga's idempotency holds
// even across process restarts.
func (o *Orchestrator) reconstructResult(ctx context.Context, campaign *domain.Campaign) (domain.CampaignOrchestrationResult, error) {
	result := domain.CampaignOrchestrationResult{Campaign: campaign}
	if campaign.Status == domain.AdsEntityOrphanPendingCleanup {
		result.FailedStep = "unknown" // saga failed in a prior attempt; exact step isn't reconstructable from Campaign alone
		result.FailureReason = "campaign previously orphaned by a failed orchestration attempt"
	}
	adSet, err := o.store.GetAdSetByCampaign(ctx, campaign.ID)
	if err == nil {
		result.AdSet = adSet
	} else if err != domain.ErrNotFound {
		return domain.CampaignOrchestrationResult{}, err
	}
	if adSet != nil {
		ad, err := o.store.GetAdByAdSet(ctx, adSet.ID)
		if err == nil {
			result.Ad = ad
			creative, cErr := o.store.GetCreative(ctx, ad.CreativeID)
			if cErr == nil {
				result.Creative = creative
			}
		} else if err != domain.ErrNotFound {
			return domain.CampaignOrchestrationResult{}, err
		}
	}
	return result, nil
}
