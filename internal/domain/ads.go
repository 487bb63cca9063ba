package domain

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// Campaign is the top level of the Campaign→AdSet→Ad→Creative saga
// (spec.md §3, §4.7).
type Campaign struct {
	ID               uuid.UUID
	RequestID        uuid.UUID // orchestrate_campaign idempotency key (spec.md §4.7)
	ExternalID       *string
	Name             string
	DailyBudgetCents int64
	Status           AdsEntityStatus
	CreatedAt        time.Time
}

// AdSet targets and schedules spend under a Campaign.
type AdSet struct {
	ID            uuid.UUID
	ExternalID    *string
	CampaignID    uuid.UUID
	Targeting     map[string]any
	BudgetCents   int64
	ScheduleStart time.Time
	ScheduleEnd   *time.Time
	Status        AdsEntityStatus
	CreatedAt     time.Time
}

// Creative is the uploaded media+copy asset derived from a Clip.
type Creative struct {
	ID         uuid.UUID
	ExternalID *string
	ClipID     uuid.UUID
	Caption    string
	Hashtags   []string
	Status     AdsEntityStatus
	CreatedAt  time.Time
}

// Ad links an AdSet to a Creative. BudgetCents is an ad-level budget share
// within its parent AdSet, the unit the Optimization Loop (C9) scales,
// pauses, and reallocates (spec.md §4.9) since ads, not ad sets, are what
// it classifies per-tick.
type Ad struct {
	ID          uuid.UUID
	ExternalID  *string
	AdSetID     uuid.UUID
	CreativeID  uuid.UUID
	BudgetCents int64
	Status      AdsEntityStatus
	CreatedAt   time.Time
}

// NewCampaign validates the fatal-on-construction rules from spec.md §4.7:
// negative daily_budget and empty name are rejected independent of any
// provider-side validation.
func NewCampaign(name string, dailyBudgetCents int64) (*Campaign, error) {
	if name == "" {
		return nil, domainerrors.NewValidationError("name", "campaign name must not be empty")
	}
	if dailyBudgetCents < 0 {
		return nil, domainerrors.NewValidationError("daily_budget_cents", "daily budget must not be negative")
	}
	return &Campaign{
		ID:               uuid.New(),
		Name:             name,
		DailyBudgetCents: dailyBudgetCents,
		Status:           AdsEntityActive,
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// NewCampaignForRequest is NewCampaign with the saga's idempotency key
// attached, so a retried orchestrate_campaign call can be recognized as a
// repeat rather than creating a duplicate Campaign.
func NewCampaignForRequest(requestID uuid.UUID, name string, dailyBudgetCents int64) (*Campaign, error) {
	c, err := NewCampaign(name, dailyBudgetCents)
	if err != nil {
		return nil, err
	}
	c.RequestID = requestID
	return c, nil
}

// MarkCampaignOrphaned, MarkAdSetOrphaned, MarkCreativeOrphaned and
// MarkAdOrphaned flag an entity as persisted-but-abandoned after a later
// saga step failed (spec.md §4.7: "marked orphaned, not silently deleted").
func MarkCampaignOrphaned(c *Campaign) { c.Status = AdsEntityOrphanPendingCleanup }
func MarkAdSetOrphaned(a *AdSet)       { a.Status = AdsEntityOrphanPendingCleanup }
func MarkCreativeOrphaned(c *Creative) { c.Status = AdsEntityOrphanPendingCleanup }
func MarkAdOrphaned(a *Ad)             { a.Status = AdsEntityOrphanPendingCleanup }

// CampaignOrchestrationRequest is the input to C7's orchestrate_campaign saga.
type CampaignOrchestrationRequest struct {
	RequestID        uuid.UUID // idempotency key: repeating the same id must not duplicate entities
	Name             string
	DailyBudgetCents int64
	Targeting        map[string]any
	AdSetBudgetCents int64
	ScheduleStart    time.Time
	ScheduleEnd      *time.Time
	ClipID           uuid.UUID
	Caption          string // optional; LLM-drafted if empty
	Hashtags         []string
}

// CampaignOrchestrationResult enumerates which saga steps completed, so a
// partial failure can be reported structurally rather than via a bare error
// string (spec.md §4.7: "reports a structured failure enumerating which
// steps succeeded").
type CampaignOrchestrationResult struct {
	Campaign       *Campaign
	AdSet          *AdSet
	Creative       *Creative
	Ad             *Ad
	FailedStep     string // "" on full success
	FailureReason  string
}

func (r CampaignOrchestrationResult) Succeeded() bool { return r.FailedStep == "" }
