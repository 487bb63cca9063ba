package domain

import (
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// OptimizationAction is a proposed or executed mutation against an ads
// entity, produced by the Optimization Loop (C9) on its hourly tick
// (spec.md §3, §4.9).
type OptimizationAction struct {
	ID               uuid.UUID
	TargetLevel      TargetLevel
	TargetID         uuid.UUID
	ActionType       OptimizationActionType
	AmountPct        float64
	AmountAbsolute   *int64
	ReasonCode       string
	ROASValue        float64
	Confidence       float64
	Status           ActionStatus
	ReallocationPlan map[string]int64 // target_id string -> new budget cents, only for ActionReallocate
	CreatedAt        time.Time
	ApprovedAt       *time.Time
	ExecutedAt       *time.Time
	ExpiresAt        time.Time
	LedgerEventID    *uuid.UUID

	// GuardSnapshot records the guard-rail stack's outcome at decision time:
	// each evaluated guard's reason code and pass/fail ("guard_results"),
	// whether auto thresholds applied ("auto"), and when it ran
	// ("evaluated_at"). It does not record the input values the guards saw
	// (roas, spend, impressions, campaign age, cooldown, system status), so
	// the guard stack cannot be re-run from the snapshot alone.
	GuardSnapshot map[string]any

	// ExecutionResult is populated after Execute{,d,Failed} with whatever the
	// provider returned (new budget, pause confirmation, etc.).
	ExecutionResult map[string]any
}

// NewOptimizationAction constructs a suggested action with the default 48h
// TTL from spec.md §3.
func NewOptimizationAction(level TargetLevel, targetID uuid.UUID, actionType OptimizationActionType, amountPct float64, reasonCode string, roas, confidence float64, snapshot map[string]any) *OptimizationAction {
	now := time.Now().UTC()
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	return &OptimizationAction{
		ID:            uuid.New(),
		TargetLevel:   level,
		TargetID:      targetID,
		ActionType:    actionType,
		AmountPct:     amountPct,
		ReasonCode:    reasonCode,
		ROASValue:     roas,
		Confidence:    confidence,
		Status:        ActionStatusSuggested,
		CreatedAt:     now,
		ExpiresAt:     now.Add(48 * time.Hour),
		GuardSnapshot: snapshot,
	}
}

// IsExpired reports whether the action lapsed without leaving `suggested`.
func (a *OptimizationAction) IsExpired(now time.Time) bool {
	return a.Status == ActionStatusSuggested && now.After(a.ExpiresAt)
}

// Approve moves a suggested action to pending (human/API approval).
func (a *OptimizationAction) Approve() error {
	if a.Status != ActionStatusSuggested {
		return domainerrors.NewStateError(a.ID.String(), "only a suggested action can be approved")
	}
	now := time.Now().UTC()
	a.ApprovedAt = &now
	a.Status = ActionStatusPending
	return nil
}

// Cancel moves any non-terminal action to cancelled.
func (a *OptimizationAction) Cancel() error {
	if a.Status.IsTerminal() {
		return domainerrors.NewStateError(a.ID.String(), "action already terminal")
	}
	a.Status = ActionStatusCancelled
	return nil
}

// BeginExecuting leases the action for the executor.
func (a *OptimizationAction) BeginExecuting() error {
	if a.Status != ActionStatusPending && a.Status != ActionStatusSuggested {
		return domainerrors.NewStateError(a.ID.String(), "cannot execute from current status")
	}
	a.Status = ActionStatusExecuting
	return nil
}

// MarkExecuted terminalizes as executed, enforcing executed_at is always set
// alongside the status (spec.md §3 invariant).
func (a *OptimizationAction) MarkExecuted(result map[string]any) error {
	if a.Status != ActionStatusExecuting {
		return domainerrors.NewStateError(a.ID.String(), "cannot mark executed from current status")
	}
	now := time.Now().UTC()
	a.ExecutedAt = &now
	a.Status = ActionStatusExecuted
	a.ExecutionResult = result
	return nil
}

// MarkFailed terminalizes as failed with the provider/guard error recorded.
func (a *OptimizationAction) MarkFailed(reason string) error {
	if a.Status.IsTerminal() {
		return domainerrors.NewStateError(a.ID.String(), "action already terminal")
	}
	a.Status = ActionStatusFailed
	if a.ExecutionResult == nil {
		a.ExecutionResult = map[string]any{}
	}
	a.ExecutionResult["failure_reason"] = reason
	return nil
}
