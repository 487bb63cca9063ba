package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// Request is the Auto-Scheduler's input (spec.md §4.1).
type Request struct {
	ClipID          uuid.UUID
	Platform        domain.Platform
	AccountID       *uuid.UUID
	ForceSlot       *time.Time
	ScheduledBy     domain.ScheduledBy
	ClipAvailableAt *time.Time // defaults to now (age=0) if nil
}

// SaturationLimits configures backpressure (spec.md §5): when a partition's
// forecast utilization crosses HighWaterMark, new writes are still accepted
// but flagged deferred=true.
type SaturationLimits struct {
	HighWaterMark float64
}

func DefaultSaturationLimits() SaturationLimits {
	return SaturationLimits{HighWaterMark: 0.9}
}

// Scheduler is the Auto-Scheduler / APIL (C1).
type Scheduler struct {
	store      domain.Storage
	oracle     *Oracle
	formulas   *FormulaEvaluator
	formula    string
	tickSlack  time.Duration
	saturation SaturationLimits
	isStopped  func() bool
}

func New(store domain.Storage, oracle *Oracle, tickSlack time.Duration, saturation SaturationLimits, isStopped func() bool) *Scheduler {
	return &Scheduler{
		store:      store,
		oracle:     oracle,
		formulas:   NewFormulaEvaluator(),
		formula:    DefaultPriorityFormula,
		tickSlack:  tickSlack,
		saturation: saturation,
		isStopped:  isStopped,
	}
}

// Schedule implements spec.md §4.1 end to end: priority, slot selection,
// conflict resolution, and PublishLog creation.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (*domain.PublishLog, error) {
	if s.isStopped != nil && s.isStopped() {
		return nil, domainerrors.NewGuardRailError("emergency_stop", "scheduler is halted by master control")
	}

	window, ok := s.oracle.Window(req.Platform)
	if !ok {
		return nil, domainerrors.NewValidationError("platform", "platform not configured")
	}

	if req.AccountID != nil {
		if _, err := s.store.GetSocialAccount(ctx, *req.AccountID); err != nil {
			if err == domain.ErrNotFound {
				return nil, domainerrors.NewValidationError("account_id", "account not found")
			}
			return nil, err
		}
	}

	clip, err := s.store.GetClip(ctx, req.ClipID)
	if err != nil {
		return nil, err
	}
	associations, err := s.store.GetCampaignAssociations(ctx, req.ClipID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	available := now
	if req.ClipAvailableAt != nil {
		available = *req.ClipAvailableAt
	}
	age := now.Sub(available)

	priority, err := s.formulas.Evaluate(s.formula, clip, associations, req.Platform, age)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.ListNonTerminalByPartition(ctx, req.Platform, req.AccountID)
	if err != nil {
		return nil, err
	}

	var slot time.Time
	if req.ForceSlot != nil {
		slot = *req.ForceSlot
	} else {
		forecast, err := s.oracle.Forecast(req.Platform, accountIDKey(req.AccountID), existing, now)
		if err != nil {
			return nil, err
		}
		slot = forecast.NextAvailableSlot
	}

	outcome, err := Resolve(s.oracle, window, slot, priority, existing, now)
	if err != nil {
		return nil, err
	}

	scheduledBy := req.ScheduledBy
	if scheduledBy == "" {
		scheduledBy = domain.ScheduledByAutoIntelligence
	}
	log, err := domain.NewPublishLog(req.ClipID, req.Platform, req.AccountID, outcome.CandidateSlot, scheduledBy, priority)
	if err != nil {
		return nil, err
	}

	forecastAfter, err := s.oracle.Forecast(req.Platform, accountIDKey(req.AccountID), existing, now)
	if err == nil && forecastAfter.Utilization >= s.saturation.HighWaterMark {
		log.SetDeferred()
	}

	if err := s.applyShifts(ctx, outcome); err != nil {
		return nil, err
	}

	if err := s.store.SavePublishLog(ctx, log); err != nil {
		return nil, err
	}
	log.MarkEventsCommitted()

	if outcome.DetectedAny {
		_ = s.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventScheduleConflictDetected, "publish_log", log.ID().String(), domain.SeverityInfo,
			map[string]any{"platform": string(req.Platform), "candidate_priority": priority},
		))
		if len(outcome.Shifted) > 0 {
			_ = s.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
				domain.EventScheduleConflictResolved, "publish_log", log.ID().String(), domain.SeverityInfo,
				map[string]any{"shifted_count": len(outcome.Shifted)},
			))
		}
	}
	if log.ExtraMetadata()["deferred"] == true {
		_ = s.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventScheduleDeferred, "publish_log", log.ID().String(), domain.SeverityWarn, nil,
		))
	}

	return log, nil
}

func (s *Scheduler) applyShifts(ctx context.Context, outcome ConflictOutcome) error {
	for _, shift := range outcome.Shifted {
		if err := shift.Log.Reschedule(shift.NewSlot); err != nil {
			return err
		}
		if err := s.store.SavePublishLog(ctx, shift.Log); err != nil {
			return err
		}
		shift.Log.MarkEventsCommitted()
	}
	return nil
}

func accountIDKey(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

// PromoteTick moves every scheduled log whose scheduled_for has come due
// (within tick_slack) to pending, per spec.md §4.3: "the scheduler tick
// promotes scheduled -> pending when scheduled_for <= now + tick_slack."
func (s *Scheduler) PromoteTick(ctx context.Context) (int, error) {
	due, err := s.store.ListScheduledDue(ctx, time.Now().UTC().Add(s.tickSlack))
	if err != nil {
		return 0, err
	}
	promoted := 0
	for _, log := range due {
		if err := log.Promote(); err != nil {
			continue
		}
		if err := s.store.SavePublishLog(ctx, log); err != nil {
			return promoted, err
		}
		log.MarkEventsCommitted()
		promoted++
	}
	return promoted, nil
}

// Run ticks PromoteTick on interval until ctx is cancelled, the standard
// component-goroutine shape of spec.md §5.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.isStopped != nil && s.isStopped() {
				continue
			}
			_, _ = s.PromoteTick(ctx)
		}
	}
}
