// Package reconciler implements the Reconciliator (C6): a periodic sweep
// that resolves PublishLogs stranded in processing or retry because the
// worker's own commit of success never landed, using webhook evidence (or
// its absence past a timeout) as the source of truth (spec.md §4.6).
package reconciler

import (
	"context"
	"log/slog"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// Config holds the reconciler's three tunables: how often the sweep runs
// (SweepInterval), how stale a log must be before it is eligible at all
// (ReconcileWindow), and how long past that it may stay unresolved before
// it is failed on timeout (TimeoutAfter).
type Config struct {
	SweepInterval   time.Duration
	ReconcileWindow time.Duration
	TimeoutAfter    time.Duration
}

func DefaultConfig() Config {
	return Config{
		SweepInterval:   10 * time.Minute,
		ReconcileWindow: 10 * time.Minute,
		TimeoutAfter:    30 * time.Minute,
	}
}

// Reconciler is the Reconciliator (C6).
type Reconciler struct {
	store  domain.Storage
	cfg    Config
	log    *slog.Logger
	isStopped func() bool
}

func New(store domain.Storage, cfg Config, log *slog.Logger, isStopped func() bool) *Reconciler {
	return &Reconciler{store: store, cfg: cfg, log: log, isStopped: isStopped}
}

// Sweep implements spec.md §4.6's decision table for every PublishLog with
// status in {processing, retry} whose updated_at predates the reconcile
// window: webhook evidence present -> success; otherwise, past the timeout
// threshold -> failed; otherwise left untouched for the next sweep.
func (r *Reconciler) Sweep(ctx context.Context) (reconciled, skipped int, err error) {
	now := time.Now().UTC()
	cutoff := now.Add(-r.cfg.ReconcileWindow)

	candidates, err := r.store.ListByStatusBefore(ctx, []domain.PublishStatus{
		domain.PublishStatusProcessing, domain.PublishStatusRetry,
	}, cutoff)
	if err != nil {
		return 0, 0, err
	}

	for _, log := range candidates {
		outcome, decErr := r.reconcileOne(ctx, log, now)
		if decErr != nil {
			r.log.Error("reconcile failed", "publish_log_id", log.ID().String(), "error", decErr)
			continue
		}
		if outcome == "" {
			skipped++
			continue
		}
		reconciled++
	}
	return reconciled, skipped, nil
}

// reconcileOne applies the decision table to a single log and returns the
// outcome reason ("webhook_confirmed", "webhook_timeout", or "" for skip).
func (r *Reconciler) reconcileOne(ctx context.Context, log *domain.PublishLog, now time.Time) (string, error) {
	meta := log.ExtraMetadata()

	if webhookReceived, _ := meta["webhook_received"].(bool); webhookReceived {
		externalPostID, _ := meta["webhook_external_post_id"].(string)
		if err := log.ReconcileSuccess(externalPostID); err != nil {
			return "", err
		}
		if err := r.persist(ctx, log); err != nil {
			return "", err
		}
		_ = r.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventPublishReconciled, "publish_log", log.ID().String(), domain.SeverityInfo,
			map[string]any{"outcome": "success", "reason": "webhook_confirmed"},
		))
		return "webhook_confirmed", nil
	}

	if now.Sub(log.UpdatedAt()) > r.cfg.TimeoutAfter {
		if err := log.ReconcileTimeout(); err != nil {
			return "", err
		}
		if err := r.persist(ctx, log); err != nil {
			return "", err
		}
		_ = r.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventPublishReconciled, "publish_log", log.ID().String(), domain.SeverityWarn,
			map[string]any{"outcome": "failed", "reason": "webhook_timeout"},
		))
		return "webhook_timeout", nil
	}

	return "", nil
}

func (r *Reconciler) persist(ctx context.Context, log *domain.PublishLog) error {
	if err := r.store.SavePublishLog(ctx, log); err != nil {
		return err
	}
	log.MarkEventsCommitted()
	return nil
}

// Run ticks Sweep on interval until ctx is cancelled, the standard
// component-goroutine shape used by every other core loop (spec.md §5).
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if r.isStopped != nil && r.isStopped() {
				continue
			}
			reconciled, skipped, err := r.Sweep(ctx)
			if err != nil {
				r.log.Error("reconcile sweep failed", "error", err)
				continue
			}
			if reconciled > 0 {
				r.log.Info("reconcile sweep complete", "reconciled", reconciled, "skipped", skipped)
			}
		}
	}
}
