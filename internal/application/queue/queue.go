// Package queue implements the Publication Queue (C3): a persistent
// FIFO-by-scheduled_for store of publication attempts, partitioned by
// (platform, account_id) (spec.md §4.3). The durable truth lives in
// domain.Storage; this package is the named, narrow contract every other
// component is supposed to go through rather than poking PublishLog status
// fields directly (spec.md §5: "one component owns a status range").
package queue

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

type Queue struct {
	store domain.PublishLogRepository
	ledger domain.LedgerRepository
}

func New(store domain.PublishLogRepository, ledger domain.LedgerRepository) *Queue {
	return &Queue{store: store, ledger: ledger}
}

// Enqueue persists a freshly created PublishLog (spec.md §4.3: "monotonic
// insert"). Callers (C1, C8) are expected to have already set scheduled_for.
func (q *Queue) Enqueue(ctx context.Context, log *domain.PublishLog) error {
	if err := q.store.SavePublishLog(ctx, log); err != nil {
		return err
	}
	log.MarkEventsCommitted()
	return nil
}

// FetchNextDue returns the smallest-scheduled_for log with status in
// {pending, retry} for the partition and leases it by transitioning to
// processing, per spec.md §4.3. Returns domain.ErrNotFound if none is due.
func (q *Queue) FetchNextDue(ctx context.Context, platform domain.Platform, accountID *uuid.UUID, now time.Time) (*domain.PublishLog, error) {
	log, err := q.store.FetchNextDue(ctx, platform, accountID, now)
	if err != nil {
		return nil, err
	}
	if err := log.BeginProcessing(); err != nil {
		return nil, err
	}
	if err := q.store.SavePublishLog(ctx, log); err != nil {
		return nil, err
	}
	log.MarkEventsCommitted()
	return log, nil
}

// MarkSuccess terminalizes a processing log as published.
func (q *Queue) MarkSuccess(ctx context.Context, log *domain.PublishLog, externalPostID, externalURL string) error {
	if err := log.MarkSuccess(externalPostID, externalURL); err != nil {
		return err
	}
	if err := q.store.SavePublishLog(ctx, log); err != nil {
		return err
	}
	log.MarkEventsCommitted()
	return q.ledger.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventPublishSuccessful, "publish_log", log.ID().String(), domain.SeverityInfo,
		map[string]any{"external_post_id": externalPostID},
	))
}

// MarkRetryOrFailed applies spec.md §4.4's mark_log_retry transition and
// writes the matching ledger event.
func (q *Queue) MarkRetryOrFailed(ctx context.Context, log *domain.PublishLog, reason string) (domain.PublishStatus, error) {
	status, err := log.MarkRetryOrFailed(reason)
	if err != nil {
		return "", err
	}
	if err := q.store.SavePublishLog(ctx, log); err != nil {
		return "", err
	}
	log.MarkEventsCommitted()

	eventType := domain.EventPublishWorkerLogRetry
	severity := domain.SeverityWarn
	if status == domain.PublishStatusFailed {
		eventType = domain.EventPublishWorkerLogFailed
		severity = domain.SeverityError
	}
	_ = q.ledger.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		eventType, "publish_log", log.ID().String(), severity,
		map[string]any{"reason": reason, "retry_count": log.RetryCount()},
	))
	return status, nil
}

// Cancel moves a non-terminal log to cancelled (admin action via C12's
// operator surface).
func (q *Queue) Cancel(ctx context.Context, log *domain.PublishLog) error {
	if err := log.Cancel(); err != nil {
		return err
	}
	if err := q.store.SavePublishLog(ctx, log); err != nil {
		return err
	}
	log.MarkEventsCommitted()
	return nil
}
