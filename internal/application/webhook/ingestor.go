// Package webhook implements the Webhook Ingestor (C5): it accepts
// platform callbacks confirming external post IDs and merges them into the
// owning PublishLog without forcing a status transition (spec.md §4.5).
package webhook

import (
	"context"
	"time"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// Payload is the minimal platform-agnostic shape spec.md §6 requires;
// platform-specific extra fields pass through into extra_metadata.
type Payload struct {
	ExternalPostID string
	Status         string
	MediaURL       string
	Timestamp      time.Time
	Extra          map[string]any
}

type Ingestor struct {
	store  domain.PublishLogRepository
	ledger domain.LedgerRepository
}

func New(store domain.PublishLogRepository, ledger domain.LedgerRepository) *Ingestor {
	return &Ingestor{store: store, ledger: ledger}
}

// Ingest applies spec.md §4.5: locate the log by external_post_id, merge
// webhook evidence into extra_metadata, and never force a status change.
// Replaying the same payload is idempotent (timestamp overwrite only).
func (i *Ingestor) Ingest(ctx context.Context, p Payload) (*domain.PublishLog, error) {
	if p.ExternalPostID == "" {
		return nil, domainerrors.NewValidationError("external_post_id", "webhook payload missing external_post_id")
	}

	log, err := i.store.GetPublishLogByExternalPostID(ctx, p.ExternalPostID)
	if err != nil {
		if err == domain.ErrNotFound {
			return nil, domainerrors.NewValidationError("external_post_id", "no publish log matches external_post_id")
		}
		return nil, err
	}

	log.MergeWebhook(p.ExternalPostID, p.Status, p.MediaURL, p.Timestamp)
	if err := i.store.SavePublishLog(ctx, log); err != nil {
		return nil, err
	}
	log.MarkEventsCommitted()

	_ = i.ledger.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventPublishWebhookReceived, "publish_log", log.ID().String(), domain.SeverityInfo,
		map[string]any{"external_post_id": p.ExternalPostID, "status": p.Status},
	))
	return log, nil
}
