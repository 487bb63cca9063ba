package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// PublishLog is the central state record of one publication attempt
// (spec.md §3). It is an event-sourced aggregate: every transition raises a
// PublishEvent, and GetUncommittedEvents/MarkEventsCommitted let the
// repository persist exactly the new facts on each save, the same pattern
// the teacher's Execution aggregate uses for workflow runs.
type PublishLog struct {
	mu sync.RWMutex

	id              uuid.UUID
	clipID          uuid.UUID
	platform        Platform
	socialAccountID *uuid.UUID

	status        PublishStatus
	scheduledFor  *time.Time
	requestedAt   time.Time
	publishedAt   *time.Time
	retryCount    int
	maxRetries    int
	lastRetryAt   *time.Time
	externalPostID *string
	externalURL    *string
	errorMessage   *string
	scheduledBy    ScheduledBy
	extraMetadata  map[string]any
	updatedAt      time.Time

	version           int64
	uncommittedEvents []PublishEvent
}

// NewPublishLog creates a freshly scheduled PublishLog. priority is stashed
// in extra_metadata["priority"] so conflict resolution (C1) can compare it
// against other pending logs on the same (platform, account) partition.
func NewPublishLog(clipID uuid.UUID, platform Platform, accountID *uuid.UUID, scheduledFor time.Time, scheduledBy ScheduledBy, priority float64) (*PublishLog, error) {
	if !platform.IsValid() {
		return nil, domainerrors.NewValidationError("platform", fmt.Sprintf("unknown platform %q", platform))
	}

	now := time.Now().UTC()
	p := &PublishLog{
		id:            uuid.New(),
		clipID:        clipID,
		platform:      platform,
		status:        PublishStatusScheduled,
		scheduledFor:  &scheduledFor,
		requestedAt:   now,
		maxRetries:    3,
		scheduledBy:   scheduledBy,
		extraMetadata: map[string]any{"priority": priority},
		updatedAt:     now,
	}
	if accountID != nil {
		id := *accountID
		p.socialAccountID = &id
	}

	p.raise(newPublishEvent(p.id, p.version+1, PublishEventScheduled, map[string]any{
		"clip_id":       clipID,
		"platform":      string(platform),
		"scheduled_for": scheduledFor,
		"scheduled_by":  string(scheduledBy),
		"priority":      priority,
	}))
	return p, nil
}

// ReconstructPublishLog rebuilds a PublishLog from its persisted column
// state (used by the storage layer's Get/List paths, which read the
// materialized row rather than replaying the full event history on every
// access). RebuildPublishLogFromEvents below replays the full event history
// instead; nothing in this repository calls it.
func ReconstructPublishLog(
	id, clipID uuid.UUID,
	platform Platform,
	accountID *uuid.UUID,
	status PublishStatus,
	scheduledFor *time.Time,
	requestedAt time.Time,
	publishedAt *time.Time,
	retryCount, maxRetries int,
	lastRetryAt *time.Time,
	externalPostID, externalURL, errorMessage *string,
	scheduledBy ScheduledBy,
	extraMetadata map[string]any,
	updatedAt time.Time,
	version int64,
) *PublishLog {
	if extraMetadata == nil {
		extraMetadata = map[string]any{}
	}
	return &PublishLog{
		id:              id,
		clipID:          clipID,
		platform:        platform,
		socialAccountID: accountID,
		status:          status,
		scheduledFor:    scheduledFor,
		requestedAt:     requestedAt,
		publishedAt:     publishedAt,
		retryCount:      retryCount,
		maxRetries:      maxRetries,
		lastRetryAt:     lastRetryAt,
		externalPostID:  externalPostID,
		externalURL:     externalURL,
		errorMessage:    errorMessage,
		scheduledBy:     scheduledBy,
		extraMetadata:   extraMetadata,
		updatedAt:       updatedAt,
		version:         version,
	}
}

// Accessors

func (p *PublishLog) ID() uuid.UUID     { p.mu.RLock(); defer p.mu.RUnlock(); return p.id }
func (p *PublishLog) ClipID() uuid.UUID { p.mu.RLock(); defer p.mu.RUnlock(); return p.clipID }
func (p *PublishLog) Platform() Platform {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.platform
}
func (p *PublishLog) SocialAccountID() *uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.socialAccountID
}
func (p *PublishLog) Status() PublishStatus { p.mu.RLock(); defer p.mu.RUnlock(); return p.status }
func (p *PublishLog) ScheduledFor() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scheduledFor
}
func (p *PublishLog) RequestedAt() time.Time { p.mu.RLock(); defer p.mu.RUnlock(); return p.requestedAt }
func (p *PublishLog) PublishedAt() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.publishedAt
}
func (p *PublishLog) RetryCount() int { p.mu.RLock(); defer p.mu.RUnlock(); return p.retryCount }
func (p *PublishLog) MaxRetries() int { p.mu.RLock(); defer p.mu.RUnlock(); return p.maxRetries }
func (p *PublishLog) LastRetryAt() *time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRetryAt
}
func (p *PublishLog) ExternalPostID() *string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.externalPostID
}
func (p *PublishLog) ExternalURL() *string { p.mu.RLock(); defer p.mu.RUnlock(); return p.externalURL }
func (p *PublishLog) ErrorMessage() *string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.errorMessage
}
func (p *PublishLog) ScheduledBy() ScheduledBy { p.mu.RLock(); defer p.mu.RUnlock(); return p.scheduledBy }
func (p *PublishLog) UpdatedAt() time.Time     { p.mu.RLock(); defer p.mu.RUnlock(); return p.updatedAt }
func (p *PublishLog) Version() int64           { p.mu.RLock(); defer p.mu.RUnlock(); return p.version }

// ExtraMetadata returns a shallow copy so callers cannot mutate aggregate
// state without going through a command.
func (p *PublishLog) ExtraMetadata() map[string]any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]any, len(p.extraMetadata))
	for k, v := range p.extraMetadata {
		out[k] = v
	}
	return out
}

// Priority returns extra_metadata["priority"], defaulting to 0 per the
// conflict-resolution rule in spec.md §4.1 ("absent ⇒ treat as 0").
func (p *PublishLog) Priority() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if v, ok := p.extraMetadata["priority"]; ok {
		if f, ok := toFloat(v); ok {
			return f
		}
	}
	return 0
}

// WebhookReceived reports extra_metadata["webhook_received"], consulted by
// both the reconciliator (C6) and the worker.
func (p *PublishLog) WebhookReceived() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, _ := p.extraMetadata["webhook_received"].(bool)
	return v
}

func (p *PublishLog) GetUncommittedEvents() []PublishEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishEvent, len(p.uncommittedEvents))
	copy(out, p.uncommittedEvents)
	return out
}

func (p *PublishLog) MarkEventsCommitted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.uncommittedEvents = nil
}

func (p *PublishLog) raise(e PublishEvent) {
	p.uncommittedEvents = append(p.uncommittedEvents, e)
	p.apply(e)
}

func (p *PublishLog) apply(e PublishEvent) {
	p.version = e.SequenceNumber
	p.updatedAt = e.Timestamp
	switch e.Type {
	case PublishEventScheduled:
		p.status = PublishStatusScheduled
	case PublishEventPromoted:
		p.status = PublishStatusPending
	case PublishEventProcessing:
		p.status = PublishStatusProcessing
	case PublishEventSucceeded:
		p.status = PublishStatusSuccess
		if v, ok := e.Data["external_post_id"].(string); ok {
			p.externalPostID = &v
		}
		if v, ok := e.Data["external_url"].(string); ok {
			p.externalURL = &v
		}
		t := e.Timestamp
		p.publishedAt = &t
	case PublishEventRetried:
		p.status = PublishStatusRetry
		p.retryCount++
		t := e.Timestamp
		p.lastRetryAt = &t
		if msg, ok := e.Data["error_message"].(string); ok {
			p.errorMessage = &msg
		}
	case PublishEventFailed:
		p.status = PublishStatusFailed
		if msg, ok := e.Data["error_message"].(string); ok {
			p.errorMessage = &msg
		}
	case PublishEventCancelled:
		p.status = PublishStatusCancelled
	case PublishEventWebhooked:
		for k, v := range e.Data {
			p.extraMetadata[k] = v
		}
	case PublishEventRescheduled:
		if t, ok := e.Data["scheduled_for"].(time.Time); ok {
			p.scheduledFor = &t
		}
	}
}

// RebuildPublishLogFromEvents replays a PublishLog's full event history into
// a new aggregate, for checking that every transition happened in order
// (spec.md §8). No reconciler path or test in this repository calls it.
func RebuildPublishLogFromEvents(id, clipID uuid.UUID, platform Platform, events []PublishEvent) *PublishLog {
	p := &PublishLog{
		id:            id,
		clipID:        clipID,
		platform:      platform,
		maxRetries:    3,
		extraMetadata: map[string]any{},
	}
	for _, e := range events {
		p.apply(e)
	}
	p.uncommittedEvents = nil
	return p
}

// Commands. Each validates the current status before raising an event, so
// an illegal transition request never silently mutates state (spec.md §8:
// "no backward transitions").

// Promote moves scheduled -> pending when the scheduler tick determines
// scheduled_for <= now + tick_slack (spec.md §4.3).
func (p *PublishLog) Promote() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusScheduled {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot promote from status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventPromoted, nil))
	return nil
}

// BeginProcessing leases the log for a worker attempt: pending|retry -> processing.
func (p *PublishLog) BeginProcessing() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusPending && p.status != PublishStatusRetry {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot begin processing from status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventProcessing, nil))
	return nil
}

// MarkSuccess terminalizes the log as published. Enforces invariant I1:
// external_post_id and published_at are always set together with success.
func (p *PublishLog) MarkSuccess(externalPostID, externalURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusProcessing {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot succeed from status %s", p.status))
	}
	if externalPostID == "" {
		return domainerrors.NewInvariantError("I1", "success requires a non-empty external_post_id")
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventSucceeded, map[string]any{
		"external_post_id": externalPostID,
		"external_url":     externalURL,
	}))
	return nil
}

// MarkRetryOrFailed implements spec.md §4.4's mark_log_retry: increments
// retry_count and moves to retry if budget remains (I2), else terminalizes
// as failed (I3). Returns the resulting status so the worker can decide its
// backoff/poll behavior without a second state read.
func (p *PublishLog) MarkRetryOrFailed(errorMessage string) (PublishStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusProcessing {
		return "", domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot retry/fail from status %s", p.status))
	}
	if p.retryCount < p.maxRetries {
		p.raise(newPublishEvent(p.id, p.version+1, PublishEventRetried, map[string]any{
			"error_message": errorMessage,
		}))
		return PublishStatusRetry, nil
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventFailed, map[string]any{
		"error_message": errorMessage,
		"reason":        "max_retries_exhausted",
	}))
	return PublishStatusFailed, nil
}

// MarkFatalFailure terminalizes the log immediately without consuming a
// retry slot, for fatal provider errors (spec.md §4.4, §7).
func (p *PublishLog) MarkFatalFailure(errorMessage string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.IsTerminal() {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("already terminal at status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventFailed, map[string]any{
		"error_message": errorMessage,
		"reason":        "fatal",
	}))
	return nil
}

// ReconcileSuccess is the only path besides the worker that may terminalize
// a log as success, used when the webhook evidence arrived but the worker
// never got to observe it (spec.md §4.6).
func (p *PublishLog) ReconcileSuccess(externalPostID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusProcessing && p.status != PublishStatusRetry {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot reconcile-succeed from status %s", p.status))
	}
	if externalPostID == "" {
		externalPostID, _ = p.extraMetadata["webhook_external_post_id"].(string)
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventSucceeded, map[string]any{
		"external_post_id": externalPostID,
		"reason":           "webhook_confirmed",
	}))
	return nil
}

// ReconcileTimeout terminalizes a stuck log as failed on timeout evidence
// rather than retry-budget exhaustion (spec.md §4.6).
func (p *PublishLog) ReconcileTimeout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusProcessing && p.status != PublishStatusRetry {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot reconcile-timeout from status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventFailed, map[string]any{
		"reason": "webhook_timeout",
	}))
	return nil
}

// Cancel moves any non-terminal log to cancelled (admin action).
func (p *PublishLog) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.IsTerminal() {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot cancel terminal status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventCancelled, nil))
	return nil
}

// MergeWebhook merges platform callback evidence into extra_metadata
// without forcing a status change (spec.md §4.5). Replaying the same
// payload is idempotent: only the timestamp is overwritten.
func (p *PublishLog) MergeWebhook(externalPostID, status, mediaURL string, timestamp time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventWebhooked, map[string]any{
		"webhook_received":         true,
		"webhook_timestamp":        timestamp,
		"webhook_status":           status,
		"media_url":                mediaURL,
		"webhook_external_post_id": externalPostID,
	}))
}

// Reschedule shifts scheduled_for during conflict resolution (spec.md §4.1).
// Only valid while the log has not yet begun processing.
func (p *PublishLog) Reschedule(newSlot time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status != PublishStatusScheduled && p.status != PublishStatusPending {
		return domainerrors.NewStateError(p.id.String(), fmt.Sprintf("cannot reschedule from status %s", p.status))
	}
	p.raise(newPublishEvent(p.id, p.version+1, PublishEventRescheduled, map[string]any{
		"scheduled_for": newSlot,
	}))
	return nil
}

// SetDeferred marks extra_metadata["deferred"]=true when the scheduler
// writes a log under backpressure (spec.md §5).
func (p *PublishLog) SetDeferred() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extraMetadata["deferred"] = true
}

// SetABTestID tags extra_metadata["ab_test_id"] for winner publications.
func (p *PublishLog) SetABTestID(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extraMetadata["ab_test_id"] = id.String()
}

// RecordProvisionalExternalPost tags extra_metadata with the post ID a
// provider call returned, before the worker has committed MarkSuccess. If
// the process dies between the provider call and that commit, the log is
// still findable by external_post_id for webhook merging and eligible for
// C6's reconciliation sweep instead of being stranded with no correlation
// key at all (spec.md §4.5/§4.6).
func (p *PublishLog) RecordProvisionalExternalPost(externalPostID, externalURL string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extraMetadata["pending_external_post_id"] = externalPostID
	p.extraMetadata["pending_external_url"] = externalURL
}
