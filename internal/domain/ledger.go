package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// LedgerEvent is the append-only audit record every decision-carrying
// transition in §§4.1–4.10 writes exactly one of (spec.md §3, C11).
// Payload is msgpack-encoded rather than JSON: the ledger is write-heavy and
// never queried by payload shape, so a compact binary encoding is the right
// default for a table that never gets deleted from.
type LedgerEvent struct {
	ID         uuid.UUID
	EventType  string
	EntityType string
	EntityID   string
	Severity   Severity
	Payload    map[string]any
	CreatedAt  time.Time
}

// NewLedgerEvent constructs a LedgerEvent with a fresh ID and the current
// timestamp. Components never hand-assemble LedgerEvent directly so that
// every append goes through the same shape.
func NewLedgerEvent(eventType, entityType, entityID string, severity Severity, payload map[string]any) LedgerEvent {
	if payload == nil {
		payload = map[string]any{}
	}
	return LedgerEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		Severity:   severity,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}
}

// EncodePayload msgpack-encodes the event payload for storage as bytea.
func (e LedgerEvent) EncodePayload() ([]byte, error) {
	return msgpack.Marshal(e.Payload)
}

// DecodeLedgerPayload is the inverse of EncodePayload, used when
// reconstructing a LedgerEvent from a storage row.
func DecodeLedgerPayload(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var payload map[string]any
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Ledger event type constants. Names match the §8/§4 scenario vocabulary
// verbatim so log greps and test assertions line up with the spec text.
const (
	EventScheduleConflictDetected = "schedule_conflict_detected"
	EventScheduleConflictResolved = "schedule_conflict_resolved"
	EventScheduleDeferred         = "schedule_deferred"
	EventPublishSuccessful        = "publish_successful"
	EventPublishWorkerLogRetry    = "publish_worker_log_retry"
	EventPublishWorkerLogFailed   = "publish_worker_log_failed"
	EventPublishWebhookReceived   = "publish_webhook_received"
	EventPublishReconciled        = "publish_reconciled"
	EventAdsEntityCreated         = "ads_entity_created"
	EventAdsSagaOrphaned          = "ads_saga_orphaned"
	EventAdsSagaCompleted         = "ads_saga_completed"
	EventABTestNeedsMoreData      = "ab_test_needs_more_data"
	EventABTestWinnerSelected     = "ab_test_winner_selected"
	EventABTestWinnerPublished    = "ab_test_winner_published"
	EventOptimizationSuggested    = "optimization_suggested"
	EventOptimizationGuardRefused = "optimization_guard_refused"
	EventOptimizationExecuted     = "optimization_executed"
	EventOptimizationFailed       = "optimization_failed"
	EventIsolationViolation       = "isolation_violation"
	EventIdentityAssigned         = "identity_assigned"
	EventInvariantViolation       = "invariant_violation"
	EventComponentStatusChanged   = "component_status_changed"
	EventEmergencyStop            = "emergency_stop"
	EventEmergencyResume          = "emergency_resume"
)
