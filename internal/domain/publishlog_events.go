package domain

import (
	"time"

	"github.com/google/uuid"
)

// PublishEventType enumerates the transitions that rebuild a PublishLog's
// state from its event history (spec.md §4.4's state machine).
type PublishEventType string

const (
	PublishEventScheduled  PublishEventType = "publish.scheduled"
	PublishEventPromoted   PublishEventType = "publish.promoted" // scheduled -> pending
	PublishEventProcessing PublishEventType = "publish.processing"
	PublishEventSucceeded  PublishEventType = "publish.succeeded"
	PublishEventRetried    PublishEventType = "publish.retried"
	PublishEventFailed     PublishEventType = "publish.failed"
	PublishEventCancelled  PublishEventType = "publish.cancelled"
	PublishEventWebhooked  PublishEventType = "publish.webhook_merged"
	PublishEventRescheduled PublishEventType = "publish.rescheduled" // conflict resolution shift
)

// PublishEvent is an immutable fact about a PublishLog aggregate. Event
// sourcing here (rather than storing only current state) is what lets the
// reconciliator and audit tooling answer "what did we know, and when"
// without a separate audit table, mirroring the teacher's Execution
// aggregate (internal/domain/execution.go in the teacher repo).
type PublishEvent struct {
	ID             uuid.UUID
	PublishLogID   uuid.UUID
	Type           PublishEventType
	SequenceNumber int64
	Timestamp      time.Time
	Data           map[string]any
}

func newPublishEvent(logID uuid.UUID, seq int64, t PublishEventType, data map[string]any) PublishEvent {
	if data == nil {
		data = map[string]any{}
	}
	return PublishEvent{
		ID:             uuid.New(),
		PublishLogID:   logID,
		Type:           t,
		SequenceNumber: seq,
		Timestamp:      time.Now().UTC(),
		Data:           data,
	}
}
