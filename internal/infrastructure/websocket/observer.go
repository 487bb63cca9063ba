package websocket

import (
	"time"

	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/monitoring"
)

// Ensure SocketObserver implements ComponentObserver
var _ monitoring.ComponentObserver = (*SocketObserver)(nil)

// SocketObserver implements monitoring.ComponentObserver and broadcasts
// ledger events and component health transitions to WebSocket clients
// subscribed to the corresponding topic, through the Broadcaster interface.
// Tick start/complete/fail notifications have no dashboard representation
// and are dropped.
type SocketObserver struct {
	hub Broadcaster
}

// NewSocketObserver creates a new SocketObserver
func NewSocketObserver(hub Broadcaster) *SocketObserver {
	return &SocketObserver{
		hub: hub,
	}
}

func (so *SocketObserver) OnTickStarted(component string) {}

func (so *SocketObserver) OnTickCompleted(component string, duration time.Duration) {}

func (so *SocketObserver) OnTickFailed(component string, err error, duration time.Duration) {}

// OnLedgerEvent broadcasts every Event Ledger (C11) append to clients
// subscribed to the "ledger" topic.
func (so *SocketObserver) OnLedgerEvent(event domain.LedgerEvent) {
	wsEvent := NewLedgerWSEvent(event.EventType, event.EntityType, event.EntityID, string(event.Severity), event.Payload)
	so.hub.Broadcast("", TopicLedger, wsEvent)
}

// OnComponentHealthChanged broadcasts every Master Control (C12) status
// transition to clients subscribed to the "health" topic.
func (so *SocketObserver) OnComponentHealthChanged(component string, status domain.ComponentStatus) {
	wsEvent := NewComponentHealthWSEvent(component, status.String())
	so.hub.Broadcast("", TopicHealth, wsEvent)
}
