// Package monitoring implements spec.md §5's observability surface: a
// pluggable observer pattern for component ticks and ledger events, metrics
// collection, and OpenTelemetry span helpers for a component tick or a
// saga step (trace.go), which no component loop calls.
package monitoring

import (
	"sync"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// ComponentObserver is notified of every component tick and every ledger
// event appended during it. Implementations can log, collect metrics,
// forward to a webhook, or broadcast to connected operator dashboards.
// A nil method receiver (e.g. a zero-value struct embedded for partial
// implementation) is never invoked directly; ObserverManager always calls
// through the interface.
type ComponentObserver interface {
	// OnTickStarted is called when a component's tick begins.
	OnTickStarted(component string)

	// OnTickCompleted is called when a tick finishes without error.
	OnTickCompleted(component string, duration time.Duration)

	// OnTickFailed is called when a tick returns an error.
	OnTickFailed(component string, err error, duration time.Duration)

	// OnLedgerEvent is called for every event appended to the Event Ledger
	// (C11), regardless of which component produced it.
	OnLedgerEvent(event domain.LedgerEvent)

	// OnComponentHealthChanged is called whenever Master Control (C12)
	// records a status transition for a supervised component.
	OnComponentHealthChanged(component string, status domain.ComponentStatus)
}

// ObserverManager fans a single stream of component events out to any
// number of registered observers.
type ObserverManager struct {
	mu        sync.RWMutex
	observers []ComponentObserver
}

func NewObserverManager() *ObserverManager {
	return &ObserverManager{observers: make([]ComponentObserver, 0)}
}

func (m *ObserverManager) Register(o ComponentObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

func (m *ObserverManager) snapshot() []ComponentObserver {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ComponentObserver, len(m.observers))
	copy(out, m.observers)
	return out
}

func (m *ObserverManager) NotifyTickStarted(component string) {
	for _, o := range m.snapshot() {
		o.OnTickStarted(component)
	}
}

func (m *ObserverManager) NotifyTickCompleted(component string, duration time.Duration) {
	for _, o := range m.snapshot() {
		o.OnTickCompleted(component, duration)
	}
}

func (m *ObserverManager) NotifyTickFailed(component string, err error, duration time.Duration) {
	for _, o := range m.snapshot() {
		o.OnTickFailed(component, err, duration)
	}
}

func (m *ObserverManager) NotifyLedgerEvent(event domain.LedgerEvent) {
	for _, o := range m.snapshot() {
		o.OnLedgerEvent(event)
	}
}

func (m *ObserverManager) NotifyComponentHealthChanged(component string, status domain.ComponentStatus) {
	for _, o := range m.snapshot() {
		o.OnComponentHealthChanged(component, status)
	}
}

// TickFunc wraps a component tick with the manager's started/completed/
// failed notifications, so component loops don't have to repeat the
// start-timer/defer-notify boilerplate at every call site.
func (m *ObserverManager) TickFunc(component string, fn func() error) error {
	m.NotifyTickStarted(component)
	start := time.Now()
	err := fn()
	if err != nil {
		m.NotifyTickFailed(component, err, time.Since(start))
		return err
	}
	m.NotifyTickCompleted(component, time.Since(start))
	return nil
}
