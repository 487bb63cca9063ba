package monitoring

import (
	"context"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// ObservingStore decorates a domain.Storage so every ledger append and
// component health transition also fans out through an ObserverManager,
// without every component package having to take a monitoring dependency
// of its own. Every other method passes straight through to the wrapped
// store.
type ObservingStore struct {
	domain.Storage
	observers *ObserverManager
}

// NewObservingStore wraps store so C11's ledger and C12's health table
// double as the feed the logger/metrics/websocket observers consume.
func NewObservingStore(store domain.Storage, observers *ObserverManager) *ObservingStore {
	return &ObservingStore{Storage: store, observers: observers}
}

func (s *ObservingStore) AppendLedgerEvent(ctx context.Context, e domain.LedgerEvent) error {
	if err := s.Storage.AppendLedgerEvent(ctx, e); err != nil {
		return err
	}
	s.observers.NotifyLedgerEvent(e)
	return nil
}

func (s *ObservingStore) SaveComponentHealth(ctx context.Context, component string, status domain.ComponentStatus, lastRunAt time.Time, errorRate24h float64) error {
	if err := s.Storage.SaveComponentHealth(ctx, component, status, lastRunAt, errorRate24h); err != nil {
		return err
	}
	s.observers.NotifyComponentHealthChanged(component, status)
	return nil
}
