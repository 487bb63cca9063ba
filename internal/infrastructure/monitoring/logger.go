package monitoring

import (
	"context"
	"log/slog"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// LoggerObserver implements ComponentObserver by writing structured log
// lines through log/slog, the way the rest of the ambient stack logs
// (internal/infrastructure/logger wires the same handler for HTTP access
// logs). cmd/server registers it on the shared ObserverManager together
// with MetricsCollector and the websocket observer; cmd/server does not
// register an HTTPCallbackObserver.
type LoggerObserver struct {
	logger *slog.Logger
}

func NewLoggerObserver(logger *slog.Logger) *LoggerObserver {
	return &LoggerObserver{logger: logger}
}

var _ ComponentObserver = (*LoggerObserver)(nil)

func (l *LoggerObserver) OnTickStarted(component string) {
	l.logger.Debug("component tick started", "component", component)
}

func (l *LoggerObserver) OnTickCompleted(component string, duration time.Duration) {
	l.logger.Info("component tick completed", "component", component, "duration", duration)
}

func (l *LoggerObserver) OnTickFailed(component string, err error, duration time.Duration) {
	l.logger.Error("component tick failed", "component", component, "duration", duration, "error", err)
}

func (l *LoggerObserver) OnLedgerEvent(event domain.LedgerEvent) {
	level := slog.LevelInfo
	switch event.Severity {
	case domain.SeverityWarn:
		level = slog.LevelWarn
	case domain.SeverityError:
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "ledger event",
		"event_type", event.EventType,
		"entity_type", event.EntityType,
		"entity_id", event.EntityID,
		"severity", event.Severity,
	)
}

func (l *LoggerObserver) OnComponentHealthChanged(component string, status domain.ComponentStatus) {
	l.logger.Warn("component health changed", "component", component, "status", status)
}
