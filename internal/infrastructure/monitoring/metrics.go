package monitoring

import (
	"sync"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// MetricsCollector implements ComponentObserver and aggregates per-component
// tick counts, durations, and success/failure rates. Every component in
// spec.md §5 (the scheduler, the publishing worker, the ads orchestrator,
// the optimizer, and the rest) ticks on its own interval; this collector is
// shared across all of them so a single snapshot covers the whole fleet.
type MetricsCollector struct {
	mu        sync.RWMutex
	ticks     map[string]*ComponentMetrics
	ledgerBySeverity map[string]int
}

// ComponentMetrics tracks one component's tick history.
type ComponentMetrics struct {
	Component       string        `json:"component"`
	TickCount       int           `json:"tick_count"`
	SuccessCount    int           `json:"success_count"`
	FailureCount    int           `json:"failure_count"`
	TotalDuration   time.Duration `json:"total_duration"`
	AverageDuration time.Duration `json:"average_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	LastTickAt      time.Time     `json:"last_tick_at"`
	LastError       string        `json:"last_error,omitempty"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		ticks:            make(map[string]*ComponentMetrics),
		ledgerBySeverity: make(map[string]int),
	}
}

var _ ComponentObserver = (*MetricsCollector)(nil)

func (mc *MetricsCollector) OnTickStarted(component string) {}

func (mc *MetricsCollector) OnTickCompleted(component string, duration time.Duration) {
	mc.record(component, duration, true, "")
}

func (mc *MetricsCollector) OnTickFailed(component string, err error, duration time.Duration) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	mc.record(component, duration, false, msg)
}

func (mc *MetricsCollector) OnLedgerEvent(event domain.LedgerEvent) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.ledgerBySeverity[string(event.Severity)]++
}

func (mc *MetricsCollector) OnComponentHealthChanged(component string, status domain.ComponentStatus) {}

func (mc *MetricsCollector) record(component string, duration time.Duration, success bool, lastError string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, ok := mc.ticks[component]
	if !ok {
		m = &ComponentMetrics{Component: component, MinDuration: duration, MaxDuration: duration}
		mc.ticks[component] = m
	}

	m.TickCount++
	if success {
		m.SuccessCount++
	} else {
		m.FailureCount++
		m.LastError = lastError
	}
	m.TotalDuration += duration
	m.AverageDuration = m.TotalDuration / time.Duration(m.TickCount)
	m.LastTickAt = time.Now()
	if duration < m.MinDuration {
		m.MinDuration = duration
	}
	if duration > m.MaxDuration {
		m.MaxDuration = duration
	}
}

// Get returns a copy of one component's metrics, or nil if it has never ticked.
func (mc *MetricsCollector) Get(component string) *ComponentMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.ticks[component]
	if !ok {
		return nil
	}
	c := *m
	return &c
}

// All returns a copy of every tracked component's metrics.
func (mc *MetricsCollector) All() map[string]*ComponentMetrics {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make(map[string]*ComponentMetrics, len(mc.ticks))
	for k, v := range mc.ticks {
		c := *v
		out[k] = &c
	}
	return out
}

// SuccessRate returns the fraction of successful ticks for a component,
// matching the error-rate computation Master Control (C12) needs for
// domain.SaveComponentHealth's errorRate24h argument.
func (mc *MetricsCollector) SuccessRate(component string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	m, ok := mc.ticks[component]
	if !ok || m.TickCount == 0 {
		return 1.0
	}
	return float64(m.SuccessCount) / float64(m.TickCount)
}

// LedgerEventCountsBySeverity returns how many ledger events have been
// observed per severity level since the collector was created.
func (mc *MetricsCollector) LedgerEventCountsBySeverity() map[string]int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	out := make(map[string]int, len(mc.ledgerBySeverity))
	for k, v := range mc.ledgerBySeverity {
		out[k] = v
	}
	return out
}

// MetricsSnapshot is a point-in-time copy of every component's metrics,
// suitable for JSON serialization.
type MetricsSnapshot struct {
	Timestamp              time.Time                    `json:"timestamp"`
	Components             map[string]*ComponentMetrics `json:"components"`
	LedgerEventBySeverity  map[string]int                `json:"ledger_event_by_severity"`
}

func (mc *MetricsCollector) Snapshot() *MetricsSnapshot {
	return &MetricsSnapshot{
		Timestamp:             time.Now(),
		Components:            mc.All(),
		LedgerEventBySeverity: mc.LedgerEventCountsBySeverity(),
	}
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.ticks = make(map[string]*ComponentMetrics)
	mc.ledgerBySeverity = make(map[string]int)
}
