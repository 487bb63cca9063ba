// Package control implements Master Control (C12): the process-wide
// emergency_stop flag, per-component health monitoring, and the operator
// command surface (spec.md §4.12).
package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
	"github.com/clipcast/engine/internal/infrastructure/provider"
)

// Names of the components Master Control supervises, matching the
// component labels used throughout the ledger and health table.
const (
	ComponentScheduler    = "auto_scheduler"
	ComponentWorker       = "publishing_worker"
	ComponentWebhook      = "webhook_ingestor"
	ComponentReconciler   = "reconciliator"
	ComponentAdsOrchestrator = "ads_orchestrator"
	ComponentABEvaluator  = "ab_evaluator"
	ComponentOptimizer    = "optimization_loop"
	ComponentIdentity     = "identity_router"
)

// Restartable is any long-running component loop Master Control can stop
// and restart. Each component package's Run-style method is adapted to
// this shape by a small closure at wiring time.
type Restartable interface {
	Start(ctx context.Context)
	Stop()
}

// HealthCheck lets Master Control ask a component to self-report health
// directly, instead of only inferring it from store-recorded heartbeats.
type HealthCheck func(ctx context.Context) error

// Ticker is the optional capability a Restartable offers when its
// background loop wraps a single-pass tick method that can also be invoked
// on demand (the operator's run-once command). Not every component
// implements it — request-driven components (C5/C7/C10) have no tick to
// run.
type Ticker interface {
	Tick(ctx context.Context) error
}

// registration bundles a supervised component's control surface.
type registration struct {
	restart     Restartable
	healthCheck HealthCheck
	runCtx      context.Context
	cancel      context.CancelFunc
	lastRestart time.Time
}

// Config holds Master Control's tunables.
type Config struct {
	HeartbeatInterval time.Duration // default 1m
	RestartCooldown   time.Duration // default 5m, spec.md §4.12 "at most once per cooldown"
	ErrorRateWindow   time.Duration // default 24h
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: time.Minute,
		RestartCooldown:   5 * time.Minute,
		ErrorRateWindow:   24 * time.Hour,
	}
}

// Control is Master Control (C12).
type Control struct {
	store domain.Storage
	ads   provider.AdsProvider
	cfg   Config
	log   *slog.Logger

	emergencyStop atomic.Bool

	mu            sync.Mutex
	registrations map[string]*registration
}

func New(store domain.Storage, ads provider.AdsProvider, cfg Config, log *slog.Logger) *Control {
	return &Control{
		store:         store,
		ads:           ads,
		cfg:           cfg,
		log:           log,
		registrations: make(map[string]*registration),
	}
}

// IsStopped is the closure every component loop polls once per tick
// (spec.md §4.12, §5: "observed by worker loops within one tick").
func (c *Control) IsStopped() bool {
	return c.emergencyStop.Load()
}

// Register associates a component name with its restart/health hooks so
// start_all/stop_all/restart(component)/run_health_check can address it.
func (c *Control) Register(component string, restart Restartable, check HealthCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registrations[component] = &registration{restart: restart, healthCheck: check}
}

// StartAll starts every registered component.
func (c *Control) StartAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, reg := range c.registrations {
		c.startLocked(ctx, name, reg)
	}
}

func (c *Control) startLocked(ctx context.Context, name string, reg *registration) {
	runCtx, cancel := context.WithCancel(ctx)
	reg.runCtx = runCtx
	reg.cancel = cancel
	reg.restart.Start(runCtx)
	_ = c.store.SaveComponentHealth(ctx, name, domain.ComponentOnline, time.Now().UTC(), 0)
	c.emit(ctx, name, domain.ComponentOnline, "started")
}

// StopAll stops every registered component's loop without touching the
// emergency_stop flag (a plain operator stop, not a guard-rail refusal).
func (c *Control) StopAll(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name, reg := range c.registrations {
		c.stopLocked(ctx, name, reg)
	}
}

func (c *Control) stopLocked(ctx context.Context, name string, reg *registration) {
	if reg.cancel != nil {
		reg.cancel()
	}
	reg.restart.Stop()
	_ = c.store.SaveComponentHealth(ctx, name, domain.ComponentOffline, time.Now().UTC(), 0)
	c.emit(ctx, name, domain.ComponentOffline, "stopped")
}

// Restart stops and starts the named component, independent of the cooldown
// that governs auto-recovery (an operator-issued restart always proceeds).
func (c *Control) Restart(ctx context.Context, component string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg, ok := c.registrations[component]
	if !ok {
		return domainerrors.NewValidationError("component", fmt.Sprintf("unknown component %q", component))
	}
	c.stopLocked(ctx, component, reg)
	c.startLocked(ctx, component, reg)
	reg.lastRestart = time.Now().UTC()
	return nil
}

// RunOnce implements the operator's run-once command: it invokes the named
// component's Tick method directly, independent of that component's own
// ticker interval, returning an error if the component was never
// registered or does not implement Ticker.
func (c *Control) RunOnce(ctx context.Context, component string) error {
	c.mu.Lock()
	reg, ok := c.registrations[component]
	c.mu.Unlock()
	if !ok {
		return domainerrors.NewValidationError("component", fmt.Sprintf("unknown component %q", component))
	}
	ticker, ok := reg.restart.(Ticker)
	if !ok {
		return domainerrors.NewValidationError("component", fmt.Sprintf("component %q does not support run-once", component))
	}
	return ticker.Tick(ctx)
}

// EmergencyStop implements spec.md §4.12: halts C4/C7/C9, pauses active ad
// campaigns via the Ads provider, and sets the process-wide flag C1/C8
// consult before writing new scheduled records.
func (c *Control) EmergencyStop(ctx context.Context) error {
	c.emergencyStop.Store(true)

	c.mu.Lock()
	for _, name := range []string{ComponentWorker, ComponentAdsOrchestrator, ComponentOptimizer} {
		if reg, ok := c.registrations[name]; ok {
			c.stopLocked(ctx, name, reg)
		}
	}
	c.mu.Unlock()

	campaigns, err := c.store.ListActiveCampaigns(ctx)
	if err != nil {
		c.log.Error("emergency stop: failed to list active campaigns", "error", err)
	} else {
		for _, campaign := range campaigns {
			if campaign.ExternalID == nil {
				continue
			}
			if err := c.ads.PauseEntity(ctx, *campaign.ExternalID); err != nil {
				c.log.Error("emergency stop: failed to pause campaign", "campaign_id", campaign.ID.String(), "error", err)
				continue
			}
			campaign.Status = domain.AdsEntityPaused
			_ = c.store.SaveCampaign(ctx, campaign)
		}
	}

	_ = c.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventEmergencyStop, "system", "", domain.SeverityError, nil,
	))
	return nil
}

// Resume restores the emergency_stop flag and restarts the components
// EmergencyStop halted.
func (c *Control) Resume(ctx context.Context) error {
	c.emergencyStop.Store(false)

	c.mu.Lock()
	for _, name := range []string{ComponentWorker, ComponentAdsOrchestrator, ComponentOptimizer} {
		if reg, ok := c.registrations[name]; ok {
			c.startLocked(ctx, name, reg)
		}
	}
	c.mu.Unlock()

	_ = c.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventEmergencyResume, "system", "", domain.SeverityInfo, nil,
	))
	return nil
}

// RunHealthCheck invokes every registered component's HealthCheck (when
// provided) and records the resulting status, independent of the
// background heartbeat loop.
func (c *Control) RunHealthCheck(ctx context.Context) map[string]domain.ComponentStatus {
	c.mu.Lock()
	names := make([]string, 0, len(c.registrations))
	checks := make(map[string]HealthCheck, len(c.registrations))
	for name, reg := range c.registrations {
		names = append(names, name)
		checks[name] = reg.healthCheck
	}
	c.mu.Unlock()

	results := make(map[string]domain.ComponentStatus, len(names))
	for _, name := range names {
		status := c.probe(ctx, name, checks[name])
		results[name] = status
	}
	return results
}

func (c *Control) probe(ctx context.Context, name string, check HealthCheck) domain.ComponentStatus {
	status := domain.ComponentOnline
	if check != nil {
		if err := check(ctx); err != nil {
			status = domain.ComponentDegraded
			c.log.Warn("health check failed", "component", name, "error", err)
		}
	}
	_, lastRunAt, errorRate, err := c.store.GetComponentHealth(ctx, name)
	if err == nil && time.Since(lastRunAt) > c.cfg.HeartbeatInterval*3 {
		status = domain.ComponentOffline
	}
	_ = c.store.SaveComponentHealth(ctx, name, status, time.Now().UTC(), errorRate)
	if status != domain.ComponentOnline {
		c.emit(ctx, name, status, "health check")
		c.maybeAutoRecover(ctx, name, status)
	}
	return status
}

// maybeAutoRecover implements spec.md §4.12: "on detecting offline, attempts
// a restart at most once per cooldown; escalates otherwise."
func (c *Control) maybeAutoRecover(ctx context.Context, name string, status domain.ComponentStatus) {
	if status != domain.ComponentOffline {
		return
	}
	c.mu.Lock()
	reg, ok := c.registrations[name]
	if !ok {
		c.mu.Unlock()
		return
	}
	withinCooldown := time.Since(reg.lastRestart) < c.cfg.RestartCooldown
	c.mu.Unlock()

	if withinCooldown {
		c.log.Error("component offline and restart cooldown active, escalating", "component", name)
		_ = c.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventComponentStatusChanged, "component", name, domain.SeverityError,
			map[string]any{"status": "offline", "escalated": true},
		))
		return
	}

	c.log.Warn("auto-recovering offline component", "component", name)
	if err := c.Restart(ctx, name); err != nil {
		c.log.Error("auto-recovery restart failed", "component", name, "error", err)
	}
}

func (c *Control) emit(ctx context.Context, component string, status domain.ComponentStatus, reason string) {
	_ = c.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
		domain.EventComponentStatusChanged, "component", component, domain.SeverityInfo,
		map[string]any{"status": status.String(), "reason": reason},
	))
}

// Run ticks RunHealthCheck on interval until ctx is cancelled.
func (c *Control) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunHealthCheck(ctx)
		}
	}
}
