package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/clipcast/engine/internal/application/abtest"
	"github.com/clipcast/engine/internal/application/ads"
	"github.com/clipcast/engine/internal/application/control"
	"github.com/clipcast/engine/internal/application/identity"
	"github.com/clipcast/engine/internal/application/optimizer"
	"github.com/clipcast/engine/internal/application/reconciler"
	"github.com/clipcast/engine/internal/application/scheduler"
	"github.com/clipcast/engine/internal/application/webhook"
	"github.com/clipcast/engine/internal/application/worker"
	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/api/rest"
	"github.com/clipcast/engine/internal/infrastructure/config"
	"github.com/clipcast/engine/internal/infrastructure/logger"
	"github.com/clipcast/engine/internal/infrastructure/monitoring"
	"github.com/clipcast/engine/internal/infrastructure/provider"
	"github.com/clipcast/engine/internal/infrastructure/storage"
	"github.com/clipcast/engine/internal/infrastructure/websocket"
)

var allPlatforms = []domain.Platform{domain.PlatformInstagram, domain.PlatformTikTok, domain.PlatformYouTube}

func main() {
	var (
		port       = flag.String("port", "", "Server port (overrides config)")
		enableCORS = flag.Bool("cors", true, "Enable CORS")
		apiKeys    = flag.String("api-keys", "", "Comma-separated API keys for REST authentication")
		jwtWS      = flag.Bool("jwt-ws", false, "Require JWT auth on the operator WebSocket (otherwise NoAuth, for local development)")
	)
	flag.Parse()

	cfg := config.Load()
	if *port != "" {
		cfg.Port = *port
	}

	log := logger.Setup(cfg.LogLevel)
	callLog := zerolog.New(os.Stdout).With().Timestamp().Str("layer", "provider_call").Logger()
	log.Info("starting clipcast engine", "port", cfg.Port)

	var store domain.Storage
	if cfg.DatabaseDSN != "" {
		bunStore := storage.NewBunStore(cfg.DatabaseDSN)
		ctx := context.Background()
		if err := bunStore.InitSchema(ctx); err != nil {
			log.Error("failed to initialize database schema", "error", err)
			os.Exit(1)
		}
		store = bunStore
		log.Info("using BunStore (PostgreSQL)")
	} else {
		store = storage.NewMemoryStore()
		log.Info("using in-process MemoryStore (no DATABASE_DSN set)")
	}

	// Platform/ads providers. Real API wire clients are out of scope
	// (spec.md §1 Non-goals); every adapter here simulates, matching the
	// teacher's node adapters' supports_real_api()=false gate.
	providers := provider.NewRegistry()
	for _, p := range allPlatforms {
		providers.Register(provider.NewSimulatedPlatformProvider(p, 0.05, int64(len(p))))
	}
	adsProvider := provider.NewSimulatedAdsProvider(0.05, 42)

	// Observability: logging + metrics + websocket fan-out, all registered
	// on one ObserverManager the way the teacher wires its execution
	// observers. ObservingStore decorates store so every ledger append and
	// component health save (C11/C12) doubles as the feed these observers
	// consume, without every application package taking a monitoring
	// dependency of its own.
	observers := monitoring.NewObserverManager()
	observers.Register(monitoring.NewLoggerObserver(log))
	metrics := monitoring.NewMetricsCollector()
	observers.Register(metrics)

	hub := websocket.NewHub(log)
	go hub.Run()
	observers.Register(websocket.NewSocketObserver(hub))

	store = monitoring.NewObservingStore(store, observers)

	// Core component wiring, one package per spec.md §4 component.
	identities := identity.NewRouter(store)

	oracle := scheduler.NewOracle(map[domain.Platform]domain.PlatformWindow{
		domain.PlatformInstagram: cfg.PlatformWindow(domain.PlatformInstagram),
		domain.PlatformTikTok:    cfg.PlatformWindow(domain.PlatformTikTok),
		domain.PlatformYouTube:   cfg.PlatformWindow(domain.PlatformYouTube),
	})

	ctl := control.New(store, adsProvider, control.Config{
		HeartbeatInterval: cfg.ControlHeartbeatInterval(),
		RestartCooldown:   cfg.ControlRestartCooldown(),
		ErrorRateWindow:   24 * time.Hour,
	}, log)

	sched := scheduler.New(store, oracle, 30*time.Second, scheduler.DefaultSaturationLimits(), ctl.IsStopped)

	w := worker.New(store, providers, identities, worker.Config{
		BasePollInterval: cfg.WorkerPollInterval(),
		ProviderTimeout:  cfg.WorkerProviderTimeout(),
		Backoff:          worker.DefaultBackoffPolicy(),
		CircuitBreaker:   worker.DefaultCircuitBreakerConfig(),
	}, logger.WithComponent(log, control.ComponentWorker), callLog)

	ingestor := webhook.New(store, store)

	recon := reconciler.New(store, reconciler.DefaultConfig(), logger.WithComponent(log, control.ComponentReconciler), ctl.IsStopped)

	captions := ads.NewCaptionDrafter("", "", callLog)
	orchestrator := ads.New(store, adsProvider, captions, ctl.IsStopped)

	evaluator := abtest.New(store, adsProvider, sched)

	optCfg := optimizer.DefaultConfig()
	optCfg.Mode = optimizer.Mode(cfg.Optimizer.Mode)
	optCfg.MinConfidence = cfg.Optimizer.MinConfidence
	optCfg.AutoConfidence = cfg.Optimizer.AutoConfidence
	optCfg.MaxDailyChangePct = cfg.Optimizer.MaxDailyChangePct
	optCfg.AutoMaxChangePct = cfg.Optimizer.AutoMaxChangePct
	optCfg.EmbargoHours = cfg.Optimizer.EmbargoHours
	optCfg.MinSpendUSD = cfg.Optimizer.MinSpendUSD
	optCfg.MinImpressions = cfg.Optimizer.MinImpressions
	optCfg.CooldownHours = cfg.Optimizer.CooldownHours
	optCfg.MaxPerCampaign = cfg.Optimizer.MaxPerCampaign
	optCfg.MaxPerRun = cfg.Optimizer.MaxPerRun

	systemStatus := func() domain.ComponentStatus {
		if ctl.IsStopped() {
			return domain.ComponentEmergencyStop
		}
		return domain.ComponentOnline
	}
	optLoop := optimizer.New(store, adsProvider, optCfg, systemStatus, ctl.IsStopped, logger.WithComponent(log, control.ComponentOptimizer))

	// Master Control registrations (spec.md §4.12): each component's tick
	// method is wrapped in observers.TickFunc (so the logger/metrics/
	// websocket observers see every start/complete/fail) and adapted to
	// control.Restartable via tickLoop, per control.go's own doc comment
	// ("adapted to this shape by a small closure at wiring time").
	abLog := logger.WithComponent(log, control.ComponentABEvaluator)
	ctl.Register(control.ComponentScheduler, tickLoop(control.ComponentScheduler, 30*time.Second, observers, ctl.IsStopped, func(ctx context.Context) error {
		_, err := sched.PromoteTick(ctx)
		return err
	}), nil)
	ctl.Register(control.ComponentWorker, newWorkerPool(w, allPlatforms, ctl.IsStopped, observers), nil)
	ctl.Register(control.ComponentReconciler, tickLoop(control.ComponentReconciler, reconciler.DefaultConfig().SweepInterval, observers, ctl.IsStopped, func(ctx context.Context) error {
		_, _, err := recon.Sweep(ctx)
		return err
	}), nil)
	ctl.Register(control.ComponentOptimizer, tickLoop(control.ComponentOptimizer, time.Hour, observers, ctl.IsStopped, func(ctx context.Context) error {
		_, err := optLoop.Tick(ctx)
		return err
	}), nil)
	ctl.Register(control.ComponentABEvaluator, tickLoop(control.ComponentABEvaluator, 15*time.Minute, observers, ctl.IsStopped, func(ctx context.Context) error {
		return evaluator.Tick(ctx, ctl.IsStopped, abLog)
	}), nil)
	ctl.Register(control.ComponentWebhook, noopComponent{}, nil)
	ctl.Register(control.ComponentAdsOrchestrator, noopComponent{}, nil)
	ctl.Register(control.ComponentIdentity, noopComponent{}, nil)

	var apiKeysList []string
	if *apiKeys != "" {
		for _, key := range strings.Split(*apiKeys, ",") {
			if key = strings.TrimSpace(key); key != "" {
				apiKeysList = append(apiKeysList, key)
			}
		}
		log.Info("api key authentication enabled", "count", len(apiKeysList))
	}

	serverConfig := rest.DefaultServerConfig()
	serverConfig.EnableCORS = *enableCORS
	serverConfig.APIKeys = apiKeysList

	restServer := rest.NewServer(store, ctl, ingestor, orchestrator, evaluator, optLoop, log, serverConfig)

	var wsAuth websocket.Authenticator
	if *jwtWS {
		wsAuth = websocket.NewJWTAuth(cfg.JWTSecret)
	} else {
		wsAuth = websocket.NewNoAuth()
	}
	wsHandler := websocket.NewHandler(hub, wsAuth, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", wsHandler)
	mux.Handle("/", restServer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctl.StartAll(ctx)
	go ctl.Run(ctx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ctl.StopAll(shutdownCtx)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("server exited gracefully")
}

// runFuncComponent adapts a `func(ctx)`-shaped background loop to
// control.Restartable, the "small closure at wiring time" control.go's own
// doc comment describes. It also implements control.Ticker when built via
// tickLoop, so the operator's run-once command can invoke the same fn
// outside its regular interval.
type runFuncComponent struct {
	run    func(ctx context.Context)
	tick   func(ctx context.Context) error
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (c *runFuncComponent) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(runCtx)
	}()
}

func (c *runFuncComponent) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

func (c *runFuncComponent) Tick(ctx context.Context) error {
	if c.tick == nil {
		return fmt.Errorf("component does not support run-once")
	}
	return c.tick(ctx)
}

// tickLoop builds a control.Restartable that calls fn on every interval,
// skipping ticks while isStopped reports true (spec.md §4.12: "observed by
// worker loops within one tick") and wrapping each call in
// observers.TickFunc so the logger/metrics/websocket observers see every
// component tick's start/completion/failure. The returned component also
// implements control.Ticker so the operator's run-once command can invoke
// fn directly.
func tickLoop(component string, interval time.Duration, observers *monitoring.ObserverManager, isStopped func() bool, fn func(ctx context.Context) error) control.Restartable {
	observedTick := func(ctx context.Context) error {
		return observers.TickFunc(component, func() error { return fn(ctx) })
	}
	return &runFuncComponent{
		tick: observedTick,
		run: func(ctx context.Context) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if isStopped() {
						continue
					}
					_ = observedTick(ctx)
				}
			}
		},
	}
}

// workerPool runs one worker.RunPartition-equivalent tick loop per
// platform, the simplest partitioning that still respects the
// one-lease-per-partition invariant (spec.md §5) without requiring the
// full per-account partition set to be known ahead of time.
type workerPool struct {
	w         *worker.Worker
	platforms []domain.Platform
	isStopped func() bool
	observers *monitoring.ObserverManager
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func newWorkerPool(w *worker.Worker, platforms []domain.Platform, isStopped func() bool, observers *monitoring.ObserverManager) *workerPool {
	return &workerPool{w: w, platforms: platforms, isStopped: isStopped, observers: observers}
}

func (p *workerPool) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for _, platform := range p.platforms {
		part := worker.Partition{Platform: platform}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					if p.isStopped() {
						continue
					}
					_ = p.observers.TickFunc(control.ComponentWorker, func() error {
						_, err := p.w.Tick(runCtx, part)
						return err
					})
				}
			}
		}()
	}
}

func (p *workerPool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Tick runs one tick of every partition synchronously, implementing
// control.Ticker for the operator's run-once command. The first partition
// error is returned; the rest still run so a single platform partition's failure
// doesn't mask the others' results.
func (p *workerPool) Tick(ctx context.Context) error {
	var firstErr error
	for _, platform := range p.platforms {
		part := worker.Partition{Platform: platform}
		err := p.observers.TickFunc(control.ComponentWorker, func() error {
			_, err := p.w.Tick(ctx, part)
			return err
		})
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// noopComponent is a request-driven component (C5/C7/C10 have no
// independent ticker; they execute synchronously from an HTTP handler or
// another component's tick) with nothing to start or stop.
type noopComponent struct{}

func (noopComponent) Start(ctx context.Context) {}
func (noopComponent) Stop()                     {}
