package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clipcast/engine/internal/application/identity"
	"github.com/clipcast/engine/internal/application/queue"
	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
	"github.com/clipcast/engine/internal/infrastructure/provider"
)

// Partition identifies one (platform, account_id) lease boundary; C4
// processes at most one log at a time within a partition (spec.md §5).
type Partition struct {
	Platform  domain.Platform
	AccountID *uuid.UUID
}

func (p Partition) key() string {
	if p.AccountID == nil {
		return string(p.Platform) + "|-"
	}
	return string(p.Platform) + "|" + p.AccountID.String()
}

// Worker is the Publishing Worker (C4). Its ambient logger is slog, per the
// teacher's default; zerolog is reserved for the structured, high-frequency
// provider-call logging inside processOne, mirroring the teacher's use of
// zerolog specifically around its node executors' external-call sites.
type Worker struct {
	store      domain.Storage
	queue      *queue.Queue
	providers  *provider.Registry
	identities *identity.Router
	breakers   *CircuitBreakerRegistry
	backoff    BackoffPolicy

	basePollInterval time.Duration
	providerTimeout  time.Duration

	log     *slog.Logger
	callLog zerolog.Logger
}

type Config struct {
	BasePollInterval time.Duration
	ProviderTimeout  time.Duration
	Backoff          BackoffPolicy
	CircuitBreaker   CircuitBreakerConfig
}

func DefaultConfig() Config {
	return Config{
		BasePollInterval: 5 * time.Second,
		ProviderTimeout:  30 * time.Second,
		Backoff:          DefaultBackoffPolicy(),
		CircuitBreaker:   DefaultCircuitBreakerConfig(),
	}
}

func New(store domain.Storage, providers *provider.Registry, identities *identity.Router, cfg Config, log *slog.Logger, callLog zerolog.Logger) *Worker {
	return &Worker{
		store:            store,
		queue:            queue.New(store, store),
		providers:        providers,
		identities:       identities,
		breakers:         NewCircuitBreakerRegistry(cfg.CircuitBreaker),
		backoff:          cfg.Backoff,
		basePollInterval: cfg.BasePollInterval,
		providerTimeout:  cfg.ProviderTimeout,
		log:              log,
		callLog:          callLog,
	}
}

// RunPartition ticks a single (platform, account_id) partition until ctx is
// cancelled, observing emergency_stop via isStopped on every tick (spec.md
// §5: "observed within one tick").
func (w *Worker) RunPartition(ctx context.Context, part Partition, isStopped func() bool) {
	interval := w.basePollInterval
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if isStopped != nil && isStopped() {
			continue
		}

		retried, err := w.Tick(ctx, part)
		if err != nil {
			w.log.Error("worker tick failed", "partition", part.key(), "error", err)
		}
		if retried {
			interval = PollIntervalAfterRetry(w.basePollInterval)
		} else {
			interval = w.basePollInterval
		}
	}
}

// Tick fetches and processes at most one due log for the partition. It
// returns whether the outcome was a retry, so the caller can smooth its
// poll interval per spec.md §4.4.
func (w *Worker) Tick(ctx context.Context, part Partition) (bool, error) {
	log, err := w.queue.FetchNextDue(ctx, part.Platform, part.AccountID, time.Now().UTC())
	if err != nil {
		if err == domain.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return w.processOne(ctx, part, log)
}

func (w *Worker) processOne(ctx context.Context, part Partition, log *domain.PublishLog) (bool, error) {
	if log.SocialAccountID() == nil {
		return w.fail(ctx, log, domainerrors.NewIsolationViolationError("none", "publish log has no social_account_id"), false)
	}
	accountID := *log.SocialAccountID()

	ident, err := w.identities.Validate(ctx, accountID, "publishing_worker")
	if err != nil {
		return w.fail(ctx, log, err, false)
	}

	platformProvider, ok := w.providers.Resolve(part.Platform)
	if !ok {
		return w.fail(ctx, log, domainerrors.NewValidationError("platform", "platform not configured"), false)
	}

	breaker := w.breakers.Get(part.key())
	if err := breaker.Allow(); err != nil {
		return w.fail(ctx, log, err, true)
	}

	clip, err := w.store.GetClip(ctx, log.ClipID())
	if err != nil {
		breaker.RecordResult(err)
		return w.fail(ctx, log, err, false)
	}

	callCtx, cancel := context.WithTimeout(ctx, w.providerTimeout)
	defer cancel()

	w.callLog.Info().
		Str("platform", string(part.Platform)).
		Str("account_id", accountID.String()).
		Str("identity_fingerprint", ident.FingerprintDescriptor).
		Str("publish_log_id", log.ID().String()).
		Msg("uploading creative")

	creative, err := platformProvider.UploadCreative(callCtx, clip, log.ExtraMetadata())
	if err == nil {
		var post provider.PostRef
		post, err = platformProvider.PublishPost(callCtx, creative.ExternalID, "", nil)
		if err == nil {
			breaker.RecordResult(nil)
			return w.succeed(ctx, log, post)
		}
	}

	breaker.RecordResult(err)
	w.callLog.Warn().Err(err).Str("publish_log_id", log.ID().String()).Msg("provider call failed")
	return w.fail(ctx, log, err, false)
}

func (w *Worker) succeed(ctx context.Context, log *domain.PublishLog, post provider.PostRef) (bool, error) {
	// Record the provider's post ID before committing success so a crash
	// between this line and the commit below still leaves the log
	// correlatable by external_post_id (see RecordProvisionalExternalPost).
	log.RecordProvisionalExternalPost(post.ExternalPostID, post.ExternalURL)
	if err := w.store.SavePublishLog(ctx, log); err != nil {
		return false, err
	}

	if err := w.queue.MarkSuccess(ctx, log, post.ExternalPostID, post.ExternalURL); err != nil {
		return false, err
	}
	return false, nil
}

// fail applies the retry-or-fail (or immediate fatal) transition and
// returns whether the log is now in `retry` so the caller can back off.
func (w *Worker) fail(ctx context.Context, log *domain.PublishLog, cause error, circuitOpen bool) (bool, error) {
	msg := cause.Error()

	if !circuitOpen && !domainerrors.IsRetryable(cause) {
		if err := log.MarkFatalFailure(msg); err != nil {
			return false, err
		}
		if err := w.store.SavePublishLog(ctx, log); err != nil {
			return false, err
		}
		log.MarkEventsCommitted()
		_ = w.store.AppendLedgerEvent(ctx, domain.NewLedgerEvent(
			domain.EventPublishWorkerLogFailed, "publish_log", log.ID().String(), domain.SeverityError,
			map[string]any{"reason": "fatal", "error": msg},
		))
		return false, nil
	}

	status, err := w.queue.MarkRetryOrFailed(ctx, log, msg)
	if err != nil {
		return false, err
	}
	return status == domain.PublishStatusRetry, nil
}
