// Package engine is the public facade over github.com/clipcast/engine's
// internal packages, in the same spirit as the teacher's root-level mbflow
// package: re-export the handful of types and constructors an embedder
// needs without requiring an import of internal/*, and leave everything
// else (the twelve components themselves) reachable only through cmd/server
// or cmd/operator.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/application/abtest"
	"github.com/clipcast/engine/internal/application/ads"
	"github.com/clipcast/engine/internal/application/control"
	"github.com/clipcast/engine/internal/application/optimizer"
	"github.com/clipcast/engine/internal/domain"
	"github.com/clipcast/engine/internal/infrastructure/storage"
)

// Storage is the persistence contract every component depends on: clips,
// publish logs, social accounts, optimization actions, A/B tests, ads
// entities, identities, the event ledger, and component health snapshots.
type Storage = domain.Storage

// NewMemoryStorage returns an in-process Storage backed by nothing but
// maps and mutexes, suitable for tests and local development.
func NewMemoryStorage() Storage {
	return storage.NewMemoryStore()
}

// NewPostgresStorage returns a Storage backed by Postgres via bun. Unlike
// the teacher's NewPostgresStorage, schema initialization is left to the
// caller (via a migration tool or Storage's own InitSchema, if the
// concrete *storage.BunStore is needed) rather than happening implicitly
// inside the constructor — a facade default that calls log.Fatal on a
// schema error is not appropriate for an embedder.
func NewPostgresStorage(dsn string) Storage {
	return storage.NewBunStore(dsn)
}

// Clip, PublishLog, SocialAccount, Campaign, AdSet, Creative, Ad, ABTest,
// OptimizationAction, Identity, and LedgerEvent are the entities that
// cross the Storage boundary; re-exported here so an embedder never needs
// to import internal/domain directly.
type (
	Clip               = domain.Clip
	PublishLog         = domain.PublishLog
	SocialAccount      = domain.SocialAccount
	Campaign           = domain.Campaign
	AdSet              = domain.AdSet
	Creative           = domain.Creative
	Ad                 = domain.Ad
	ABTest             = domain.ABTest
	OptimizationAction = domain.OptimizationAction
	Identity           = domain.Identity
	LedgerEvent        = domain.LedgerEvent
	Platform           = domain.Platform
)

// NewPublishLog constructs a schedulable publish log entry (C3's queue
// item), validating the clip/platform/schedule combination the way
// domain.NewPublishLog does.
func NewPublishLog(clipID uuid.UUID, platform Platform, accountID *uuid.UUID, scheduledFor time.Time, scheduledBy domain.ScheduledBy, priority float64) (*PublishLog, error) {
	return domain.NewPublishLog(clipID, platform, accountID, scheduledFor, scheduledBy, priority)
}

// CampaignOrchestrationRequest and CampaignOrchestrationResult are the
// input/output of Orchestrator.OrchestrateCampaign (C7's saga),
// re-exported so an embedder can drive campaign creation without reaching
// into internal/application/ads.
type (
	CampaignOrchestrationRequest = domain.CampaignOrchestrationRequest
	CampaignOrchestrationResult  = domain.CampaignOrchestrationResult
)

// Control is Master Control (C12): component lifecycle, health
// aggregation, and the emergency-stop/resume switch that cmd/server and
// cmd/operator both drive through the REST admin surface.
type Control = control.Control

// Orchestrator is C7's campaign-creation saga and Evaluator is C8's
// winner-selection/publication path; both are re-exported so a caller
// embedding this module as a library (rather than running cmd/server) can
// construct and drive them directly against a Storage of their choosing.
type (
	Orchestrator = ads.Orchestrator
	Evaluator    = abtest.Evaluator
	Loop         = optimizer.Loop
)

// RunOnce executes a single tick of a registered periodic component
// immediately, the same operation cmd/operator's "run-once" command
// triggers over HTTP. It is exposed here so an embedder driving Control
// directly (without the REST surface) has the same capability.
func RunOnce(ctx context.Context, ctl *Control, component string) error {
	return ctl.RunOnce(ctx, component)
}
