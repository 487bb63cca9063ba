package rest

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipcast/engine/internal/application/abtest"
	"github.com/clipcast/engine/internal/application/ads"
	"github.com/clipcast/engine/internal/application/control"
	"github.com/clipcast/engine/internal/application/optimizer"
	"github.com/clipcast/engine/internal/application/webhook"
	"github.com/clipcast/engine/internal/domain"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// ServerConfig toggles the middleware chain NewServer wraps the mux with.
type ServerConfig struct {
	EnableCORS      bool
	EnableRateLimit bool
	RateLimitMax    int
	RateLimitWindow time.Duration
	APIKeys         []string
}

// DefaultServerConfig enables CORS and leaves rate limiting and API key
// auth off, the same posture the teacher's cmd/server defaults to.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		EnableCORS:      true,
		EnableRateLimit: false,
		RateLimitMax:    100,
		RateLimitWindow: time.Minute,
	}
}

// Server exposes the read-only operational surface over the core's storage
// (PublishLog/Campaign/ABTest/Identity/ledger) plus Master Control's admin
// commands, mirroring the teacher's Server in internal/infrastructure/api/rest/server.go
// (mux-per-entity handlers, a shared store handle, structured logging on
// every request).
type Server struct {
	store        domain.Storage
	control      *control.Control
	webhooks     *webhook.Ingestor
	orchestrator *ads.Orchestrator
	evaluator    *abtest.Evaluator
	optimizer    *optimizer.Loop
	mux          *http.ServeMux
	handler      http.Handler
	logger       *slog.Logger
}

// NewServer wires routes against store for reads, webhooks for C5's
// callback ingestion, orchestrator for C7's on-demand campaign saga,
// evaluator for C8's promote-winner operator command, optimizer for C9's
// approve-action operator command, and control for the
// emergency-stop/resume/restart/run-once/health-check admin surface
// (SPEC_FULL §4, operator commands), then wraps the mux with the
// logging/recovery/CORS/content-type/rate-limit/API-key middleware chain
// per cfg.
func NewServer(store domain.Storage, ctl *control.Control, webhooks *webhook.Ingestor, orchestrator *ads.Orchestrator, evaluator *abtest.Evaluator, optLoop *optimizer.Loop, logger *slog.Logger, cfg ServerConfig) *Server {
	s := &Server{
		store:        store,
		control:      ctl,
		webhooks:     webhooks,
		orchestrator: orchestrator,
		evaluator:    evaluator,
		optimizer:    optLoop,
		mux:          http.NewServeMux(),
		logger:       logger,
	}
	s.routes()

	var h http.Handler = s.mux
	h = contentTypeMiddleware(h)
	if cfg.EnableCORS {
		h = corsMiddleware(h)
	}
	if len(cfg.APIKeys) > 0 {
		h = newAuthMiddleware(cfg.APIKeys).middleware(h)
	}
	if cfg.EnableRateLimit {
		h = newRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow).middleware(h)
	}
	h = recoveryMiddleware(logger, h)
	h = loggingMiddleware(logger, h)
	s.handler = h

	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/posts", s.handleListPosts)
	s.mux.HandleFunc("GET /api/v1/posts/{id}", s.handleGetPost)
	s.mux.HandleFunc("GET /api/v1/posts/{id}/events", s.handleGetPostEvents)

	s.mux.HandleFunc("GET /api/v1/accounts", s.handleListAccounts)
	s.mux.HandleFunc("GET /api/v1/accounts/{id}", s.handleGetAccount)

	s.mux.HandleFunc("POST /api/v1/campaigns", s.handleOrchestrateCampaign)
	s.mux.HandleFunc("GET /api/v1/campaigns", s.handleListCampaigns)
	s.mux.HandleFunc("GET /api/v1/campaigns/{id}", s.handleGetCampaign)
	s.mux.HandleFunc("GET /api/v1/campaigns/{id}/ad-set", s.handleGetCampaignAdSet)
	s.mux.HandleFunc("GET /api/v1/campaigns/{id}/ads", s.handleListCampaignAds)

	s.mux.HandleFunc("GET /api/v1/ab-tests", s.handleListABTests)
	s.mux.HandleFunc("GET /api/v1/ab-tests/{id}", s.handleGetABTest)
	s.mux.HandleFunc("POST /api/v1/ab-tests/{id}/promote-winner", s.handlePromoteWinner)

	s.mux.HandleFunc("GET /api/v1/optimization-actions", s.handleListOptimizationActions)
	s.mux.HandleFunc("POST /api/v1/optimization-actions/{id}/approve", s.handleApproveAction)

	s.mux.HandleFunc("GET /api/v1/identities", s.handleListIdentities)

	s.mux.HandleFunc("GET /api/v1/ledger", s.handleListLedgerEvents)

	s.mux.HandleFunc("POST /api/v1/webhooks/{platform}", s.handleWebhook)

	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/control/emergency-stop", s.handleEmergencyStop)
	s.mux.HandleFunc("POST /api/v1/control/pause-all", s.handleEmergencyStop)
	s.mux.HandleFunc("POST /api/v1/control/resume", s.handleResume)
	s.mux.HandleFunc("POST /api/v1/control/restart/{component}", s.handleRestartComponent)
	s.mux.HandleFunc("POST /api/v1/control/run-once/{component}", s.handleRunOnce)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// respondJSON writes v as the response body, logging (but not retrying)
// encode failures the way the teacher's handlers do.
func (s *Server) respondJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondError(w http.ResponseWriter, message string, status int) {
	s.respondJSON(w, errorResponse{Error: message}, status)
}

// storeErrorStatus maps a storage-layer error to an HTTP status, following
// the core's typed error hierarchy (internal/domain/errors) instead of
// string-matching messages.
func storeErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		var ve *domainerrors.ValidationError
		if errors.As(err, &ve) {
			return http.StatusBadRequest, ve.Error()
		}
		var ae *domainerrors.AuthError
		if errors.As(err, &ae) {
			return http.StatusUnauthorized, ae.Error()
		}
		return http.StatusInternalServerError, "internal server error"
	}
}
