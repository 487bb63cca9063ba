package rest

import (
	"net/http"
	"time"

	"github.com/clipcast/engine/internal/domain"
)

// LedgerEventResponse is the wire representation of a LedgerEvent
// (internal/domain/ledger.go), the append-only audit trail C11 owns.
type LedgerEventResponse struct {
	ID         string         `json:"id"`
	EventType  string         `json:"event_type"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id"`
	Severity   string         `json:"severity"`
	Payload    map[string]any `json:"payload,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func ledgerEventToResponse(e domain.LedgerEvent) LedgerEventResponse {
	return LedgerEventResponse{
		ID:         e.ID.String(),
		EventType:  e.EventType,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Severity:   string(e.Severity),
		Payload:    e.Payload,
		CreatedAt:  e.CreatedAt,
	}
}

// handleListLedgerEvents handles GET /api/v1/ledger?entity_type=post&entity_id=....
// Both query parameters are required: the ledger is append-only and never
// indexed for a global scan (spec.md §3, C11).
func (s *Server) handleListLedgerEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	entityType := q.Get("entity_type")
	entityID := q.Get("entity_id")
	if entityType == "" || entityID == "" {
		s.respondError(w, "entity_type and entity_id are required", http.StatusBadRequest)
		return
	}

	events, err := s.store.ListLedgerEvents(ctx, entityType, entityID)
	if err != nil {
		s.logger.Error("failed to list ledger events", "error", err, "entity_type", entityType, "entity_id", entityID)
		s.respondError(w, "failed to list ledger events", http.StatusInternalServerError)
		return
	}

	resp := make([]LedgerEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, ledgerEventToResponse(e))
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleHealth handles GET /api/v1/health, running a live probe of every
// registered component through Master Control (C12) rather than reading
// the last persisted heartbeat, so the admin surface always reflects
// current state.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	statuses := s.control.RunHealthCheck(ctx)

	resp := make(map[string]string, len(statuses))
	for component, status := range statuses {
		resp[component] = status.String()
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleEmergencyStop handles POST /api/v1/control/emergency-stop. It halts
// the publishing worker and ads orchestrator/optimizer and pauses every
// active campaign (spec.md §4's kill-switch requirement, C12).
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.control.EmergencyStop(ctx); err != nil {
		s.logger.Error("emergency stop failed", "error", err)
		s.respondError(w, "emergency stop failed", http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, map[string]string{"status": "stopped"}, http.StatusOK)
}

// handleResume handles POST /api/v1/control/resume, reversing an emergency
// stop.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.control.Resume(ctx); err != nil {
		s.logger.Error("resume failed", "error", err)
		s.respondError(w, "resume failed", http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, map[string]string{"status": "resumed"}, http.StatusOK)
}

// handleRunOnce handles POST /api/v1/control/run-once/{component}, the
// operator's run-once command: it invokes the named component's tick
// immediately, independent of its own ticker interval.
func (s *Server) handleRunOnce(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	component := r.PathValue("component")

	if err := s.control.RunOnce(ctx, component); err != nil {
		status, msg := storeErrorStatus(err)
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, map[string]string{"status": "ran", "component": component}, http.StatusOK)
}

// handleRestartComponent handles POST /api/v1/control/restart/{component}.
func (s *Server) handleRestartComponent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	component := r.PathValue("component")

	if err := s.control.Restart(ctx, component); err != nil {
		status, msg := storeErrorStatus(err)
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, map[string]string{"status": "restarted", "component": component}, http.StatusOK)
}
