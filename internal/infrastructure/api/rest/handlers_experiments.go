package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

// ABVariantResponse is one arm of an ABTestResponse.
type ABVariantResponse struct {
	ClipID string `json:"clip_id"`
	AdID   string `json:"ad_id"`
}

// ABTestResponse is the wire representation of an ABTest (spec.md §4.8).
type ABTestResponse struct {
	ID                   string         `json:"id"`
	CampaignID           string         `json:"campaign_id"`
	Variants             []ABVariantResponse `json:"variants"`
	MetricsKeys          []string       `json:"metrics_keys"`
	Status               string         `json:"status"`
	WinnerClipID         string         `json:"winner_clip_id,omitempty"`
	WinnerDecidedAt      *time.Time     `json:"winner_decided_at,omitempty"`
	MetricsSnapshot      map[string]any `json:"metrics_snapshot,omitempty"`
	StatisticalResults   map[string]any `json:"statistical_results,omitempty"`
	MinImpressions       int64          `json:"min_impressions"`
	MinDurationHours     float64        `json:"min_duration_hours"`
	CreatedAt            time.Time      `json:"created_at"`
	StartTime            time.Time      `json:"start_time"`
	EndTime              *time.Time     `json:"end_time,omitempty"`
	Platform             string         `json:"platform"`
}

func abTestToResponse(t *domain.ABTest) ABTestResponse {
	variants := make([]ABVariantResponse, 0, len(t.Variants))
	for _, v := range t.Variants {
		variants = append(variants, ABVariantResponse{ClipID: v.ClipID.String(), AdID: v.AdID.String()})
	}
	resp := ABTestResponse{
		ID:                 t.ID.String(),
		CampaignID:         t.CampaignID.String(),
		Variants:           variants,
		MetricsKeys:        t.MetricsKeys,
		Status:             string(t.Status),
		WinnerDecidedAt:    t.WinnerDecidedAt,
		MetricsSnapshot:    t.MetricsSnapshot,
		StatisticalResults: t.StatisticalResults,
		MinImpressions:     t.MinImpressions,
		MinDurationHours:   t.MinDurationHours,
		CreatedAt:          t.CreatedAt,
		StartTime:          t.StartTime,
		EndTime:            t.EndTime,
		Platform:           string(t.Platform),
	}
	if t.WinnerClipID != nil {
		resp.WinnerClipID = t.WinnerClipID.String()
	}
	return resp
}

// handleListABTests handles GET /api/v1/ab-tests?status=active.
func (s *Server) handleListABTests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := domain.ABTestStatusActive
	if v := r.URL.Query().Get("status"); v != "" {
		status = domain.ABTestStatus(v)
	}

	tests, err := s.store.ListABTestsByStatus(ctx, status)
	if err != nil {
		s.logger.Error("failed to list ab tests", "error", err, "status", status)
		s.respondError(w, "failed to list ab tests", http.StatusInternalServerError)
		return
	}

	resp := make([]ABTestResponse, 0, len(tests))
	for _, t := range tests {
		resp = append(resp, abTestToResponse(t))
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleGetABTest handles GET /api/v1/ab-tests/{id}.
func (s *Server) handleGetABTest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid ab test id", http.StatusBadRequest)
		return
	}

	test, err := s.store.GetABTest(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to get ab test", "error", err, "id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, abTestToResponse(test), http.StatusOK)
}

// handlePromoteWinner handles POST /api/v1/ab-tests/{id}/promote-winner, the
// operator's manual promote-winner command: it is idempotent by virtue of
// abtest.Evaluator.PublishWinner itself (repeating it on an already-published
// test returns the existing PublishLog rather than scheduling a second one).
func (s *Server) handlePromoteWinner(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid ab test id", http.StatusBadRequest)
		return
	}

	log, err := s.evaluator.PublishWinner(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("promote winner failed", "error", err, "ab_test_id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, s.postToResponse(log), http.StatusOK)
}

// OptimizationActionResponse is the wire representation of a C9 decision
// (spec.md §4.9), including the guard snapshot so an operator can see why a
// given action was allowed or refused.
type OptimizationActionResponse struct {
	ID               string         `json:"id"`
	TargetLevel      string         `json:"target_level"`
	TargetID         string         `json:"target_id"`
	ActionType       string         `json:"action_type"`
	AmountPct        float64        `json:"amount_pct"`
	AmountAbsolute   *int64         `json:"amount_absolute,omitempty"`
	ReasonCode       string         `json:"reason_code"`
	ROASValue        float64        `json:"roas_value"`
	Confidence       float64        `json:"confidence"`
	Status           string         `json:"status"`
	ReallocationPlan map[string]int64 `json:"reallocation_plan,omitempty"`
	GuardSnapshot    map[string]any `json:"guard_snapshot,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	ApprovedAt       *time.Time     `json:"approved_at,omitempty"`
	ExecutedAt       *time.Time     `json:"executed_at,omitempty"`
	ExpiresAt        time.Time      `json:"expires_at"`
}

func optimizationActionToResponse(a *domain.OptimizationAction) OptimizationActionResponse {
	return OptimizationActionResponse{
		ID:               a.ID.String(),
		TargetLevel:      string(a.TargetLevel),
		TargetID:         a.TargetID.String(),
		ActionType:       string(a.ActionType),
		AmountPct:        a.AmountPct,
		AmountAbsolute:   a.AmountAbsolute,
		ReasonCode:       a.ReasonCode,
		ROASValue:        a.ROASValue,
		Confidence:       a.Confidence,
		Status:           string(a.Status),
		ReallocationPlan: a.ReallocationPlan,
		GuardSnapshot:    a.GuardSnapshot,
		CreatedAt:        a.CreatedAt,
		ApprovedAt:       a.ApprovedAt,
		ExecutedAt:       a.ExecutedAt,
		ExpiresAt:        a.ExpiresAt,
	}
}

// handleListOptimizationActions handles GET /api/v1/optimization-actions?status=suggested.
func (s *Server) handleListOptimizationActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := domain.ActionStatusSuggested
	if v := r.URL.Query().Get("status"); v != "" {
		status = domain.ActionStatus(v)
	}

	actions, err := s.store.ListOptimizationActionsByStatus(ctx, status)
	if err != nil {
		s.logger.Error("failed to list optimization actions", "error", err, "status", status)
		s.respondError(w, "failed to list optimization actions", http.StatusInternalServerError)
		return
	}

	resp := make([]OptimizationActionResponse, 0, len(actions))
	for _, a := range actions {
		resp = append(resp, optimizationActionToResponse(a))
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleApproveAction handles POST /api/v1/optimization-actions/{id}/approve,
// the operator's manual approve-action command (spec.md §4.9's human
// approval path): it re-runs the guard stack at base thresholds, with
// change_cap waived by the approval, rather than trusting the caller, so a
// suggested action that no longer passes the other guards is refused rather
// than executed on approval alone.
func (s *Server) handleApproveAction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid action id", http.StatusBadRequest)
		return
	}

	action, err := s.optimizer.ApproveAndExecute(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("approve action failed", "error", err, "action_id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, optimizationActionToResponse(action), http.StatusOK)
}
