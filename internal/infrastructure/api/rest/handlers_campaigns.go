package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

// CampaignResponse is the wire representation of the top level of the
// Campaign→AdSet→Ad→Creative saga the Ads Orchestrator (C7) drives
// (spec.md §4.7).
type CampaignResponse struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	ExternalID       string    `json:"external_id,omitempty"`
	Name             string    `json:"name"`
	DailyBudgetCents int64     `json:"daily_budget_cents"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
}

func campaignToResponse(c *domain.Campaign) CampaignResponse {
	resp := CampaignResponse{
		ID:               c.ID.String(),
		RequestID:        c.RequestID.String(),
		Name:             c.Name,
		DailyBudgetCents: c.DailyBudgetCents,
		Status:           string(c.Status),
		CreatedAt:        c.CreatedAt,
	}
	if c.ExternalID != nil {
		resp.ExternalID = *c.ExternalID
	}
	return resp
}

// AdSetResponse is the wire representation of an AdSet.
type AdSetResponse struct {
	ID            string         `json:"id"`
	ExternalID    string         `json:"external_id,omitempty"`
	CampaignID    string         `json:"campaign_id"`
	Targeting     map[string]any `json:"targeting,omitempty"`
	BudgetCents   int64          `json:"budget_cents"`
	ScheduleStart time.Time      `json:"schedule_start"`
	ScheduleEnd   *time.Time     `json:"schedule_end,omitempty"`
	Status        string         `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
}

func adSetToResponse(a *domain.AdSet) AdSetResponse {
	resp := AdSetResponse{
		ID:            a.ID.String(),
		CampaignID:    a.CampaignID.String(),
		Targeting:     a.Targeting,
		BudgetCents:   a.BudgetCents,
		ScheduleStart: a.ScheduleStart,
		ScheduleEnd:   a.ScheduleEnd,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
	}
	if a.ExternalID != nil {
		resp.ExternalID = *a.ExternalID
	}
	return resp
}

// AdResponse is the wire representation of an Ad, the unit the Optimization
// Loop (C9) scales, pauses, and reallocates per-tick (spec.md §4.9).
type AdResponse struct {
	ID          string    `json:"id"`
	ExternalID  string    `json:"external_id,omitempty"`
	AdSetID     string    `json:"ad_set_id"`
	CreativeID  string    `json:"creative_id"`
	BudgetCents int64     `json:"budget_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func adToResponse(a *domain.Ad) AdResponse {
	resp := AdResponse{
		ID:          a.ID.String(),
		AdSetID:     a.AdSetID.String(),
		CreativeID:  a.CreativeID.String(),
		BudgetCents: a.BudgetCents,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
	}
	if a.ExternalID != nil {
		resp.ExternalID = *a.ExternalID
	}
	return resp
}

// orchestrateCampaignRequest is the wire shape for POST /api/v1/campaigns,
// mirroring domain.CampaignOrchestrationRequest field for field.
type orchestrateCampaignRequest struct {
	RequestID        string         `json:"request_id"`
	Name             string         `json:"name"`
	DailyBudgetCents int64          `json:"daily_budget_cents"`
	Targeting        map[string]any `json:"targeting,omitempty"`
	AdSetBudgetCents int64          `json:"ad_set_budget_cents"`
	ScheduleStart    time.Time      `json:"schedule_start"`
	ScheduleEnd      *time.Time     `json:"schedule_end,omitempty"`
	ClipID           string         `json:"clip_id"`
	Caption          string         `json:"caption,omitempty"`
	Hashtags         []string       `json:"hashtags,omitempty"`
}

// orchestrateCampaignResponse reports which saga steps (spec.md §4.7)
// completed, surfacing a partial failure structurally instead of as a bare
// error string.
type orchestrateCampaignResponse struct {
	Campaign      *CampaignResponse `json:"campaign,omitempty"`
	AdSet         *AdSetResponse    `json:"ad_set,omitempty"`
	Ad            *AdResponse       `json:"ad,omitempty"`
	FailedStep    string            `json:"failed_step,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
}

// handleOrchestrateCampaign handles POST /api/v1/campaigns, driving C7's
// five-step create-campaign saga on demand (spec.md §4.7). Repeating a
// request_id whose campaign was already persisted returns the recorded
// result rather than re-running the saga; a request_id that failed at
// create_campaign runs the saga again.
func (s *Server) handleOrchestrateCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req orchestrateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid campaign orchestration request", http.StatusBadRequest)
		return
	}

	requestID, err := uuid.Parse(req.RequestID)
	if err != nil {
		s.respondError(w, "invalid request_id", http.StatusBadRequest)
		return
	}
	clipID, err := uuid.Parse(req.ClipID)
	if err != nil {
		s.respondError(w, "invalid clip_id", http.StatusBadRequest)
		return
	}

	result, err := s.orchestrator.OrchestrateCampaign(ctx, domain.CampaignOrchestrationRequest{
		RequestID:        requestID,
		Name:             req.Name,
		DailyBudgetCents: req.DailyBudgetCents,
		Targeting:        req.Targeting,
		AdSetBudgetCents: req.AdSetBudgetCents,
		ScheduleStart:    req.ScheduleStart,
		ScheduleEnd:      req.ScheduleEnd,
		ClipID:           clipID,
		Caption:          req.Caption,
		Hashtags:         req.Hashtags,
	})
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("campaign orchestration failed", "error", err)
		}
		s.respondError(w, msg, status)
		return
	}

	resp := orchestrateCampaignResponse{FailedStep: result.FailedStep, FailureReason: result.FailureReason}
	if result.Campaign != nil {
		c := campaignToResponse(result.Campaign)
		resp.Campaign = &c
	}
	if result.AdSet != nil {
		a := adSetToResponse(result.AdSet)
		resp.AdSet = &a
	}
	if result.Ad != nil {
		a := adToResponse(result.Ad)
		resp.Ad = &a
	}

	status := http.StatusCreated
	if !result.Succeeded() {
		status = http.StatusOK
	}
	s.respondJSON(w, resp, status)
}

// handleListCampaigns handles GET /api/v1/campaigns.
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	campaigns, err := s.store.ListActiveCampaigns(ctx)
	if err != nil {
		s.logger.Error("failed to list campaigns", "error", err)
		s.respondError(w, "failed to list campaigns", http.StatusInternalServerError)
		return
	}

	resp := make([]CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		resp = append(resp, campaignToResponse(c))
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}.
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	campaign, err := s.store.GetCampaign(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to get campaign", "error", err, "id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, campaignToResponse(campaign), http.StatusOK)
}

// handleGetCampaignAdSet handles GET /api/v1/campaigns/{id}/ad-set. A
// Campaign carries exactly one AdSet in this saga (spec.md §4.7).
func (s *Server) handleGetCampaignAdSet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	adSet, err := s.store.GetAdSetByCampaign(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to get ad set", "error", err, "campaign_id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, adSetToResponse(adSet), http.StatusOK)
}

// handleListCampaignAds handles GET /api/v1/campaigns/{id}/ads.
func (s *Server) handleListCampaignAds(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid campaign id", http.StatusBadRequest)
		return
	}

	ads, err := s.store.ListAdsByCampaign(ctx, id)
	if err != nil {
		s.logger.Error("failed to list ads", "error", err, "campaign_id", id)
		s.respondError(w, "failed to list ads", http.StatusInternalServerError)
		return
	}

	resp := make([]AdResponse, 0, len(ads))
	for _, a := range ads {
		resp = append(resp, adToResponse(a))
	}
	s.respondJSON(w, resp, http.StatusOK)
}
