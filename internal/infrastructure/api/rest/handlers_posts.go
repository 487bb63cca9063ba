package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

// PostResponse is the wire representation of a PublishLog, the state record
// the Publication Queue (C3) and Publishing Worker (C4) drive through its
// status machine (spec.md §3, §4.4).
type PostResponse struct {
	ID              string         `json:"id"`
	ClipID          string         `json:"clip_id"`
	Platform        string         `json:"platform"`
	SocialAccountID string         `json:"social_account_id,omitempty"`
	Status          string         `json:"status"`
	ScheduledFor    *time.Time     `json:"scheduled_for,omitempty"`
	RequestedAt     time.Time      `json:"requested_at"`
	PublishedAt     *time.Time     `json:"published_at,omitempty"`
	RetryCount      int            `json:"retry_count"`
	MaxRetries      int            `json:"max_retries"`
	ExternalPostID  string         `json:"external_post_id,omitempty"`
	ExternalURL     string         `json:"external_url,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ScheduledBy     string         `json:"scheduled_by"`
	ExtraMetadata   map[string]any `json:"extra_metadata,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
	Version         int64          `json:"version"`
}

// PostEventResponse mirrors one entry of a PublishLog's event-sourced
// history (internal/domain/publishlog_events.go).
type PostEventResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	SequenceNumber int64          `json:"sequence_number"`
	Timestamp      time.Time      `json:"timestamp"`
	Data           map[string]any `json:"data,omitempty"`
}

func (s *Server) postToResponse(p *domain.PublishLog) PostResponse {
	resp := PostResponse{
		ID:            p.ID().String(),
		ClipID:        p.ClipID().String(),
		Platform:      string(p.Platform()),
		Status:        string(p.Status()),
		ScheduledFor:  p.ScheduledFor(),
		RequestedAt:   p.RequestedAt(),
		PublishedAt:   p.PublishedAt(),
		RetryCount:    p.RetryCount(),
		MaxRetries:    p.MaxRetries(),
		ScheduledBy:   string(p.ScheduledBy()),
		ExtraMetadata: p.ExtraMetadata(),
		UpdatedAt:     p.UpdatedAt(),
		Version:       p.Version(),
	}
	if acctID := p.SocialAccountID(); acctID != nil {
		resp.SocialAccountID = acctID.String()
	}
	if id := p.ExternalPostID(); id != nil {
		resp.ExternalPostID = *id
	}
	if url := p.ExternalURL(); url != nil {
		resp.ExternalURL = *url
	}
	if msg := p.ErrorMessage(); msg != nil {
		resp.ErrorMessage = *msg
	}
	return resp
}

// handleListPosts handles GET /api/v1/posts, filterable by status, platform,
// and clip_id, backed by PublishLogFilter (internal/domain/storage.go).
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := domain.PublishLogFilter{Limit: 50}
	if v := q.Get("status"); v != "" {
		status := domain.PublishStatus(v)
		filter.Status = &status
	}
	if v := q.Get("platform"); v != "" {
		platform := domain.Platform(v)
		if !platform.IsValid() {
			s.respondError(w, "unknown platform", http.StatusBadRequest)
			return
		}
		filter.Platform = &platform
	}
	if v := q.Get("clip_id"); v != "" {
		clipID, err := uuid.Parse(v)
		if err != nil {
			s.respondError(w, "invalid clip_id", http.StatusBadRequest)
			return
		}
		filter.ClipID = &clipID
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			s.respondError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.respondError(w, "invalid offset", http.StatusBadRequest)
			return
		}
		filter.Offset = offset
	}

	logs, err := s.store.ListPublishLogs(ctx, filter)
	if err != nil {
		s.logger.Error("failed to list posts", "error", err)
		s.respondError(w, "failed to list posts", http.StatusInternalServerError)
		return
	}

	resp := make([]PostResponse, 0, len(logs))
	for _, l := range logs {
		resp = append(resp, s.postToResponse(l))
	}
	s.respondJSON(w, resp, http.StatusOK)
}

// handleGetPost handles GET /api/v1/posts/{id}.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid post id", http.StatusBadRequest)
		return
	}

	log, err := s.store.GetPublishLog(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to get post", "error", err, "id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, s.postToResponse(log), http.StatusOK)
}

// handleGetPostEvents handles GET /api/v1/posts/{id}/events, returning the
// event-sourced history a reconciliation audit would replay.
func (s *Server) handleGetPostEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid post id", http.StatusBadRequest)
		return
	}

	events, err := s.store.ListPublishEvents(ctx, id)
	if err != nil {
		s.logger.Error("failed to list post events", "error", err, "id", id)
		s.respondError(w, "failed to list post events", http.StatusInternalServerError)
		return
	}

	resp := make([]PostEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, PostEventResponse{
			ID:             e.ID.String(),
			Type:           string(e.Type),
			SequenceNumber: e.SequenceNumber,
			Timestamp:      e.Timestamp,
			Data:           e.Data,
		})
	}
	s.respondJSON(w, resp, http.StatusOK)
}
