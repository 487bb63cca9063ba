package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/clipcast/engine/internal/application/webhook"
	domainerrors "github.com/clipcast/engine/internal/domain/errors"
)

// webhookPayloadRequest is the wire shape platform callbacks POST, decoded
// into webhook.Payload (spec.md §4.5, §6).
type webhookPayloadRequest struct {
	ExternalPostID string         `json:"external_post_id"`
	Status         string         `json:"status"`
	MediaURL       string         `json:"media_url"`
	Timestamp      time.Time      `json:"timestamp"`
	Extra          map[string]any `json:"extra,omitempty"`
}

// handleWebhook handles POST /api/v1/webhooks/{platform}. The platform path
// segment is accepted for routing/logging symmetry with the real providers'
// distinct callback URLs, but C5 correlates purely by external_post_id
// (spec.md §4.5) so it is not otherwise validated against domain.Platform.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	platform := r.PathValue("platform")

	var req webhookPayloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}

	log, err := s.webhooks.Ingest(ctx, webhook.Payload{
		ExternalPostID: req.ExternalPostID,
		Status:         req.Status,
		MediaURL:       req.MediaURL,
		Timestamp:      req.Timestamp,
		Extra:          req.Extra,
	})
	if err != nil {
		if _, ok := err.(*domainerrors.ValidationError); ok {
			s.respondError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("webhook ingest failed", "error", err, "platform", platform)
		s.respondError(w, "webhook ingest failed", http.StatusInternalServerError)
		return
	}

	s.respondJSON(w, s.postToResponse(log), http.StatusOK)
}
