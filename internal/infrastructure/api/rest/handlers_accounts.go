package rest

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clipcast/engine/internal/domain"
)

var allPlatforms = []domain.Platform{domain.PlatformInstagram, domain.PlatformTikTok, domain.PlatformYouTube}

// AccountResponse is the wire representation of a SocialAccount. The
// encrypted credentials blob is left out, so the response carries only the
// operational fields an operator
// needs to reason about publish capacity and identity assignment.
type AccountResponse struct {
	ID                    string    `json:"id"`
	Platform              string    `json:"platform"`
	ExternalAccountID     string    `json:"external_account_id"`
	DisplayName           string    `json:"display_name"`
	IdentityClass         string    `json:"identity_class"`
	AssignedIdentityID    string    `json:"assigned_identity_id,omitempty"`
	DailyPostCap          int       `json:"daily_post_cap"`
	DailyPostCount        int       `json:"daily_post_count"`
	DailyPostCountResetAt time.Time `json:"daily_post_count_reset_at"`
	Active                bool      `json:"active"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func accountToResponse(a *domain.SocialAccount) AccountResponse {
	resp := AccountResponse{
		ID:                    a.ID.String(),
		Platform:              string(a.Platform),
		ExternalAccountID:     a.ExternalAccountID,
		DisplayName:           a.DisplayName,
		IdentityClass:         string(a.IdentityClass),
		DailyPostCap:          a.DailyPostCap,
		DailyPostCount:        a.DailyPostCount,
		DailyPostCountResetAt: a.DailyPostCountResetAt,
		Active:                a.Active,
		CreatedAt:             a.CreatedAt,
		UpdatedAt:             a.UpdatedAt,
	}
	if a.AssignedIdentityID != nil {
		resp.AssignedIdentityID = a.AssignedIdentityID.String()
	}
	return resp
}

// handleListAccounts handles GET /api/v1/accounts?platform=tiktok. Storage
// only exposes per-platform listing (spec.md §3's per-partition lookups), so
// an unscoped request fans out across every known platform.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	platforms := allPlatforms
	if v := r.URL.Query().Get("platform"); v != "" {
		platform := domain.Platform(v)
		if !platform.IsValid() {
			s.respondError(w, "unknown platform", http.StatusBadRequest)
			return
		}
		platforms = []domain.Platform{platform}
	}

	resp := make([]AccountResponse, 0)
	for _, platform := range platforms {
		accounts, err := s.store.ListSocialAccountsByPlatform(ctx, platform)
		if err != nil {
			s.logger.Error("failed to list accounts", "error", err, "platform", platform)
			s.respondError(w, "failed to list accounts", http.StatusInternalServerError)
			return
		}
		for _, a := range accounts {
			resp = append(resp, accountToResponse(a))
		}
	}

	s.respondJSON(w, resp, http.StatusOK)
}

// handleGetAccount handles GET /api/v1/accounts/{id}.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.respondError(w, "invalid account id", http.StatusBadRequest)
		return
	}

	account, err := s.store.GetSocialAccount(ctx, id)
	if err != nil {
		status, msg := storeErrorStatus(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("failed to get account", "error", err, "id", id)
		}
		s.respondError(w, msg, status)
		return
	}

	s.respondJSON(w, accountToResponse(account), http.StatusOK)
}

// IdentityResponse is the wire representation of an Identity, the
// exclusive proxy+fingerprint pairing C10 hands out per spec.md §4.10.
type IdentityResponse struct {
	AccountID             string    `json:"account_id"`
	ProxyDescriptor       string    `json:"proxy_descriptor"`
	FingerprintDescriptor string    `json:"fingerprint_descriptor"`
	DeviceClass           string    `json:"device_class"`
	IdentityClass         string    `json:"identity_class"`
	LastUsedAt            time.Time `json:"last_used_at"`
}

func identityToResponse(i *domain.Identity) IdentityResponse {
	return IdentityResponse{
		AccountID:             i.AccountID.String(),
		ProxyDescriptor:       i.ProxyDescriptor,
		FingerprintDescriptor: i.FingerprintDescriptor,
		DeviceClass:           string(i.DeviceClass),
		IdentityClass:         string(i.IdentityClass),
		LastUsedAt:            i.LastUsedAt,
	}
}

// handleListIdentities handles GET /api/v1/identities?class=exclusive_vpn.
func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	class := domain.IdentityClassAccountBound
	if v := r.URL.Query().Get("class"); v != "" {
		class = domain.IdentityClass(v)
	}

	identities, err := s.store.ListIdentitiesByClass(ctx, class)
	if err != nil {
		s.logger.Error("failed to list identities", "error", err, "class", class)
		s.respondError(w, "failed to list identities", http.StatusInternalServerError)
		return
	}

	resp := make([]IdentityResponse, 0, len(identities))
	for _, i := range identities {
		resp = append(resp, identityToResponse(i))
	}
	s.respondJSON(w, resp, http.StatusOK)
}
